package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"ventia.app/internal/identity"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// errorMessage strips the package prefix from sentinel-wrapped errors so the
// client sees "a user with this email already exists", not "identity: ...".
func errorMessage(err error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, "identity: "); ok {
		return rest
	}
	return msg
}

// handleIdentityError maps service errors onto the API's status taxonomy.
// Duplicates map to 400 like any other validation failure; token problems on
// the refresh path are handled at the call site because they carry 401 there.
func handleIdentityError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidInput), errors.Is(err, identity.ErrConflict):
		writeError(w, r, http.StatusBadRequest, errorMessage(err))
	case errors.Is(err, identity.ErrInvalidToken):
		writeError(w, r, http.StatusBadRequest, errorMessage(err))
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, errorMessage(err))
	case errors.Is(err, identity.ErrNotFound):
		writeError(w, r, http.StatusNotFound, errorMessage(err))
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
