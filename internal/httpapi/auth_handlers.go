package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"ventia.app/internal/audit"
	"ventia.app/internal/identity"
	"ventia.app/internal/obs"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"rol"`
	Password string `json:"password"`
	Company  string `json:"company"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.Register(r.Context(), identity.RegisterParams{
		Email:     req.Email,
		Username:  req.Username,
		Role:      identity.Role(req.Role),
		Password:  req.Password,
		CompanyID: req.Company,
	})
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "auth.user.registered",
		zap.String("user_id", user.ID),
		zap.String("rol", string(user.Role)),
		zap.String("company", user.CompanyID),
	)
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, user, err := a.svc.IssueTokens(r.Context(), req.Email, req.Password)
	if err != nil {
		obs.CountLogin("failure")
		handleIdentityError(w, r, err)
		return
	}
	obs.CountLogin("success")
	audit.LogEvent(r.Context(), "auth.login",
		zap.String("user_id", user.ID),
	)
	writeJSON(w, http.StatusOK, pair)
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, err := a.svc.Refresh(r.Context(), req.Refresh)
	if err != nil {
		// an unusable refresh token is an authentication failure here
		if errors.Is(err, identity.ErrInvalidToken) {
			writeError(w, r, http.StatusUnauthorized, errorMessage(err))
			return
		}
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.Logout(r.Context(), req.Refresh); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "auth.logout")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	user, err := a.svc.Profile(r.Context(), principal.User.ID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	Username *string `json:"username"`
	Role     *string `json:"rol"`
	Company  *string `json:"company"`
	Active   *bool   `json:"is_active"`
}

// handleUserResource dispatches /auth/{id}/update/.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/auth/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "update" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPatch && r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPatch, http.MethodPut)
		return
	}
	userID := parts[0]

	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	// users edit themselves; editing others takes the user.change capability
	if principal.User.ID != userID && !principal.HasPermission(identity.PermUserChange) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}

	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	upd := identity.UserUpdate{
		Email:     req.Email,
		Username:  req.Username,
		CompanyID: req.Company,
		Active:    req.Active,
	}
	if req.Role != nil {
		role := identity.Role(*req.Role)
		upd.Role = &role
	}
	user, err := a.svc.UpdateUser(r.Context(), userID, upd)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "auth.user.updated",
		zap.String("user_id", user.ID),
	)
	writeJSON(w, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPut, http.MethodPatch)
		return
	}
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ChangePassword(r.Context(), principal.User.ID, req.CurrentPassword, req.NewPassword); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "auth.password.changed")
	writeJSON(w, http.StatusOK, map[string]any{
		"detail": "password updated",
	})
}

type requestResetRequest struct {
	Email string `json:"email"`
}

func (a *API) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req requestResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.RequestReset(r.Context(), req.Email); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	// the response never says whether the email exists
	writeJSON(w, http.StatusOK, map[string]any{
		"detail": "if the account exists, a reset link has been sent",
	})
}

// handleCheckResetToken serves /auth/password-reset/{uidb64}/{token}/.
func (a *API) handleCheckResetToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/auth/password-reset/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	uidb64, token := parts[0], parts[1]

	if _, err := a.svc.CheckResetToken(r.Context(), uidb64, token); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  true,
		"uidb64": uidb64,
		"token":  token,
	})
}

type setNewPasswordRequest struct {
	UIDB64   string `json:"uidb64"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (a *API) handleSetNewPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	var req setNewPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.SetNewPassword(r.Context(), req.UIDB64, req.Token, req.Password); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "auth.password.reset")
	writeJSON(w, http.StatusOK, map[string]any{
		"detail": "password has been reset",
	})
}
