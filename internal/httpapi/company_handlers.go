package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"ventia.app/internal/audit"
	"ventia.app/internal/identity"
)

type createCompanyRequest struct {
	Name    string `json:"name"`
	TaxID   string `json:"tax_id"`
	Address string `json:"address"`
	Cell    string `json:"cell"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`

	Admin struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"rol"`
	} `json:"user"`
}

type createCompanyResponse struct {
	Company *identity.Company `json:"company"`
	Admin   *identity.User    `json:"user"`
}

func (a *API) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createCompanyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	company, admin, err := a.svc.CreateCompanyWithAdmin(r.Context(),
		identity.CompanyParams{
			Name:    req.Name,
			TaxID:   req.TaxID,
			Address: req.Address,
			Cell:    req.Cell,
			Phone:   req.Phone,
			Email:   req.Email,
		},
		identity.AdminParams{
			Email:    req.Admin.Email,
			Username: req.Admin.Username,
			Password: req.Admin.Password,
			Role:     identity.Role(req.Admin.Role),
		},
	)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	audit.LogEvent(r.Context(), "company.provisioned",
		zap.String("company_id", company.ID),
		zap.String("admin_id", admin.ID),
	)
	writeJSON(w, http.StatusCreated, createCompanyResponse{
		Company: company,
		Admin:   admin,
	})
}
