package handlers

import (
	"net/http"

	"microfin-go/models"
	"microfin-go/utils"
)

func (h *Handlers) CreateLoanProduct(w http.ResponseWriter, r *http.Request) {
	if _, err := principal(r); err != nil {
		h.handleError(w, r, err)
		return
	}

	var req models.LoanProductRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	if req.MaxPrincipal.LessThan(req.MinPrincipal) {
		h.handleError(w, r, utils.ValidationFailed(map[string]string{
			"max_principal": "max_principal must be greater than or equal to min_principal",
		}))
		return
	}

	product := models.LoanProduct{
		Name:         utils.SanitizeString(req.Name),
		MinPrincipal: req.MinPrincipal,
		MaxPrincipal: req.MaxPrincipal,
		InterestRate: req.InterestRate,
		InterestType: models.InterestType(req.InterestType),
		Term:         req.Term,
		TermUnit:     models.TermUnit(req.TermUnit),
		Fees:         req.Fees,
		Penalties:    req.Penalties,
	}
	if err := h.db.WithContext(r.Context()).Create(&product).Error; err != nil {
		h.handleError(w, r, utils.Internal("Failed to create loan product", err))
		return
	}

	h.logAudit(r, "create", "loan_product", product.ID, map[string]string{"name": product.Name})
	writeJSON(w, http.StatusCreated, product)
}

func (h *Handlers) GetLoanProducts(w http.ResponseWriter, r *http.Request) {
	var products []models.LoanProduct
	if err := h.db.WithContext(r.Context()).Scopes(paginate(r)).Order("name ASC").Find(&products).Error; err != nil {
		h.handleError(w, r, utils.Internal("Failed to fetch loan products", err))
		return
	}

	writeJSON(w, http.StatusOK, products)
}
