package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"microfin-go/models"
	"microfin-go/settlement"
	"microfin-go/utils"
)

// loanInput converts a validated request into engine input.
func loanInput(req models.LoanRequest) (settlement.LoanInput, error) {
	disbursedAt, err := utils.ParseOptionalDate(req.DisbursedAt)
	if err != nil {
		return settlement.LoanInput{}, utils.ValidationFailed(map[string]string{"disbursed_at": err.Error()})
	}
	firstRepayment, err := utils.ParseOptionalDate(req.FirstRepaymentDate)
	if err != nil {
		return settlement.LoanInput{}, utils.ValidationFailed(map[string]string{"first_repayment_date": err.Error()})
	}

	return settlement.LoanInput{
		BorrowerID:         req.BorrowerID,
		ProductID:          req.ProductID,
		Principal:          req.Principal,
		InterestRate:       req.InterestRate,
		Duration:           req.Duration,
		RepaymentCycle:     models.RepaymentCycle(req.RepaymentCycle),
		DisbursedAt:        disbursedAt,
		FirstRepaymentDate: firstRepayment,
		CustomFields:       req.CustomFields,
	}, nil
}

func (h *Handlers) CreateLoan(w http.ResponseWriter, r *http.Request) {
	claims, err := principal(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	var req models.LoanRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	in, err := loanInput(req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	loan, err := h.engine.CreateLoan(r.Context(), claims.Subject, in)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logAudit(r, "create", "loan", loan.ID, map[string]string{
		"borrower_id": loan.BorrowerID,
		"principal":   loan.Principal.String(),
	})
	writeJSON(w, http.StatusCreated, loan)
}

func (h *Handlers) GetLoans(w http.ResponseWriter, r *http.Request) {
	query := h.db.WithContext(r.Context()).
		Scopes(paginate(r)).
		Preload("Borrower").
		Preload("Product").
		Order("created_at DESC")

	if status := r.URL.Query().Get("status"); status != "" {
		if !models.LoanStatus(status).Valid() {
			h.handleError(w, r, utils.ValidationFailed(map[string]string{
				"status": "status must be one of [PENDING APPROVED DISBURSED COMPLETED WRITTEN_OFF]",
			}))
			return
		}
		query = query.Where("status = ?", status)
	}
	if borrowerID := r.URL.Query().Get("borrower_id"); borrowerID != "" {
		query = query.Where("borrower_id = ?", borrowerID)
	}

	var loans []models.Loan
	if err := query.Find(&loans).Error; err != nil {
		h.handleError(w, r, utils.Internal("Failed to fetch loans", err))
		return
	}

	writeJSON(w, http.StatusOK, loans)
}

func (h *Handlers) GetLoan(w http.ResponseWriter, r *http.Request) {
	detail, err := h.engine.GetLoan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (h *Handlers) UpdateLoan(w http.ResponseWriter, r *http.Request) {
	claims, err := principal(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	var req models.LoanRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	in, err := loanInput(req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	id := mux.Vars(r)["id"]
	loan, err := h.engine.UpdateLoan(r.Context(), claims.Subject, id, in)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logAudit(r, "update", "loan", id, map[string]string{
		"borrower_id": loan.BorrowerID,
		"principal":   loan.Principal.String(),
	})
	writeJSON(w, http.StatusOK, loan)
}

func (h *Handlers) DeleteLoan(w http.ResponseWriter, r *http.Request) {
	claims, err := principal(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.engine.DeleteLoan(r.Context(), claims.Subject, id); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logAudit(r, "delete", "loan", id, nil)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Loan deleted successfully"})
}

// DecideLoan approves or rejects a pending loan. Admin only.
func (h *Handlers) DecideLoan(w http.ResponseWriter, r *http.Request) {
	claims, err := principal(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	var req models.LoanDecisionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	id := mux.Vars(r)["id"]
	loan, err := h.engine.Decide(r.Context(), id, settlement.Decision{
		Action: req.Action,
		Notes:  utils.SanitizeString(req.Notes),
		Actor:  claims.Subject,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logAudit(r, req.Action, "loan", id, map[string]string{
		"status": string(loan.Status),
		"notes":  req.Notes,
	})
	writeJSON(w, http.StatusOK, loan)
}
