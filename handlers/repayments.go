package handlers

import (
	"net/http"

	"microfin-go/models"
	"microfin-go/settlement"
	"microfin-go/utils"
)

// RepaymentResponse is the recorded repayment plus the loan position after it.
type RepaymentResponse struct {
	models.Repayment
	LoanStatus models.LoanStatus `json:"loan_status"`
	settlement.Summary
}

func (h *Handlers) CreateRepayment(w http.ResponseWriter, r *http.Request) {
	claims, err := principal(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	var req models.RepaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	date, err := utils.ParseDate(req.Date)
	if err != nil {
		h.handleError(w, r, utils.ValidationFailed(map[string]string{"date": err.Error()}))
		return
	}

	res, err := h.engine.PostRepayment(r.Context(), settlement.RepaymentInput{
		LoanID: req.LoanID,
		Amount: req.Amount,
		Date:   date,
		Method: models.RepaymentMethod(req.Method),
		Notes:  utils.SanitizeString(req.Notes),
		Actor:  claims.Subject,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logAudit(r, "create", "repayment", res.Repayment.ID, map[string]string{
		"loan_id":   res.Loan.ID,
		"amount":    res.Repayment.Amount.String(),
		"reference": res.Repayment.Reference,
		"status":    string(res.Loan.Status),
	})
	writeJSON(w, http.StatusCreated, RepaymentResponse{
		Repayment:  *res.Repayment,
		LoanStatus: res.Loan.Status,
		Summary:    res.Summary,
	})
}

// GetRepayments lists repayments newest first, optionally for one loan.
// Both loanId and loan_id are accepted.
func (h *Handlers) GetRepayments(w http.ResponseWriter, r *http.Request) {
	query := h.db.WithContext(r.Context()).
		Scopes(paginate(r)).
		Preload("Loan.Borrower").
		Order("date DESC").
		Order("created_at DESC")

	loanID := r.URL.Query().Get("loanId")
	if loanID == "" {
		loanID = r.URL.Query().Get("loan_id")
	}
	if loanID != "" {
		query = query.Where("loan_id = ?", loanID)
	}

	var repayments []models.Repayment
	if err := query.Find(&repayments).Error; err != nil {
		h.handleError(w, r, utils.Internal("Failed to fetch repayments", err))
		return
	}

	writeJSON(w, http.StatusOK, repayments)
}
