// Package settlement owns the loan status state machine and decides how
// approvals and repayment postings move a loan through it.
package settlement

import (
	"github.com/shopspring/decimal"

	"microfin-go/models"
)

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

var hundred = decimal.NewFromInt(100)

// transitions lists every status a loan may move to from a given status.
// COMPLETED and WRITTEN_OFF have no outgoing edges.
var transitions = map[models.LoanStatus][]models.LoanStatus{
	models.LoanPending:   {models.LoanApproved, models.LoanWrittenOff, models.LoanDisbursed, models.LoanCompleted},
	models.LoanApproved:  {models.LoanDisbursed, models.LoanCompleted, models.LoanWrittenOff},
	models.LoanDisbursed: {models.LoanCompleted},
}

func CanTransition(from, to models.LoanStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DecisionTarget maps an administrator action to the status it produces.
func DecisionTarget(action string) (models.LoanStatus, error) {
	switch action {
	case ActionApprove:
		return models.LoanApproved, nil
	case ActionReject:
		return models.LoanWrittenOff, nil
	default:
		return "", ErrInvalidAction
	}
}

// TotalDue is principal plus flat interest: principal * (1 + rate/100).
// The product's interest type and the repayment cycle are deliberately not
// taken into account.
func TotalDue(principal, interestRate decimal.Decimal) decimal.Decimal {
	return principal.Add(principal.Mul(interestRate).Div(hundred))
}

// TotalPaid sums every repayment amount.
func TotalPaid(repayments []models.Repayment) decimal.Decimal {
	total := decimal.Zero
	for _, r := range repayments {
		total = total.Add(r.Amount)
	}
	return total
}

// NextStatusAfterRepayment decides the status after a repayment has been
// recorded. Completion is checked before disbursement, so one repayment can take
// a PENDING loan straight to COMPLETED. Terminal loans never move.
func NextStatusAfterRepayment(current models.LoanStatus, totalPaid, totalDue decimal.Decimal) models.LoanStatus {
	if current.IsTerminal() {
		return current
	}
	if totalPaid.GreaterThanOrEqual(totalDue) {
		return models.LoanCompleted
	}
	if current == models.LoanPending || current == models.LoanApproved {
		return models.LoanDisbursed
	}
	return current
}

func CanEdit(loan *models.Loan) bool {
	return loan.Status == models.LoanPending
}

func CanDelete(loan *models.Loan, repaymentCount int64) bool {
	return loan.Status == models.LoanPending && repaymentCount == 0
}

// Summary is the settlement position of a loan.
type Summary struct {
	TotalDue    decimal.Decimal `json:"total_due"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

func Summarize(loan *models.Loan, repayments []models.Repayment) Summary {
	due := TotalDue(loan.Principal, loan.InterestRate)
	paid := TotalPaid(repayments)
	outstanding := due.Sub(paid)
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}
	return Summary{TotalDue: due, TotalPaid: paid, Outstanding: outstanding}
}
