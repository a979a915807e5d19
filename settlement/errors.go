package settlement

import (
	"errors"

	"microfin-go/utils"
)

var (
	ErrLoanNotFound     = errors.New("loan not found")
	ErrBorrowerNotFound = errors.New("borrower not found")
	ErrProductNotFound  = errors.New("loan product not found")
	ErrInvalidAction    = errors.New("invalid action")
	ErrInvalidState     = errors.New("operation not allowed in current loan status")
	ErrInvalidAmount    = errors.New("repayment amount must be greater than zero")
)

func loanNotFound() error {
	return utils.NotFound("Loan not found", ErrLoanNotFound)
}

func borrowerNotFound() error {
	return utils.NotFound("Borrower not found", ErrBorrowerNotFound)
}

func productNotFound() error {
	return utils.NotFound("Loan product not found", ErrProductNotFound)
}

func invalidState(message string) error {
	return utils.InvalidState(message, ErrInvalidState)
}

func invalidAction() error {
	return &utils.AppError{
		Kind:    utils.KindValidation,
		Message: "Invalid action. Must be 'approve' or 'reject'",
		Details: map[string]string{"action": "action must be one of [approve reject]"},
		Err:     ErrInvalidAction,
	}
}
