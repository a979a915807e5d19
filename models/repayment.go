package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RepaymentMethod string

const (
	MethodCash         RepaymentMethod = "CASH"
	MethodBankTransfer RepaymentMethod = "BANK_TRANSFER"
	MethodCheque       RepaymentMethod = "CHEQUE"
	MethodMobileMoney  RepaymentMethod = "MOBILE_MONEY"
	MethodATM          RepaymentMethod = "ATM"
)

// Repayment is immutable once recorded. Reference is a time-ordered receipt
// number handed back to the cashier.
type Repayment struct {
	ID         string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Reference  string          `json:"reference" gorm:"type:varchar(26);uniqueIndex;not null"`
	LoanID     string          `json:"loan_id" gorm:"not null;index;type:varchar(36)"`
	Loan       *Loan           `json:"loan,omitempty" gorm:"foreignKey:LoanID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Amount     decimal.Decimal `json:"amount" gorm:"type:decimal(20,4);not null"`
	Date       time.Time       `json:"date" gorm:"not null;index"`
	Method     RepaymentMethod `json:"method" gorm:"type:varchar(16);not null"`
	Notes      string          `json:"notes"`
	RecordedBy string          `json:"recorded_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (r *Repayment) BeforeCreate(tx *gorm.DB) error {
	newID(&r.ID)
	if r.Reference == "" {
		r.Reference = ulid.Make().String()
	}
	return nil
}

type RepaymentRequest struct {
	LoanID string          `json:"loan_id" validate:"required"`
	Amount decimal.Decimal `json:"amount" validate:"gte=0.01"`
	Date   string          `json:"date" validate:"required,isodate"`
	Method string          `json:"method" validate:"required,oneof=CASH BANK_TRANSFER CHEQUE MOBILE_MONEY ATM"`
	Notes  string          `json:"notes" validate:"omitempty,max=500"`
}
