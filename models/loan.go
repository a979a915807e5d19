package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type LoanStatus string

const (
	LoanPending    LoanStatus = "PENDING"
	LoanApproved   LoanStatus = "APPROVED"
	LoanDisbursed  LoanStatus = "DISBURSED"
	LoanCompleted  LoanStatus = "COMPLETED"
	LoanWrittenOff LoanStatus = "WRITTEN_OFF"
)

func (s LoanStatus) IsTerminal() bool {
	return s == LoanCompleted || s == LoanWrittenOff
}

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanPending, LoanApproved, LoanDisbursed, LoanCompleted, LoanWrittenOff:
		return true
	}
	return false
}

type RepaymentCycle string

const (
	CycleDaily    RepaymentCycle = "DAILY"
	CycleWeekly   RepaymentCycle = "WEEKLY"
	CycleBiWeekly RepaymentCycle = "BI_WEEKLY"
	CycleMonthly  RepaymentCycle = "MONTHLY"
)

// ApprovalRecord is written once, when an administrator approves or rejects
// a pending loan.
type ApprovalRecord struct {
	Action     string    `json:"action"`
	Notes      string    `json:"notes,omitempty"`
	ApprovedBy string    `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
}

// Keys merged into Loan.CustomFields on approval/rejection.
const (
	FieldApprovalAction = "approvalAction"
	FieldApprovalNotes  = "approvalNotes"
	FieldApprovedBy     = "approvedBy"
	FieldApprovedAt     = "approvedAt"
)

type Loan struct {
	ID                 string                 `json:"id" gorm:"primaryKey;type:varchar(36)"`
	BorrowerID         string                 `json:"borrower_id" gorm:"not null;index;type:varchar(36)"`
	Borrower           *Borrower              `json:"borrower,omitempty" gorm:"foreignKey:BorrowerID"`
	ProductID          string                 `json:"product_id" gorm:"not null;index;type:varchar(36)"`
	Product            *LoanProduct           `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	BranchID           string                 `json:"branch_id" gorm:"not null;index;type:varchar(36)"`
	Branch             *Branch                `json:"branch,omitempty" gorm:"foreignKey:BranchID"`
	Principal          decimal.Decimal        `json:"principal" gorm:"type:decimal(20,4);not null"`
	InterestRate       decimal.Decimal        `json:"interest_rate" gorm:"type:decimal(10,4);not null"`
	Duration           int                    `json:"duration" gorm:"not null"`
	RepaymentCycle     RepaymentCycle         `json:"repayment_cycle" gorm:"type:varchar(16);not null"`
	Status             LoanStatus             `json:"status" gorm:"type:varchar(16);not null;default:PENDING;index"`
	DisbursedAt        *time.Time             `json:"disbursed_at"`
	FirstRepaymentDate *time.Time             `json:"first_repayment_date"`
	CustomFields       map[string]interface{} `json:"custom_fields,omitempty" gorm:"type:text;serializer:json"`
	Approval           *ApprovalRecord        `json:"approval,omitempty" gorm:"type:text;serializer:json"`
	Repayments         []Repayment            `json:"repayments,omitempty" gorm:"foreignKey:LoanID"`
	CreatedBy          string                 `json:"created_by"`
	CreatedAt          time.Time              `json:"created_at" gorm:"index"`
	UpdatedAt          time.Time              `json:"updated_at"`
	DeletedAt          gorm.DeletedAt         `json:"-" gorm:"index"`
}

type LoanRequest struct {
	BorrowerID         string                 `json:"borrower_id" validate:"required"`
	ProductID          string                 `json:"product_id" validate:"required"`
	Principal          decimal.Decimal        `json:"principal" validate:"gte=1"`
	InterestRate       *decimal.Decimal       `json:"interest_rate" validate:"omitempty,gte=0"`
	Duration           int                    `json:"duration" validate:"required,min=1"`
	RepaymentCycle     string                 `json:"repayment_cycle" validate:"required,oneof=DAILY WEEKLY BI_WEEKLY MONTHLY"`
	DisbursedAt        string                 `json:"disbursed_at" validate:"omitempty,isodate"`
	FirstRepaymentDate string                 `json:"first_repayment_date" validate:"omitempty,isodate"`
	CustomFields       map[string]interface{} `json:"custom_fields"`
}

type LoanDecisionRequest struct {
	Action string `json:"action"`
	Notes  string `json:"notes"`
}
