package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type InterestType string

const (
	InterestFlat     InterestType = "FLAT"
	InterestReducing InterestType = "REDUCING"
)

type TermUnit string

const (
	TermDays   TermUnit = "DAYS"
	TermWeeks  TermUnit = "WEEKS"
	TermMonths TermUnit = "MONTHS"
)

// LoanProduct is a template of loan terms. Fees and penalties are opaque.
type LoanProduct struct {
	ID           string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name         string          `json:"name" gorm:"not null;index"`
	MinPrincipal decimal.Decimal `json:"min_principal" gorm:"type:decimal(20,4);not null"`
	MaxPrincipal decimal.Decimal `json:"max_principal" gorm:"type:decimal(20,4);not null"`
	InterestRate decimal.Decimal `json:"interest_rate" gorm:"type:decimal(10,4);not null"`
	InterestType InterestType    `json:"interest_type" gorm:"type:varchar(16);not null"`
	Term         int             `json:"term" gorm:"not null"`
	TermUnit     TermUnit        `json:"term_unit" gorm:"type:varchar(16);not null"`
	Fees         interface{}     `json:"fees" gorm:"type:text;serializer:json"`
	Penalties    interface{}     `json:"penalties" gorm:"type:text;serializer:json"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `json:"-" gorm:"index"`
}

type LoanProductRequest struct {
	Name         string          `json:"name" validate:"required,min=1,max=120"`
	MinPrincipal decimal.Decimal `json:"min_principal" validate:"gte=0"`
	MaxPrincipal decimal.Decimal `json:"max_principal" validate:"gte=0"`
	InterestRate decimal.Decimal `json:"interest_rate" validate:"gte=0"`
	InterestType string          `json:"interest_type" validate:"required,oneof=FLAT REDUCING"`
	Term         int             `json:"term" validate:"required,min=1"`
	TermUnit     string          `json:"term_unit" validate:"required,oneof=DAYS WEEKS MONTHS"`
	Fees         interface{}     `json:"fees"`
	Penalties    interface{}     `json:"penalties"`
}
