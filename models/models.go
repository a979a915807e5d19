package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// All returns every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&Branch{},
		&Borrower{},
		&LoanProduct{},
		&Loan{},
		&Repayment{},
		&AuditLog{},
	}
}

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (b *Branch) BeforeCreate(tx *gorm.DB) error {
	newID(&b.ID)
	return nil
}

func (b *Borrower) BeforeCreate(tx *gorm.DB) error {
	newID(&b.ID)
	return nil
}

func (p *LoanProduct) BeforeCreate(tx *gorm.DB) error {
	newID(&p.ID)
	return nil
}

func (l *Loan) BeforeCreate(tx *gorm.DB) error {
	newID(&l.ID)
	return nil
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	newID(&a.ID)
	return nil
}
