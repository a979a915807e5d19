package models

import (
	"time"

	"gorm.io/gorm"
)

// Borrower contact fields (mobile, email, address) are sealed at rest.
type Borrower struct {
	ID           string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	FirstName    string         `json:"first_name" gorm:"not null"`
	LastName     string         `json:"last_name" gorm:"not null"`
	BusinessName string         `json:"business_name"`
	UniqueID     string         `json:"unique_id" gorm:"not null;uniqueIndex"`
	Mobile       string         `json:"mobile" gorm:"type:text;serializer:sealed"`
	Email        string         `json:"email" gorm:"type:text;serializer:sealed"`
	Address      string         `json:"address" gorm:"type:text;serializer:sealed"`
	City         string         `json:"city"`
	Province     string         `json:"province"`
	ZipCode      string         `json:"zip_code"`
	DateOfBirth  *time.Time     `json:"dob,omitempty"`
	Gender       string         `json:"gender"`
	BranchID     string         `json:"branch_id" gorm:"not null;index;type:varchar(36)"`
	Branch       *Branch        `json:"branch,omitempty" gorm:"foreignKey:BranchID"`
	CreatedAt    time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

func (b Borrower) FullName() string {
	return b.FirstName + " " + b.LastName
}

type BorrowerRequest struct {
	FirstName    string `json:"first_name" validate:"required,min=2"`
	LastName     string `json:"last_name" validate:"required,min=2"`
	BusinessName string `json:"business_name"`
	UniqueID     string `json:"unique_id" validate:"required"`
	Mobile       string `json:"mobile" validate:"required,min=10,max=20"`
	Email        string `json:"email" validate:"omitempty,email"`
	Address      string `json:"address"`
	City         string `json:"city"`
	Province     string `json:"province"`
	ZipCode      string `json:"zip_code"`
	DateOfBirth  string `json:"dob" validate:"omitempty,isodate"`
	Gender       string `json:"gender"`
	BranchID     string `json:"branch_id"`
}
