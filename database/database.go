package database

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"microfin-go/models"
)

// Initialize opens the database named by databaseURL and migrates the schema.
// postgres:// and postgresql:// URLs use PostgreSQL; anything else is treated
// as a SQLite file path.
func Initialize(databaseURL, logLevel string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(logLevel)),
	}

	var (
		db  *gorm.DB
		err error
	)
	if IsPostgres(databaseURL) {
		db, err = gorm.Open(postgres.Open(databaseURL), cfg)
	} else {
		db, err = openSQLite(databaseURL, cfg)
	}
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db, nil
}

func IsPostgres(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://")
}

func openSQLite(path string, cfg *gorm.Config) (*gorm.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "_foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_foreign_keys=on"
	}

	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; a single connection keeps writes serialised
	// and makes transactions see their own locks.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.Info
	case "info", "warn":
		return logger.Warn
	case "silent":
		return logger.Silent
	default:
		return logger.Error
	}
}

const (
	MainBranchID   = "main-branch"
	PersonalLoanID = "personal-loan-10"
	BusinessLoanID = "business-loan-5"
)

// Seed inserts the demo branch, borrowers and loan products. Running it twice
// leaves the data unchanged.
func Seed(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		branch := models.Branch{ID: MainBranchID, Name: "Main Branch", Address: "123 Main Street"}
		if err := tx.Where("id = ?", branch.ID).FirstOrCreate(&branch).Error; err != nil {
			return fmt.Errorf("seed branch: %w", err)
		}

		borrowers := []models.Borrower{
			{
				UniqueID:  "BOR-001",
				FirstName: "John",
				LastName:  "Doe",
				Mobile:    "+1234567890",
				Email:     "john.doe@example.com",
				BranchID:  branch.ID,
			},
			{
				UniqueID:  "BOR-002",
				FirstName: "Jane",
				LastName:  "Smith",
				Mobile:    "+1234567891",
				Email:     "jane.smith@example.com",
				BranchID:  branch.ID,
			},
		}
		for i := range borrowers {
			if err := tx.Where("unique_id = ?", borrowers[i].UniqueID).FirstOrCreate(&borrowers[i]).Error; err != nil {
				return fmt.Errorf("seed borrower %s: %w", borrowers[i].UniqueID, err)
			}
		}

		products := []models.LoanProduct{
			{
				ID:           PersonalLoanID,
				Name:         "Personal Loan (10%)",
				MinPrincipal: decimal.NewFromInt(1000),
				MaxPrincipal: decimal.NewFromInt(50000),
				InterestRate: decimal.NewFromInt(10),
				InterestType: models.InterestReducing,
				Term:         12,
				TermUnit:     models.TermMonths,
			},
			{
				ID:           BusinessLoanID,
				Name:         "Business Loan (5%)",
				MinPrincipal: decimal.NewFromInt(5000),
				MaxPrincipal: decimal.NewFromInt(200000),
				InterestRate: decimal.NewFromInt(5),
				InterestType: models.InterestReducing,
				Term:         24,
				TermUnit:     models.TermMonths,
			},
		}
		for i := range products {
			if err := tx.Where("id = ?", products[i].ID).FirstOrCreate(&products[i]).Error; err != nil {
				return fmt.Errorf("seed loan product %s: %w", products[i].Name, err)
			}
		}

		return nil
	})
}
