package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"microfin-go/models"
	"microfin-go/settlement"
	"microfin-go/utils"
)

type DashboardStats struct {
	TotalBorrowers int64            `json:"total_borrowers"`
	ActiveLoans    int64            `json:"active_loans"`
	TotalDisbursed decimal.Decimal  `json:"total_disbursed"`
	TotalRepaid    decimal.Decimal  `json:"total_repaid"`
	PAR            float64          `json:"par"`
	LoansByStatus  map[string]int64 `json:"loans_by_status"`
}

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := dashboardStats(h.db.WithContext(r.Context()))
	if err != nil {
		h.handleError(w, r, utils.Internal("Failed to compute dashboard", err))
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// dashboardStats aggregates portfolio figures. Total disbursed counts only
// loans currently DISBURSED. PAR stays 0 until overdue tracking exists.
func dashboardStats(db *gorm.DB) (*DashboardStats, error) {
	stats := &DashboardStats{LoansByStatus: make(map[string]int64)}

	if err := db.Model(&models.Borrower{}).Count(&stats.TotalBorrowers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Loan{}).
		Where("status IN ?", []string{string(models.LoanApproved), string(models.LoanDisbursed)}).
		Count(&stats.ActiveLoans).Error; err != nil {
		return nil, err
	}

	var disbursed []models.Loan
	if err := db.Select("principal").Where("status = ?", models.LoanDisbursed).Find(&disbursed).Error; err != nil {
		return nil, err
	}
	stats.TotalDisbursed = decimal.Zero
	for _, l := range disbursed {
		stats.TotalDisbursed = stats.TotalDisbursed.Add(l.Principal)
	}

	var repayments []models.Repayment
	if err := db.Select("amount").Find(&repayments).Error; err != nil {
		return nil, err
	}
	stats.TotalRepaid = settlement.TotalPaid(repayments)

	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Loan{}).Select("status, count(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.LoansByStatus[row.Status] = row.Count
	}

	return stats, nil
}
