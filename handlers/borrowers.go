package handlers

import (
	"errors"
	"net/http"

	"gorm.io/gorm"

	"microfin-go/models"
	"microfin-go/utils"
)

// CreateBorrower registers a borrower in an explicit branch: the body's
// branch_id, or the caller's branch claim.
func (h *Handlers) CreateBorrower(w http.ResponseWriter, r *http.Request) {
	claims, err := principal(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	var req models.BorrowerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	branchID := utils.SanitizeString(req.BranchID)
	if branchID == "" {
		branchID = claims.BranchID
	}
	if branchID == "" {
		h.handleError(w, r, utils.ValidationFailed(map[string]string{
			"branch_id": "branch_id is required",
		}))
		return
	}

	db := h.db.WithContext(r.Context())

	var branch models.Branch
	if err := db.First(&branch, "id = ?", branchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.handleError(w, r, utils.NotFound("Branch not found", err))
			return
		}
		h.handleError(w, r, utils.Internal("Failed to fetch branch", err))
		return
	}

	uniqueID := utils.SanitizeString(req.UniqueID)
	var count int64
	if err := db.Model(&models.Borrower{}).Where("unique_id = ?", uniqueID).Count(&count).Error; err != nil {
		h.handleError(w, r, utils.Internal("Failed to check borrower", err))
		return
	}
	if count > 0 {
		h.handleError(w, r, utils.Conflict("Borrower with this unique ID already exists"))
		return
	}

	dob, err := utils.ParseOptionalDate(req.DateOfBirth)
	if err != nil {
		h.handleError(w, r, utils.ValidationFailed(map[string]string{"dob": err.Error()}))
		return
	}

	borrower := models.Borrower{
		FirstName:    utils.SanitizeString(req.FirstName),
		LastName:     utils.SanitizeString(req.LastName),
		BusinessName: utils.SanitizeString(req.BusinessName),
		UniqueID:     uniqueID,
		Mobile:       utils.SanitizeString(req.Mobile),
		Email:        utils.SanitizeString(req.Email),
		Address:      utils.SanitizeString(req.Address),
		City:         utils.SanitizeString(req.City),
		Province:     utils.SanitizeString(req.Province),
		ZipCode:      utils.SanitizeString(req.ZipCode),
		DateOfBirth:  dob,
		Gender:       utils.SanitizeString(req.Gender),
		BranchID:     branch.ID,
	}
	if err := db.Omit("Branch").Create(&borrower).Error; err != nil {
		h.handleError(w, r, utils.Internal("Failed to create borrower", err))
		return
	}

	h.logAudit(r, "create", "borrower", borrower.ID, map[string]string{
		"unique_id": borrower.UniqueID,
		"branch_id": borrower.BranchID,
	})

	borrower.Branch = &branch
	writeJSON(w, http.StatusCreated, borrower)
}

func (h *Handlers) GetBorrowers(w http.ResponseWriter, r *http.Request) {
	query := h.db.WithContext(r.Context()).Scopes(paginate(r)).Order("created_at DESC")
	if branchID := r.URL.Query().Get("branch_id"); branchID != "" {
		query = query.Where("branch_id = ?", branchID)
	}

	var borrowers []models.Borrower
	if err := query.Find(&borrowers).Error; err != nil {
		h.handleError(w, r, utils.Internal("Failed to fetch borrowers", err))
		return
	}

	writeJSON(w, http.StatusOK, borrowers)
}
