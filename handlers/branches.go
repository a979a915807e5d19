package handlers

import (
	"net/http"

	"microfin-go/models"
	"microfin-go/utils"
)

func (h *Handlers) CreateBranch(w http.ResponseWriter, r *http.Request) {
	var req models.BranchRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	name := utils.SanitizeString(req.Name)
	var count int64
	if err := h.db.WithContext(r.Context()).Model(&models.Branch{}).Where("name = ?", name).Count(&count).Error; err != nil {
		h.handleError(w, r, utils.Internal("Failed to check branch", err))
		return
	}
	if count > 0 {
		h.handleError(w, r, utils.Conflict("Branch with this name already exists"))
		return
	}

	branch := models.Branch{Name: name, Address: utils.SanitizeString(req.Address)}
	if err := h.db.WithContext(r.Context()).Create(&branch).Error; err != nil {
		h.handleError(w, r, utils.Internal("Failed to create branch", err))
		return
	}

	h.logAudit(r, "create", "branch", branch.ID, map[string]string{"name": branch.Name})
	writeJSON(w, http.StatusCreated, branch)
}

func (h *Handlers) GetBranches(w http.ResponseWriter, r *http.Request) {
	var branches []models.Branch
	if err := h.db.WithContext(r.Context()).Scopes(paginate(r)).Order("name ASC").Find(&branches).Error; err != nil {
		h.handleError(w, r, utils.Internal("Failed to fetch branches", err))
		return
	}

	writeJSON(w, http.StatusOK, branches)
}
