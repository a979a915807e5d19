package handlers

import (
	"net/http"

	"microfin-go/models"
	"microfin-go/utils"
)

func (h *Handlers) GetAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := h.db.WithContext(r.Context()).Scopes(paginate(r)).Order("created_at DESC")
	if resource := r.URL.Query().Get("resource"); resource != "" {
		query = query.Where("resource = ?", resource)
	}
	if actor := r.URL.Query().Get("actor_id"); actor != "" {
		query = query.Where("actor_id = ?", actor)
	}
	if resourceID := r.URL.Query().Get("resource_id"); resourceID != "" {
		query = query.Where("resource_id = ?", resourceID)
	}

	var logs []models.AuditLog
	if err := query.Find(&logs).Error; err != nil {
		h.handleError(w, r, utils.Internal("Failed to fetch audit logs", err))
		return
	}

	writeJSON(w, http.StatusOK, logs)
}
