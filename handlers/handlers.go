package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"microfin-go/config"
	"microfin-go/middleware"
	"microfin-go/models"
	"microfin-go/settlement"
	"microfin-go/utils"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Status    int         `json:"status"`
	Error     string      `json:"error"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func sendError(w http.ResponseWriter, status int, err string, details interface{}) {
	writeJSON(w, status, ErrorResponse{
		Status:    status,
		Error:     err,
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type Handlers struct {
	db     *gorm.DB
	config *config.Config
	engine *settlement.Engine
	logger *zap.Logger
}

func NewHandlers(db *gorm.DB, cfg *config.Config, engine *settlement.Engine, logger *zap.Logger) *Handlers {
	return &Handlers{
		db:     db,
		config: cfg,
		engine: engine,
		logger: logger,
	}
}

// handleError maps err onto the error taxonomy and writes it.
func (h *Handlers) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		appErr = utils.Internal("Internal server error", err)
	}

	status := utils.StatusCode(appErr)
	details := appErr.Details
	if appErr.Kind == utils.KindInternal {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		if details == nil && appErr.Err != nil {
			details = appErr.Err.Error()
		}
	}

	sendError(w, status, appErr.Message, details)
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
func decodeAndValidate(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		return &utils.AppError{Kind: utils.KindValidation, Message: "Invalid request body", Details: err.Error(), Err: err}
	}
	if err := utils.ValidateStruct(dst); err != nil {
		return utils.ValidationFailed(utils.FormatValidationError(err))
	}
	return nil
}

// principal returns the authenticated caller or an Unauthorized error.
func principal(r *http.Request) (*utils.Claims, error) {
	claims := middleware.GetUserFromContext(r)
	if claims == nil {
		return nil, utils.Unauthorized("Unauthorized")
	}
	return claims, nil
}

// paginate applies page/limit when limit is given. Without it the full list
// is returned.
func paginate(r *http.Request) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			return db
		}
		if limit > 100 {
			limit = 100
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page <= 0 {
			page = 1
		}
		return db.Limit(limit).Offset((page - 1) * limit)
	}
}

func (h *Handlers) logAudit(r *http.Request, action, resource, resourceID string, details interface{}) {
	var actor string
	if claims := middleware.GetUserFromContext(r); claims != nil {
		actor = claims.Subject
	}

	var detailText string
	switch d := details.(type) {
	case nil:
	case string:
		detailText = d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			detailText = fmt.Sprint(d)
		} else {
			detailText = string(b)
		}
	}

	audit := models.AuditLog{
		ActorID:    actor,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    detailText,
		IPAddress:  r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
	if err := h.db.WithContext(r.Context()).Create(&audit).Error; err != nil {
		h.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
	}
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(r.Context()) != nil {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"service":   "microfin-go",
		"version":   "1.0.0",
	})
}

// DebugToken echoes the caller's claims. Mounted in development only.
func (h *Handlers) DebugToken(w http.ResponseWriter, r *http.Request) {
	claims, err := principal(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"subject":   claims.Subject,
		"email":     claims.Email,
		"name":      claims.Name,
		"roles":     claims.Roles,
		"branch_id": claims.BranchID,
		"is_admin":  claims.IsAdmin(),
		"expires":   claims.ExpiresAt,
	})
}
