package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"microfin-go/middleware"
)

// RegisterRoutes mounts the API under /api on r.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()

	// Public routes
	api.HandleFunc("/health", h.HealthCheck).Methods("GET")

	// Protected routes
	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.JWTAuth(h.logger))

	if h.config.IsDevelopment() {
		protected.HandleFunc("/debug/token", h.DebugToken).Methods("GET")
	}

	protected.HandleFunc("/branches", h.GetBranches).Methods("GET")
	protected.Handle("/branches", h.adminOnly(h.CreateBranch)).Methods("POST")

	protected.HandleFunc("/borrowers", h.GetBorrowers).Methods("GET")
	protected.HandleFunc("/borrowers", h.CreateBorrower).Methods("POST")

	protected.HandleFunc("/loan-products", h.GetLoanProducts).Methods("GET")
	protected.HandleFunc("/loan-products", h.CreateLoanProduct).Methods("POST")

	protected.HandleFunc("/loans", h.GetLoans).Methods("GET")
	protected.HandleFunc("/loans", h.CreateLoan).Methods("POST")
	protected.HandleFunc("/loans/{id}", h.GetLoan).Methods("GET")
	protected.HandleFunc("/loans/{id}", h.UpdateLoan).Methods("PATCH")
	protected.HandleFunc("/loans/{id}", h.DeleteLoan).Methods("DELETE")
	protected.Handle("/loans/{id}/approve", h.adminOnly(h.DecideLoan)).Methods("POST")

	protected.HandleFunc("/repayments", h.GetRepayments).Methods("GET")
	protected.HandleFunc("/repayments", h.CreateRepayment).Methods("POST")

	protected.HandleFunc("/dashboard", h.GetDashboard).Methods("GET")

	// Admin routes
	adminRoutes := protected.PathPrefix("/admin").Subrouter()
	adminRoutes.Use(middleware.AdminAuth(h.logger))
	adminRoutes.HandleFunc("/audit-logs", h.GetAuditLogs).Methods("GET")
}

func (h *Handlers) adminOnly(fn http.HandlerFunc) http.Handler {
	return middleware.AdminAuth(h.logger)(fn)
}
