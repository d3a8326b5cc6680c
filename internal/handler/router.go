package handler

import (
	"net/http"

	"github.com/segyhp/payroll-loans/internal/auth"
	"github.com/segyhp/payroll-loans/pkg/response"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
)

// RouterOptions configures the cross-cutting middleware of the API.
type RouterOptions struct {
	AllowedOrigins []string
	// JWTSecret enables bearer authentication on /api/v1 when non-empty.
	JWTSecret []byte
}

// NewRouter builds the HTTP routes of the loan service.
func NewRouter(loans *LoanHandler, health *HealthHandler, opts RouterOptions) http.Handler {
	router := mux.NewRouter()
	router.Use(RequestLogging)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "Route not found")
	})

	// Health check
	router.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", health.Ready).Methods(http.MethodGet)

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	if len(opts.JWTSecret) > 0 {
		api.Use(auth.Middleware(opts.JWTSecret))
	}

	api.HandleFunc("/loans", loans.CreateLoan).Methods(http.MethodPost)
	api.HandleFunc("/loans", loans.ListLoans).Methods(http.MethodGet)
	api.HandleFunc("/loans/{loanId}", loans.GetLoan).Methods(http.MethodGet)
	api.HandleFunc("/loans/{loanId}", loans.UpdateLoan).Methods(http.MethodPatch)
	api.HandleFunc("/loans/{loanId}", loans.DeleteLoan).Methods(http.MethodDelete)
	api.HandleFunc("/loans/{loanId}/close", loans.CloseLoan).Methods(http.MethodPost)
	api.HandleFunc("/loans/{loanId}/installments", loans.ListInstallments).Methods(http.MethodGet)
	api.HandleFunc("/loans/{loanId}/outstanding", loans.GetOutstanding).Methods(http.MethodGet)
	api.HandleFunc("/installments/{installmentId}/actions", loans.InstallmentAction).Methods(http.MethodPost)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})(router)
}
