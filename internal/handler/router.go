package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/smartbank/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware банковского сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	if h.metrics != nil {
		r.Use(custommiddleware.Metrics(h.metrics))
	}
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Delete("/", h.DeleteAccount)

			r.Get("/balance", h.GetBalance)
			r.Post("/deposit", h.Deposit)
			r.Post("/withdraw", h.Withdraw)
			r.Post("/transfer", h.Transfer)
			r.Get("/contacts", h.GetContacts)

			r.Get("/transactions", h.GetTransactions)
			r.Post("/transactions/{id}/report", h.ReportTransaction)

			r.Get("/goals", h.GetGoals)
			r.Post("/goals", h.CreateGoal)
			r.Put("/goals/{id}", h.UpdateGoal)
			r.Delete("/goals/{id}", h.DeleteGoal)
			r.Post("/goals/{id}/contribute", h.Contribute)
			r.Post("/goals/{id}/withdraw", h.WithdrawGoal)

			r.Get("/loans", h.GetMyLoans)
			r.Post("/loans", h.ApplyForLoan)
			r.Post("/emi", h.CalculateEMI)
		})
	})

	r.Route("/api/staff", func(r chi.Router) {
		r.Post("/register", h.RegisterStaff)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/loans", h.GetLoansByStatus)
			r.Post("/loans/{id}/status", h.SetLoanStatus)
			r.Get("/customers", h.ListCustomers)
			r.Get("/customers/{id}/transactions", h.GetCustomerTransactions)
			r.Get("/reports", h.GetReports)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
