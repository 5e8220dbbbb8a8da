// Package handler содержит HTTP-обработчики API банковского сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/smartbank/internal/metrics"
	"github.com/mmeshcher/smartbank/internal/middleware"
	"github.com/mmeshcher/smartbank/internal/model"
	"github.com/mmeshcher/smartbank/internal/money"
	"github.com/mmeshcher/smartbank/internal/repository"
	"github.com/mmeshcher/smartbank/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, reg service.Registration) (int64, error)
	RegisterStaff(ctx context.Context, reg service.Registration, key string) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string) (int64, error)
	DeleteUser(ctx context.Context, userID int64) error
	ListCustomers(ctx context.Context, actorID int64) ([]model.User, error)

	Snapshot(ctx context.Context, userID int64) (*model.Snapshot, error)
	Deposit(ctx context.Context, userID int64, amount money.Money) (*service.Posting, error)
	Withdraw(ctx context.Context, userID int64, amount money.Money) (*service.Posting, error)
	Transfer(ctx context.Context, userID int64, req service.TransferRequest) (*service.Posting, error)
	ListContacts(ctx context.Context, userID int64) ([]model.Contact, error)
	History(ctx context.Context, userID int64) ([]model.Transaction, error)
	CustomerHistory(ctx context.Context, actorID, userID int64) ([]model.Transaction, error)
	ReportTransaction(ctx context.Context, userID, transactionID int64, reason string) (*model.SpamReport, error)
	ListReports(ctx context.Context, actorID int64) ([]model.SpamReport, error)

	CreateGoal(ctx context.Context, userID int64, req service.GoalRequest) (*service.Posting, error)
	UpdateGoal(ctx context.Context, userID, goalID int64, req service.GoalRequest) (*model.Goal, error)
	Contribute(ctx context.Context, userID, goalID int64, amount money.Money) (*service.Posting, error)
	WithdrawAll(ctx context.Context, userID, goalID int64) (*service.Posting, error)
	DeleteGoal(ctx context.Context, userID, goalID int64) (*service.Posting, error)
	ListGoals(ctx context.Context, userID int64) ([]service.GoalView, error)

	ApplyForLoan(ctx context.Context, userID int64, amount money.Money, reason string) (*model.Loan, error)
	SetLoanStatus(ctx context.Context, actorID, loanID int64, status model.LoanStatus) (*model.Loan, error)
	ListLoans(ctx context.Context, actorID int64, status model.LoanStatus) ([]model.Loan, error)
	MyLoans(ctx context.Context, userID int64) ([]model.Loan, error)
	CalculateEMI(principal money.Money, annualRate decimal.Decimal, tenure int, unit string) (money.Schedule, error)

	// Today возвращает текущую дату по часам сервиса.
	Today() time.Time
}

// Handler реализует HTTP-обработчики API банковского сервиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        *metrics.Collector
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов. collector может быть nil.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, collector *metrics.Collector) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		metrics:        collector,
	}
}

// maxBodyBytes ограничивает размер тела JSON-запроса.
const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, money.ErrMalformed),
		errors.Is(err, money.ErrTooPrecise),
		errors.Is(err, money.ErrOutOfRange),
		errors.Is(err, service.ErrInvalidDeadline),
		errors.Is(err, service.ErrEmptyReason),
		errors.Is(err, service.ErrEmptyName),
		errors.Is(err, service.ErrInvalidSchedule),
		errors.Is(err, service.ErrInvalidRegistration),
		errors.Is(err, service.ErrUnknownLoanStatus),
		errors.Is(err, money.ErrInvalidLoanTerms):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrAccountNotFound),
		errors.Is(err, service.ErrGoalNotFound),
		errors.Is(err, service.ErrLoanNotFound),
		errors.Is(err, service.ErrTransactionNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSelfTransfer):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidLoanTransition),
		errors.Is(err, service.ErrAlreadyReported),
		errors.Is(err, service.ErrPersistenceConflict),
		errors.Is(err, repository.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError отвечает кодом, соответствующим ошибке. Отказы по бизнес-правилам возвращают причину.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" error", append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(status), status)
		return
	}

	h.logger.Info(op+" rejected", append(fields, zap.Error(err))...)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON разбирает тело запроса. Ошибки формата суммы отдаются как есть, остальные как 400.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if statusFor(err) == http.StatusUnprocessableEntity {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
			return false
		}
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}

func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return userID, ok
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
