// Package service реализует бизнес-логику банковского сервиса: счета, цели, кредиты и журнал операций.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/smartbank/internal/model"
	"github.com/mmeshcher/smartbank/internal/repository"
	"github.com/mmeshcher/smartbank/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	WithinTx(ctx context.Context, fn func(repository.Tx) error) error

	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	ListCustomers(ctx context.Context) ([]model.User, error)
	DeleteUser(ctx context.Context, id int64) error

	TransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error)
	GoalsByUser(ctx context.Context, userID int64) ([]model.Goal, error)
	LoansByStatus(ctx context.Context, status model.LoanStatus) ([]model.Loan, error)
	LoansByUser(ctx context.Context, userID int64) ([]model.Loan, error)
	ContactsByUser(ctx context.Context, userID int64) ([]model.Contact, error)
	SpamReports(ctx context.Context) ([]model.SpamReport, error)
}

// Recorder принимает результаты операций с балансом для метрик.
type Recorder interface {
	ObserveOperation(operation, outcome string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, time.Duration) {}

// Options содержит необязательные зависимости сервиса.
type Options struct {
	Logger   *zap.Logger
	Metrics  Recorder
	Now      func() time.Time
	StaffKey string
	// RequireFutureDeadline запрещает создавать цели со сроком не позже сегодняшнего дня.
	RequireFutureDeadline bool
	// NewAccountNumber генерирует номер нового счёта.
	NewAccountNumber func() string
}

// Service содержит бизнес-логику банковского сервиса.
type Service struct {
	repo                  Repository
	logger                *zap.Logger
	metrics               Recorder
	now                   func() time.Time
	staffKey              string
	requireFutureDeadline bool
	newAccountNumber      func() string
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, opts Options) *Service {
	s := &Service{
		repo:                  repo,
		logger:                opts.Logger,
		metrics:               opts.Metrics,
		now:                   opts.Now,
		staffKey:              opts.StaffKey,
		requireFutureDeadline: opts.RequireFutureDeadline,
		newAccountNumber:      opts.NewAccountNumber,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newAccountNumber == nil {
		s.newAccountNumber = func() string {
			return validation.NewAccountNumber(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
		}
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// runTx выполняет единицу работы и один раз повторяет её при конфликте параллельных изменений.
// fn должна быть идемпотентной относительно захваченных переменных: при повторе она вызывается заново.
func (s *Service) runTx(ctx context.Context, operation string, fn func(repository.Tx) error) error {
	start := time.Now()

	err := s.repo.WithinTx(ctx, fn)
	if errors.Is(err, repository.ErrConflict) {
		s.logger.Info("retrying after concurrent modification",
			zap.String("operation", operation), zap.Error(err))
		err = s.repo.WithinTx(ctx, fn)
	}
	if errors.Is(err, repository.ErrConflict) {
		err = fmt.Errorf("%w: %w", ErrPersistenceConflict, err)
	}

	s.metrics.ObserveOperation(operation, outcome(err), time.Since(start))
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsRejection(err):
		return "rejected"
	default:
		return "error"
	}
}

// Today возвращает текущую дату по часам сервиса.
func (s *Service) Today() time.Time {
	return s.today()
}

func (s *Service) today() time.Time {
	return dateOf(s.now())
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
