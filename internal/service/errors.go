package service

import (
	"errors"

	"github.com/mmeshcher/smartbank/internal/money"
	"github.com/mmeshcher/smartbank/internal/repository"
)

// Ошибки бизнес-правил. Состояние счёта при них не меняется, записи в журнал не пишутся.
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
	ErrSelfTransfer      = errors.New("cannot transfer to own account")
	ErrInvalidDeadline   = errors.New("deadline must be in the future")
	// ErrPersistenceConflict возвращается, если конфликт параллельных изменений повторился после повтора.
	ErrPersistenceConflict = errors.New("persistence conflict")

	ErrGoalNotFound          = errors.New("goal not found")
	ErrLoanNotFound          = errors.New("loan not found")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrAlreadyReported       = errors.New("transaction already reported")
	ErrInvalidLoanTransition = errors.New("invalid loan status transition")
	ErrUnknownLoanStatus     = errors.New("unknown loan status")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidRegistration   = errors.New("invalid registration data")
	ErrEmptyReason           = errors.New("reason must not be empty")
	ErrEmptyName             = errors.New("name must not be empty")
	ErrInvalidSchedule       = errors.New("unknown saving schedule")
)

var rejections = []error{
	ErrInvalidAmount,
	ErrInsufficientFunds,
	ErrAccountNotFound,
	ErrSelfTransfer,
	ErrInvalidDeadline,
	ErrGoalNotFound,
	ErrLoanNotFound,
	ErrTransactionNotFound,
	ErrAlreadyReported,
	ErrInvalidLoanTransition,
	ErrUnknownLoanStatus,
	ErrForbidden,
	ErrInvalidCredentials,
	ErrInvalidRegistration,
	ErrEmptyReason,
	ErrEmptyName,
	ErrInvalidSchedule,
	money.ErrInvalidLoanTerms,
	repository.ErrUserExists,
}

// IsRejection сообщает, что ошибка означает отказ по бизнес-правилу, а не сбой хранилища.
func IsRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
