package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/smartbank/internal/model"
	"github.com/mmeshcher/smartbank/internal/money"
	"github.com/mmeshcher/smartbank/internal/repository"
)

// ApplyForLoan создаёт заявку на кредит в статусе Pending.
func (s *Service) ApplyForLoan(ctx context.Context, userID int64, amount money.Money, reason string) (*model.Loan, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrEmptyReason
	}

	var res *model.Loan
	err := s.runTx(ctx, "apply_loan", func(tx repository.Tx) error {
		res = nil
		l := &model.Loan{
			UserID:    userID,
			Amount:    amount,
			Reason:    reason,
			Status:    model.LoanPending,
			CreatedAt: s.now(),
		}
		if err := tx.InsertLoan(ctx, l); err != nil {
			return err
		}
		res = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("loan requested", zap.Int64("userID", userID), zap.Int64("loanID", res.ID))
	return res, nil
}

// SetLoanStatus одобряет или отклоняет заявку. Доступно только сотрудникам,
// менять можно только заявку в статусе Pending.
func (s *Service) SetLoanStatus(ctx context.Context, actorID, loanID int64, status model.LoanStatus) (*model.Loan, error) {
	if err := s.requireStaff(ctx, actorID); err != nil {
		return nil, err
	}
	if status != model.LoanApproved && status != model.LoanRejected {
		return nil, ErrInvalidLoanTransition
	}

	var res *model.Loan
	err := s.runTx(ctx, "set_loan_status", func(tx repository.Tx) error {
		res = nil
		l, err := tx.LoanForUpdate(ctx, loanID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrLoanNotFound
			}
			return err
		}
		if l.Status != model.LoanPending {
			return ErrInvalidLoanTransition
		}

		now := s.now()
		reviewer := actorID
		l.Status = status
		l.ReviewedBy = &reviewer
		l.ReviewedAt = &now
		if err := tx.UpdateLoan(ctx, l); err != nil {
			return err
		}
		res = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("loan reviewed",
		zap.Int64("loanID", loanID),
		zap.Int64("staffID", actorID),
		zap.String("status", string(status)),
	)
	return res, nil
}

// ListLoans возвращает заявки с указанным статусом, по умолчанию Pending. Доступно только сотрудникам.
func (s *Service) ListLoans(ctx context.Context, actorID int64, status model.LoanStatus) ([]model.Loan, error) {
	if err := s.requireStaff(ctx, actorID); err != nil {
		return nil, err
	}
	if status == "" {
		status = model.LoanPending
	}
	if !status.Valid() {
		return nil, ErrUnknownLoanStatus
	}
	return s.repo.LoansByStatus(ctx, status)
}

// MyLoans возвращает заявки пользователя, новые первыми.
func (s *Service) MyLoans(ctx context.Context, userID int64) ([]model.Loan, error) {
	return s.repo.LoansByUser(ctx, userID)
}

// CalculateEMI рассчитывает ежемесячный платёж. Состояние счетов не меняется.
func (s *Service) CalculateEMI(principal money.Money, annualRate decimal.Decimal, tenure int, unit string) (money.Schedule, error) {
	months, err := money.TenureMonths(tenure, unit)
	if err != nil {
		return money.Schedule{}, err
	}
	return money.EMI(principal, annualRate, months)
}
