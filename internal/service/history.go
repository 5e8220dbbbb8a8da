package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/smartbank/internal/model"
	"github.com/mmeshcher/smartbank/internal/money"
	"github.com/mmeshcher/smartbank/internal/repository"
)

// ReportPending — статус новой жалобы.
const ReportPending = "Pending"

// History возвращает журнал операций пользователя, новые записи первыми.
func (s *Service) History(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return s.repo.TransactionsByUser(ctx, userID)
}

// CustomerHistory возвращает журнал операций клиента для сотрудника банка.
func (s *Service) CustomerHistory(ctx context.Context, actorID, userID int64) ([]model.Transaction, error) {
	if err := s.requireStaff(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repo.TransactionsByUser(ctx, userID)
}

// Snapshot возвращает баланс счёта, сумму отложенного в цели и доступный остаток.
func (s *Service) Snapshot(ctx context.Context, userID int64) (*model.Snapshot, error) {
	var snap *model.Snapshot
	err := s.repo.WithinTx(ctx, func(tx repository.Tx) error {
		snap = nil
		// Разделяемая блокировка счёта: Contribute и прочие операции с целями сначала
		// блокируют счёт, поэтому сумма целей читается согласованно с балансом.
		acc, err := tx.AccountByUserShared(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		saved, err := tx.SumGoalBalances(ctx, userID)
		if err != nil {
			return err
		}

		usable := acc.Balance.Sub(saved)
		if usable.IsNegative() {
			usable = money.Zero
		}
		snap = &model.Snapshot{
			AccountNumber: acc.Number,
			Balance:       acc.Balance,
			GoalSavings:   saved,
			Usable:        usable,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ReportTransaction помечает операцию пользователя как подозрительную и создаёт жалобу.
func (s *Service) ReportTransaction(ctx context.Context, userID, transactionID int64, reason string) (*model.SpamReport, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrEmptyReason
	}

	var res *model.SpamReport
	err := s.runTx(ctx, "report", func(tx repository.Tx) error {
		res = nil
		t, err := tx.TransactionForUpdate(ctx, transactionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		if t.UserID != userID {
			return ErrTransactionNotFound
		}
		if t.Reported {
			return ErrAlreadyReported
		}

		report := &model.SpamReport{
			ReporterID:    userID,
			TransactionID: t.ID,
			Reason:        reason,
			Status:        ReportPending,
			CreatedAt:     s.now(),
		}
		if t.Counterparty != "" {
			acc, err := tx.AccountByNumber(ctx, t.Counterparty)
			switch {
			case err == nil:
				report.ReportedUserID = &acc.UserID
			case !errors.Is(err, repository.ErrNotFound):
				return err
			}
		}

		if err := tx.MarkTransactionReported(ctx, t.ID); err != nil {
			return err
		}
		if err := tx.InsertSpamReport(ctx, report); err != nil {
			return err
		}
		res = report
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction reported", zap.Int64("userID", userID), zap.Int64("transactionID", transactionID))
	return res, nil
}

// ListReports возвращает все жалобы для сотрудника банка.
func (s *Service) ListReports(ctx context.Context, actorID int64) ([]model.SpamReport, error) {
	if err := s.requireStaff(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repo.SpamReports(ctx)
}
