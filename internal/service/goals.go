package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/smartbank/internal/model"
	"github.com/mmeshcher/smartbank/internal/money"
	"github.com/mmeshcher/smartbank/internal/repository"
)

// NearDeadlineDays — за сколько дней до срока цель с недобором попадает в предупреждения.
const NearDeadlineDays = 5

// GoalRequest содержит параметры создания или изменения цели.
type GoalRequest struct {
	Name     string
	Target   money.Money
	Deadline time.Time
	Schedule model.SavingSchedule
	// InitialBalance переносится со счёта в цель при создании. При изменении цели не используется.
	InitialBalance money.Money
}

// GoalView — цель с вычисленными на момент чтения показателями.
type GoalView struct {
	Goal         model.Goal
	DaysLeft     int
	Remaining    money.Money
	Progress     decimal.Decimal
	NearDeadline bool
	Warning      string
}

// ViewGoal вычисляет показатели цели на указанную дату.
func ViewGoal(g model.Goal, today time.Time) GoalView {
	v := GoalView{
		Goal:      g,
		DaysLeft:  int(dateOf(g.Deadline).Sub(dateOf(today)).Hours() / 24),
		Remaining: money.Zero,
		Progress:  decimal.Zero,
	}
	if g.Balance.LessThan(g.Target) {
		v.Remaining = g.Target.Sub(g.Balance)
	}
	if g.Target.IsPositive() {
		v.Progress = g.Balance.Decimal().Div(g.Target.Decimal()).Shift(2).Round(2)
	}
	if v.DaysLeft <= NearDeadlineDays && g.Balance.LessThan(g.Target) {
		v.NearDeadline = true
		v.Warning = fmt.Sprintf("Only %d days left to reach goal '%s'. You still need %s.",
			v.DaysLeft, g.Name, v.Remaining)
	}
	return v
}

func (s *Service) validateGoal(req GoalRequest) (GoalRequest, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return req, ErrEmptyName
	}
	if !req.Target.IsPositive() || req.InitialBalance.IsNegative() {
		return req, ErrInvalidAmount
	}
	if req.Schedule == "" {
		req.Schedule = model.ScheduleNone
	}
	if !req.Schedule.Valid() {
		return req, ErrInvalidSchedule
	}
	if req.Deadline.IsZero() {
		return req, ErrInvalidDeadline
	}
	req.Deadline = dateOf(req.Deadline)
	if s.requireFutureDeadline && !req.Deadline.After(s.today()) {
		return req, ErrInvalidDeadline
	}
	return req, nil
}

// CreateGoal создаёт цель. Начальный остаток переносится со счёта пользователя.
func (s *Service) CreateGoal(ctx context.Context, userID int64, req GoalRequest) (*Posting, error) {
	req, err := s.validateGoal(req)
	if err != nil {
		return nil, err
	}

	var res *Posting
	err = s.runTx(ctx, "create_goal", func(tx repository.Tx) error {
		res = nil
		acc, err := s.lockOwnAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if req.InitialBalance.GreaterThan(acc.Balance) {
			return ErrInsufficientFunds
		}

		now := s.now()
		g := &model.Goal{
			UserID:    userID,
			Name:      req.Name,
			Target:    req.Target,
			Deadline:  req.Deadline,
			Schedule:  req.Schedule,
			Balance:   req.InitialBalance,
			CreatedAt: now,
		}
		if req.InitialBalance.IsPositive() {
			g.LastSavedAt = &now
		}
		if err := tx.InsertGoal(ctx, g); err != nil {
			return err
		}

		res = &Posting{Account: acc, Goal: g}
		if !req.InitialBalance.IsPositive() {
			return nil
		}

		acc.Balance = acc.Balance.Sub(req.InitialBalance)
		if err := tx.UpdateAccountBalance(ctx, acc.ID, acc.Balance); err != nil {
			return err
		}
		t := newTransaction(userID, model.TransactionSmartSaverDeposit, req.InitialBalance,
			fmt.Sprintf("Deposited to goal '%s'", g.Name))
		t.CreatedAt = now
		if err := tx.InsertTransaction(ctx, &t); err != nil {
			return err
		}
		res = &Posting{Account: acc, Goal: g, Transactions: []model.Transaction{t}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("goal created", zap.Int64("userID", userID), zap.Int64("goalID", res.Goal.ID))
	return res, nil
}

// UpdateGoal изменяет название, целевую сумму, срок и периодичность цели. Остаток не меняется.
func (s *Service) UpdateGoal(ctx context.Context, userID, goalID int64, req GoalRequest) (*model.Goal, error) {
	req.InitialBalance = money.Zero
	req, err := s.validateGoal(req)
	if err != nil {
		return nil, err
	}

	var res *model.Goal
	err = s.runTx(ctx, "update_goal", func(tx repository.Tx) error {
		res = nil
		g, err := ownGoal(ctx, tx, userID, goalID)
		if err != nil {
			return err
		}
		g.Name = req.Name
		g.Target = req.Target
		g.Deadline = req.Deadline
		g.Schedule = req.Schedule
		if err := tx.UpdateGoal(ctx, g); err != nil {
			return err
		}
		res = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Contribute переносит сумму со счёта пользователя в цель.
func (s *Service) Contribute(ctx context.Context, userID, goalID int64, amount money.Money) (*Posting, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var res *Posting
	err := s.runTx(ctx, "contribute", func(tx repository.Tx) error {
		res = nil
		acc, err := s.lockOwnAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		g, err := ownGoal(ctx, tx, userID, goalID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(acc.Balance) {
			return ErrInsufficientFunds
		}

		now := s.now()
		acc.Balance = acc.Balance.Sub(amount)
		g.Balance = g.Balance.Add(amount)
		g.LastSavedAt = &now
		if err := tx.UpdateAccountBalance(ctx, acc.ID, acc.Balance); err != nil {
			return err
		}
		if err := tx.UpdateGoal(ctx, g); err != nil {
			return err
		}

		t := newTransaction(userID, model.TransactionSmartSaverDeposit, amount,
			fmt.Sprintf("Deposited to goal '%s'", g.Name))
		t.CreatedAt = now
		if err := tx.InsertTransaction(ctx, &t); err != nil {
			return err
		}

		res = &Posting{Account: acc, Goal: g, Transactions: []model.Transaction{t}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// WithdrawAll возвращает весь остаток цели на счёт. Для пустой цели операции не записываются.
func (s *Service) WithdrawAll(ctx context.Context, userID, goalID int64) (*Posting, error) {
	var res *Posting
	err := s.runTx(ctx, "withdraw_all", func(tx repository.Tx) error {
		res = nil
		acc, g, err := s.lockGoal(ctx, tx, userID, goalID)
		if err != nil {
			return err
		}
		res, err = s.drainGoal(ctx, tx, acc, g)
		if err != nil {
			return err
		}
		return tx.UpdateGoal(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteGoal удаляет цель, предварительно вернув её остаток на счёт.
func (s *Service) DeleteGoal(ctx context.Context, userID, goalID int64) (*Posting, error) {
	var res *Posting
	err := s.runTx(ctx, "delete_goal", func(tx repository.Tx) error {
		res = nil
		acc, g, err := s.lockGoal(ctx, tx, userID, goalID)
		if err != nil {
			return err
		}
		res, err = s.drainGoal(ctx, tx, acc, g)
		if err != nil {
			return err
		}
		return tx.DeleteGoal(ctx, g.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("goal deleted",
		zap.Int64("userID", userID),
		zap.Int64("goalID", goalID),
		zap.Stringer("refunded", transactionsTotal(res.Transactions)),
	)
	return res, nil
}

// ListGoals возвращает цели пользователя с показателями на сегодня.
func (s *Service) ListGoals(ctx context.Context, userID int64) ([]GoalView, error) {
	goals, err := s.repo.GoalsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := s.today()
	views := make([]GoalView, 0, len(goals))
	for _, g := range goals {
		views = append(views, ViewGoal(g, today))
	}
	return views, nil
}

func (s *Service) lockGoal(ctx context.Context, tx repository.Tx, userID, goalID int64) (model.Account, *model.Goal, error) {
	acc, err := s.lockOwnAccount(ctx, tx, userID)
	if err != nil {
		return model.Account{}, nil, err
	}
	g, err := ownGoal(ctx, tx, userID, goalID)
	if err != nil {
		return model.Account{}, nil, err
	}
	return acc, g, nil
}

// drainGoal переносит остаток цели на счёт. Сохранение самой цели остаётся за вызывающим.
func (s *Service) drainGoal(ctx context.Context, tx repository.Tx, acc model.Account, g *model.Goal) (*Posting, error) {
	if g.Balance.IsZero() {
		return &Posting{Account: acc, Goal: g}, nil
	}

	amount := g.Balance
	now := s.now()
	acc.Balance = acc.Balance.Add(amount)
	g.Balance = money.Zero
	g.LastSavedAt = &now
	if err := tx.UpdateAccountBalance(ctx, acc.ID, acc.Balance); err != nil {
		return nil, err
	}

	t := newTransaction(acc.UserID, model.TransactionSmartSaverWithdraw, amount,
		fmt.Sprintf("Withdrawn from goal '%s'", g.Name))
	t.CreatedAt = now
	if err := tx.InsertTransaction(ctx, &t); err != nil {
		return nil, err
	}
	return &Posting{Account: acc, Goal: g, Transactions: []model.Transaction{t}}, nil
}

func ownGoal(ctx context.Context, tx repository.Tx, userID, goalID int64) (*model.Goal, error) {
	g, err := tx.GoalForUpdate(ctx, goalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrGoalNotFound
		}
		return nil, err
	}
	if g.UserID != userID {
		return nil, ErrGoalNotFound
	}
	return g, nil
}

func transactionsTotal(ts []model.Transaction) money.Money {
	total := money.Zero
	for _, t := range ts {
		total = total.Add(t.Amount)
	}
	return total
}
