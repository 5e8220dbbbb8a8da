package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/smartbank/internal/model"
	"github.com/mmeshcher/smartbank/internal/money"
	"github.com/mmeshcher/smartbank/internal/repository"
	"github.com/mmeshcher/smartbank/internal/validation"
)

// Posting описывает результат операции над счётом: новое состояние и записанные операции.
type Posting struct {
	Account      model.Account
	Goal         *model.Goal
	Transactions []model.Transaction
}

// TransferRequest содержит параметры перевода.
type TransferRequest struct {
	RecipientNumber string
	Amount          money.Money
	// BeneficiaryName — имя получателя, как его указал отправитель.
	BeneficiaryName string
	// SaveContact сохраняет получателя в список контактов отправителя.
	SaveContact bool
}

func newTransaction(userID int64, typ model.TransactionType, amount money.Money, description string) model.Transaction {
	return model.Transaction{
		Ref:         uuid.New(),
		UserID:      userID,
		Type:        typ,
		Amount:      amount,
		Description: description,
		Status:      model.TransactionSuccess,
	}
}

// Deposit зачисляет сумму на счёт пользователя.
func (s *Service) Deposit(ctx context.Context, userID int64, amount money.Money) (*Posting, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var res *Posting
	err := s.runTx(ctx, "deposit", func(tx repository.Tx) error {
		res = nil
		acc, err := s.lockOwnAccount(ctx, tx, userID)
		if err != nil {
			return err
		}

		balance := acc.Balance.Add(amount)
		if balance.LessThan(acc.Balance) {
			return fmt.Errorf("%w: balance overflow", ErrInvalidAmount)
		}
		if err := tx.UpdateAccountBalance(ctx, acc.ID, balance); err != nil {
			return err
		}
		acc.Balance = balance

		t := newTransaction(userID, model.TransactionDeposit, amount, "Deposit")
		t.CreatedAt = s.now()
		if err := tx.InsertTransaction(ctx, &t); err != nil {
			return err
		}

		res = &Posting{Account: acc, Transactions: []model.Transaction{t}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("deposit posted", zap.Int64("userID", userID), zap.Stringer("amount", amount))
	return res, nil
}

// Withdraw списывает сумму со счёта пользователя.
func (s *Service) Withdraw(ctx context.Context, userID int64, amount money.Money) (*Posting, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var res *Posting
	err := s.runTx(ctx, "withdraw", func(tx repository.Tx) error {
		res = nil
		acc, err := s.lockOwnAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(acc.Balance) {
			return ErrInsufficientFunds
		}

		acc.Balance = acc.Balance.Sub(amount)
		if err := tx.UpdateAccountBalance(ctx, acc.ID, acc.Balance); err != nil {
			return err
		}

		t := newTransaction(userID, model.TransactionWithdraw, amount, "Withdraw")
		t.CreatedAt = s.now()
		if err := tx.InsertTransaction(ctx, &t); err != nil {
			return err
		}

		res = &Posting{Account: acc, Transactions: []model.Transaction{t}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("withdrawal posted", zap.Int64("userID", userID), zap.Stringer("amount", amount))
	return res, nil
}

// Transfer переводит сумму со счёта пользователя на счёт с указанным номером.
// Возвращаемый Posting описывает счёт отправителя.
func (s *Service) Transfer(ctx context.Context, userID int64, req TransferRequest) (*Posting, error) {
	number := strings.TrimSpace(req.RecipientNumber)
	if !validation.IsValidAccountNumber(number) {
		return nil, ErrAccountNotFound
	}

	sender, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load sender: %w", err)
	}
	beneficiary := strings.TrimSpace(req.BeneficiaryName)

	var res *Posting
	err = s.runTx(ctx, "transfer", func(tx repository.Tx) error {
		res = nil
		recipient, err := tx.AccountByNumber(ctx, number)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		if recipient.UserID == userID {
			return ErrSelfTransfer
		}
		if !req.Amount.IsPositive() {
			return ErrInvalidAmount
		}

		own, err := tx.AccountByUser(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			own, err = s.openAccount(ctx, tx, userID)
		}
		if err != nil {
			return err
		}

		locked, err := tx.LockAccounts(ctx, own.ID, recipient.ID)
		if err != nil {
			return err
		}
		from, to := locked[0], locked[1]
		if req.Amount.GreaterThan(from.Balance) {
			return ErrInsufficientFunds
		}
		credited := to.Balance.Add(req.Amount)
		if credited.LessThan(to.Balance) {
			return fmt.Errorf("%w: balance overflow", ErrInvalidAmount)
		}

		from.Balance = from.Balance.Sub(req.Amount)
		to.Balance = credited
		if err := tx.UpdateAccountBalance(ctx, from.ID, from.Balance); err != nil {
			return err
		}
		if err := tx.UpdateAccountBalance(ctx, to.ID, to.Balance); err != nil {
			return err
		}

		pair := uuid.New()
		now := s.now()

		out := newTransaction(userID, model.TransactionTransfer, req.Amount, "Transfer to "+displayName(beneficiary, to.Number))
		out.PairRef = &pair
		out.Counterparty = to.Number
		out.CounterpartyName = beneficiary
		out.CreatedAt = now
		if err := tx.InsertTransaction(ctx, &out); err != nil {
			return err
		}

		in := newTransaction(to.UserID, model.TransactionReceived, req.Amount, "Received from "+displayName(sender.Name, from.Number))
		in.PairRef = &pair
		in.Counterparty = from.Number
		in.CounterpartyName = sender.Name
		in.CreatedAt = now
		if err := tx.InsertTransaction(ctx, &in); err != nil {
			return err
		}

		if req.SaveContact {
			c := &model.Contact{UserID: userID, Name: displayName(beneficiary, to.Number), AccountNumber: to.Number}
			if _, err := tx.SaveContact(ctx, c); err != nil {
				return err
			}
		}

		res = &Posting{Account: from, Transactions: []model.Transaction{out, in}}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transfer posted",
		zap.Int64("userID", userID),
		zap.String("recipient", number),
		zap.Stringer("amount", req.Amount),
	)
	return res, nil
}

func displayName(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

// ListContacts возвращает сохранённых получателей пользователя.
func (s *Service) ListContacts(ctx context.Context, userID int64) ([]model.Contact, error) {
	return s.repo.ContactsByUser(ctx, userID)
}
