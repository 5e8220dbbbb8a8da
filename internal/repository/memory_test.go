package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/smartbank/internal/model"
	"github.com/mmeshcher/smartbank/internal/money"
)

func seedAccount(t *testing.T, r *MemoryRepository, email, number string) (model.User, model.Account) {
	t.Helper()
	var (
		u   model.User
		acc *model.Account
	)
	err := r.WithinTx(context.Background(), func(tx Tx) error {
		u = model.User{Email: email, Name: email, IsActive: true}
		if err := tx.CreateUser(context.Background(), &u); err != nil {
			return err
		}
		var err error
		acc, err = tx.CreateAccount(context.Background(), u.ID, number)
		return err
	})
	require.NoError(t, err)
	return u, *acc
}

func TestMemoryWithinTx_RollsBackOnError(t *testing.T) {
	r := NewMemoryRepository()
	u, acc := seedAccount(t, r, "a@bank.test", "1234567897")
	ctx := context.Background()

	boom := errors.New("boom")
	err := r.WithinTx(ctx, func(tx Tx) error {
		if err := tx.UpdateAccountBalance(ctx, acc.ID, money.MustParse("10")); err != nil {
			return err
		}
		tr := model.Transaction{UserID: u.ID, Type: model.TransactionDeposit, Amount: money.MustParse("10")}
		if err := tx.InsertTransaction(ctx, &tr); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = r.WithinTx(ctx, func(tx Tx) error {
		got, err := tx.LockAccounts(ctx, acc.ID)
		require.NoError(t, err)
		assert.True(t, got[0].Balance.IsZero())
		return nil
	})
	require.NoError(t, err)

	history, err := r.TransactionsByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemoryWithinTx_CancelledContext(t *testing.T) {
	r := NewMemoryRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := r.WithinTx(ctx, func(Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemoryConstraints(t *testing.T) {
	r := NewMemoryRepository()
	u, acc := seedAccount(t, r, "a@bank.test", "1234567897")
	ctx := context.Background()

	err := r.WithinTx(ctx, func(tx Tx) error {
		return tx.CreateUser(ctx, &model.User{Email: "a@bank.test"})
	})
	assert.ErrorIs(t, err, ErrUserExists)

	err = r.WithinTx(ctx, func(tx Tx) error {
		other := model.User{Email: "b@bank.test"}
		if err := tx.CreateUser(ctx, &other); err != nil {
			return err
		}
		_, err := tx.CreateAccount(ctx, other.ID, acc.Number)
		return err
	})
	assert.ErrorIs(t, err, ErrAccountNumberTaken)

	err = r.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.CreateAccount(ctx, u.ID, "2345678903")
		return err
	})
	assert.ErrorIs(t, err, ErrConflict, "second account for the same user")

	err = r.WithinTx(ctx, func(tx Tx) error {
		return tx.UpdateAccountBalance(ctx, acc.ID, money.MustParse("-0.01"))
	})
	assert.Error(t, err)

	err = r.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertTransaction(ctx, &model.Transaction{UserID: u.ID, Amount: money.Zero})
	})
	assert.Error(t, err)

	err = r.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.LockAccounts(ctx, acc.ID, 999)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryLockAccounts_PreservesArgumentOrder(t *testing.T) {
	r := NewMemoryRepository()
	_, a := seedAccount(t, r, "a@bank.test", "1234567897")
	_, b := seedAccount(t, r, "b@bank.test", "2345678903")

	err := r.WithinTx(context.Background(), func(tx Tx) error {
		got, err := tx.LockAccounts(context.Background(), b.ID, a.ID)
		require.NoError(t, err)
		assert.Equal(t, b.ID, got[0].ID)
		assert.Equal(t, a.ID, got[1].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestMemorySaveContact_Idempotent(t *testing.T) {
	r := NewMemoryRepository()
	u, _ := seedAccount(t, r, "a@bank.test", "1234567897")
	ctx := context.Background()

	var created []bool
	for range 2 {
		err := r.WithinTx(ctx, func(tx Tx) error {
			ok, err := tx.SaveContact(ctx, &model.Contact{UserID: u.ID, Name: "Bob", AccountNumber: "2345678903"})
			created = append(created, ok)
			return err
		})
		require.NoError(t, err)
	}

	assert.Equal(t, []bool{true, false}, created)
	contacts, err := r.ContactsByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
}

func TestMemoryTransactionsByUser_NewestFirst(t *testing.T) {
	r := NewMemoryRepository()
	u, _ := seedAccount(t, r, "a@bank.test", "1234567897")
	ctx := context.Background()
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	err := r.WithinTx(ctx, func(tx Tx) error {
		for i, at := range []time.Time{base, base.Add(time.Hour), base, base.Add(-time.Hour)} {
			tr := model.Transaction{
				UserID:      u.ID,
				Type:        model.TransactionDeposit,
				Amount:      money.FromCents(int64(i + 1)),
				Description: "seed",
				CreatedAt:   at,
			}
			if err := tx.InsertTransaction(ctx, &tr); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	history, err := r.TransactionsByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)

	var cents []int64
	for _, tr := range history {
		cents = append(cents, tr.Amount.Cents())
	}
	assert.Equal(t, []int64{2, 3, 1, 4}, cents)
}

func TestMemoryDeleteUser_Cascades(t *testing.T) {
	r := NewMemoryRepository()
	u, _ := seedAccount(t, r, "a@bank.test", "1234567897")
	reviewer, _ := seedAccount(t, r, "staff@bank.test", "2345678903")
	ctx := context.Background()

	err := r.WithinTx(ctx, func(tx Tx) error {
		g := model.Goal{UserID: u.ID, Name: "g", Target: money.MustParse("1"), Schedule: model.ScheduleNone}
		if err := tx.InsertGoal(ctx, &g); err != nil {
			return err
		}
		l := model.Loan{UserID: reviewer.ID, Amount: money.MustParse("5"), Reason: "r", Status: model.LoanApproved, ReviewedBy: &u.ID}
		return tx.InsertLoan(ctx, &l)
	})
	require.NoError(t, err)

	require.NoError(t, r.DeleteUser(ctx, u.ID))
	assert.ErrorIs(t, r.DeleteUser(ctx, u.ID), ErrNotFound)

	goals, _ := r.GoalsByUser(ctx, u.ID)
	assert.Empty(t, goals)
	loans, _ := r.LoansByUser(ctx, reviewer.ID)
	require.Len(t, loans, 1)
	assert.Nil(t, loans[0].ReviewedBy)

	err = r.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.AccountByUser(ctx, u.ID)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}
