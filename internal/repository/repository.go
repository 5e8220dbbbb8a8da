package repository

import (
	"context"
	"errors"

	"github.com/mmeshcher/smartbank/internal/model"
	"github.com/mmeshcher/smartbank/internal/money"
)

var (
	// ErrUserExists возвращается при попытке создать пользователя с уже существующим email.
	ErrUserExists = errors.New("user already exists")
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrAccountNumberTaken возвращается, если сгенерированный номер счёта уже занят.
	ErrAccountNumberTaken = errors.New("account number already taken")
	// ErrConflict возвращается при конфликте параллельных транзакций (serialization failure, deadlock).
	ErrConflict = errors.New("concurrent modification")
)

// Tx описывает операции, выполняемые внутри одной единицы работы.
// Все изменения видны снаружи только после успешного завершения WithinTx.
type Tx interface {
	CreateUser(ctx context.Context, u *model.User) error

	// LockAccounts блокирует счета в порядке возрастания ID и возвращает их актуальное состояние
	// в том же порядке, в каком переданы ids.
	LockAccounts(ctx context.Context, ids ...int64) ([]model.Account, error)
	AccountByUser(ctx context.Context, userID int64) (*model.Account, error)
	// AccountByUserShared читает счёт под разделяемой блокировкой: изменения баланса и целей
	// пользователя ждут конца единицы работы.
	AccountByUserShared(ctx context.Context, userID int64) (*model.Account, error)
	AccountByNumber(ctx context.Context, number string) (*model.Account, error)
	CreateAccount(ctx context.Context, userID int64, number string) (*model.Account, error)
	UpdateAccountBalance(ctx context.Context, accountID int64, balance money.Money) error

	InsertTransaction(ctx context.Context, t *model.Transaction) error
	TransactionForUpdate(ctx context.Context, id int64) (*model.Transaction, error)
	MarkTransactionReported(ctx context.Context, id int64) error

	GoalForUpdate(ctx context.Context, id int64) (*model.Goal, error)
	InsertGoal(ctx context.Context, g *model.Goal) error
	UpdateGoal(ctx context.Context, g *model.Goal) error
	DeleteGoal(ctx context.Context, id int64) error
	SumGoalBalances(ctx context.Context, userID int64) (money.Money, error)

	// SaveContact сохраняет получателя. Возвращает false, если такой контакт уже был.
	SaveContact(ctx context.Context, c *model.Contact) (bool, error)

	LoanForUpdate(ctx context.Context, id int64) (*model.Loan, error)
	InsertLoan(ctx context.Context, l *model.Loan) error
	UpdateLoan(ctx context.Context, l *model.Loan) error

	InsertSpamReport(ctx context.Context, r *model.SpamReport) error
}
