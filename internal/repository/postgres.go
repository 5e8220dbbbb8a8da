// Package repository содержит хранилища данных банковского сервиса: PostgreSQL и in-memory.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/smartbank/internal/model"
	"github.com/mmeshcher/smartbank/internal/money"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// База может подниматься одновременно с сервисом.
	if err := withRetry(ctx, func() error { return pool.Ping(ctx) }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isConnectionError(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// conflictError переводит serialization failure и deadlock в ErrConflict.
func conflictError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
	}
	return err
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// WithinTx выполняет fn в одной транзакции БД. Ошибка fn откатывает все изменения.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return conflictError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return conflictError(fmt.Errorf("commit tx: %w", err))
	}

	return nil
}

// pgTx реализует Tx поверх pgx.Tx.
type pgTx struct {
	tx pgx.Tx
}

const userColumns = `id, email, COALESCE(username, ''), name, mobile, place, password_hash, is_staff, is_admin, is_active, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.Name, &u.Mobile, &u.Place,
		&u.PasswordHash, &u.IsStaff, &u.IsAdmin, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateUser создаёт нового пользователя.
func (t *pgTx) CreateUser(ctx context.Context, u *model.User) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO users (email, username, name, mobile, place, password_hash, is_staff, is_admin, is_active)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		u.Email, u.Username, u.Name, u.Mobile, u.Place, u.PasswordHash, u.IsStaff, u.IsAdmin, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrUserExists, u.Email)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const accountColumns = `id, user_id, number, balance, created_at`

func scanAccount(row rowScanner) (*model.Account, error) {
	var (
		a       model.Account
		balance int64
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Number, &balance, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Balance = money.FromCents(balance)
	return &a, nil
}

// LockAccounts блокирует строки счетов в порядке возрастания ID.
func (t *pgTx) LockAccounts(ctx context.Context, ids ...int64) ([]model.Account, error) {
	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	locked := make(map[int64]model.Account, len(ordered))
	for _, id := range ordered {
		a, err := scanAccount(t.tx.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return nil, fmt.Errorf("lock account %d: %w", id, err)
		}
		locked[id] = *a
	}

	res := make([]model.Account, 0, len(ids))
	for _, id := range ids {
		res = append(res, locked[id])
	}
	return res, nil
}

// AccountByUser возвращает счёт пользователя без блокировки.
func (t *pgTx) AccountByUser(ctx context.Context, userID int64) (*model.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("account by user: %w", err)
	}
	return a, nil
}

const accountByUserSharedQuery = `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 FOR SHARE`

// AccountByUserShared возвращает счёт пользователя под блокировкой FOR SHARE.
func (t *pgTx) AccountByUserShared(ctx context.Context, userID int64) (*model.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx, accountByUserSharedQuery, userID))
	if err != nil {
		return nil, fmt.Errorf("account by user (shared): %w", err)
	}
	return a, nil
}

// AccountByNumber возвращает счёт по его номеру без блокировки.
func (t *pgTx) AccountByNumber(ctx context.Context, number string) (*model.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE number = $1`, number))
	if err != nil {
		return nil, fmt.Errorf("account by number: %w", err)
	}
	return a, nil
}

// CreateAccount открывает счёт с нулевым балансом.
func (t *pgTx) CreateAccount(ctx context.Context, userID int64, number string) (*model.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx,
		`INSERT INTO accounts (user_id, number) VALUES ($1, $2)
		 ON CONFLICT (number) DO NOTHING
		 RETURNING `+accountColumns,
		userID, number,
	))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAccountNumberTaken
		}
		return nil, createAccountError(err)
	}
	return a, nil
}

// accountsUserIDKey — имя ограничения уникальности accounts.user_id.
const accountsUserIDKey = "accounts_user_id_key"

// createAccountError переводит нарушение уникальности user_id в ErrConflict: счёт уже открыт
// параллельной транзакцией, повтор найдёт его.
func createAccountError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == accountsUserIDKey {
		return fmt.Errorf("create account: %w: %w", ErrConflict, err)
	}
	return fmt.Errorf("create account: %w", err)
}

// UpdateAccountBalance записывает новый баланс счёта.
func (t *pgTx) UpdateAccountBalance(ctx context.Context, accountID int64, balance money.Money) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts SET balance = $2 WHERE id = $1`, accountID, balance.Cents())
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update balance %d: %w", accountID, ErrNotFound)
	}
	return nil
}

const transactionColumns = `id, ref, pair_ref, user_id, type, amount, counterparty, counterparty_name,
	description, status, is_fraud, reported, created_at`

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		tr      model.Transaction
		pairRef uuid.NullUUID
		trType  string
		status  string
		amount  int64
	)
	err := row.Scan(&tr.ID, &tr.Ref, &pairRef, &tr.UserID, &trType, &amount, &tr.Counterparty,
		&tr.CounterpartyName, &tr.Description, &status, &tr.IsFraud, &tr.Reported, &tr.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if pairRef.Valid {
		ref := pairRef.UUID
		tr.PairRef = &ref
	}
	tr.Type = model.TransactionType(trType)
	tr.Status = model.TransactionStatus(status)
	tr.Amount = money.FromCents(amount)
	return &tr, nil
}

// InsertTransaction добавляет запись в журнал операций.
func (t *pgTx) InsertTransaction(ctx context.Context, tr *model.Transaction) error {
	var pairRef uuid.NullUUID
	if tr.PairRef != nil {
		pairRef = uuid.NullUUID{UUID: *tr.PairRef, Valid: true}
	}

	err := t.tx.QueryRow(ctx,
		`INSERT INTO transactions (ref, pair_ref, user_id, type, amount, counterparty, counterparty_name,
		                           description, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		tr.Ref, pairRef, tr.UserID, string(tr.Type), tr.Amount.Cents(), tr.Counterparty,
		tr.CounterpartyName, tr.Description, string(tr.Status), tr.CreatedAt,
	).Scan(&tr.ID)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// TransactionForUpdate возвращает запись журнала с блокировкой строки.
func (t *pgTx) TransactionForUpdate(ctx context.Context, id int64) (*model.Transaction, error) {
	tr, err := scanTransaction(t.tx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("transaction for update: %w", err)
	}
	return tr, nil
}

// MarkTransactionReported выставляет флаг жалобы.
func (t *pgTx) MarkTransactionReported(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `UPDATE transactions SET reported = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark reported: %w", err)
	}
	return nil
}

const goalColumns = `id, user_id, name, target, deadline, schedule, balance, last_saved_at, created_at`

func scanGoal(row rowScanner) (*model.Goal, error) {
	var (
		g        model.Goal
		target   int64
		balance  int64
		schedule string
	)
	err := row.Scan(&g.ID, &g.UserID, &g.Name, &target, &g.Deadline, &schedule, &balance,
		&g.LastSavedAt, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	g.Target = money.FromCents(target)
	g.Balance = money.FromCents(balance)
	g.Schedule = model.SavingSchedule(schedule)
	return &g, nil
}

// GoalForUpdate возвращает цель с блокировкой строки.
func (t *pgTx) GoalForUpdate(ctx context.Context, id int64) (*model.Goal, error) {
	g, err := scanGoal(t.tx.QueryRow(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("goal for update: %w", err)
	}
	return g, nil
}

// InsertGoal создаёт цель.
func (t *pgTx) InsertGoal(ctx context.Context, g *model.Goal) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO goals (user_id, name, target, deadline, schedule, balance, last_saved_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		g.UserID, g.Name, g.Target.Cents(), g.Deadline, string(g.Schedule), g.Balance.Cents(),
		g.LastSavedAt, g.CreatedAt,
	).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

// UpdateGoal сохраняет изменённые поля цели.
func (t *pgTx) UpdateGoal(ctx context.Context, g *model.Goal) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE goals
		 SET name = $2, target = $3, deadline = $4, schedule = $5, balance = $6, last_saved_at = $7
		 WHERE id = $1`,
		g.ID, g.Name, g.Target.Cents(), g.Deadline, string(g.Schedule), g.Balance.Cents(), g.LastSavedAt,
	)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	return nil
}

// DeleteGoal удаляет цель.
func (t *pgTx) DeleteGoal(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM goals WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}

// SumGoalBalances возвращает сумму отложенных на цели средств пользователя.
func (t *pgTx) SumGoalBalances(ctx context.Context, userID int64) (money.Money, error) {
	var total int64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(balance), 0) FROM goals WHERE user_id = $1`, userID,
	).Scan(&total)
	if err != nil {
		return money.Zero, fmt.Errorf("sum goal balances: %w", err)
	}
	return money.FromCents(total), nil
}

// SaveContact сохраняет получателя, если его ещё нет у пользователя.
func (t *pgTx) SaveContact(ctx context.Context, c *model.Contact) (bool, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO contacts (user_id, name, account_number) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, account_number) DO NOTHING
		 RETURNING id, created_at`,
		c.UserID, c.Name, c.AccountNumber,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("save contact: %w", err)
	}
	return true, nil
}

const loanColumns = `id, user_id, amount, reason, status, reviewed_by, created_at, reviewed_at`

func scanLoan(row rowScanner) (*model.Loan, error) {
	var (
		l      model.Loan
		amount int64
		status string
	)
	err := row.Scan(&l.ID, &l.UserID, &amount, &l.Reason, &status, &l.ReviewedBy, &l.CreatedAt, &l.ReviewedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	l.Amount = money.FromCents(amount)
	l.Status = model.LoanStatus(status)
	return &l, nil
}

// LoanForUpdate возвращает заявку на кредит с блокировкой строки.
func (t *pgTx) LoanForUpdate(ctx context.Context, id int64) (*model.Loan, error) {
	l, err := scanLoan(t.tx.QueryRow(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("loan for update: %w", err)
	}
	return l, nil
}

// InsertLoan создаёт заявку на кредит.
func (t *pgTx) InsertLoan(ctx context.Context, l *model.Loan) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO loans (user_id, amount, reason, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		l.UserID, l.Amount.Cents(), l.Reason, string(l.Status), l.CreatedAt,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

// UpdateLoan сохраняет статус рассмотрения заявки.
func (t *pgTx) UpdateLoan(ctx context.Context, l *model.Loan) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE loans SET status = $2, reviewed_by = $3, reviewed_at = $4 WHERE id = $1`,
		l.ID, string(l.Status), l.ReviewedBy, l.ReviewedAt,
	)
	if err != nil {
		return fmt.Errorf("update loan: %w", err)
	}
	return nil
}

// InsertSpamReport сохраняет жалобу на операцию.
func (t *pgTx) InsertSpamReport(ctx context.Context, r *model.SpamReport) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO spam_reports (reporter_id, transaction_id, reported_user_id, reason, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		r.ReporterID, r.TransactionID, r.ReportedUserID, r.Reason, r.Status, r.CreatedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert spam report: %w", err)
	}
	return nil
}

var _ Tx = (*pgTx)(nil)
