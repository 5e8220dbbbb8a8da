package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/smartbank/internal/model"
)

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListCustomers возвращает всех клиентов, кроме сотрудников.
func (r *PostgresRepository) ListCustomers(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE NOT is_staff ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}
	return collect(rows, scanUser)
}

// DeleteUser удаляет пользователя вместе со всеми его данными.
func (r *PostgresRepository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TransactionsByUser возвращает журнал операций пользователя, новые записи первыми.
func (r *PostgresRepository) TransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	return collect(rows, scanTransaction)
}

// GoalsByUser возвращает цели пользователя.
func (r *PostgresRepository) GoalsByUser(ctx context.Context, userID int64) ([]model.Goal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("select goals: %w", err)
	}
	return collect(rows, scanGoal)
}

// LoansByStatus возвращает заявки с указанным статусом.
func (r *PostgresRepository) LoansByStatus(ctx context.Context, status model.LoanStatus) ([]model.Loan, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE status = $1 ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("select loans: %w", err)
	}
	return collect(rows, scanLoan)
}

// LoansByUser возвращает заявки пользователя, новые первыми.
func (r *PostgresRepository) LoansByUser(ctx context.Context, userID int64) ([]model.Loan, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE user_id = $1 ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select loans: %w", err)
	}
	return collect(rows, scanLoan)
}

// ContactsByUser возвращает сохранённых получателей пользователя.
func (r *PostgresRepository) ContactsByUser(ctx context.Context, userID int64) ([]model.Contact, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, name, account_number, created_at
		 FROM contacts
		 WHERE user_id = $1
		 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select contacts: %w", err)
	}
	return collect(rows, func(row rowScanner) (*model.Contact, error) {
		var c model.Contact
		if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.AccountNumber, &c.CreatedAt); err != nil {
			return nil, err
		}
		return &c, nil
	})
}

// SpamReports возвращает все жалобы, новые первыми.
func (r *PostgresRepository) SpamReports(ctx context.Context) ([]model.SpamReport, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, reporter_id, transaction_id, reported_user_id, reason, status, created_at
		 FROM spam_reports
		 ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select spam reports: %w", err)
	}
	return collect(rows, func(row rowScanner) (*model.SpamReport, error) {
		var s model.SpamReport
		err := row.Scan(&s.ID, &s.ReporterID, &s.TransactionID, &s.ReportedUserID, &s.Reason, &s.Status, &s.CreatedAt)
		if err != nil {
			return nil, err
		}
		return &s, nil
	})
}

func collect[T any](rows pgx.Rows, scan func(rowScanner) (*T, error)) ([]T, error) {
	defer rows.Close()

	var res []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		res = append(res, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
