package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConflictError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, conflict: true},
		{name: "deadlock", err: fmt.Errorf("lock accounts: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), conflict: true},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}},
		{name: "plain error", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := conflictError(tt.err)
			assert.Equal(t, tt.conflict, errors.Is(got, ErrConflict))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestCreateAccountError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{name: "account already opened", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: accountsUserIDKey}, conflict: true},
		{name: "other unique constraint", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_number_key"}},
		{name: "foreign key", err: &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := createAccountError(tt.err)
			assert.Equal(t, tt.conflict, errors.Is(got, ErrConflict))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestMigrationsDeclareAccountUserConstraint(t *testing.T) {
	sql, err := fs.ReadFile(migrationsFS, "migrations/00001_init.sql")
	require.NoError(t, err)
	assert.Contains(t, string(sql), "CONSTRAINT "+accountsUserIDKey+" UNIQUE (user_id)")
}

func TestAccountByUserSharedQueryTakesShareLock(t *testing.T) {
	assert.Contains(t, accountByUserSharedQuery, "FOR SHARE")
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)
}

func TestWithRetry(t *testing.T) {
	t.Run("non connection error is not retried", func(t *testing.T) {
		calls := 0
		err := withRetry(t.Context(), func() error {
			calls++
			return errors.New("syntax error")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		calls := 0
		err := withRetry(ctx, func() error {
			calls++
			return errors.New("dial tcp: connection refused")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
