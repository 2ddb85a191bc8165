package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

func TestIsConflict(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		err := fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: code})
		require.True(t, IsConflict(err), code)
	}
	require.False(t, IsConflict(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsConflict(errors.New("plain")))
}

func TestMapConflictIsRetryable(t *testing.T) {
	err := mapConflict("post", &pgconn.PgError{Code: "40001"})
	require.True(t, shared.IsRetryable(err))
	var conflict *shared.ConcurrentModificationError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "post", conflict.Op)

	plain := errors.New("boom")
	require.Same(t, plain, mapConflict("post", plain))
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "vouchers_tenant_source_key"}
	require.True(t, IsUniqueViolation(err, "vouchers_tenant_source_key"))
	require.True(t, IsUniqueViolation(err, ""))
	require.False(t, IsUniqueViolation(err, "accounts_tenant_code_key"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "40001"}, ""))
}

func TestMigrationsAreEmbeddedInOrder(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.Equal(t, []string{
		"migrations/0001_ledger.sql",
		"migrations/0002_stock.sql",
		"migrations/0003_documents.sql",
	}, names)
}
