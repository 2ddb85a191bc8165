// Package testing holds helpers shared by the Postgres-backed tests.
package testing

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"
	stdtesting "testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

// DatabaseURLEnv names the DSN of a disposable database for integration tests.
const DatabaseURLEnv = "TEST_DATABASE_URL"

var once sync.Once

// EnsureTestMode marks the process as a test run and loads an optional .env.
func EnsureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			_, _ = os.Stderr.WriteString("testing: load .env: " + err.Error() + "\n")
		}
	})
}

func init() {
	EnsureTestMode()
}

// OpenDatabase connects to TEST_DATABASE_URL, applies the migrations and truncates every table.
// The test is skipped when the variable is unset.
func OpenDatabase(t *stdtesting.T) *pgxpool.Pool {
	t.Helper()
	EnsureTestMode()
	dsn := os.Getenv(DatabaseURLEnv)
	if dsn == "" {
		t.Skipf("%s not set", DatabaseURLEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE commission_payments, commission_reversals, commission_notes, sale_lines, sale_documents,
consumption_allocations, stock_batches, item_costs, audit_logs, voucher_legs, vouchers, accounts RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}
