package testing

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	stdtesting "testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
)

// PostgresDSNEnv points at a disposable database for integration tests.
const PostgresDSNEnv = "ODYSSEY_TEST_PG_DSN"

// Postgres opens a pool against PostgresDSNEnv and applies the schema.
// The calling test is skipped when the variable is unset.
func Postgres(t stdtesting.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile(migrationPath("0001_fulfillment.up.sql"))
	require.NoError(t, err)
	// Simple protocol: the migration holds several statements.
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)
	return pool
}

func migrationPath(name string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "migrations", name)
}
