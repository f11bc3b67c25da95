package database

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestDSNEnv names the variable holding a disposable PostgreSQL DSN for tests
const TestDSNEnv = "KART_TIMING_TEST_DSN"

// SetupTestDB connects to the database named by KART_TIMING_TEST_DSN and
// applies migrations. The test is skipped when the variable is unset.
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv(TestDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set, skipping PostgreSQL test", TestDSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := NewDBFromDSN(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("failed to create test database connection: %v", err)
	}

	if _, err := db.Migrate(ctx); err != nil {
		db.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(db.Close)
	return db
}

// TruncateAll clears every table so each test starts from an empty store
func TruncateAll(t *testing.T, db *DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := db.pool.Exec(ctx, `TRUNCATE point_awards, point_scales, point_schemes, penalties,
		results, laps, entries, drivers, sessions, classes, events`)
	if err != nil {
		t.Fatalf("failed to truncate test database: %v", err)
	}
}
