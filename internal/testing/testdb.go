// Package testing provides throwaway PostgreSQL databases for integration
// tests.
package testing

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// DatabaseURLEnv names the server used for integration tests. Tests that
// need a database are skipped when it is unset.
const DatabaseURLEnv = "STORM_COMPOSITE_TEST_DATABASE_URL"

// TestDB is a freshly created database, dropped by Cleanup
type TestDB struct {
	DB      *sqlx.DB
	DBName  string
	ConnStr string

	baseConnStr string
	t           *testing.T
}

// NewTestDB creates a uniquely named database on the server named by
// DatabaseURLEnv and registers its cleanup.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	baseConnStr := os.Getenv(DatabaseURLEnv)
	if baseConnStr == "" {
		t.Skipf("%s not set", DatabaseURLEnv)
	}

	admin, err := sqlx.Open("postgres", baseConnStr)
	if err != nil {
		t.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer admin.Close()

	dbName := fmt.Sprintf("test_composite_%d", time.Now().UnixNano())
	if _, err := admin.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName)); err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	connStr, err := withDatabase(baseConnStr, dbName)
	if err != nil {
		t.Fatalf("Failed to build test database URL: %v", err)
	}

	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	tdb := &TestDB{
		DB:          db,
		DBName:      dbName,
		ConnStr:     connStr,
		baseConnStr: baseConnStr,
		t:           t,
	}
	t.Cleanup(tdb.Cleanup)
	return tdb
}

func withDatabase(connStr, dbName string) (string, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return "", err
	}
	u.Path = "/" + dbName
	return u.String(), nil
}

// Cleanup drops the test database
func (tdb *TestDB) Cleanup() {
	tdb.DB.Close()

	db, err := sqlx.Open("postgres", tdb.baseConnStr)
	if err != nil {
		tdb.t.Logf("Failed to connect for cleanup: %v", err)
		return
	}
	defer db.Close()

	_, err = db.Exec(`
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = $1
		AND pid <> pg_backend_pid()
	`, tdb.DBName)
	if err != nil {
		tdb.t.Logf("Failed to terminate connections: %v", err)
	}

	if _, err := db.Exec("DROP DATABASE IF EXISTS " + pq.QuoteIdentifier(tdb.DBName)); err != nil {
		tdb.t.Logf("Failed to drop test database: %v", err)
	}
}

// ExecuteSQL executes semicolon separated statements
func (tdb *TestDB) ExecuteSQL(sql string) error {
	for _, stmt := range strings.Split(sql, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tdb.DB.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute SQL: %w\nStatement: %s", err, stmt)
		}
	}
	return nil
}

// TableExists checks if a table exists in the public schema
func (tdb *TestDB) TableExists(tableName string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`
	err := tdb.DB.QueryRow(query, tableName).Scan(&exists)
	return exists, err
}

// PrimaryKeyColumns returns the columns of a table's primary key
// constraint in key order, or nil when the table has none.
func (tdb *TestDB) PrimaryKeyColumns(ctx context.Context, tableName string) ([]string, error) {
	query := `
		SELECT array_agg(kcu.column_name ORDER BY kcu.ordinal_position)
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		AND tc.table_schema = 'public'
		AND tc.table_name = $1
		GROUP BY tc.constraint_name
	`

	var columns pq.StringArray
	err := tdb.DB.QueryRowContext(ctx, query, tableName).Scan(&columns)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query primary key: %w", err)
	}
	return []string(columns), nil
}
