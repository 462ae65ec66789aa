package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // Keep for managed MySQL deployments
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // Managed PostgreSQL deployments
	_ "modernc.org/sqlite" // Default single-node store, no cgo
)

// Supported drivers
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// sqlx does not know the modernc driver name out of the box
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// New creates a new database connection. The driver is detected from the
// URL: postgres:// DSNs use lib/pq, user:pass@tcp(...) DSNs use the MySQL
// driver, anything else is treated as a SQLite file path.
func New(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	driver := DetectDriver(databaseURL)
	dsn := databaseURL
	if driver == DriverSQLite {
		dsn = sqliteDSN(databaseURL)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// DetectDriver picks a SQL driver from the shape of the DSN
func DetectDriver(databaseURL string) string {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DriverPostgres
	case strings.Contains(databaseURL, "@tcp("), strings.Contains(databaseURL, "@unix("):
		return DriverMySQL
	default:
		return DriverSQLite
	}
}

// sqliteDSN appends the pragmas a concurrent reader/writer needs. WAL lets
// the ask path read while a sync run writes; busy_timeout keeps brief lock
// contention from surfacing as SQLITE_BUSY errors.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// Ping executes a minimal query to verify the connection is usable
func Ping(ctx context.Context, db *sqlx.DB) error {
	var result int
	if err := db.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
