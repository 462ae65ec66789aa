package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// WriteClient funnels frequent small writes through one serialized
// handle. SQLite allows a single writer at a time; the analytics inserts
// arrive from the hot ask path and would otherwise race the sync engine
// for the write lock.
type WriteClient struct {
	db *sqlx.DB
	mu sync.Mutex
}

// NewWriteClient wraps an open state database handle. The handle stays
// owned by the caller.
func NewWriteClient(db *sqlx.DB) (*WriteClient, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required for write client")
	}
	return &WriteClient{db: db}, nil
}

// GetDB returns the underlying database connection
func (wc *WriteClient) GetDB() *sqlx.DB {
	return wc.db
}

// ExecuteWriteQuery executes one write statement. Queries use ?
// placeholders and are rebound for the active driver.
func (wc *WriteClient) ExecuteWriteQuery(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return wc.db.ExecContext(cctx, wc.db.Rebind(query), args...)
}

// Select runs a read query into dest. Reads skip the write mutex; WAL
// readers never block on the writer.
func (wc *WriteClient) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return wc.db.SelectContext(ctx, dest, wc.db.Rebind(query), args...)
}

// Get runs a single-row read query into dest
func (wc *WriteClient) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return wc.db.GetContext(ctx, dest, wc.db.Rebind(query), args...)
}
