package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"mailchat/internal/models"
)

// CheckpointStore tracks per-mailbox sync state: the provider cursor and
// the ingest ledger used for change detection. The ledger plus the
// replace-by-message-id write in the vector repository is what makes a
// replayed page idempotent.
type CheckpointStore struct {
	db *sqlx.DB
}

// NewCheckpointStore creates the store and its tables
func NewCheckpointStore(db *sqlx.DB) (*CheckpointStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required for checkpoint store")
	}

	store := &CheckpointStore{db: db}
	if err := store.CreateTables(); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint tables: %w", err)
	}

	return store, nil
}

// CreateTables creates the sync state tables. Column types are the common
// subset of SQLite, PostgreSQL and MySQL; timestamps are unix seconds.
func (s *CheckpointStore) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS mailbox_checkpoints (
			mailbox_id VARCHAR(255) PRIMARY KEY,
			cursor VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'IDLE',
			last_error TEXT,
			last_synced_at BIGINT NOT NULL DEFAULT 0,
			updated_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS ingested_messages (
			mailbox_id VARCHAR(255) NOT NULL,
			message_id VARCHAR(255) NOT NULL,
			content_hash VARCHAR(64) NOT NULL,
			chunk_count INTEGER NOT NULL DEFAULT 0,
			indexed_at BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (mailbox_id, message_id)
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create checkpoint tables: %w", err)
		}
	}

	return nil
}

// Load returns the checkpoint for a mailbox. A mailbox that has never
// synced gets an empty IDLE checkpoint, not an error.
func (s *CheckpointStore) Load(ctx context.Context, mailboxID string) (*models.Checkpoint, error) {
	var checkpoint models.Checkpoint
	query := s.db.Rebind(`
		SELECT mailbox_id, cursor, status, last_error, last_synced_at, updated_at
		FROM mailbox_checkpoints
		WHERE mailbox_id = ?
	`)

	err := s.db.GetContext(ctx, &checkpoint, query, mailboxID)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.Checkpoint{MailboxID: mailboxID, Status: models.SyncStatusIdle}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	return &checkpoint, nil
}

// SetStatus flips the status row and records the last error, if any. The
// in-process runner registry owns the real concurrency guard; this row is
// what the status endpoint reports and what survives a restart.
func (s *CheckpointStore) SetStatus(ctx context.Context, mailboxID, status string, lastErr *string) error {
	query := s.db.Rebind(`
		INSERT INTO mailbox_checkpoints (mailbox_id, cursor, status, last_error, updated_at)
		VALUES (?, '', ?, ?, ?)
		ON CONFLICT (mailbox_id) DO UPDATE SET
			status = excluded.status,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`)

	if _, err := s.db.ExecContext(ctx, query, mailboxID, status, lastErr, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to set sync status: %w", err)
	}

	return nil
}

// CommitPage records one page of sync work atomically: the ledger row for
// every message indexed on the page plus the advanced cursor. A crash
// between pages re-fetches at most one page on the next run.
func (s *CheckpointStore) CommitPage(ctx context.Context, mailboxID, cursor string, indexed []models.IngestedMessage) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin page commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	insert := tx.Rebind(`
		INSERT INTO ingested_messages (mailbox_id, message_id, content_hash, chunk_count, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (mailbox_id, message_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			chunk_count = excluded.chunk_count,
			indexed_at = excluded.indexed_at
	`)
	for _, msg := range indexed {
		if _, err := tx.ExecContext(ctx, insert, mailboxID, msg.MessageID, msg.ContentHash, msg.ChunkCount, now); err != nil {
			return fmt.Errorf("failed to record ingested message %s: %w", msg.MessageID, err)
		}
	}

	advance := tx.Rebind(`
		INSERT INTO mailbox_checkpoints (mailbox_id, cursor, status, last_synced_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (mailbox_id) DO UPDATE SET
			cursor = excluded.cursor,
			last_synced_at = excluded.last_synced_at,
			updated_at = excluded.updated_at
	`)
	if _, err := tx.ExecContext(ctx, advance, mailboxID, cursor, models.SyncStatusSyncing, now, now); err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit page: %w", err)
	}

	return nil
}

// LookupHash returns the stored content hash for a message, or "" when the
// message has never been indexed
func (s *CheckpointStore) LookupHash(ctx context.Context, mailboxID, messageID string) (string, error) {
	var hash string
	query := s.db.Rebind(`
		SELECT content_hash FROM ingested_messages
		WHERE mailbox_id = ? AND message_id = ?
	`)

	err := s.db.GetContext(ctx, &hash, query, mailboxID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up ingested message: %w", err)
	}

	return hash, nil
}

// ResetCursor clears the stored cursor so the next run walks the full
// mailbox again. The ledger stays; unchanged messages are skipped by hash.
func (s *CheckpointStore) ResetCursor(ctx context.Context, mailboxID string) error {
	query := s.db.Rebind(`
		UPDATE mailbox_checkpoints SET cursor = '', updated_at = ? WHERE mailbox_id = ?
	`)

	if _, err := s.db.ExecContext(ctx, query, time.Now().Unix(), mailboxID); err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}

	return nil
}

// DeleteIngested drops ledger rows for messages removed from the mailbox
func (s *CheckpointStore) DeleteIngested(ctx context.Context, mailboxID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`
		DELETE FROM ingested_messages WHERE mailbox_id = ? AND message_id IN (?)
	`, mailboxID, messageIDs)
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to delete ingested messages: %w", err)
	}

	return nil
}

// CountIngested returns the number of indexed messages for a mailbox
func (s *CheckpointStore) CountIngested(ctx context.Context, mailboxID string) (int, error) {
	var count int
	query := s.db.Rebind(`SELECT COUNT(*) FROM ingested_messages WHERE mailbox_id = ?`)

	if err := s.db.GetContext(ctx, &count, query, mailboxID); err != nil {
		return 0, fmt.Errorf("failed to count ingested messages: %w", err)
	}

	return count, nil
}

// ListIngestedIDs returns every indexed message id for a mailbox
func (s *CheckpointStore) ListIngestedIDs(ctx context.Context, mailboxID string) ([]string, error) {
	var ids []string
	query := s.db.Rebind(`
		SELECT message_id FROM ingested_messages WHERE mailbox_id = ? ORDER BY message_id
	`)

	if err := s.db.SelectContext(ctx, &ids, query, mailboxID); err != nil {
		return nil, fmt.Errorf("failed to list ingested messages: %w", err)
	}

	return ids, nil
}

// PurgeMailbox drops the checkpoint and the whole ingest ledger for a
// mailbox. Only the explicit reindex path calls this; a normal reset
// keeps the ledger so unchanged messages stay skippable.
func (s *CheckpointStore) PurgeMailbox(ctx context.Context, mailboxID string) error {
	if _, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM ingested_messages WHERE mailbox_id = ?`), mailboxID); err != nil {
		return fmt.Errorf("failed to purge ingest ledger: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM mailbox_checkpoints WHERE mailbox_id = ?`), mailboxID); err != nil {
		return fmt.Errorf("failed to purge checkpoint: %w", err)
	}

	return nil
}
