package vecstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"mailchat/internal/apperrors"
	"mailchat/internal/database"
	"mailchat/internal/models"
)

// SQLiteStore keeps the vector index in a single SQLite file. Embeddings
// are stored as JSON and ranked in process; at personal-mailbox scale a
// full scan is cheaper than running a vector database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLite opens (or creates) the index file
func NewSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("vector store path is required")
	}

	db, err := database.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create vector store tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS email_chunks (
			id VARCHAR(255) PRIMARY KEY,
			message_id VARCHAR(255) NOT NULL,
			thread_id VARCHAR(255) NOT NULL DEFAULT '',
			ordinal INTEGER NOT NULL DEFAULT 0,
			text TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			sender VARCHAR(512) NOT NULL DEFAULT '',
			recipient VARCHAR(512) NOT NULL DEFAULT '',
			date BIGINT NOT NULL DEFAULT 0,
			labels TEXT NOT NULL DEFAULT '[]',
			embedding TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS email_chunk_labels (
			chunk_id VARCHAR(255) NOT NULL,
			label VARCHAR(255) NOT NULL,
			PRIMARY KEY (chunk_id, label)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_email_chunks_message_id ON email_chunks(message_id)`,
		`CREATE INDEX IF NOT EXISTS idx_email_chunks_date ON email_chunks(date)`,
		`CREATE INDEX IF NOT EXISTS idx_email_chunk_labels_label ON email_chunk_labels(label)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// Upsert replaces the stored chunks of every message present in the batch.
// Delete-then-insert inside one transaction keeps a shrunk message from
// leaving stale trailing chunks behind.
func (s *SQLiteStore) Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.RepositoryUnavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteMessages(ctx, tx, uniqueMessageIDs(chunks)); err != nil {
		return err
	}

	insert := tx.Rebind(`
		INSERT INTO email_chunks (id, message_id, thread_id, ordinal, text, subject, sender, recipient, date, labels, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	insertLabel := tx.Rebind(`INSERT INTO email_chunk_labels (chunk_id, label) VALUES (?, ?)`)
	for i, chunk := range chunks {
		labels := chunk.Labels
		if labels == nil {
			labels = []string{}
		}
		labelsJSON, err := json.Marshal(labels)
		if err != nil {
			return fmt.Errorf("failed to marshal labels for chunk %s: %w", chunk.ID, err)
		}
		embeddingJSON, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("failed to marshal embedding for chunk %s: %w", chunk.ID, err)
		}

		_, err = tx.ExecContext(ctx, insert,
			chunk.ID, chunk.MessageID, chunk.ThreadID, chunk.Ordinal, chunk.Text, chunk.Subject,
			chunk.From, chunk.To, chunk.Date, string(labelsJSON), string(embeddingJSON))
		if err != nil {
			return apperrors.RepositoryUnavailable(err)
		}
		for _, label := range labels {
			if _, err := tx.ExecContext(ctx, insertLabel, chunk.ID, label); err != nil {
				return apperrors.RepositoryUnavailable(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.RepositoryUnavailable(err)
	}

	return nil
}

// deleteMessages drops the chunks and label rows of the given messages.
// Label rows go first while the chunk rows still resolve the chunk ids.
func deleteMessages(ctx context.Context, tx *sqlx.Tx, messageIDs []string) error {
	labelQuery, labelArgs, err := sqlx.In(`
		DELETE FROM email_chunk_labels WHERE chunk_id IN (
			SELECT id FROM email_chunks WHERE message_id IN (?)
		)
	`, messageIDs)
	if err != nil {
		return fmt.Errorf("failed to build label delete query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(labelQuery), labelArgs...); err != nil {
		return apperrors.RepositoryUnavailable(err)
	}

	delQuery, delArgs, err := sqlx.In(`DELETE FROM email_chunks WHERE message_id IN (?)`, messageIDs)
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(delQuery), delArgs...); err != nil {
		return apperrors.RepositoryUnavailable(err)
	}

	return nil
}

// DeleteByMessageID removes every chunk of the given messages
func (s *SQLiteStore) DeleteByMessageID(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.RepositoryUnavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteMessages(ctx, tx, messageIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.RepositoryUnavailable(err)
	}

	return nil
}

// Query scans the filtered rows, scores them in process, and returns the
// top k. Invalid rows are skipped, not fatal.
func (s *SQLiteStore) Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]models.SearchResult, error) {
	where, args := buildFilterSQL(filter)
	query := s.db.Rebind(`
		SELECT id, message_id, thread_id, ordinal, text, subject, sender, recipient, date, labels, embedding
		FROM email_chunks` + where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.RepositoryUnavailable(err)
	}
	defer rows.Close()

	queryVec := toFloat64(vector)
	var results []models.SearchResult

	for rows.Next() {
		var chunk models.Chunk
		var labelsJSON, embeddingJSON string

		err := rows.Scan(&chunk.ID, &chunk.MessageID, &chunk.ThreadID, &chunk.Ordinal, &chunk.Text,
			&chunk.Subject, &chunk.From, &chunk.To, &chunk.Date, &labelsJSON, &embeddingJSON)
		if err != nil {
			continue // Skip invalid rows
		}

		var embedding []float64
		if err := json.Unmarshal([]byte(embeddingJSON), &embedding); err != nil {
			continue // Skip invalid embeddings
		}
		_ = json.Unmarshal([]byte(labelsJSON), &chunk.Labels)

		results = append(results, models.SearchResult{
			Chunk: chunk,
			Score: cosineSimilarity(queryVec, embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.RepositoryUnavailable(err)
	}

	sortByScore(results)
	if k > 0 && k < len(results) {
		results = results[:k]
	}

	return results, nil
}

// Count returns the number of indexed chunks
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM email_chunks`); err != nil {
		return 0, apperrors.RepositoryUnavailable(err)
	}
	return count, nil
}

// HealthCheck verifies the index file is readable
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if err := database.Ping(ctx, s.db); err != nil {
		return apperrors.RepositoryUnavailable(err)
	}
	return nil
}

// Close closes the index file
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// buildFilterSQL translates the filter into a WHERE clause. Label matches
// go through the email_chunk_labels index table, one subquery per required
// label.
func buildFilterSQL(filter *Filter) (string, []interface{}) {
	if filter.IsZero() {
		return "", nil
	}

	var conds []string
	var args []interface{}

	if filter.From != "" {
		conds = append(conds, "sender LIKE ?")
		args = append(args, "%"+filter.From+"%")
	}
	for _, label := range filter.Labels {
		conds = append(conds, "id IN (SELECT chunk_id FROM email_chunk_labels WHERE label = ?)")
		args = append(args, label)
	}
	if filter.DateFrom > 0 {
		conds = append(conds, "date >= ?")
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo > 0 {
		conds = append(conds, "date <= ?")
		args = append(args, filter.DateTo)
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}
