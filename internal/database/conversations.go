package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"mailchat/internal/models"
)

// ConversationService handles conversation session storage
type ConversationService struct {
	db *sqlx.DB
}

// NewConversationService creates a new conversation service
func NewConversationService(db *sqlx.DB) (*ConversationService, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required for conversation service")
	}

	service := &ConversationService{db: db}

	// Create tables if they don't exist
	if err := service.CreateTables(); err != nil {
		return nil, fmt.Errorf("failed to create conversation tables: %w", err)
	}

	return service, nil
}

// CreateTables creates the conversation tables in the database
func (s *ConversationService) CreateTables() error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	switch s.db.DriverName() {
	case DriverPostgres:
		serial = "SERIAL PRIMARY KEY"
	case DriverMySQL:
		serial = "BIGINT PRIMARY KEY AUTO_INCREMENT"
	}

	queries := []string{
		// Chat sessions table
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			session_id VARCHAR(64) PRIMARY KEY,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		// Session messages table
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS session_messages (
			id %s,
			session_id VARCHAR(64) NOT NULL,
			role VARCHAR(20) NOT NULL,
			message TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`, serial),
		// Create indexes
		`CREATE INDEX IF NOT EXISTS idx_session_messages_session_id ON session_messages(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_updated_at ON chat_sessions(updated_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			// Ignore "already exists" errors
			continue
		}
	}

	return nil
}

// SaveSession creates or updates a session
func (s *ConversationService) SaveSession(ctx context.Context, sessionID string) error {
	now := time.Now().Unix()
	query := s.db.Rebind(`
		INSERT INTO chat_sessions (session_id, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			updated_at = excluded.updated_at
	`)

	if _, err := s.db.ExecContext(ctx, query, sessionID, now, now); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// SaveMessage saves a message to a session
func (s *ConversationService) SaveMessage(ctx context.Context, sessionID, role, message string) error {
	// Ensure session exists first
	if err := s.SaveSession(ctx, sessionID); err != nil {
		return err
	}

	query := s.db.Rebind(`
		INSERT INTO session_messages (session_id, role, message, created_at)
		VALUES (?, ?, ?, ?)
	`)

	if _, err := s.db.ExecContext(ctx, query, sessionID, role, message, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

// GetRecentMessages returns the newest limit messages for a session in
// chronological order. The chain feeds these back as conversation memory.
func (s *ConversationService) GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]models.SessionMessage, error) {
	query := s.db.Rebind(`
		SELECT id, session_id, role, message, created_at
		FROM session_messages
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?
	`)

	var messages []models.SessionMessage
	if err := s.db.SelectContext(ctx, &messages, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("failed to get recent messages: %w", err)
	}

	// Newest-first from the query, flip to oldest-first for the prompt
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// GetSessions retrieves a paginated list of sessions
func (s *ConversationService) GetSessions(ctx context.Context, limit, offset int) ([]models.ChatSession, error) {
	query := s.db.Rebind(`
		SELECT
			cs.session_id,
			cs.created_at,
			cs.updated_at,
			COUNT(sm.id) as message_count
		FROM chat_sessions cs
		LEFT JOIN session_messages sm ON cs.session_id = sm.session_id
		GROUP BY cs.session_id, cs.created_at, cs.updated_at
		ORDER BY cs.updated_at DESC
		LIMIT ? OFFSET ?
	`)

	var sessions []models.ChatSession
	if err := s.db.SelectContext(ctx, &sessions, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to get sessions: %w", err)
	}

	// Ensure we return an empty slice, not nil
	if sessions == nil {
		sessions = []models.ChatSession{}
	}

	return sessions, nil
}

// GetSessionCount returns the total number of sessions
func (s *ConversationService) GetSessionCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chat_sessions`); err != nil {
		return 0, fmt.Errorf("failed to get session count: %w", err)
	}
	return count, nil
}

// GetSessionDetails retrieves a session with all its messages
func (s *ConversationService) GetSessionDetails(ctx context.Context, sessionID string) (*models.ChatSessionDetail, error) {
	// Get session metadata
	var session models.ChatSession
	query := s.db.Rebind(`
		SELECT
			session_id,
			created_at,
			updated_at,
			(SELECT COUNT(*) FROM session_messages WHERE session_id = ?) as message_count
		FROM chat_sessions
		WHERE session_id = ?
	`)
	if err := s.db.GetContext(ctx, &session, query, sessionID, sessionID); err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	// Get messages
	var messages []models.SessionMessage
	msgQuery := s.db.Rebind(`
		SELECT id, session_id, role, message, created_at
		FROM session_messages
		WHERE session_id = ?
		ORDER BY id ASC
	`)
	if err := s.db.SelectContext(ctx, &messages, msgQuery, sessionID); err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	return &models.ChatSessionDetail{
		Session:  session,
		Messages: messages,
	}, nil
}
