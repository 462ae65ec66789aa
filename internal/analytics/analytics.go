package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mailchat/internal/database"
	"mailchat/internal/models"
)

// EventType constants for tracking different events
const (
	EventQuestion       = "question"
	EventCitedAnswer    = "cited_answer"
	EventSyncRun        = "sync_run"
	EventMessageIndexed = "message_indexed"
	EventMessageFailed  = "message_failed"
	EventOpenAICall     = "openai_call"
	EventQueryEmbedding = "query_embedding" // Per-question embedding generation (billable, cache misses only)
	EventAlertSent      = "alert_sent"
)

// Period constants for analytics queries
const (
	PeriodToday      = "today"
	PeriodYesterday  = "yesterday"
	PeriodLast7Days  = "last_7_days"
	PeriodLast30Days = "last_30_days"
)

// Service handles analytics tracking and retrieval
type Service struct {
	writeClient *database.WriteClient
}

// NewService creates a new analytics service
func NewService(writeClient *database.WriteClient) (*Service, error) {
	if writeClient == nil {
		return nil, fmt.Errorf("write client is required for analytics service")
	}

	service := &Service{writeClient: writeClient}

	// Create analytics tables if they don't exist
	if err := service.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create analytics tables: %w", err)
	}

	return service, nil
}

// createTables creates the analytics tables in the database
func (s *Service) createTables() error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	switch s.writeClient.GetDB().DriverName() {
	case database.DriverPostgres:
		serial = "SERIAL PRIMARY KEY"
	case database.DriverMySQL:
		serial = "BIGINT PRIMARY KEY AUTO_INCREMENT"
	}

	queries := []string{
		// Analytics events table
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS analytics_events (
			id %s,
			event_type VARCHAR(50) NOT NULL,
			count INT DEFAULT 1,
			tokens INT DEFAULT 0,
			metadata TEXT,
			created_at BIGINT NOT NULL
		)`, serial),
		`CREATE INDEX IF NOT EXISTS idx_analytics_event_type ON analytics_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_created_at ON analytics_events(created_at)`,
		// Daily aggregates table for faster queries
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS analytics_daily (
			id %s,
			date VARCHAR(10) NOT NULL,
			event_type VARCHAR(50) NOT NULL,
			total_count INT DEFAULT 0,
			total_tokens INT DEFAULT 0,
			updated_at BIGINT NOT NULL,
			UNIQUE(date, event_type)
		)`, serial),
		`CREATE INDEX IF NOT EXISTS idx_analytics_daily_date ON analytics_daily(date)`,
	}

	for _, query := range queries {
		if _, err := s.writeClient.ExecuteWriteQuery(context.Background(), query); err != nil {
			// Ignore "already exists" errors
			continue
		}
	}

	return nil
}

// TrackEvent records an analytics event with an optional token cost
func (s *Service) TrackEvent(ctx context.Context, eventType string, count, tokens int, metadata map[string]interface{}) error {
	var metadataJSON *string
	if metadata != nil {
		jsonBytes, err := json.Marshal(metadata)
		if err == nil {
			str := string(jsonBytes)
			metadataJSON = &str
		}
	}

	// Insert event
	query := `INSERT INTO analytics_events (event_type, count, tokens, metadata, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.writeClient.ExecuteWriteQuery(ctx, query, eventType, count, tokens, metadataJSON, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to track event: %w", err)
	}

	// Update daily aggregate
	today := time.Now().UTC().Format("2006-01-02")
	aggregateQuery := `
		INSERT INTO analytics_daily (date, event_type, total_count, total_tokens, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (date, event_type) DO UPDATE SET
			total_count = analytics_daily.total_count + excluded.total_count,
			total_tokens = analytics_daily.total_tokens + excluded.total_tokens,
			updated_at = excluded.updated_at
	`
	_, err = s.writeClient.ExecuteWriteQuery(ctx, aggregateQuery, today, eventType, count, tokens, time.Now().Unix())
	if err != nil {
		fmt.Printf("[ANALYTICS] Warning: Failed to update daily aggregate: %v\n", err)
	}

	return nil
}

// TrackQuestion records an answered question and its model cost
func (s *Service) TrackQuestion(ctx context.Context, cited bool, tokens int, model string) error {
	metadata := map[string]interface{}{
		"model": model,
		"cited": cited,
	}
	if err := s.TrackEvent(ctx, EventQuestion, 1, 0, metadata); err != nil {
		return err
	}

	if cited {
		if err := s.TrackEvent(ctx, EventCitedAnswer, 1, 0, nil); err != nil {
			return err
		}
	}

	if tokens > 0 {
		openAIMetadata := map[string]interface{}{
			"model": model,
		}
		if err := s.TrackEvent(ctx, EventOpenAICall, 1, tokens, openAIMetadata); err != nil {
			return err
		}
	}

	return nil
}

// TrackQueryEmbedding records a per-question embedding generation. Cache
// hits skip the API call and are not tracked.
func (s *Service) TrackQueryEmbedding(ctx context.Context, model string) error {
	metadata := map[string]interface{}{
		"model": model,
	}
	return s.TrackEvent(ctx, EventQueryEmbedding, 1, 0, metadata)
}

// TrackSyncRun records a completed sync run and its per-message outcomes
func (s *Service) TrackSyncRun(ctx context.Context, report *models.SyncReport) error {
	if report == nil {
		return nil
	}

	metadata := map[string]interface{}{
		"mailbox_hash": hashMailbox(report.MailboxID),
		"mode":         report.Mode,
		"fetched":      report.Fetched,
		"indexed":      report.Indexed,
		"skipped":      report.SkippedUnchanged,
		"failed":       report.Failed,
		"duration_ms":  report.Duration().Milliseconds(),
	}
	if err := s.TrackEvent(ctx, EventSyncRun, 1, 0, metadata); err != nil {
		return err
	}

	if report.Indexed > 0 {
		if err := s.TrackEvent(ctx, EventMessageIndexed, report.Indexed, 0, nil); err != nil {
			return err
		}
	}
	if report.Failed > 0 {
		if err := s.TrackEvent(ctx, EventMessageFailed, report.Failed, 0, nil); err != nil {
			return err
		}
	}

	return nil
}

// TrackAlert records a sync failure alert email
func (s *Service) TrackAlert(ctx context.Context, mailboxID string) error {
	metadata := map[string]interface{}{
		"mailbox_hash": hashMailbox(mailboxID),
	}
	return s.TrackEvent(ctx, EventAlertSent, 1, 0, metadata)
}

// GetSummary retrieves analytics summary for a time period
func (s *Service) GetSummary(ctx context.Context, period string) (*models.AnalyticsSummary, error) {
	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	var startDate, endDate time.Time

	switch period {
	case PeriodToday:
		startDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		endDate = now
	case PeriodYesterday:
		yesterday := now.AddDate(0, 0, -1)
		startDate = time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.UTC)
		endDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodLast7Days:
		startDate = now.AddDate(0, 0, -7)
		endDate = now
	case PeriodLast30Days:
		startDate = now.AddDate(0, 0, -30)
		endDate = now
	default:
		period = PeriodToday
		startDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		endDate = now
	}

	summary := &models.AnalyticsSummary{
		Period:    period,
		StartDate: startDate,
		EndDate:   endDate,
	}

	// Get event counts from daily aggregates
	type dailyRow struct {
		EventType   string `db:"event_type"`
		TotalCount  int    `db:"total_count"`
		TotalTokens int    `db:"total_tokens"`
	}
	query := `
		SELECT event_type, COALESCE(SUM(total_count), 0) AS total_count, COALESCE(SUM(total_tokens), 0) AS total_tokens
		FROM analytics_daily
		WHERE date >= ? AND date <= ?
		GROUP BY event_type
	`

	// endDate lands on midnight for complete-day periods, so the last
	// aggregated day is the one just before it
	lastDay := endDate.Add(-time.Second).Format("2006-01-02")

	var rows []dailyRow
	err := s.writeClient.Select(cctx, &rows, query, startDate.Format("2006-01-02"), lastDay)
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics summary: %w", err)
	}

	for _, row := range rows {
		switch row.EventType {
		case EventQuestion:
			summary.TotalQuestions = row.TotalCount
		case EventCitedAnswer:
			summary.CitedAnswers = row.TotalCount
		case EventSyncRun:
			summary.SyncRuns = row.TotalCount
		case EventMessageIndexed:
			summary.MessagesIndexed = row.TotalCount
		case EventMessageFailed:
			summary.MessagesFailed = row.TotalCount
		case EventOpenAICall:
			summary.OpenAICalls = row.TotalCount
			summary.OpenAITokensUsed += row.TotalTokens
		case EventQueryEmbedding:
			summary.QueryEmbeddings = row.TotalCount
		case EventAlertSent:
			summary.AlertsSent = row.TotalCount
		}
	}

	// Live totals from the actual tables; these may not exist yet in a
	// fresh deployment, so failures leave the fields at zero
	_ = s.writeClient.Get(cctx, &summary.TotalSessions, `SELECT COUNT(*) FROM chat_sessions`)
	_ = s.writeClient.Get(cctx, &summary.TotalIndexed, `SELECT COUNT(*) FROM ingested_messages`)

	return summary, nil
}

// hashMailbox masks a mailbox address for analytics metadata
func hashMailbox(mailbox string) string {
	if len(mailbox) < 3 {
		return "***"
	}
	return mailbox[:2] + "***" + mailbox[len(mailbox)-3:]
}
