package models

import "time"

// AnalyticsEvent represents a tracked event
type AnalyticsEvent struct {
	ID        int     `db:"id" json:"id"`
	EventType string  `db:"event_type" json:"event_type"`       // question, sync_run, message_indexed, openai_call, query_embedding, alert_sent
	Count     int     `db:"count" json:"count"`
	Tokens    int     `db:"tokens" json:"tokens"`               // OpenAI tokens billed for this event, 0 when not billable
	Metadata  *string `db:"metadata" json:"metadata,omitempty"` // JSON metadata (model, mode, counters)
	CreatedAt int64   `db:"created_at" json:"created_at"`       // unix seconds
}

// AnalyticsSummary represents aggregated analytics for a time period
type AnalyticsSummary struct {
	Period           string    `json:"period"`             // "today", "yesterday", "last_7_days", "last_30_days"
	TotalQuestions   int       `json:"total_questions"`    // Questions answered
	CitedAnswers     int       `json:"cited_answers"`      // Answers that carried at least one citation
	SyncRuns         int       `json:"sync_runs"`          // Sync runs started
	MessagesIndexed  int       `json:"messages_indexed"`   // Messages chunked and indexed
	MessagesFailed   int       `json:"messages_failed"`    // Messages that failed normalization or indexing
	OpenAICalls      int       `json:"openai_calls"`       // Total OpenAI API calls
	OpenAITokensUsed int       `json:"openai_tokens_used"` // Total tokens consumed
	QueryEmbeddings  int       `json:"query_embeddings"`   // Per-question embedding generations (billable)
	AlertsSent       int       `json:"alerts_sent"`        // Failure alerts sent via SendGrid
	TotalSessions    int       `json:"total_sessions"`     // Chat sessions in database
	TotalIndexed     int       `json:"total_indexed"`      // Messages in the ingest log
	StartDate        time.Time `json:"start_date"`         // Period start
	EndDate          time.Time `json:"end_date"`           // Period end
}

// AnalyticsResponse represents the API response for analytics
// @Description Analytics response payload
type AnalyticsResponse struct {
	Success bool              `json:"success" example:"true"`
	Summary *AnalyticsSummary `json:"summary,omitempty"`
	Error   string            `json:"error,omitempty" example:""`
}

// OpenAIUsage represents OpenAI API usage details
type OpenAIUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
}
