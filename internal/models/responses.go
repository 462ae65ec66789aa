package models

import "time"

// HealthResponse represents a basic health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2023-01-01T00:00:00Z"` // Timestamp of the check
	Version   string    `json:"version" example:"1.0.0"`                  // Application version
}

// DBHealthResponse represents a database health check response
// @Description Database health check response
type DBHealthResponse struct {
	Status    string        `json:"status" example:"healthy"`                   // Health status
	Timestamp time.Time     `json:"timestamp" example:"2023-01-01T00:00:00Z"`   // Timestamp of the check
	Connected bool          `json:"connected" example:"true"`                   // Database connection status
	Latency   time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Database ping latency
	Error     string        `json:"error,omitempty" example:""`                 // Error message if any
}

// VectorHealthResponse represents a vector repository health check response
// @Description Vector repository health check response
type VectorHealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2023-01-01T00:00:00Z"` // Timestamp of the check
	Backend   string    `json:"backend" example:"qdrant"`                 // Active backend name
	Connected bool      `json:"connected" example:"true"`                 // Repository reachability
	Error     string    `json:"error,omitempty" example:""`               // Error message if any
}

// ConversationMessage represents a single message in a conversation
// @Description Single message in a conversation
type ConversationMessage struct {
	Role    string `json:"role" example:"user"`                 // Message role (user, assistant)
	Message string `json:"message" example:"What did Bob say?"` // Message content
}

// AskRequest represents the request body for the ask endpoint
// @Description Ask request payload
type AskRequest struct {
	Question  string   `json:"question" example:"What did the invoice from Acme say?"` // Question about the mailbox
	SessionID string   `json:"session_id,omitempty" example:"f6c7e0a2-..."`            // Continue an existing conversation
	Labels    []string `json:"labels,omitempty" example:"INBOX"`                       // Restrict search to emails carrying all of these labels
	From      string   `json:"from,omitempty" example:"billing@acme.com"`              // Restrict search by sender substring
	After     string   `json:"after,omitempty" example:"2024-01-01"`                   // Only emails on or after this date
	Before    string   `json:"before,omitempty" example:"2024-06-30"`                  // Only emails on or before this date
	K         int      `json:"k,omitempty" example:"4"`                                // Number of candidate chunks to retrieve
}

// Citation points an answer sentence back at a source email
// @Description Source email citation
type Citation struct {
	MessageID string `json:"message_id" example:"18c2f4a9b3d1e507"`                            // Provider message id
	ChunkID   string `json:"chunk_id" example:"18c2f4a9b3d1e507#0"`                            // Indexed chunk id
	Subject   string `json:"subject" example:"Invoice #42"`                                    // Email subject
	From      string `json:"from" example:"billing@acme.com"`                                  // Sender address
	Date      string `json:"date" example:"2024-03-01"`                                        // Email date
	Link      string `json:"link" example:"https://mail.google.com/mail/u/0/#all/18c2f4a9b3"` // Deep link to the email
}

// AskResponse represents the response from the ask endpoint
// @Description Ask response payload
type AskResponse struct {
	Answer    string     `json:"answer" example:"The invoice total was $1,200."` // Grounded answer
	Citations []Citation `json:"citations,omitempty"`                            // Source emails the answer cites
	SessionID string     `json:"session_id" example:"f6c7e0a2-..."`              // Session id for follow-up questions
	Model     string     `json:"model,omitempty" example:"gpt-4o-mini"`          // Model that produced the answer
	Retrieved int        `json:"retrieved" example:"4"`                          // Candidate chunks considered
	Error     string     `json:"error,omitempty" example:""`                     // Error message if any
}

// ErrorResponse is the generic error payload
// @Description Error payload
type ErrorResponse struct {
	Error string `json:"error" example:"sync already running for mailbox"` // Human-readable error
	Code  string `json:"code,omitempty" example:"sync_already_running"`    // Machine-readable error kind
}

// SyncRequest represents the request body for the sync endpoint
// @Description Sync trigger payload
type SyncRequest struct {
	MailboxID string `json:"mailbox_id,omitempty" example:"me@example.com"` // Mailbox to sync (defaults to the configured one)
	Query     string `json:"query,omitempty" example:"-in:spam -in:trash"`  // Gmail search filter for backfill walks
	Limit     int    `json:"limit,omitempty" example:"500"`                 // Cap on fetched messages for this run
}

// SyncStatusResponse represents the response from the sync status endpoint
// @Description Sync status response payload
type SyncStatusResponse struct {
	MailboxID  string      `json:"mailbox_id" example:"me@example.com"` // Target mailbox
	Running    bool        `json:"running" example:"false"`             // Whether a run is in flight
	Checkpoint *Checkpoint `json:"checkpoint,omitempty"`                // Durable sync position
	LastReport *SyncReport `json:"last_report,omitempty"`               // Report of the most recent finished run
}

// AdminAuthRequest represents admin login credentials
// @Description Admin authentication request
type AdminAuthRequest struct {
	Username string `json:"username" example:"admin"` // Admin username
	Password string `json:"password" example:""`      // Admin password
}

// AdminAuthResponse represents the result of an admin login attempt
// @Description Admin authentication response
type AdminAuthResponse struct {
	Success bool   `json:"success" example:"true"`     // Whether authentication succeeded
	Token   string `json:"token,omitempty"`            // Bearer token for admin endpoints
	Error   string `json:"error,omitempty" example:""` // Error message if any
}
