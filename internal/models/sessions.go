package models

// ChatSession is one conversation with the mailbox assistant
type ChatSession struct {
	SessionID    string `db:"session_id" json:"session_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	CreatedAt    int64  `db:"created_at" json:"created_at"`
	UpdatedAt    int64  `db:"updated_at" json:"updated_at"`
	MessageCount int    `db:"message_count" json:"message_count" example:"6"`
}

// SessionMessage is a single turn stored for a session
type SessionMessage struct {
	ID        int64  `db:"id" json:"id"`
	SessionID string `db:"session_id" json:"session_id"`
	Role      string `db:"role" json:"role" example:"user"`
	Message   string `db:"message" json:"message"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
}

// ChatSessionDetail is a session together with its full transcript
type ChatSessionDetail struct {
	Session  ChatSession      `json:"session"`
	Messages []SessionMessage `json:"messages"`
}

// ConversationTurn is one in-memory turn of a session, fed back to the
// model as conversation context on the next question
type ConversationTurn struct {
	Role            string   `json:"role"` // user or assistant
	Text            string   `json:"text"`
	CitedMessageIDs []string `json:"cited_message_ids,omitempty"`
}

// SessionListResponse is the paginated session listing
type SessionListResponse struct {
	Sessions []ChatSession `json:"sessions"`
	Total    int           `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
	HasMore  bool          `json:"has_more"`
}
