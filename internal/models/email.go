package models

import "time"

// MessagePart is one node of a provider message payload tree. Multipart
// messages nest alternatives and attachments as child parts.
type MessagePart struct {
	MimeType string            `json:"mime_type"`
	Headers  map[string]string `json:"headers,omitempty"`
	Data     string            `json:"data,omitempty"` // base64url-encoded body data
	Filename string            `json:"filename,omitempty"`
	Parts    []MessagePart     `json:"parts,omitempty"`
}

// RawMessage is a mailbox message exactly as the provider returned it,
// before normalization
type RawMessage struct {
	ID           string       `json:"id"`
	ThreadID     string       `json:"thread_id,omitempty"`
	LabelIDs     []string     `json:"label_ids,omitempty"`
	HistoryID    uint64       `json:"history_id,omitempty"`
	InternalDate int64        `json:"internal_date,omitempty"` // milliseconds since epoch
	Snippet      string       `json:"snippet,omitempty"`
	SizeEstimate int64        `json:"size_estimate,omitempty"`
	Payload      *MessagePart `json:"payload,omitempty"`
}

// EmailRecord is a normalized email ready for chunking and indexing
type EmailRecord struct {
	MessageID      string    `json:"message_id"`
	ThreadID       string    `json:"thread_id,omitempty"`
	Subject        string    `json:"subject"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Date           time.Time `json:"date"`
	Body           string    `json:"body"`
	Snippet        string    `json:"snippet,omitempty"`
	Labels         []string  `json:"labels,omitempty"`
	HasAttachments bool      `json:"has_attachments,omitempty"`
	ContentHash    string    `json:"content_hash"` // sha256 over subject and body
}

// Chunk is one indexed slice of a normalized email. Metadata is flattened
// onto every chunk so a search hit is self-contained.
type Chunk struct {
	ID        string   `json:"id"` // message id plus chunk ordinal, stable across re-syncs
	MessageID string   `json:"message_id"`
	ThreadID  string   `json:"thread_id,omitempty"`
	Ordinal   int      `json:"ordinal"`
	Text      string   `json:"text"`
	Subject   string   `json:"subject"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Date      int64    `json:"date"` // unix seconds
	Labels    []string `json:"labels,omitempty"`
}

// SearchResult is a chunk with its similarity score
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// IngestedMessage is the ingest ledger row for one indexed message, keyed
// by mailbox and message id
type IngestedMessage struct {
	MailboxID   string `db:"mailbox_id" json:"mailbox_id"`
	MessageID   string `db:"message_id" json:"message_id"`
	ContentHash string `db:"content_hash" json:"content_hash"`
	ChunkCount  int    `db:"chunk_count" json:"chunk_count"`
	IndexedAt   int64  `db:"indexed_at" json:"indexed_at"`
}
