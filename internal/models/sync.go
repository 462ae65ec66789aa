package models

import "time"

// Checkpoint statuses
const (
	SyncStatusIdle    = "IDLE"
	SyncStatusSyncing = "SYNCING"
	SyncStatusError   = "ERROR"
)

// Sync run modes
const (
	SyncModeBackfill = "backfill"
	SyncModeDelta    = "delta"
)

// Checkpoint is the durable sync position for one mailbox. Cursor holds the
// provider history id; empty means the mailbox has never completed a full sync.
// Timestamps are unix seconds so the row scans the same on every driver.
type Checkpoint struct {
	MailboxID    string  `db:"mailbox_id" json:"mailbox_id"`
	Cursor       string  `db:"cursor" json:"cursor"`
	Status       string  `db:"status" json:"status"`
	LastError    *string `db:"last_error" json:"last_error,omitempty"`
	LastSyncedAt int64   `db:"last_synced_at" json:"last_synced_at,omitempty"`
	UpdatedAt    int64   `db:"updated_at" json:"updated_at"`
}

// SyncReport summarizes one sync run. Fetched counts every message the
// provider returned; each of them lands in exactly one of Indexed,
// SkippedUnchanged, or Failed.
type SyncReport struct {
	RunID            string    `json:"run_id"`
	MailboxID        string    `json:"mailbox_id"`
	Mode             string    `json:"mode"` // backfill or delta
	Fetched          int       `json:"fetched"`
	Indexed          int       `json:"indexed"`
	SkippedUnchanged int       `json:"skipped_unchanged"`
	Failed           int       `json:"failed"`
	Deleted          int       `json:"deleted"`
	FailedMessageIDs []string  `json:"failed_message_ids,omitempty"`
	FullRescan       bool      `json:"full_rescan"` // cursor expired, fell back to a full walk
	Cursor           string    `json:"cursor"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// Duration returns the wall-clock time the run took
func (r *SyncReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// MailboxProfile identifies the mailbox and its current history position
type MailboxProfile struct {
	Email         string `json:"email"`
	HistoryID     uint64 `json:"history_id"`
	MessagesTotal int64  `json:"messages_total"`
}

// MessagePage is one page of a full mailbox walk
type MessagePage struct {
	MessageIDs    []string `json:"message_ids"`
	NextPageToken string   `json:"next_page_token,omitempty"`
}

// ChangePage is one page of incremental history. NewCursor is safe to
// persist once every message on the page has been processed.
type ChangePage struct {
	AddedIDs      []string `json:"added_ids,omitempty"`
	DeletedIDs    []string `json:"deleted_ids,omitempty"`
	NextPageToken string   `json:"next_page_token,omitempty"`
	NewCursor     string   `json:"new_cursor"`
}
