// Package syncer walks a mailbox provider and keeps the vector index and
// the ingest ledger in step with it. One run is either a full backfill or
// a history delta, committed checkpoint-by-checkpoint so a crash loses at
// most one page of work.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mailchat/internal/apperrors"
	"mailchat/internal/config"
	"mailchat/internal/database"
	"mailchat/internal/emails"
	"mailchat/internal/models"
	"mailchat/internal/retry"
	"mailchat/internal/vecstore"
)

// Provider is the mailbox surface the engine drives. The Gmail client
// implements it; tests use fakes.
type Provider interface {
	// Profile returns the mailbox address and current history position
	Profile(ctx context.Context) (*models.MailboxProfile, error)

	// ListPage returns one page of message ids for a full walk
	ListPage(ctx context.Context, query, pageToken string) (*models.MessagePage, error)

	// ChangedSince returns one page of changes after the cursor. A cursor
	// the provider no longer honors surfaces as a history-expired error.
	ChangedSince(ctx context.Context, cursor, pageToken string) (*models.ChangePage, error)

	// GetMessage fetches one full message by id
	GetMessage(ctx context.Context, id string) (*models.RawMessage, error)
}

// Alerter delivers failure notifications. Delivery is best-effort; the
// sync result never depends on it.
type Alerter interface {
	SyncFailure(ctx context.Context, mailboxID string, report *models.SyncReport, runErr error)
}

// Engine synchronizes mailboxes into the vector index
type Engine struct {
	provider Provider
	store    *database.CheckpointStore
	pipeline *emails.Pipeline
	repo     vecstore.Repository
	alerter  Alerter
	policy   retry.Policy

	defaultMax     int
	alertThreshold int

	mu          sync.Mutex
	running     map[string]bool
	lastReports map[string]*models.SyncReport
}

// NewEngine wires the sync engine. alerter may be nil.
func NewEngine(cfg *config.Config, provider Provider, store *database.CheckpointStore, pipeline *emails.Pipeline, repo vecstore.Repository, alerter Alerter) *Engine {
	return &Engine{
		provider: provider,
		store:    store,
		pipeline: pipeline,
		repo:     repo,
		alerter:  alerter,
		policy: retry.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
		defaultMax:     cfg.SyncMaxMessages,
		alertThreshold: cfg.AlertFailedMessages,
		running:        make(map[string]bool),
		lastReports:    make(map[string]*models.SyncReport),
	}
}

// Sync runs one synchronization pass for a mailbox. query narrows a
// backfill walk ("" uses the configured default); max caps fetched
// messages (<= 0 uses the configured default). The report is returned
// even when the run aborts, with the counters reached so far.
//
// Only one run per mailbox may be in flight; a concurrent call fails
// fast with SyncAlreadyRunning and no side effects.
func (e *Engine) Sync(ctx context.Context, mailboxID, query string, max int) (*models.SyncReport, error) {
	if mailboxID == "" {
		return nil, apperrors.InvalidRequest("mailbox_id is required")
	}
	if max <= 0 {
		max = e.defaultMax
	}

	if !e.acquire(mailboxID) {
		return nil, apperrors.SyncAlreadyRunning(mailboxID)
	}
	defer e.release(mailboxID)

	report := &models.SyncReport{
		RunID:     uuid.NewString(),
		MailboxID: mailboxID,
		StartedAt: time.Now(),
	}

	checkpoint, err := e.store.Load(ctx, mailboxID)
	if err != nil {
		return report, e.finish(ctx, report, err)
	}

	if err := e.store.SetStatus(ctx, mailboxID, models.SyncStatusSyncing, nil); err != nil {
		return report, e.finish(ctx, report, err)
	}

	if checkpoint.Cursor == "" {
		report.Mode = models.SyncModeBackfill
		fmt.Printf("[SYNC] Starting backfill for mailbox %s (max %d messages)\n", mailboxID, max)
		err = e.backfill(ctx, mailboxID, query, max, report)
	} else {
		report.Mode = models.SyncModeDelta
		fmt.Printf("[SYNC] Starting delta sync for mailbox %s from cursor %s\n", mailboxID, checkpoint.Cursor)
		err = e.delta(ctx, mailboxID, checkpoint.Cursor, report)

		if apperrors.IsKind(err, apperrors.KindHistoryExpired) {
			fmt.Printf("[SYNC] History expired for mailbox %s, falling back to full backfill\n", mailboxID)
			report.Mode = models.SyncModeBackfill
			report.FullRescan = true
			if resetErr := e.store.ResetCursor(ctx, mailboxID); resetErr != nil {
				return report, e.finish(ctx, report, resetErr)
			}
			err = e.backfill(ctx, mailboxID, query, max, report)
		}
	}

	return report, e.finish(ctx, report, err)
}

// Status returns the stored checkpoint for a mailbox
func (e *Engine) Status(ctx context.Context, mailboxID string) (*models.Checkpoint, error) {
	return e.store.Load(ctx, mailboxID)
}

// IsRunning reports whether a sync run for the mailbox is in flight
func (e *Engine) IsRunning(mailboxID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running[mailboxID]
}

// LastReport returns the report of the most recent run for the mailbox
// in this process, nil when none has run yet
func (e *Engine) LastReport(mailboxID string) *models.SyncReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReports[mailboxID]
}

// ResetCheckpoint clears the stored cursor so the next run walks the full
// mailbox again
func (e *Engine) ResetCheckpoint(ctx context.Context, mailboxID string) error {
	if !e.acquire(mailboxID) {
		return apperrors.SyncAlreadyRunning(mailboxID)
	}
	defer e.release(mailboxID)

	return e.store.ResetCursor(ctx, mailboxID)
}

func (e *Engine) acquire(mailboxID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[mailboxID] {
		return false
	}
	e.running[mailboxID] = true
	return true
}

func (e *Engine) release(mailboxID string) {
	e.mu.Lock()
	delete(e.running, mailboxID)
	e.mu.Unlock()
}

// finish closes out the run: status row, finish time, and the failure
// alert when the run aborted or failures crossed the threshold
func (e *Engine) finish(ctx context.Context, report *models.SyncReport, runErr error) error {
	report.FinishedAt = time.Now()

	e.mu.Lock()
	e.lastReports[report.MailboxID] = report
	e.mu.Unlock()

	if runErr != nil {
		msg := runErr.Error()
		if err := e.store.SetStatus(ctx, report.MailboxID, models.SyncStatusError, &msg); err != nil {
			fmt.Printf("[SYNC] Failed to record error status: %v\n", err)
		}
	} else {
		if err := e.store.SetStatus(ctx, report.MailboxID, models.SyncStatusIdle, nil); err != nil {
			fmt.Printf("[SYNC] Failed to record idle status: %v\n", err)
		}
	}

	if e.alerter != nil && (runErr != nil || (e.alertThreshold > 0 && report.Failed >= e.alertThreshold)) {
		e.alerter.SyncFailure(ctx, report.MailboxID, report, runErr)
	}

	if runErr != nil {
		fmt.Printf("[SYNC] Run %s aborted after %v: %v\n", report.RunID, report.Duration(), runErr)
	} else {
		fmt.Printf("[SYNC] Run %s finished in %v: fetched=%d indexed=%d skipped=%d failed=%d deleted=%d\n",
			report.RunID, report.Duration(), report.Fetched, report.Indexed,
			report.SkippedUnchanged, report.Failed, report.Deleted)
	}

	return runErr
}

// backfill walks the full mailbox page by page. The cursor is written only
// on the final page, from a history snapshot taken before the walk; a
// crash mid-walk leaves the cursor empty and the next run restarts the
// walk, skipping already-indexed messages by content hash.
func (e *Engine) backfill(ctx context.Context, mailboxID, query string, max int, report *models.SyncReport) error {
	var profile *models.MailboxProfile
	err := e.policy.Do(ctx, "get mailbox profile", func() error {
		var pErr error
		profile, pErr = e.provider.Profile(ctx)
		return pErr
	})
	if err != nil {
		return fmt.Errorf("failed to snapshot mailbox position: %w", err)
	}
	// Snapshot taken before the walk: messages arriving mid-walk land
	// after this position and are picked up by the next delta run
	tip := fmt.Sprintf("%d", profile.HistoryID)

	pageToken := ""
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var page *models.MessagePage
		err := e.policy.Do(ctx, "list messages", func() error {
			var lErr error
			page, lErr = e.provider.ListPage(ctx, query, pageToken)
			return lErr
		})
		if err != nil {
			return fmt.Errorf("failed to list mailbox page: %w", err)
		}

		ids := page.MessageIDs
		if max > 0 && total+len(ids) > max {
			ids = ids[:max-total]
		}
		total += len(ids)

		indexed, err := e.processMessages(ctx, mailboxID, ids, report)
		if err != nil {
			return err
		}

		final := page.NextPageToken == "" || (max > 0 && total >= max)
		cursor := ""
		if final {
			cursor = tip
		}
		if err := e.store.CommitPage(ctx, mailboxID, cursor, indexed); err != nil {
			return err
		}

		if final {
			report.Cursor = tip
			return nil
		}
		pageToken = page.NextPageToken
	}
}

// delta applies provider history pages since the cursor. Each page commits
// its own cursor, so an aborted run resumes from the last committed page.
func (e *Engine) delta(ctx context.Context, mailboxID, cursor string, report *models.SyncReport) error {
	pageToken := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var page *models.ChangePage
		err := e.policy.Do(ctx, "list history", func() error {
			var hErr error
			page, hErr = e.provider.ChangedSince(ctx, cursor, pageToken)
			return hErr
		})
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindHistoryExpired) {
				return err
			}
			return fmt.Errorf("failed to list history page: %w", err)
		}

		indexed, err := e.processMessages(ctx, mailboxID, page.AddedIDs, report)
		if err != nil {
			return err
		}

		if len(page.DeletedIDs) > 0 {
			if err := e.repo.DeleteByMessageID(ctx, page.DeletedIDs); err != nil {
				return fmt.Errorf("failed to delete removed messages: %w", err)
			}
			if err := e.store.DeleteIngested(ctx, mailboxID, page.DeletedIDs); err != nil {
				return err
			}
			report.Deleted += len(page.DeletedIDs)
		}

		if err := e.store.CommitPage(ctx, mailboxID, page.NewCursor, indexed); err != nil {
			return err
		}
		report.Cursor = page.NewCursor

		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}

// processMessages fetches, normalizes, embeds and upserts one page of
// message ids. Malformed messages and messages whose embeddings cannot be
// produced are counted as failed and the page continues; provider outage
// past the retry budget and repository errors abort the run.
func (e *Engine) processMessages(ctx context.Context, mailboxID string, ids []string, report *models.SyncReport) ([]models.IngestedMessage, error) {
	var indexed []models.IngestedMessage

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}

		var raw *models.RawMessage
		err := e.policy.Do(ctx, "fetch message", func() error {
			var gErr error
			raw, gErr = e.provider.GetMessage(ctx, id)
			return gErr
		})
		if err != nil {
			if retry.IsTransient(err) || ctx.Err() != nil {
				// Retry budget exhausted: abort without advancing past
				// the last committed page
				return indexed, fmt.Errorf("failed to fetch message %s: %w", id, err)
			}
			// Permanently unfetchable (deleted between list and fetch)
			report.Failed++
			report.FailedMessageIDs = append(report.FailedMessageIDs, id)
			continue
		}

		record, err := emails.Normalize(raw)
		if err != nil {
			fmt.Printf("[SYNC] Skipping malformed message %s: %v\n", id, err)
			report.Failed++
			report.FailedMessageIDs = append(report.FailedMessageIDs, id)
			continue
		}

		prior, err := e.store.LookupHash(ctx, mailboxID, record.MessageID)
		if err != nil {
			return indexed, err
		}
		if prior == record.ContentHash {
			report.SkippedUnchanged++
			continue
		}

		report.Fetched++

		chunks, vectors, err := e.pipeline.Process(ctx, record)
		if err != nil {
			if ctx.Err() != nil {
				return indexed, ctx.Err()
			}
			fmt.Printf("[SYNC] Failed to embed message %s: %v\n", id, err)
			report.Failed++
			report.FailedMessageIDs = append(report.FailedMessageIDs, id)
			continue
		}
		if len(chunks) == 0 {
			continue
		}

		if err := e.repo.Upsert(ctx, chunks, vectors); err != nil {
			return indexed, fmt.Errorf("failed to upsert message %s: %w", id, err)
		}

		indexed = append(indexed, models.IngestedMessage{
			MailboxID:   mailboxID,
			MessageID:   record.MessageID,
			ContentHash: record.ContentHash,
			ChunkCount:  len(chunks),
		})
		report.Indexed++
	}

	return indexed, nil
}
