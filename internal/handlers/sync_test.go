package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"mailchat/internal/analytics"
	"mailchat/internal/apperrors"
	"mailchat/internal/config"
	"mailchat/internal/database"
	"mailchat/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	report     *models.SyncReport
	err        error
	checkpoint *models.Checkpoint
	statusErr  error
	resetErr   error
	running    bool

	lastMailbox string
	lastQuery   string
	lastMax     int
	resetCalled bool
}

func (s *stubEngine) Sync(ctx context.Context, mailboxID, query string, max int) (*models.SyncReport, error) {
	s.lastMailbox, s.lastQuery, s.lastMax = mailboxID, query, max
	if s.err != nil {
		return s.report, s.err
	}
	return s.report, nil
}

func (s *stubEngine) Status(ctx context.Context, mailboxID string) (*models.Checkpoint, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return s.checkpoint, nil
}

func (s *stubEngine) ResetCheckpoint(ctx context.Context, mailboxID string) error {
	s.resetCalled = true
	return s.resetErr
}

func (s *stubEngine) IsRunning(mailboxID string) bool { return s.running }

func (s *stubEngine) LastReport(mailboxID string) *models.SyncReport { return s.report }

func syncTestConfig() *config.Config {
	return &config.Config{MailboxID: "me@example.com"}
}

func newTestAnalytics(t *testing.T) *analytics.Service {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	writeClient, err := database.NewWriteClient(db)
	require.NoError(t, err)

	service, err := analytics.NewService(writeClient)
	require.NoError(t, err)
	return service
}

func TestSyncHandler(t *testing.T) {
	t.Run("runs a sync and returns the report", func(t *testing.T) {
		engine := &stubEngine{
			report: &models.SyncReport{
				RunID:     "run-1",
				MailboxID: "me@example.com",
				Mode:      models.SyncModeBackfill,
				Fetched:   4,
				Indexed:   3,
				Failed:    1,
			},
		}

		e := echo.New()
		c, rec := postJSON(e, "/api/sync", `{}`)

		require.NoError(t, SyncHandler(syncTestConfig(), engine, nil)(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var report models.SyncReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, 4, report.Fetched)
		assert.Equal(t, 3, report.Indexed)
		assert.Equal(t, 1, report.Failed)

		// Mailbox defaulted from config
		assert.Equal(t, "me@example.com", engine.lastMailbox)
	})

	t.Run("passes overrides through", func(t *testing.T) {
		engine := &stubEngine{report: &models.SyncReport{}}

		e := echo.New()
		c, rec := postJSON(e, "/api/sync", `{"mailbox_id":"other@example.com","query":"label:work","limit":25}`)

		require.NoError(t, SyncHandler(syncTestConfig(), engine, nil)(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "other@example.com", engine.lastMailbox)
		assert.Equal(t, "label:work", engine.lastQuery)
		assert.Equal(t, 25, engine.lastMax)
	})

	t.Run("rejects a concurrent run with 409", func(t *testing.T) {
		engine := &stubEngine{err: apperrors.SyncAlreadyRunning("me@example.com")}

		e := echo.New()
		c, rec := postJSON(e, "/api/sync", `{}`)

		require.NoError(t, SyncHandler(syncTestConfig(), engine, nil)(c))
		assert.Equal(t, http.StatusConflict, rec.Code)

		var response models.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, "sync_already_running", response.Code)
	})

	t.Run("requires a mailbox when none is configured", func(t *testing.T) {
		engine := &stubEngine{report: &models.SyncReport{}}

		e := echo.New()
		c, rec := postJSON(e, "/api/sync", `{}`)

		require.NoError(t, SyncHandler(&config.Config{}, engine, nil)(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, engine.lastMailbox)
	})

	t.Run("tracks the run in analytics", func(t *testing.T) {
		engine := &stubEngine{
			report: &models.SyncReport{
				RunID:     "run-2",
				MailboxID: "me@example.com",
				Mode:      models.SyncModeDelta,
				Fetched:   5,
				Indexed:   5,
			},
		}
		analyticsService := newTestAnalytics(t)

		e := echo.New()
		c, rec := postJSON(e, "/api/sync", `{}`)

		require.NoError(t, SyncHandler(syncTestConfig(), engine, analyticsService)(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		summary, err := analyticsService.GetSummary(context.Background(), "today")
		require.NoError(t, err)
		assert.Equal(t, 1, summary.SyncRuns)
		assert.Equal(t, 5, summary.MessagesIndexed)
	})
}

func TestSyncStatusHandler(t *testing.T) {
	t.Run("reports checkpoint and run state", func(t *testing.T) {
		engine := &stubEngine{
			running: true,
			checkpoint: &models.Checkpoint{
				MailboxID: "me@example.com",
				Cursor:    "hist-4711",
				Status:    models.SyncStatusSyncing,
			},
			report: &models.SyncReport{RunID: "run-3", Fetched: 2},
		}

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/sync/status", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		require.NoError(t, SyncStatusHandler(syncTestConfig(), engine)(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var response models.SyncStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, "me@example.com", response.MailboxID)
		assert.True(t, response.Running)
		require.NotNil(t, response.Checkpoint)
		assert.Equal(t, "hist-4711", response.Checkpoint.Cursor)
		require.NotNil(t, response.LastReport)
		assert.Equal(t, "run-3", response.LastReport.RunID)
	})

	t.Run("honors the mailbox_id query parameter", func(t *testing.T) {
		engine := &stubEngine{checkpoint: &models.Checkpoint{MailboxID: "other@example.com"}}

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/sync/status?mailbox_id=other@example.com", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		require.NoError(t, SyncStatusHandler(syncTestConfig(), engine)(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var response models.SyncStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, "other@example.com", response.MailboxID)
		assert.False(t, response.Running)
	})
}

func TestResetCheckpointHandler(t *testing.T) {
	t.Run("resets the checkpoint", func(t *testing.T) {
		engine := &stubEngine{}

		e := echo.New()
		c, rec := postJSON(e, "/api/admin/reset-checkpoint", `{}`)

		require.NoError(t, ResetCheckpointHandler(syncTestConfig(), engine)(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, engine.resetCalled)

		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, true, response["success"])
		assert.Equal(t, "me@example.com", response["mailbox_id"])
	})

	t.Run("conflicts while a run is in flight", func(t *testing.T) {
		engine := &stubEngine{resetErr: apperrors.SyncAlreadyRunning("me@example.com")}

		e := echo.New()
		c, rec := postJSON(e, "/api/admin/reset-checkpoint", `{}`)

		require.NoError(t, ResetCheckpointHandler(syncTestConfig(), engine)(c))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}
