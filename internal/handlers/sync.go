package handlers

import (
	"context"
	"fmt"
	"net/http"

	"mailchat/internal/analytics"
	"mailchat/internal/config"
	"mailchat/internal/models"

	"github.com/labstack/echo/v4"
)

// SyncRunner runs and inspects mailbox synchronization. *syncer.Engine
// implements it.
type SyncRunner interface {
	Sync(ctx context.Context, mailboxID, query string, max int) (*models.SyncReport, error)
	Status(ctx context.Context, mailboxID string) (*models.Checkpoint, error)
	ResetCheckpoint(ctx context.Context, mailboxID string) error
	IsRunning(mailboxID string) bool
	LastReport(mailboxID string) *models.SyncReport
}

// SyncHandler triggers a synchronous mailbox sync run
// @Summary Sync a mailbox into the index
// @Description Run one sync pass (backfill or delta) and return its report. Rejected with 409 while another run for the same mailbox is in flight.
// @Tags sync
// @Accept json
// @Produce json
// @Param request body models.SyncRequest false "Sync options"
// @Success 200 {object} models.SyncReport
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/sync [post]
func SyncHandler(cfg *config.Config, engine SyncRunner, analyticsService *analytics.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		if engine == nil {
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
				Error: "Sync engine not available",
			})
		}

		var req models.SyncRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: fmt.Sprintf("Invalid request body: %v", err),
			})
		}

		mailboxID := req.MailboxID
		if mailboxID == "" {
			mailboxID = cfg.MailboxID
		}
		if mailboxID == "" {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: "mailbox_id is required (no default mailbox configured)",
			})
		}

		fmt.Printf("[SYNC_API] Triggering sync for mailbox %s\n", mailboxID)

		report, err := engine.Sync(c.Request().Context(), mailboxID, req.Query, req.Limit)

		// The report carries the counters reached even when the run aborted
		if analyticsService != nil && report != nil {
			if trackErr := analyticsService.TrackSyncRun(c.Request().Context(), report); trackErr != nil {
				fmt.Printf("[SYNC_API] Warning: failed to track sync run: %v\n", trackErr)
			}
		}

		if err != nil {
			fmt.Printf("[SYNC_API] ERROR: %v\n", err)
			return errorJSON(c, err)
		}

		return c.JSON(http.StatusOK, report)
	}
}

// SyncStatusHandler reports the checkpoint and run state for a mailbox
// @Summary Get sync status
// @Description Return the stored checkpoint, whether a run is in flight, and the report of the last run in this process
// @Tags sync
// @Produce json
// @Param mailbox_id query string false "Mailbox (defaults to the configured one)"
// @Success 200 {object} models.SyncStatusResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/sync/status [get]
func SyncStatusHandler(cfg *config.Config, engine SyncRunner) echo.HandlerFunc {
	return func(c echo.Context) error {
		if engine == nil {
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
				Error: "Sync engine not available",
			})
		}

		mailboxID := c.QueryParam("mailbox_id")
		if mailboxID == "" {
			mailboxID = cfg.MailboxID
		}
		if mailboxID == "" {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: "mailbox_id is required (no default mailbox configured)",
			})
		}

		checkpoint, err := engine.Status(c.Request().Context(), mailboxID)
		if err != nil {
			return errorJSON(c, err)
		}

		return c.JSON(http.StatusOK, models.SyncStatusResponse{
			MailboxID:  mailboxID,
			Running:    engine.IsRunning(mailboxID),
			Checkpoint: checkpoint,
			LastReport: engine.LastReport(mailboxID),
		})
	}
}

// ResetCheckpointHandler clears the sync cursor so the next run walks the
// full mailbox again
// @Summary Reset the sync checkpoint
// @Description Clear the stored cursor for a mailbox. The next sync run performs a full backfill.
// @Tags admin
// @Accept json
// @Produce json
// @Param request body models.SyncRequest false "Mailbox selector"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/admin/reset-checkpoint [post]
func ResetCheckpointHandler(cfg *config.Config, engine SyncRunner) echo.HandlerFunc {
	return func(c echo.Context) error {
		if engine == nil {
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
				Error: "Sync engine not available",
			})
		}

		var req models.SyncRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: fmt.Sprintf("Invalid request body: %v", err),
			})
		}

		mailboxID := req.MailboxID
		if mailboxID == "" {
			mailboxID = cfg.MailboxID
		}
		if mailboxID == "" {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: "mailbox_id is required (no default mailbox configured)",
			})
		}

		if err := engine.ResetCheckpoint(c.Request().Context(), mailboxID); err != nil {
			fmt.Printf("[SYNC_API] ERROR: Checkpoint reset failed: %v\n", err)
			return errorJSON(c, err)
		}

		fmt.Printf("[SYNC_API] Checkpoint reset for mailbox %s\n", mailboxID)

		return c.JSON(http.StatusOK, map[string]interface{}{
			"success":    true,
			"mailbox_id": mailboxID,
		})
	}
}
