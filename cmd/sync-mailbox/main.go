package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"mailchat/internal/analytics"
	"mailchat/internal/config"
	"mailchat/internal/database"
	"mailchat/internal/emails"
	"mailchat/internal/gmail"
	"mailchat/internal/notify"
	"mailchat/internal/openai"
	"mailchat/internal/syncer"
	"mailchat/internal/vecstore"
)

func main() {
	// Parse command line flags
	mailbox := flag.String("mailbox", "", "Mailbox to sync (defaults to GMAIL_MAILBOX)")
	query := flag.String("query", "", "Gmail search filter for backfill walks")
	limit := flag.Int("limit", 0, "Cap on fetched messages (defaults to SYNC_MAX_MESSAGES)")
	reset := flag.Bool("reset", false, "Reset the checkpoint and walk the full mailbox")
	flag.Parse()

	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger()

	mailboxID := *mailbox
	if mailboxID == "" {
		mailboxID = cfg.MailboxID
	}
	if mailboxID == "" {
		fmt.Println("Usage:")
		fmt.Println("  Sync the configured mailbox:  sync-mailbox")
		fmt.Println("  Sync another mailbox:         sync-mailbox -mailbox me@example.com")
		fmt.Println("  Narrow the backfill:          sync-mailbox -query \"after:2024/01/01\"")
		fmt.Println("  Cap fetched messages:         sync-mailbox -limit 200")
		fmt.Println("  Full rescan:                  sync-mailbox -reset")
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer func() { _ = db.Close() }()

	checkpoints, err := database.NewCheckpointStore(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create checkpoint store")
	}

	repo, err := vecstore.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open vector repository")
	}
	defer func() { _ = repo.Close() }()

	llm, err := openai.NewClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create OpenAI client")
	}

	ctx := context.Background()

	provider, err := gmail.NewClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Gmail client")
	}

	var analyticsService *analytics.Service
	writeClient, err := database.NewWriteClient(db)
	if err == nil {
		analyticsService, err = analytics.NewService(writeClient)
		if err != nil {
			logger.Warn().Err(err).Msg("Analytics disabled")
		}
	}

	var alerter syncer.Alerter
	if notifier := notify.NewService(cfg, analyticsService); notifier.Enabled() {
		alerter = notifier
	}

	pipeline := emails.NewPipeline(cfg, llm)
	engine := syncer.NewEngine(cfg, provider, checkpoints, pipeline, repo, alerter)

	if *reset {
		logger.Info().Str("mailbox", mailboxID).Msg("Resetting checkpoint, this walk rescans the full mailbox")
		if err := engine.ResetCheckpoint(ctx, mailboxID); err != nil {
			logger.Fatal().Err(err).Msg("Failed to reset checkpoint")
		}
	}

	report, runErr := engine.Sync(ctx, mailboxID, *query, *limit)

	if analyticsService != nil && report != nil {
		if err := analyticsService.TrackSyncRun(ctx, report); err != nil {
			logger.Warn().Err(err).Msg("Failed to track sync run")
		}
	}

	// The report goes to stdout so Job logs carry the counters
	if report != nil {
		if out, err := json.MarshalIndent(report, "", "  "); err == nil {
			fmt.Println(string(out))
		}
	}

	if runErr != nil {
		logger.Error().Err(runErr).Msg("Sync run aborted")
		os.Exit(1)
	}

	logger.Info().
		Int("fetched", report.Fetched).
		Int("indexed", report.Indexed).
		Int("skipped", report.SkippedUnchanged).
		Int("failed", report.Failed).
		Msg("Sync run finished")
}
