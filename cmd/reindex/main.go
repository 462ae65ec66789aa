package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

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

// deleteBatchSize caps how many message ids one vector delete carries
const deleteBatchSize = 500

func main() {
	// Parse command line flags
	mailbox := flag.String("mailbox", "", "Mailbox to reindex (defaults to GMAIL_MAILBOX)")
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
		fmt.Println("  Rebuild the configured mailbox:  reindex")
		fmt.Println("  Rebuild another mailbox:         reindex -mailbox me@example.com")
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

	ids, err := checkpoints.ListIngestedIDs(ctx, mailboxID)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to list ingested messages")
	}

	logger.Info().Str("mailbox", mailboxID).Int("messages", len(ids)).Msg("Dropping indexed chunks...")
	for i := 0; i < len(ids); i += deleteBatchSize {
		end := i + deleteBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := repo.DeleteByMessageID(ctx, ids[i:end]); err != nil {
			logger.Fatal().Err(err).Msg("Failed to drop indexed chunks")
		}
	}

	// Dropping the ledger too means the walk re-fetches every message
	// instead of hash-skipping it
	if err := checkpoints.PurgeMailbox(ctx, mailboxID); err != nil {
		logger.Fatal().Err(err).Msg("Failed to purge sync state")
	}

	logger.Info().Str("mailbox", mailboxID).Msg("Walking the full mailbox...")
	start := time.Now()
	report, runErr := engine.Sync(ctx, mailboxID, "", 0)

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
		logger.Error().Err(runErr).Msg("Reindex aborted")
		os.Exit(1)
	}

	logger.Info().
		Int("fetched", report.Fetched).
		Int("indexed", report.Indexed).
		Int("failed", report.Failed).
		Dur("took", time.Since(start)).
		Msg("Reindex finished")
}
