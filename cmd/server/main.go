package main

import (
	"context"

	"mailchat/internal/analytics"
	"mailchat/internal/chain"
	"mailchat/internal/config"
	"mailchat/internal/database"
	"mailchat/internal/emails"
	"mailchat/internal/gmail"
	"mailchat/internal/notify"
	"mailchat/internal/openai"
	"mailchat/internal/server"
	"mailchat/internal/syncer"
	"mailchat/internal/vecstore"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger()

	opts := server.Options{}

	// Initialize database connection. A failure degrades the affected
	// routes instead of refusing to start.
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Warn().Err(err).Msg("Database connection failed")
		logger.Info().Msg("Starting server without database connection")
	} else {
		logger.Info().Msg("Database connection established successfully")
		opts.DB = db
	}

	var analyticsService *analytics.Service
	var conversations *database.ConversationService
	var checkpoints *database.CheckpointStore
	if db != nil {
		writeClient, err := database.NewWriteClient(db)
		if err != nil {
			logger.Warn().Err(err).Msg("Write client unavailable, analytics disabled")
		} else if analyticsService, err = analytics.NewService(writeClient); err != nil {
			logger.Warn().Err(err).Msg("Analytics disabled")
		}

		if conversations, err = database.NewConversationService(db); err != nil {
			logger.Warn().Err(err).Msg("Conversation store disabled")
		}

		if checkpoints, err = database.NewCheckpointStore(db); err != nil {
			logger.Warn().Err(err).Msg("Checkpoint store disabled, sync endpoints degraded")
		}
	}
	opts.Analytics = analyticsService
	opts.Conversations = conversations

	repo, err := vecstore.New(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("Vector repository unavailable")
	} else {
		logger.Info().Str("backend", cfg.VectorBackend).Msg("Vector repository ready")
		opts.Repo = repo
	}

	llm, err := openai.NewClient(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("OpenAI client unavailable, ask endpoint disabled")
	}

	if llm != nil && repo != nil {
		mailChain := chain.NewChain(cfg, llm, repo, conversations)
		if analyticsService != nil {
			mailChain.SetTracker(analyticsService)
		}
		opts.Chain = mailChain
	}

	if llm != nil && repo != nil && checkpoints != nil {
		// The context is captured by the OAuth token source, so it must
		// outlive construction
		provider, err := gmail.NewClient(context.Background(), cfg)
		if err != nil {
			logger.Warn().Err(err).Msg("Gmail client unavailable, sync endpoints disabled")
		} else {
			pipeline := emails.NewPipeline(cfg, llm)

			var alerter syncer.Alerter
			if notifier := notify.NewService(cfg, analyticsService); notifier.Enabled() {
				alerter = notifier
			}

			opts.Engine = syncer.NewEngine(cfg, provider, checkpoints, pipeline, repo, alerter)
			logger.Info().Str("mailbox", cfg.MailboxID).Msg("Sync engine ready")
		}
	}

	// Create and initialize server
	srv := server.New(cfg, logger, opts)
	srv.Initialize()

	// Start server
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed to start")
	}
}
