package main

import (
	"context"
	"time"

	"mailchat/internal/analytics"
	"mailchat/internal/config"
	"mailchat/internal/database"
	"mailchat/internal/openai"
	"mailchat/internal/vecstore"
)

// defaultEmbeddingDim matches text-embedding-3-small, used when the
// embedding model cannot be probed
const defaultEmbeddingDim = 1536

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger()

	// Initialize database connection
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer func() { _ = db.Close() }()

	// The constructors create their tables if they don't exist
	logger.Info().Msg("Creating sync state tables...")
	if _, err := database.NewCheckpointStore(db); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create sync state tables")
	}

	logger.Info().Msg("Creating conversation tables...")
	if _, err := database.NewConversationService(db); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create conversation tables")
	}

	logger.Info().Msg("Creating analytics tables...")
	writeClient, err := database.NewWriteClient(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create write client")
	}
	if _, err := analytics.NewService(writeClient); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create analytics tables")
	}

	repo, err := vecstore.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open vector repository")
	}
	defer func() { _ = repo.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// The SQLite backend creates its tables on open; Qdrant needs the
	// collection created with the embedding dimension
	if qdrantStore, ok := repo.(*vecstore.QdrantStore); ok {
		dim := defaultEmbeddingDim
		if llm, llmErr := openai.NewClient(cfg); llmErr == nil {
			if vecs, probeErr := llm.CreateEmbeddings(ctx, []string{"dimension probe"}); probeErr == nil && len(vecs) == 1 {
				dim = len(vecs[0])
			} else {
				logger.Warn().Msg("Could not probe the embedding model, using the default dimension")
			}
		}

		logger.Info().Int("dim", dim).Str("collection", cfg.VectorCollection).Msg("Creating vector collection...")
		if err := qdrantStore.EnsureCollection(ctx, dim); err != nil {
			logger.Fatal().Err(err).Msg("Failed to create vector collection")
		}
	}

	if err := repo.HealthCheck(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Vector repository health check failed")
	}

	logger.Info().Str("backend", cfg.VectorBackend).Msg("Index initialized")
}
