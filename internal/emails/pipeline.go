package emails

import (
	"context"
	"fmt"
	"strings"

	"mailchat/internal/config"
	"mailchat/internal/models"
	"mailchat/internal/retry"
)

const defaultEmbedBatchSize = 50

// Embedder generates embedding vectors for batches of text
type Embedder interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline chunks normalized emails and embeds every chunk. Embedding
// batches go through the retry policy so rate limits don't fail a message.
type Pipeline struct {
	embedder  Embedder
	policy    retry.Policy
	chunkSize int
	overlap   int
	batchSize int
}

// NewPipeline builds a pipeline from configuration
func NewPipeline(cfg *config.Config, embedder Embedder) *Pipeline {
	return &Pipeline{
		embedder: embedder,
		policy: retry.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.ChunkOverlap,
		batchSize: cfg.EmbedBatchSize,
	}
}

// Process chunks the record and embeds each chunk. The returned vectors
// align one-to-one with the returned chunks.
func (p *Pipeline) Process(ctx context.Context, record *models.EmailRecord) ([]models.Chunk, [][]float32, error) {
	chunks := BuildChunks(record, p.chunkSize, p.overlap)
	if len(chunks) == 0 {
		return nil, nil, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = buildEmbedText(record, chunk)
	}

	batchSize := p.batchSize
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		var batch [][]float32
		err := p.policy.Do(ctx, "embed chunks", func() error {
			var embErr error
			batch, embErr = p.embedder.CreateEmbeddings(ctx, texts[start:end])
			return embErr
		})
		if err != nil {
			return nil, nil, err
		}
		if len(batch) != end-start {
			return nil, nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", end-start, len(batch))
		}

		vectors = append(vectors, batch...)
	}

	return chunks, vectors, nil
}

// buildEmbedText prefixes chunk text with the email's headers so the vector
// captures who wrote it and what it was about
func buildEmbedText(record *models.EmailRecord, chunk models.Chunk) string {
	var parts []string

	parts = append(parts, "Subject: "+record.Subject)
	parts = append(parts, "From: "+record.From)
	if record.Date.Unix() > 0 {
		parts = append(parts, "Date: "+record.Date.Format("2006-01-02"))
	}
	parts = append(parts, "Message: "+chunk.Text)

	return strings.Join(parts, " | ")
}
