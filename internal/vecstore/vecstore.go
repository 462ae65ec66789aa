// Package vecstore stores email chunk embeddings and answers similarity
// queries. Two backends share one interface: a zero-infrastructure SQLite
// index for single-node deployments and a Qdrant collection for anything
// bigger. Writes replace whole messages, so replaying a sync page is safe.
package vecstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"mailchat/internal/config"
	"mailchat/internal/models"
)

// Backend names accepted by VECTOR_BACKEND
const (
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// Repository is the vector index the sync engine writes and the retrieval
// chain queries
type Repository interface {
	// Upsert indexes chunks with their vectors. All chunks of a message
	// replace that message's previous chunks in one operation.
	Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error

	// DeleteByMessageID removes every chunk of the given messages
	DeleteByMessageID(ctx context.Context, messageIDs []string) error

	// Query returns the k most similar chunks, best first. A nil filter
	// searches the whole index.
	Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]models.SearchResult, error)

	// Count returns the number of indexed chunks
	Count(ctx context.Context) (int, error)

	// HealthCheck verifies the backend is reachable
	HealthCheck(ctx context.Context) error

	// Close releases the backend connection
	Close() error
}

// Filter narrows a query by chunk metadata. Zero values mean "no
// constraint"; set fields combine with AND.
type Filter struct {
	From     string   // substring of the sender address or display name
	Labels   []string // exact labels, all required, e.g. INBOX
	DateFrom int64    // unix seconds, inclusive
	DateTo   int64    // unix seconds, inclusive
}

// IsZero reports whether the filter constrains anything
func (f *Filter) IsZero() bool {
	return f == nil || (f.From == "" && len(f.Labels) == 0 && f.DateFrom == 0 && f.DateTo == 0)
}

// New builds the repository selected by VECTOR_BACKEND
func New(cfg *config.Config) (Repository, error) {
	switch cfg.VectorBackend {
	case BackendQdrant:
		return NewQdrant(cfg)
	case "", BackendSQLite:
		return NewSQLite(cfg.VectorDBPath)
	default:
		return nil, fmt.Errorf("unknown vector backend %q (expected %q or %q)",
			cfg.VectorBackend, BackendSQLite, BackendQdrant)
	}
}

// cosineSimilarity calculates cosine similarity between two vectors
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortByScore orders results best-first. Ties go to the newer email, then
// to the lower chunk id, so rankings are stable across runs.
func sortByScore(results []models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.Date != results[j].Chunk.Date {
			return results[i].Chunk.Date > results[j].Chunk.Date
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}

func toFloat64(vector []float32) []float64 {
	out := make([]float64, len(vector))
	for i, v := range vector {
		out[i] = float64(v)
	}
	return out
}

func uniqueMessageIDs(chunks []models.Chunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	var ids []string
	for _, chunk := range chunks {
		if _, ok := seen[chunk.MessageID]; ok {
			continue
		}
		seen[chunk.MessageID] = struct{}{}
		ids = append(ids, chunk.MessageID)
	}
	return ids
}
