package vecstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"mailchat/internal/apperrors"
	"mailchat/internal/config"
	"mailchat/internal/models"
)

// QdrantStore backs the index with a Qdrant collection. Point ids are
// derived deterministically from chunk ids, so re-indexing a message
// overwrites its points instead of duplicating them.
type QdrantStore struct {
	client     *qdrant.Client
	collection string

	mu    sync.Mutex
	ready bool
}

// NewQdrant connects to the Qdrant instance from configuration. The
// collection itself is created lazily on the first write, once the
// embedding dimension is known.
func NewQdrant(cfg *config.Config) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.QdrantAPIKey,
		UseTLS: cfg.QdrantUseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{
		client:     client,
		collection: cfg.VectorCollection,
	}, nil
}

// EnsureCollection creates the collection and its payload indexes if they
// do not exist yet
func (s *QdrantStore) EnsureCollection(ctx context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return apperrors.RepositoryUnavailable(err)
	}

	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return apperrors.RepositoryUnavailable(err)
		}

		indexes := []struct {
			field string
			kind  qdrant.FieldType
		}{
			{"message_id", qdrant.FieldType_FieldTypeKeyword},
			{"sender", qdrant.FieldType_FieldTypeText},
			{"labels", qdrant.FieldType_FieldTypeKeyword},
			{"date", qdrant.FieldType_FieldTypeInteger},
		}
		for _, idx := range indexes {
			_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: s.collection,
				FieldName:      idx.field,
				FieldType:      idx.kind.Enum(),
				Wait:           qdrant.PtrOf(true),
			})
			if err != nil {
				return apperrors.RepositoryUnavailable(err)
			}
		}
	}

	s.ready = true
	return nil
}

// Upsert indexes chunks with their vectors, replacing previous points of
// the same messages
func (s *QdrantStore) Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	if err := s.EnsureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	// Drop every existing point of the affected messages first so a
	// message that shrank does not keep stale trailing chunks
	if err := s.DeleteByMessageID(ctx, uniqueMessageIDs(chunks)); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		labels := make([]interface{}, len(chunk.Labels))
		for j, label := range chunk.Labels {
			labels[j] = label
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(chunk.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id":   chunk.ID,
				"message_id": chunk.MessageID,
				"thread_id":  chunk.ThreadID,
				"ordinal":    int64(chunk.Ordinal),
				"text":       chunk.Text,
				"subject":    chunk.Subject,
				"sender":     chunk.From,
				"recipient":  chunk.To,
				"date":       chunk.Date,
				"labels":     labels,
			}),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return apperrors.RepositoryUnavailable(err)
	}

	return nil
}

// DeleteByMessageID removes every chunk of the given messages
func (s *QdrantStore) DeleteByMessageID(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeywords("message_id", messageIDs...),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return apperrors.RepositoryUnavailable(err)
	}

	return nil
}

// Query runs a filtered similarity search and returns the top k chunks
func (s *QdrantStore) Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]models.SearchResult, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return nil, apperrors.RepositoryUnavailable(err)
	}
	if !exists {
		return nil, nil
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         buildQdrantFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
		Limit:          qdrant.PtrOf(uint64(k)),
	})
	if err != nil {
		return nil, apperrors.RepositoryUnavailable(err)
	}

	results := make([]models.SearchResult, 0, len(points))
	for _, point := range points {
		results = append(results, models.SearchResult{
			Chunk: chunkFromPayload(point.Payload),
			Score: float64(point.Score),
		})
	}

	// Qdrant already ranks by score; re-sorting applies the same date and
	// id tie-breaks as the SQLite backend
	sortByScore(results)
	return results, nil
}

// Count returns the number of indexed points
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return 0, apperrors.RepositoryUnavailable(err)
	}
	if !exists {
		return 0, nil
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, apperrors.RepositoryUnavailable(err)
	}

	return int(count), nil
}

// HealthCheck verifies the Qdrant instance answers
func (s *QdrantStore) HealthCheck(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return apperrors.RepositoryUnavailable(err)
	}
	return nil
}

// Close closes the underlying gRPC connection
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// pointID converts a chunk id to a stable UUID, which Qdrant requires as
// point id
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func buildQdrantFilter(filter *Filter) *qdrant.Filter {
	if filter.IsZero() {
		return nil
	}

	var must []*qdrant.Condition
	if filter.From != "" {
		must = append(must, qdrant.NewMatchText("sender", filter.From))
	}
	for _, label := range filter.Labels {
		must = append(must, qdrant.NewMatch("labels", label))
	}
	if filter.DateFrom > 0 || filter.DateTo > 0 {
		dateRange := &qdrant.Range{}
		if filter.DateFrom > 0 {
			dateRange.Gte = qdrant.PtrOf(float64(filter.DateFrom))
		}
		if filter.DateTo > 0 {
			dateRange.Lte = qdrant.PtrOf(float64(filter.DateTo))
		}
		must = append(must, qdrant.NewRange("date", dateRange))
	}

	return &qdrant.Filter{Must: must}
}

func chunkFromPayload(payload map[string]*qdrant.Value) models.Chunk {
	chunk := models.Chunk{
		ID:        payload["chunk_id"].GetStringValue(),
		MessageID: payload["message_id"].GetStringValue(),
		ThreadID:  payload["thread_id"].GetStringValue(),
		Ordinal:   int(payload["ordinal"].GetIntegerValue()),
		Text:      payload["text"].GetStringValue(),
		Subject:   payload["subject"].GetStringValue(),
		From:      payload["sender"].GetStringValue(),
		To:        payload["recipient"].GetStringValue(),
		Date:      payload["date"].GetIntegerValue(),
	}

	if list := payload["labels"].GetListValue(); list != nil {
		for _, value := range list.GetValues() {
			if label := value.GetStringValue(); label != "" {
				chunk.Labels = append(chunk.Labels, label)
			}
		}
	}

	return chunk
}
