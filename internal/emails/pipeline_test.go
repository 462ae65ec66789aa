package emails

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailchat/internal/apperrors"
	"mailchat/internal/config"
	"mailchat/internal/models"
)

type fakeEmbedder struct {
	calls [][]string
	fails int
	err   error
	short bool
}

func (f *fakeEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.fails > 0 {
		f.fails--
		if f.err != nil {
			return nil, f.err
		}
		return nil, apperrors.TransientProvider("embeddings", errors.New("rate limited"))
	}

	count := len(texts)
	if f.short {
		count--
	}
	out := make([][]float32, count)
	for i := 0; i < count; i++ {
		out[i] = []float32{float32(len(texts[i])), 0.5}
	}
	return out, nil
}

func pipelineConfig() *config.Config {
	return &config.Config{
		ChunkSize:        40,
		ChunkOverlap:     5,
		EmbedBatchSize:   2,
		RetryMaxAttempts: 3,
		RetryBaseDelay:   time.Millisecond,
		RetryMaxDelay:    5 * time.Millisecond,
	}
}

func TestPipeline_Process_AlignsVectorsWithChunks(t *testing.T) {
	embedder := &fakeEmbedder{}
	pipeline := NewPipeline(pipelineConfig(), embedder)

	record := chunkRecord(strings.Repeat("x", 180))
	chunks, vectors, err := pipeline.Process(context.Background(), record)

	require.NoError(t, err)
	require.Len(t, chunks, 5)
	require.Len(t, vectors, 5)
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.NotEmpty(t, vectors[i])
	}
}

func TestPipeline_Process_BatchesRequests(t *testing.T) {
	embedder := &fakeEmbedder{}
	pipeline := NewPipeline(pipelineConfig(), embedder)

	_, _, err := pipeline.Process(context.Background(), chunkRecord(strings.Repeat("x", 180)))
	require.NoError(t, err)

	require.Len(t, embedder.calls, 3)
	assert.Len(t, embedder.calls[0], 2)
	assert.Len(t, embedder.calls[1], 2)
	assert.Len(t, embedder.calls[2], 1)
}

func TestPipeline_Process_EmbedTextCarriesHeaders(t *testing.T) {
	embedder := &fakeEmbedder{}
	pipeline := NewPipeline(pipelineConfig(), embedder)

	_, _, err := pipeline.Process(context.Background(), chunkRecord("A short body."))
	require.NoError(t, err)

	require.Len(t, embedder.calls, 1)
	text := embedder.calls[0][0]
	assert.Contains(t, text, "Subject: Quarterly report")
	assert.Contains(t, text, "From: alice@example.com")
	assert.Contains(t, text, "Date: 2024-03-01")
	assert.Contains(t, text, "Message: A short body.")
}

func TestPipeline_Process_RetriesTransientFailure(t *testing.T) {
	embedder := &fakeEmbedder{fails: 1}
	pipeline := NewPipeline(pipelineConfig(), embedder)

	chunks, vectors, err := pipeline.Process(context.Background(), chunkRecord("A short body."))

	require.NoError(t, err)
	assert.Len(t, chunks, 1)
	assert.Len(t, vectors, 1)
	assert.Len(t, embedder.calls, 2)
}

func TestPipeline_Process_PermanentFailureStopsImmediately(t *testing.T) {
	embedder := &fakeEmbedder{fails: 1, err: errors.New("invalid deployment")}
	pipeline := NewPipeline(pipelineConfig(), embedder)

	_, _, err := pipeline.Process(context.Background(), chunkRecord("A short body."))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid deployment")
	assert.Len(t, embedder.calls, 1)
}

func TestPipeline_Process_VectorCountMismatch(t *testing.T) {
	embedder := &fakeEmbedder{short: true}
	pipeline := NewPipeline(pipelineConfig(), embedder)

	_, _, err := pipeline.Process(context.Background(), chunkRecord("A short body."))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestPipeline_Process_EmptyRecord(t *testing.T) {
	embedder := &fakeEmbedder{}
	pipeline := NewPipeline(pipelineConfig(), embedder)

	record := chunkRecord("")
	record.Subject = ""
	chunks, vectors, err := pipeline.Process(context.Background(), record)

	require.NoError(t, err)
	assert.Nil(t, chunks)
	assert.Nil(t, vectors)
	assert.Empty(t, embedder.calls)
}

func TestPipeline_Process_Deterministic(t *testing.T) {
	record := chunkRecord(strings.Repeat("monthly statements arrive on the first ", 20))

	first, _, err := NewPipeline(pipelineConfig(), &fakeEmbedder{}).Process(context.Background(), record)
	require.NoError(t, err)
	second, _, err := NewPipeline(pipelineConfig(), &fakeEmbedder{}).Process(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
