package match

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/snapmatch-ai/snapmatch/internal/domain"
	domrec "github.com/snapmatch-ai/snapmatch/internal/domain/record"
)

type mockRepo struct {
	searchFn func(ctx context.Context, vector []float32) (domrec.Record, float64, bool, error)
	calls    atomic.Int32
}

func (m *mockRepo) SearchNearest(
	ctx context.Context, vector []float32,
) (domrec.Record, float64, bool, error) {
	m.calls.Add(1)
	if m.searchFn != nil {
		return m.searchFn(ctx, vector)
	}
	rec := domrec.Reconstruct(
		"rec-1", "https://blob.test/img.png", "a red bicycle",
		[]float32{0.1, 0.2, 0.3, 0.4}, time.Unix(1700000000, 0).UTC(),
	)
	return rec, 0.92, true, nil
}

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) (domain.EmbeddingResult, error)
	calls   atomic.Int32
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls.Add(1)
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3, 0.4}, TotalTokens: 3}, nil
}

func newTestService() (*Service, *mockRepo, *mockEmbedder) {
	repo := &mockRepo{}
	emb := &mockEmbedder{}
	return New(repo, emb, zap.NewNop()), repo, emb
}
