package ingest

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/snapmatch-ai/snapmatch/internal/domain"
	domrec "github.com/snapmatch-ai/snapmatch/internal/domain/record"
)

// mockRepo is a func-field fake for the Repository dependency.
// Counters are atomic: workers call it concurrently.
type mockRepo struct {
	insertFn func(ctx context.Context, rec domrec.Record) (domrec.Record, error)
	deleteFn func(ctx context.Context, id string) error
	inserts  atomic.Int32

	mu       sync.Mutex
	inserted []domrec.Record
}

func (m *mockRepo) Insert(ctx context.Context, rec domrec.Record) (domrec.Record, error) {
	m.inserts.Add(1)
	if m.insertFn != nil {
		return m.insertFn(ctx, rec)
	}
	stored := rec.WithID("rec-" + rec.URL())
	m.mu.Lock()
	m.inserted = append(m.inserted, stored)
	m.mu.Unlock()
	return stored, nil
}

func (m *mockRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockBlobs struct {
	writeFn func(ctx context.Context, name string, data []byte) (string, error)
	writes  atomic.Int32
}

func (m *mockBlobs) Write(ctx context.Context, name string, data []byte) (string, error) {
	m.writes.Add(1)
	if m.writeFn != nil {
		return m.writeFn(ctx, name, data)
	}
	return "https://blob.test/" + name, nil
}

type mockDescriber struct {
	describeFn func(ctx context.Context, imageURL string) (domain.DescriptionResult, error)
	calls      atomic.Int32
}

func (m *mockDescriber) Describe(ctx context.Context, imageURL string) (domain.DescriptionResult, error) {
	m.calls.Add(1)
	if m.describeFn != nil {
		return m.describeFn(ctx, imageURL)
	}
	return domain.DescriptionResult{Description: "description of " + imageURL, TotalTokens: 50}, nil
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
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3, 0.4}, TotalTokens: 7}, nil
}

type testMocks struct {
	repo      *mockRepo
	blobs     *mockBlobs
	describer *mockDescriber
	embedder  *mockEmbedder
}

func newTestService() (*Service, *testMocks) {
	m := &testMocks{
		repo:      &mockRepo{},
		blobs:     &mockBlobs{},
		describer: &mockDescriber{},
		embedder:  &mockEmbedder{},
	}
	svc := New(m.repo, m.blobs, m.describer, m.embedder, zap.NewNop())
	return svc, m
}

func testFiles(n int) []File {
	files := make([]File, n)
	for i := range files {
		files[i] = File{Name: "img-" + string(rune('a'+i)) + ".png", Data: []byte{0x89, byte(i)}}
	}
	return files
}
