package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/snapmatch-ai/snapmatch/internal/domain"
	domingest "github.com/snapmatch-ai/snapmatch/internal/domain/ingest"
	domrec "github.com/snapmatch-ai/snapmatch/internal/domain/record"
	"github.com/snapmatch-ai/snapmatch/internal/metrics"
)

const defaultWorkers = 4

// Service drives uploaded files through blob write → describe → embed → persist.
// Items of a batch are processed concurrently; outcomes are reported at the
// input index regardless of completion order.
type Service struct {
	repo      Repository
	blobs     BlobStore
	describer Describer
	embedder  Embedder
	workers   int
	logger    *zap.Logger
}

// New creates an ingestion service.
func New(
	repo Repository, blobs BlobStore,
	describer Describer, embedder Embedder,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:      repo,
		blobs:     blobs,
		describer: describer,
		embedder:  embedder,
		workers:   defaultWorkers,
		logger:    logger,
	}
}

// WithWorkers configures the worker pool size.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

// job is one index-tagged batch item for a worker.
type job struct {
	index int
	file  File
}

// abortState carries a batch-fatal provider error to not-yet-started items.
// Only the first error wins.
type abortState struct {
	mu  sync.Mutex
	err error
}

func (a *abortState) set(err error) {
	a.mu.Lock()
	if a.err == nil {
		a.err = err
	}
	a.mu.Unlock()
}

func (a *abortState) get() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Ingest processes a batch of files and returns one outcome per file, in
// input order. Per-item failures never abort sibling items; only an empty
// batch fails the whole call.
func (s *Service) Ingest(ctx context.Context, files []File) ([]domingest.Outcome, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("ingest batch: %w", domain.ErrEmptyBatch)
	}

	metrics.IngestBatchSize.Observe(float64(len(files)))

	results := make([]domingest.Outcome, len(files))
	workers := s.workers
	if workers > len(files) {
		workers = len(files)
	}

	jobs := make(chan job)
	var abort abortState
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.index] = s.processOne(ctx, &abort, j)
			}
		}()
	}

feed:
	for i, f := range files {
		select {
		case jobs <- job{index: i, file: f}:
		case <-ctx.Done():
			// Undelivered items get a cancelled outcome at their index.
			for k := i; k < len(files); k++ {
				results[k] = domingest.NewFailure(k, domingest.ReasonCancelled, ctx.Err())
			}
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	// A quota or rate-limit abort with nothing ingested fails the whole
	// call; partial success still reports per-item outcomes.
	if err := abort.get(); err != nil && !anySucceeded(results) {
		return nil, fmt.Errorf("ingest batch: %w", err)
	}

	for _, o := range results {
		metrics.IngestOutcomesTotal.WithLabelValues(
			string(o.Status()), string(o.Reason()),
		).Inc()
	}

	return results, nil
}

// Delete removes an ingested record. The blob stays; descriptions and
// embeddings are only ever derived from it, so a re-ingest is always possible.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	s.logger.Debug("Record deleted", zap.String("id", id))
	return nil
}

// processOne runs the four pipeline steps for a single file, strictly in
// order: each step depends on the previous step's output.
func (s *Service) processOne(ctx context.Context, abort *abortState, j job) domingest.Outcome {
	if err := ctx.Err(); err != nil {
		return domingest.NewFailure(j.index, domingest.ReasonCancelled, err)
	}
	if err := abort.get(); err != nil {
		return domingest.NewFailure(j.index, domingest.ReasonCancelled, err)
	}

	url, err := s.blobs.Write(ctx, j.file.Name, j.file.Data)
	if err != nil {
		s.logger.Error("Blob write failed",
			zap.String("file", j.file.Name),
			zap.Error(err),
		)
		return domingest.NewFailure(j.index, domingest.ReasonBlobWriteFailed, err)
	}

	desc, err := s.describer.Describe(ctx, url)
	if err != nil {
		s.noteBatchFatal(abort, err)
		s.logger.Error("Image description failed",
			zap.String("file", j.file.Name),
			zap.String("url", url),
			zap.Error(err),
		)
		return domingest.NewFailure(j.index, domingest.ReasonDescriptionUnavailable, err)
	}

	emb, err := s.embedder.Embed(ctx, desc.Description)
	if err != nil {
		s.noteBatchFatal(abort, err)
		s.logger.Error("Description embedding failed",
			zap.String("file", j.file.Name),
			zap.Error(err),
		)
		return domingest.NewFailure(j.index, domingest.ReasonEmbeddingUnavailable, err)
	}

	rec, err := domrec.New(url, desc.Description, emb.Embedding)
	if err != nil {
		return domingest.NewFailure(j.index, domingest.ReasonPersistFailed, err)
	}

	stored, err := s.repo.Insert(ctx, rec)
	if err != nil {
		s.logger.Error("Record insert failed",
			zap.String("file", j.file.Name),
			zap.String("url", url),
			zap.Error(err),
		)
		return domingest.NewFailure(j.index, domingest.ReasonPersistFailed,
			fmt.Errorf("%w: %v", domain.ErrPersistFailed, err))
	}

	s.logger.Debug("Image ingested",
		zap.String("id", stored.ID()),
		zap.String("url", url),
		zap.Int("description_len", len(desc.Description)),
	)

	return domingest.NewSuccess(j.index, url, desc.Description)
}

func anySucceeded(results []domingest.Outcome) bool {
	for _, o := range results {
		if o.OK() {
			return true
		}
	}
	return false
}

// noteBatchFatal aborts the rest of the batch on quota or rate-limit errors:
// remaining provider calls would only burn through the same limit.
func (s *Service) noteBatchFatal(abort *abortState, err error) {
	if errors.Is(err, domain.ErrQuotaExceeded) || errors.Is(err, domain.ErrRateLimited) {
		abort.set(err)
	}
}
