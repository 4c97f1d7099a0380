package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/snapmatch-ai/snapmatch/internal/domain"
	dommatch "github.com/snapmatch-ai/snapmatch/internal/domain/match"
	"github.com/snapmatch-ai/snapmatch/internal/metrics"
)

const defaultWorkers = 4

// Service resolves free-text titles to their closest stored image.
// Titles of a batch are resolved concurrently and independently; one
// title's failure never affects its siblings.
type Service struct {
	repo     Repository
	embedder Embedder
	workers  int
	logger   *zap.Logger
}

// New creates a matching service.
func New(repo Repository, embedder Embedder, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		embedder: embedder,
		workers:  defaultWorkers,
		logger:   logger,
	}
}

// WithWorkers configures the worker pool size.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

type job struct {
	index int
	title string
}

// abortState carries a batch-fatal provider error to not-yet-started titles.
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

// Match embeds each title and runs a nearest-neighbor lookup, returning one
// result per non-blank title in the input's relative order. Blank titles are
// skipped after trimming; a batch with nothing left fails with ErrEmptyBatch
// before any external call.
func (s *Service) Match(ctx context.Context, titles []string) ([]dommatch.Result, error) {
	trimmed := make([]string, 0, len(titles))
	for _, t := range titles {
		t = strings.TrimSpace(t)
		if t != "" {
			trimmed = append(trimmed, t)
		}
	}
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("match batch: %w", domain.ErrEmptyBatch)
	}

	results := make([]dommatch.Result, len(trimmed))
	workers := s.workers
	if workers > len(trimmed) {
		workers = len(trimmed)
	}

	jobs := make(chan job)
	var abort abortState
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.index] = s.resolve(ctx, &abort, j)
			}
		}()
	}

feed:
	for i, t := range trimmed {
		select {
		case jobs <- job{index: i, title: t}:
		case <-ctx.Done():
			for k := i; k < len(trimmed); k++ {
				results[k] = dommatch.NewError(trimmed[k], ctx.Err())
			}
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	// A quota or rate-limit abort with no title resolved fails the whole
	// call; partial success still reports per-title results.
	if err := abort.get(); err != nil && !anyResolved(results) {
		return nil, fmt.Errorf("match batch: %w", err)
	}

	for _, r := range results {
		metrics.MatchResultsTotal.WithLabelValues(resultKind(r)).Inc()
	}

	return results, nil
}

// resolve runs embed → KNN for one title.
func (s *Service) resolve(ctx context.Context, abort *abortState, j job) dommatch.Result {
	if err := ctx.Err(); err != nil {
		return dommatch.NewError(j.title, err)
	}
	if err := abort.get(); err != nil {
		return dommatch.NewError(j.title, err)
	}

	emb, err := s.embedder.Embed(ctx, j.title)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) || errors.Is(err, domain.ErrRateLimited) {
			abort.set(err)
		}
		s.logger.Error("Title embedding failed",
			zap.String("title", j.title),
			zap.Error(err),
		)
		return dommatch.NewError(j.title, fmt.Errorf("embed title: %w", err))
	}

	rec, score, found, err := s.repo.SearchNearest(ctx, emb.Embedding)
	if err != nil {
		s.logger.Error("Nearest-neighbor lookup failed",
			zap.String("title", j.title),
			zap.Error(err),
		)
		return dommatch.NewError(j.title, fmt.Errorf("search nearest: %w", err))
	}
	if !found {
		return dommatch.NewMiss(j.title)
	}

	s.logger.Debug("Title matched",
		zap.String("title", j.title),
		zap.String("record_id", rec.ID()),
		zap.Float64("score", score),
	)

	return dommatch.NewHit(j.title, rec, score)
}

func anyResolved(results []dommatch.Result) bool {
	for _, r := range results {
		if r.Err() == nil {
			return true
		}
	}
	return false
}

func resultKind(r dommatch.Result) string {
	switch {
	case r.Err() != nil:
		return "error"
	case r.Best() == nil:
		return "miss"
	default:
		return "hit"
	}
}
