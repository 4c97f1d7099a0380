package openai

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/snapmatch-ai/snapmatch/internal/domain"
)

// RetryConfig bounds the retry loop around provider calls.
type RetryConfig struct {
	Attempts uint64
	Base     time.Duration
}

// RetryingEmbedder retries transient embedding failures with exponential backoff.
type RetryingEmbedder struct {
	inner  domain.Embedder
	cfg    RetryConfig
	logger *zap.Logger
}

// NewRetryingEmbedder wraps an embedder with backoff retries.
func NewRetryingEmbedder(inner domain.Embedder, cfg RetryConfig, logger *zap.Logger) *RetryingEmbedder {
	return &RetryingEmbedder{inner: inner, cfg: cfg, logger: logger}
}

// Embed retries rate-limit and transient provider failures. Quota exhaustion
// and context cancellation fail immediately.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	var result domain.EmbeddingResult

	b := retry.NewExponential(r.cfg.Base)
	err := retry.Do(ctx, retry.WithMaxRetries(r.cfg.Attempts, b), func(ctx context.Context) error {
		var err error
		result, err = r.inner.Embed(ctx, text)
		if err == nil {
			return nil
		}
		if shouldRetry(err) {
			r.logger.Warn("Retrying embedding request", zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return result, nil
}

// RetryingDescriber retries transient vision failures with exponential backoff.
type RetryingDescriber struct {
	inner  domain.Describer
	cfg    RetryConfig
	logger *zap.Logger
}

// NewRetryingDescriber wraps a describer with backoff retries.
func NewRetryingDescriber(inner domain.Describer, cfg RetryConfig, logger *zap.Logger) *RetryingDescriber {
	return &RetryingDescriber{inner: inner, cfg: cfg, logger: logger}
}

// Describe retries rate-limit and transient provider failures. Quota exhaustion
// and context cancellation fail immediately.
func (r *RetryingDescriber) Describe(ctx context.Context, imageURL string) (domain.DescriptionResult, error) {
	var result domain.DescriptionResult

	b := retry.NewExponential(r.cfg.Base)
	err := retry.Do(ctx, retry.WithMaxRetries(r.cfg.Attempts, b), func(ctx context.Context) error {
		var err error
		result, err = r.inner.Describe(ctx, imageURL)
		if err == nil {
			return nil
		}
		if shouldRetry(err) {
			r.logger.Warn("Retrying vision request", zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return domain.DescriptionResult{}, err
	}
	return result, nil
}

// shouldRetry reports whether the provider error is transient.
// Quota exhaustion is permanent until the budget window rolls over, and
// context errors are permanent from the caller's POV.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrQuotaExceeded) {
		return false
	}
	return errors.Is(err, domain.ErrRateLimited) ||
		errors.Is(err, domain.ErrEmbeddingProvider) ||
		errors.Is(err, domain.ErrVisionProvider)
}
