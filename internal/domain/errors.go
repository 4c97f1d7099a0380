package domain

import "errors"

var (
	// ErrEmptyBatch signals a batch with no usable items; caller error, no work attempted.
	ErrEmptyBatch = errors.New("empty batch")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable signals a misconfigured or unreachable external dependency.
	// Fatal for the whole call: there is no per-item fallback.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrBlobWriteFailed signals a failed blob store write for a single item.
	ErrBlobWriteFailed = errors.New("blob write failed")
	// ErrVisionProvider signals unusable output from the vision description provider.
	ErrVisionProvider = errors.New("vision provider error")
	// ErrEmbeddingProvider signals unusable output from the embedding provider.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrPersistFailed signals a rejected vector store write for a single item.
	ErrPersistFailed = errors.New("persist failed")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded signals an exhausted provider token budget.
	ErrQuotaExceeded = errors.New("token quota exceeded")
)
