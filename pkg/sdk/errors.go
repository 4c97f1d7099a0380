package snapmatch

import "github.com/snapmatch-ai/snapmatch/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrEmptyBatch    = domain.ErrEmptyBatch
	ErrQuotaExceeded = domain.ErrQuotaExceeded
	ErrRateLimited   = domain.ErrRateLimited
	ErrNotFound      = domain.ErrNotFound
)
