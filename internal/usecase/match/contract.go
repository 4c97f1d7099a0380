package match

import (
	"context"

	"github.com/snapmatch-ai/snapmatch/internal/domain"
	domrec "github.com/snapmatch-ai/snapmatch/internal/domain/record"
)

// Repository resolves a query vector to its single nearest stored record.
// found is false when the store holds no records.
type Repository interface {
	SearchNearest(ctx context.Context, vector []float32) (domrec.Record, float64, bool, error)
}

// Embedder vectorizes query titles.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
