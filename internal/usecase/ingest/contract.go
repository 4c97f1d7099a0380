package ingest

import (
	"context"

	"github.com/snapmatch-ai/snapmatch/internal/domain"
	domrec "github.com/snapmatch-ai/snapmatch/internal/domain/record"
)

// File is one raw upload in an ingestion batch.
type File struct {
	Name string
	Data []byte
}

// Repository persists fully formed records.
type Repository interface {
	Insert(ctx context.Context, rec domrec.Record) (domrec.Record, error)
	Delete(ctx context.Context, id string) error
}

// BlobStore stores raw image bytes and returns a durable URL.
type BlobStore interface {
	Write(ctx context.Context, name string, data []byte) (string, error)
}

// Describer derives a text description for a stored image.
type Describer interface {
	Describe(ctx context.Context, imageURL string) (domain.DescriptionResult, error)
}

// Embedder vectorizes description text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
