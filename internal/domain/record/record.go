package record

import (
	"fmt"
	"time"
)

// Record is a persisted image entry (immutable value object).
// A Record exists only fully formed: url, description, and embedding
// are all present before it is ever inserted, so a partially ingested
// image is never visible to matching.
type Record struct {
	id          string
	url         string
	description string
	embedding   []float32
	createdAt   time.Time
}

// New validates and creates a Record ready for insertion.
// The embedding must be derived from the description text, never from
// the raw image bytes.
func New(url, description string, embedding []float32) (Record, error) {
	if url == "" {
		return Record{}, fmt.Errorf("url is required")
	}
	if description == "" {
		return Record{}, fmt.Errorf("description is required")
	}
	if len(embedding) == 0 {
		return Record{}, fmt.Errorf("embedding is required")
	}

	return Record{
		url:         url,
		description: description,
		embedding:   embedding,
		createdAt:   time.Now().UTC(),
	}, nil
}

// Reconstruct rebuilds a Record from storage without validation.
func Reconstruct(id, url, description string, embedding []float32, createdAt time.Time) Record {
	return Record{
		id:          id,
		url:         url,
		description: description,
		embedding:   embedding,
		createdAt:   createdAt,
	}
}

// WithID returns a copy of the record carrying the store-assigned ID.
func (r Record) WithID(id string) Record {
	r.id = id
	return r
}

// ID returns the store-assigned identifier, empty before insertion.
func (r Record) ID() string { return r.id }

// URL returns the blob location of the image.
func (r Record) URL() string { return r.url }

// Description returns the derived natural-language description.
func (r Record) Description() string { return r.description }

// Embedding returns the description embedding vector.
func (r Record) Embedding() []float32 { return r.embedding }

// CreatedAt returns the persistence timestamp.
func (r Record) CreatedAt() time.Time { return r.createdAt }
