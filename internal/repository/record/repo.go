package record

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/snapmatch-ai/snapmatch/internal/db"
	"github.com/snapmatch-ai/snapmatch/internal/domain"
	domrec "github.com/snapmatch-ai/snapmatch/internal/domain/record"
)

// store is the consumer interface for record persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo implements record persistence and nearest-neighbor lookup over hashes.
type Repo struct {
	store       store
	dim         int
	hnswM       int
	hnswEFConst int
}

// New creates a record repository. dim is the embedding dimensionality
// used when bootstrapping the vector index.
func New(s store, dim int) *Repo {
	return &Repo{store: s, dim: dim, hnswM: 16, hnswEFConst: 200}
}

// WithHNSW overrides HNSW index build parameters.
func (r *Repo) WithHNSW(m, efConstruct int) *Repo {
	if m > 0 {
		r.hnswM = m
	}
	if efConstruct > 0 {
		r.hnswEFConst = efConstruct
	}
	return r
}

// EnsureIndex creates the HNSW vector index if it does not exist yet.
// Safe to call on every startup.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, indexName())
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def := db.NewIndex(indexName()).
		Prefix(recordPrefix()).
		Text("description").
		VectorHNSW("vector", r.dim, db.DistanceCosine, r.hnswM, r.hnswEFConst).
		MustBuild()

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Insert persists a fully formed record and returns it with its assigned ID.
func (r *Repo) Insert(ctx context.Context, rec domrec.Record) (domrec.Record, error) {
	id := rec.ID()
	if id == "" {
		id = uuid.NewString()
	}

	fields := map[string]string{
		"url":         rec.URL(),
		"description": rec.Description(),
		"created_at":  strconv.FormatInt(rec.CreatedAt().Unix(), 10),
		"vector":      vectorToBytes(rec.Embedding()),
	}

	if err := r.store.HSet(ctx, recordKey(id), fields); err != nil {
		return domrec.Record{}, fmt.Errorf("hset %s: %w", recordKey(id), err)
	}

	return rec.WithID(id), nil
}

// Get returns a record by ID.
func (r *Repo) Get(ctx context.Context, id string) (domrec.Record, error) {
	fields, err := r.store.HGetAll(ctx, recordKey(id))
	if err != nil {
		return domrec.Record{}, fmt.Errorf("hgetall %s: %w", recordKey(id), err)
	}
	if len(fields) == 0 {
		return domrec.Record{}, domain.ErrNotFound
	}
	return recordFromFields(id, fields), nil
}

// Delete removes a record by ID. The FT index drops the entry with the hash.
func (r *Repo) Delete(ctx context.Context, id string) error {
	exists, err := r.store.Exists(ctx, recordKey(id))
	if err != nil {
		return fmt.Errorf("exists %s: %w", recordKey(id), err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	if err := r.store.Del(ctx, recordKey(id)); err != nil {
		return fmt.Errorf("del %s: %w", recordKey(id), err)
	}
	return nil
}

// SearchNearest returns the single closest record to the query vector
// together with its similarity score. found is false when the store is empty.
func (r *Repo) SearchNearest(ctx context.Context, vector []float32) (domrec.Record, float64, bool, error) {
	q := &db.KNNQuery{
		IndexName:    indexName(),
		Vector:       vector,
		K:            1,
		ReturnFields: []string{"url", "description", "created_at", "__vector_score"},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return domrec.Record{}, 0, false, fmt.Errorf("search knn: %w", err)
	}
	if sr == nil || len(sr.Entries) == 0 {
		return domrec.Record{}, 0, false, nil
	}

	entry := sr.Entries[0]
	id := strings.TrimPrefix(entry.Key, recordPrefix())
	rec := recordFromFields(id, entry.Fields)

	return rec, entry.Score, true, nil
}

func recordKey(id string) string {
	return recordPrefix() + id
}

func recordPrefix() string {
	return domain.KeyPrefix + "record:"
}

func indexName() string {
	return domain.KeyPrefix + "records:idx"
}

func recordFromFields(id string, fields map[string]string) domrec.Record {
	var createdAt time.Time
	if ts, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		createdAt = time.Unix(ts, 0).UTC()
	}
	return domrec.Reconstruct(
		id,
		fields["url"],
		fields["description"],
		bytesToVector(fields["vector"]),
		createdAt,
	)
}

// vectorToBytes serializes []float32 to the binary layout FT.SEARCH expects.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
