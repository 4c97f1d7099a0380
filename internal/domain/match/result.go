package match

import "github.com/snapmatch-ai/snapmatch/internal/domain/record"

// Result resolves one query title to at most one stored image.
// Results are ephemeral: a later ingestion or deletion does not
// retroactively affect a previously returned Result.
type Result struct {
	title string
	best  *record.Record
	score *float64
	err   error
}

// NewHit creates a result carrying the best match and its similarity score.
func NewHit(title string, best record.Record, score float64) Result {
	return Result{title: title, best: &best, score: &score}
}

// NewMiss creates a result with no candidate (empty store or no neighbors).
func NewMiss(title string) Result {
	return Result{title: title}
}

// NewError creates a result for a title whose resolution failed.
// The failure is reported in-line so sibling titles still resolve.
func NewError(title string, err error) Result {
	return Result{title: title, err: err}
}

// Title returns the trimmed input query string.
func (r Result) Title() string { return r.title }

// Best returns the matched record, or nil when there is no match.
func (r Result) Best() *record.Record { return r.best }

// Score returns the similarity of Best to the embedded title, nil when Best is nil.
func (r Result) Score() *float64 { return r.score }

// Err returns the per-title resolution error, if any.
func (r Result) Err() error { return r.err }
