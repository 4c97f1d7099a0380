package ingest

// FailureReason names the pipeline step at which a single item failed.
type FailureReason string

// Failure reasons, one per pipeline step plus cancellation.
const (
	ReasonBlobWriteFailed        FailureReason = "blob_write_failed"
	ReasonDescriptionUnavailable FailureReason = "description_unavailable"
	ReasonEmbeddingUnavailable   FailureReason = "embedding_unavailable"
	ReasonPersistFailed          FailureReason = "persist_failed"
	ReasonCancelled              FailureReason = "cancelled"
)

// Status is the processing outcome of a single batch item.
type Status string

// Batch item status values.
const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Outcome is the result of ingesting one file of a batch.
// Outcomes are reported at the same index as the input file.
type Outcome struct {
	index       int
	status      Status
	url         string
	description string
	reason      FailureReason
	err         error
}

// NewSuccess creates a successful ingestion outcome.
func NewSuccess(index int, url, description string) Outcome {
	return Outcome{index: index, status: StatusOK, url: url, description: description}
}

// NewFailure creates a failed ingestion outcome.
func NewFailure(index int, reason FailureReason, err error) Outcome {
	return Outcome{index: index, status: StatusError, reason: reason, err: err}
}

// Index returns the position of the input file this outcome belongs to.
func (o Outcome) Index() int { return o.index }

// Status returns the processing outcome.
func (o Outcome) Status() Status { return o.status }

// OK reports whether the item was fully ingested.
func (o Outcome) OK() bool { return o.status == StatusOK }

// URL returns the durable blob URL; empty on failure.
func (o Outcome) URL() string { return o.url }

// Description returns the derived description; empty on failure.
func (o Outcome) Description() string { return o.description }

// Reason returns the failure reason; empty on success.
func (o Outcome) Reason() FailureReason { return o.reason }

// Err returns the underlying error, if any.
func (o Outcome) Err() error { return o.err }
