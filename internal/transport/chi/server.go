package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/snapmatch-ai/snapmatch/internal/domain"
	domingest "github.com/snapmatch-ai/snapmatch/internal/domain/ingest"
	dommatch "github.com/snapmatch-ai/snapmatch/internal/domain/match"
	healthuc "github.com/snapmatch-ai/snapmatch/internal/usecase/health"
	ingestuc "github.com/snapmatch-ai/snapmatch/internal/usecase/ingest"
)

const (
	defaultMaxBatchSize   = 50
	defaultMaxUploadBytes = 32 << 20
)

// uploadField is the multipart form field carrying image files.
const uploadField = "files"

// Ingestor runs the image ingestion pipeline for a batch of files and
// removes previously ingested records.
type Ingestor interface {
	Ingest(ctx context.Context, files []ingestuc.File) ([]domingest.Outcome, error)
	Delete(ctx context.Context, id string) error
}

// Matcher resolves a batch of titles to their closest stored images.
type Matcher interface {
	Match(ctx context.Context, titles []string) ([]dommatch.Result, error)
}

// HealthService aggregates component health checks.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the ingestion and matching pipelines over HTTP.
type Server struct {
	ingest         Ingestor
	match          Matcher
	health         HealthService
	logger         *zap.Logger
	maxBatchSize   int
	maxUploadBytes int64
	errorHandlers  []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(ingest Ingestor, match Matcher, health HealthService, logger *zap.Logger) *Server {
	s := &Server{
		ingest:         ingest,
		match:          match,
		health:         health,
		logger:         logger,
		maxBatchSize:   defaultMaxBatchSize,
		maxUploadBytes: defaultMaxUploadBytes,
	}
	// Provider and upstream errors never escape the services whole-batch,
	// they are reported per item; only these sentinels reach the top level.
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyBatch, http.StatusBadRequest, codeEmptyBatch),
		sentinelHandler(domain.ErrQuotaExceeded, http.StatusPaymentRequired, codeQuotaExceeded),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
	}
	return s
}

// WithLimits configures upload size and batch size limits.
func (s *Server) WithLimits(maxUploadBytes int64, maxBatchSize int) *Server {
	if maxUploadBytes > 0 {
		s.maxUploadBytes = maxUploadBytes
	}
	if maxBatchSize > 0 {
		s.maxBatchSize = maxBatchSize
	}
	return s
}

// Routes mounts all handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/images", s.IngestImages)
	r.Delete("/v1/images/{id}", s.DeleteImage)
	r.Post("/v1/match", s.MatchTitles)
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// IngestImages handles POST /v1/images (multipart form, field "files").
func (s *Server) IngestImages(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid multipart body: "+err.Error())
		return
	}

	headers := r.MultipartForm.File[uploadField]
	if len(headers) > s.maxBatchSize {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			fmt.Sprintf("files count must be between 1 and %d", s.maxBatchSize))
		return
	}

	files := make([]ingestuc.File, 0, len(headers))
	for _, h := range headers {
		data, err := readUpload(h)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest,
				fmt.Sprintf("read upload %q: %s", h.Filename, err))
			return
		}
		files = append(files, ingestuc.File{Name: h.Filename, Data: data})
	}

	outcomes, err := s.ingest.Ingest(r.Context(), files)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	succeeded, failed := 0, 0
	items := make([]ingestItemResponse, len(outcomes))
	for i, o := range outcomes {
		items[i] = outcomeToResponse(o)
		if o.OK() {
			succeeded++
		} else {
			failed++
		}
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Items:     items,
		Succeeded: succeeded,
		Failed:    failed,
	})
}

// DeleteImage handles DELETE /v1/images/{id}.
func (s *Server) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "record id is required")
		return
	}

	if err := s.ingest.Delete(r.Context(), id); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MatchTitles handles POST /v1/match.
func (s *Server) MatchTitles(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	if len(req.Titles) > s.maxBatchSize {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			fmt.Sprintf("titles count must be between 1 and %d", s.maxBatchSize))
		return
	}

	results, err := s.match.Match(r.Context(), req.Titles)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]matchItemResponse, len(results))
	for i, res := range results {
		items[i] = resultToResponse(res)
	}

	writeJSON(w, http.StatusOK, matchResponse{Matches: items})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func readUpload(h *multipart.FileHeader) ([]byte, error) {
	f, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func outcomeToResponse(o domingest.Outcome) ingestItemResponse {
	if o.OK() {
		return ingestItemResponse{
			Status:      string(o.Status()),
			URL:         o.URL(),
			Description: o.Description(),
		}
	}
	return ingestItemResponse{
		Status: string(o.Status()),
		Reason: string(o.Reason()),
		Error:  safeDomainMessage(o.Err()),
	}
}

func resultToResponse(r dommatch.Result) matchItemResponse {
	item := matchItemResponse{Title: r.Title()}
	if r.Err() != nil {
		item.Error = safeDomainMessage(r.Err())
		return item
	}
	if best := r.Best(); best != nil {
		item.Match = &matchedRecord{
			ID:          best.ID(),
			URL:         best.URL(),
			Description: best.Description(),
			CreatedAt:   best.CreatedAt(),
		}
		item.Score = r.Score()
	}
	return item
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	if err == nil {
		return ""
	}
	sentinels := []error{
		domain.ErrEmptyBatch,
		domain.ErrNotFound,
		domain.ErrUpstreamUnavailable,
		domain.ErrBlobWriteFailed,
		domain.ErrVisionProvider,
		domain.ErrEmbeddingProvider,
		domain.ErrPersistFailed,
		domain.ErrRateLimited,
		domain.ErrQuotaExceeded,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// --- Wire DTOs ---

const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeEmptyBatch       = "empty_batch"
	codeQuotaExceeded    = "quota_exceeded"
	codeRateLimited      = "rate_limited"
	codeNotFound         = "not_found"
	codeInternalError    = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ingestItemResponse struct {
	Status      string `json:"status"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Error       string `json:"error,omitempty"`
}

type ingestResponse struct {
	Items     []ingestItemResponse `json:"items"`
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
}

type matchRequest struct {
	Titles []string `json:"titles"`
}

type matchedRecord struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type matchItemResponse struct {
	Title string         `json:"title"`
	Match *matchedRecord `json:"match,omitempty"`
	Score *float64       `json:"score,omitempty"`
	Error string         `json:"error,omitempty"`
}

type matchResponse struct {
	Matches []matchItemResponse `json:"matches"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
