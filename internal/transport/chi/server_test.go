package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/snapmatch-ai/snapmatch/internal/domain"
	domingest "github.com/snapmatch-ai/snapmatch/internal/domain/ingest"
	dommatch "github.com/snapmatch-ai/snapmatch/internal/domain/match"
	domrec "github.com/snapmatch-ai/snapmatch/internal/domain/record"
	healthuc "github.com/snapmatch-ai/snapmatch/internal/usecase/health"
	ingestuc "github.com/snapmatch-ai/snapmatch/internal/usecase/ingest"
)

// --- Mocks ---

type mockIngestor struct {
	ingestFn func(ctx context.Context, files []ingestuc.File) ([]domingest.Outcome, error)
	deleteFn func(ctx context.Context, id string) error
	gotFiles []ingestuc.File
}

func (m *mockIngestor) Ingest(ctx context.Context, files []ingestuc.File) ([]domingest.Outcome, error) {
	m.gotFiles = files
	if m.ingestFn != nil {
		return m.ingestFn(ctx, files)
	}
	outcomes := make([]domingest.Outcome, len(files))
	for i, f := range files {
		outcomes[i] = domingest.NewSuccess(i, "https://blob.test/"+f.Name, "description of "+f.Name)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("ingest batch: %w", domain.ErrEmptyBatch)
	}
	return outcomes, nil
}

func (m *mockIngestor) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockMatcher struct {
	matchFn func(ctx context.Context, titles []string) ([]dommatch.Result, error)
}

func (m *mockMatcher) Match(ctx context.Context, titles []string) ([]dommatch.Result, error) {
	if m.matchFn != nil {
		return m.matchFn(ctx, titles)
	}
	results := make([]dommatch.Result, len(titles))
	for i, title := range titles {
		rec := domrec.Reconstruct("rec-1", "https://blob.test/img.png", "a red bicycle",
			[]float32{0.1, 0.2}, time.Unix(1700000000, 0).UTC())
		results[i] = dommatch.NewHit(title, rec, 0.92)
	}
	return results, nil
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

func newTestServer() (*Server, *mockIngestor, *mockMatcher, *mockHealth) {
	ing := &mockIngestor{}
	mat := &mockMatcher{}
	hc := &mockHealth{report: healthuc.Report{
		Status: healthuc.Healthy,
		Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK},
	}}
	return NewServer(ing, mat, hc, zap.NewNop()), ing, mat, hc
}

func newTestRouter(s *Server) http.Handler {
	r := chirouter.NewRouter()
	s.Routes(r)
	return r
}

// multipartBody builds a multipart form with one part per file under the "files" field.
func multipartBody(t *testing.T, names ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, name := range names {
		part, err := w.CreateFormFile(uploadField, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte{0x89, 0x50, 0x4e, 0x47}); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

// --- Ingest ---

func TestIngestImages_Success(t *testing.T) {
	srv, ing, _, _ := newTestServer()
	router := newTestRouter(srv)

	body, contentType := multipartBody(t, "a.png", "b.png")
	req := httptest.NewRequest("POST", "/v1/images", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp ingestResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Items))
	}
	if resp.Succeeded != 2 || resp.Failed != 0 {
		t.Errorf("succeeded=%d failed=%d", resp.Succeeded, resp.Failed)
	}
	if resp.Items[0].URL != "https://blob.test/a.png" {
		t.Errorf("items[0].url = %q", resp.Items[0].URL)
	}
	if len(ing.gotFiles) != 2 || ing.gotFiles[1].Name != "b.png" {
		t.Errorf("unexpected files passed to usecase: %+v", ing.gotFiles)
	}
}

func TestIngestImages_EmptyBatch_400(t *testing.T) {
	srv, _, _, _ := newTestServer()
	router := newTestRouter(srv)

	body, contentType := multipartBody(t)
	req := httptest.NewRequest("POST", "/v1/images", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != codeEmptyBatch {
		t.Errorf("error code = %q, want %q", errResp.Code, codeEmptyBatch)
	}
}

func TestIngestImages_NotMultipart_400(t *testing.T) {
	srv, _, _, _ := newTestServer()
	router := newTestRouter(srv)

	req := httptest.NewRequest("POST", "/v1/images", strings.NewReader(`{"files":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestIngestImages_TooManyFiles_400(t *testing.T) {
	srv, _, _, _ := newTestServer()
	srv.WithLimits(0, 2)
	router := newTestRouter(srv)

	body, contentType := multipartBody(t, "a.png", "b.png", "c.png")
	req := httptest.NewRequest("POST", "/v1/images", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestIngestImages_PartialFailure(t *testing.T) {
	srv, ing, _, _ := newTestServer()
	router := newTestRouter(srv)

	ing.ingestFn = func(_ context.Context, files []ingestuc.File) ([]domingest.Outcome, error) {
		return []domingest.Outcome{
			domingest.NewSuccess(0, "https://blob.test/a.png", "d"),
			domingest.NewFailure(1, domingest.ReasonDescriptionUnavailable, domain.ErrVisionProvider),
		}, nil
	}

	body, contentType := multipartBody(t, "a.png", "b.png")
	req := httptest.NewRequest("POST", "/v1/images", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("partial failure is still 200, got %d", rr.Code)
	}

	var resp ingestResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Succeeded != 1 || resp.Failed != 1 {
		t.Errorf("succeeded=%d failed=%d", resp.Succeeded, resp.Failed)
	}
	if resp.Items[1].Reason != string(domingest.ReasonDescriptionUnavailable) {
		t.Errorf("items[1].reason = %q", resp.Items[1].Reason)
	}
	if resp.Items[1].Error != domain.ErrVisionProvider.Error() {
		t.Errorf("items[1].error = %q", resp.Items[1].Error)
	}
}

func TestIngestImages_QuotaExceeded_402(t *testing.T) {
	srv, ing, _, _ := newTestServer()
	router := newTestRouter(srv)

	ing.ingestFn = func(context.Context, []ingestuc.File) ([]domingest.Outcome, error) {
		return nil, fmt.Errorf("budget check: %w", domain.ErrQuotaExceeded)
	}

	body, contentType := multipartBody(t, "a.png")
	req := httptest.NewRequest("POST", "/v1/images", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rr.Code)
	}
}

func TestDeleteImage_NoContent(t *testing.T) {
	srv, ing, _, _ := newTestServer()
	router := newTestRouter(srv)

	var gotID string
	ing.deleteFn = func(_ context.Context, id string) error {
		gotID = id
		return nil
	}

	req := httptest.NewRequest("DELETE", "/v1/images/rec-1", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if gotID != "rec-1" {
		t.Errorf("deleted id = %q, expected rec-1", gotID)
	}
}

func TestDeleteImage_NotFound_404(t *testing.T) {
	srv, ing, _, _ := newTestServer()
	router := newTestRouter(srv)

	ing.deleteFn = func(context.Context, string) error {
		return fmt.Errorf("delete record: %w", domain.ErrNotFound)
	}

	req := httptest.NewRequest("DELETE", "/v1/images/missing", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}

	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != codeNotFound {
		t.Errorf("error code = %q, want %q", errResp.Code, codeNotFound)
	}
}

// --- Match ---

func TestMatchTitles_Hit(t *testing.T) {
	srv, _, _, _ := newTestServer()
	router := newTestRouter(srv)

	req := httptest.NewRequest("POST", "/v1/match", strings.NewReader(`{"titles":["red bicycle"]}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp matchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(resp.Matches))
	}

	m := resp.Matches[0]
	if m.Title != "red bicycle" {
		t.Errorf("title = %q", m.Title)
	}
	if m.Match == nil || m.Match.ID != "rec-1" {
		t.Fatalf("unexpected match: %+v", m.Match)
	}
	if m.Score == nil || *m.Score != 0.92 {
		t.Errorf("score = %v", m.Score)
	}
}

func TestMatchTitles_Miss(t *testing.T) {
	srv, _, mat, _ := newTestServer()
	router := newTestRouter(srv)

	mat.matchFn = func(_ context.Context, titles []string) ([]dommatch.Result, error) {
		return []dommatch.Result{dommatch.NewMiss(titles[0])}, nil
	}

	req := httptest.NewRequest("POST", "/v1/match", strings.NewReader(`{"titles":["anything"]}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var resp matchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	m := resp.Matches[0]
	if m.Match != nil || m.Score != nil || m.Error != "" {
		t.Errorf("miss must have no match, score, or error: %+v", m)
	}
}

func TestMatchTitles_EmptyBatch_400(t *testing.T) {
	srv, _, mat, _ := newTestServer()
	router := newTestRouter(srv)

	mat.matchFn = func(context.Context, []string) ([]dommatch.Result, error) {
		return nil, fmt.Errorf("match batch: %w", domain.ErrEmptyBatch)
	}

	req := httptest.NewRequest("POST", "/v1/match", strings.NewReader(`{"titles":["",""]}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestMatchTitles_InvalidJSON_400(t *testing.T) {
	srv, _, _, _ := newTestServer()
	router := newTestRouter(srv)

	req := httptest.NewRequest("POST", "/v1/match", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestMatchTitles_RateLimited_429(t *testing.T) {
	srv, _, mat, _ := newTestServer()
	router := newTestRouter(srv)

	mat.matchFn = func(context.Context, []string) ([]dommatch.Result, error) {
		return nil, domain.ErrRateLimited
	}

	req := httptest.NewRequest("POST", "/v1/match", strings.NewReader(`{"titles":["x"]}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
}

func TestMatchTitles_PerTitleErrorInBody(t *testing.T) {
	srv, _, mat, _ := newTestServer()
	router := newTestRouter(srv)

	mat.matchFn = func(_ context.Context, titles []string) ([]dommatch.Result, error) {
		return []dommatch.Result{
			dommatch.NewError(titles[0], fmt.Errorf("embed title: %w", domain.ErrEmbeddingProvider)),
		}, nil
	}

	req := httptest.NewRequest("POST", "/v1/match", strings.NewReader(`{"titles":["x"]}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("per-title errors keep the call 200, got %d", rr.Code)
	}

	var resp matchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Matches[0].Error != domain.ErrEmbeddingProvider.Error() {
		t.Errorf("error = %q", resp.Matches[0].Error)
	}
}

// --- Health ---

func TestHealthCheck_OK(t *testing.T) {
	srv, _, _, _ := newTestServer()
	router := newTestRouter(srv)

	req := httptest.NewRequest("GET", "/healthz", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Checks["database"] != "ok" {
		t.Errorf("unexpected health response: %+v", resp)
	}
}

func TestHealthCheck_Degraded_503(t *testing.T) {
	srv, _, _, hc := newTestServer()
	router := newTestRouter(srv)

	hc.report = healthuc.Report{
		Status: healthuc.Degraded,
		Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckError},
	}

	req := httptest.NewRequest("GET", "/healthz", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}
