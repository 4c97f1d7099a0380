package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/snapmatch-ai/snapmatch/internal/domain"
)

// parseAPIError extracts a human-readable error from the API response and
// wraps it with the right domain sentinel:
//   - 429 insufficient_quota -> domain.ErrQuotaExceeded
//   - 429 otherwise          -> domain.ErrRateLimited
//   - everything else        -> wrap (provider error, maps to 502)
func parseAPIError(kind string, err error, wrap error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if sentinel := classifyStatus(apiErr.HTTPStatusCode, errorCode(apiErr)); sentinel != nil {
			wrap = sentinel
		}
		return fmt.Errorf("%s API error %d: %s: %w",
			kind, apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if sentinel := classifyStatus(reqErr.HTTPStatusCode, ""); sentinel != nil {
			wrap = sentinel
		}
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("%s API error %d: %s: %w",
			kind, reqErr.HTTPStatusCode, detail, wrap)
	}

	return fmt.Errorf("%s request failed: %v: %w", kind, err, wrap)
}

func classifyStatus(status int, code string) error {
	if status != http.StatusTooManyRequests {
		return nil
	}
	if code == "insufficient_quota" {
		return domain.ErrQuotaExceeded
	}
	return domain.ErrRateLimited
}

// errorCode normalizes the Code field, which the API returns as string or number.
func errorCode(apiErr *openai.APIError) string {
	if s, ok := apiErr.Code.(string); ok {
		return s
	}
	return ""
}

// extractDetail extracts the "detail" field from a JSON error body
// (used by several OpenAI-compatible gateways).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
