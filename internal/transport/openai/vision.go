package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/snapmatch-ai/snapmatch/internal/domain"
	"github.com/snapmatch-ai/snapmatch/internal/metrics"
)

// describePrompt steers the model toward the semantic features that title
// matching depends on, not just a literal inventory of the scene.
const describePrompt = "Describe this image in detail, focusing on emotions, actions, setting, and abstract concepts."

// Describer produces image descriptions via an OpenAI-compatible vision chat model.
type Describer struct {
	client   *openai.Client
	model    string
	provider string
	logger   *zap.Logger
}

// DescriberConfig holds the vision provider settings.
type DescriberConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Provider string
	Logger   *zap.Logger
}

// NewDescriber creates an OpenAI-compatible vision provider.
func NewDescriber(cfg *DescriberConfig) *Describer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Describer{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
}

// Describe implements domain.Describer. The image is passed by URL; the
// provider fetches it, so the URL must be reachable from the provider side.
func (d *Describer) Describe(ctx context.Context, imageURL string) (domain.DescriptionResult, error) {
	req := openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: describePrompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: imageURL,
						},
					},
				},
			},
		},
	}

	start := time.Now()

	resp, err := d.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(d.provider, d.model, "error").Inc()
		metrics.ProviderErrorsTotal.WithLabelValues(d.provider, d.model, "api_error").Inc()
		return domain.DescriptionResult{}, parseAPIError("vision", err, domain.ErrVisionProvider)
	}

	description := ""
	if len(resp.Choices) > 0 {
		description = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if description == "" {
		metrics.ProviderRequestsTotal.WithLabelValues(d.provider, d.model, "error").Inc()
		metrics.ProviderErrorsTotal.WithLabelValues(d.provider, d.model, "empty_response").Inc()
		return domain.DescriptionResult{}, fmt.Errorf("empty vision response: %w", domain.ErrVisionProvider)
	}

	metrics.ProviderRequestsTotal.WithLabelValues(d.provider, d.model, "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues(d.provider, d.model).Observe(duration.Seconds())

	totalTokens := resp.Usage.TotalTokens
	promptTokens := resp.Usage.PromptTokens
	if totalTokens > 0 {
		metrics.ProviderTokensTotal.WithLabelValues(d.provider, d.model, "prompt").Add(float64(promptTokens))
		metrics.ProviderTokensTotal.WithLabelValues(d.provider, d.model, "total").Add(float64(totalTokens))
	}

	return domain.DescriptionResult{
		Description:  description,
		PromptTokens: promptTokens,
		TotalTokens:  totalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (d *Describer) HealthCheck(ctx context.Context) error {
	if _, err := d.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
