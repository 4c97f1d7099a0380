package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/snapmatch-ai/snapmatch/internal/domain"
	"github.com/snapmatch-ai/snapmatch/internal/metrics"
)

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// InstrumentedEmbedder wraps Embedder with budget enforcement and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
// This layer owns budget tracking and budget-related metrics only.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	budget   BudgetChecker
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with budget and observability.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		budget:   budget,
		logger:   logger,
	}
}

// Embed checks budget, delegates to the inner embedder, and records usage.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	if p.budget != nil {
		if err := p.budget.Check(ctx); err != nil {
			p.logger.Error("Budget exceeded",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Error(err),
			)
			return domain.EmbeddingResult{}, fmt.Errorf("budget check: %w", err)
		}
	}

	start := time.Now()

	result, err := p.inner.Embed(ctx, text)

	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	recordBudget(p.budget, p.provider, int64(result.TotalTokens))

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// InstrumentedDescriber wraps Describer with budget enforcement and logging.
// Vision calls consume far more tokens per request than embeddings, so the
// describer carries its own tracker.
type InstrumentedDescriber struct {
	inner    domain.Describer
	provider string
	model    string
	budget   BudgetChecker
	logger   *zap.Logger
}

// NewInstrumentedDescriber wraps a describer with budget and observability.
func NewInstrumentedDescriber(
	inner domain.Describer, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedDescriber {
	return &InstrumentedDescriber{
		inner:    inner,
		provider: provider,
		model:    model,
		budget:   budget,
		logger:   logger,
	}
}

// Describe checks budget, delegates to the inner describer, and records usage.
func (p *InstrumentedDescriber) Describe(
	ctx context.Context, imageURL string,
) (domain.DescriptionResult, error) {
	if p.budget != nil {
		if err := p.budget.Check(ctx); err != nil {
			p.logger.Error("Budget exceeded",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Error(err),
			)
			return domain.DescriptionResult{}, fmt.Errorf("budget check: %w", err)
		}
	}

	start := time.Now()

	result, err := p.inner.Describe(ctx, imageURL)

	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Vision request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.DescriptionResult{}, fmt.Errorf("describe: %w", err)
	}

	recordBudget(p.budget, p.provider, int64(result.TotalTokens))

	p.logger.Debug("Vision request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("description_len", len(result.Description)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

func recordBudget(budget BudgetChecker, provider string, tokens int64) {
	if budget == nil || tokens <= 0 {
		return
	}
	budget.Record(tokens)
	remaining := metrics.BudgetTokensRemaining
	remaining.WithLabelValues(provider, "daily").Set(float64(budget.RemainingDaily()))
	remaining.WithLabelValues(provider, "monthly").Set(float64(budget.RemainingMonthly()))
}
