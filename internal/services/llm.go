package services

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"candidate-screener/internal/config"
	"candidate-screener/internal/errs"
)

// LLMClient is provider-agnostic text generation with bounded retry on
// transient failure.
type LLMClient interface {
	Generate(ctx context.Context, prompt, systemPrompt string, temperature float32, maxTokens int) (string, error)
}

// Transport is one generation backend. Implementations classify their
// failures as transient or fatal via the errs package.
type Transport interface {
	Send(ctx context.Context, prompt, systemPrompt string, temperature float32, maxTokens int) (string, error)
}

type llmClient struct {
	transport      Transport
	log            *zap.Logger
	maxAttempts    int
	backoffFactor  float64
	backoffMin     time.Duration
	backoffMax     time.Duration
	requestTimeout time.Duration
	sleep          func(time.Duration)
}

// NewLLMClient selects the backend named by cfg.Provider once at
// construction and wraps it with the retry policy.
func NewLLMClient(ctx context.Context, cfg config.LLMConfig, log *zap.Logger) (LLMClient, error) {
	var (
		transport Transport
		err       error
	)

	switch cfg.Provider {
	case "gemini":
		transport, err = NewGeminiTransport(ctx, cfg.APIKey, cfg.Model, cfg.EmbedModel)
	case "openrouter":
		transport, err = NewOpenRouterTransport(cfg.APIKey, cfg.Model, "")
	default:
		return nil, errs.Newf(errs.KindFatal, "unsupported llm provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewLLMClientWithTransport(transport, cfg, log), nil
}

// NewLLMClientWithTransport wraps an already-constructed backend. Used by
// tests and by callers sharing one transport for generation and embeddings.
func NewLLMClientWithTransport(transport Transport, cfg config.LLMConfig, log *zap.Logger) LLMClient {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &llmClient{
		transport:      transport,
		log:            log,
		maxAttempts:    maxAttempts,
		backoffFactor:  cfg.BackoffFactor,
		backoffMin:     cfg.BackoffMin,
		backoffMax:     cfg.BackoffMax,
		requestTimeout: cfg.RequestTimeout,
		sleep:          time.Sleep,
	}
}

// Generate implements LLMClient. Transient failures retry up to the
// configured attempt count with exponential backoff; fatal and parse
// failures propagate immediately.
func (c *llmClient) Generate(ctx context.Context, prompt, systemPrompt string, temperature float32, maxTokens int) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result, err := c.send(ctx, prompt, systemPrompt, temperature, maxTokens)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !errs.IsTransient(err) {
			return "", err
		}

		if ctx.Err() != nil {
			return "", errs.Wrap(errs.KindTransient, "generation aborted", ctx.Err())
		}

		if attempt < c.maxAttempts {
			delay := c.backoffDelay(attempt)
			c.log.Warn("generation attempt failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			c.sleep(delay)
		}
	}

	return "", errs.Wrap(errs.KindTransient, "generation failed after retries", lastErr)
}

func (c *llmClient) send(ctx context.Context, prompt, systemPrompt string, temperature float32, maxTokens int) (string, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	return c.transport.Send(ctx, prompt, systemPrompt, temperature, maxTokens)
}

// backoffDelay grows as factor^attempt, clamped to the configured window.
// Deterministic: no jitter.
func (c *llmClient) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(math.Pow(c.backoffFactor, float64(attempt)) * float64(time.Second))
	if delay < c.backoffMin {
		delay = c.backoffMin
	}
	if c.backoffMax > 0 && delay > c.backoffMax {
		delay = c.backoffMax
	}
	return delay
}
