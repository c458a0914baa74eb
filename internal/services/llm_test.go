package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"candidate-screener/internal/config"
	"candidate-screener/internal/errs"
)

type scriptedTransport struct {
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	text string
	err  error
}

func (s *scriptedTransport) Send(ctx context.Context, prompt, systemPrompt string, temperature float32, maxTokens int) (string, error) {
	if s.calls >= len(s.responses) {
		return "", errs.New(errs.KindFatal, "scripted transport exhausted")
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp.text, resp.err
}

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		MaxAttempts:   3,
		BackoffFactor: 2,
		BackoffMin:    time.Second,
		BackoffMax:    10 * time.Second,
	}
}

func newTestLLMClient(transport Transport, cfg config.LLMConfig) (*llmClient, *[]time.Duration) {
	client := NewLLMClientWithTransport(transport, cfg, zap.NewNop()).(*llmClient)
	var delays []time.Duration
	client.sleep = func(d time.Duration) { delays = append(delays, d) }
	return client, &delays
}

func TestGenerateRetriesTransientFailures(t *testing.T) {
	transport := &scriptedTransport{responses: []scriptedResponse{
		{err: errs.New(errs.KindTransient, "timeout")},
		{err: errs.New(errs.KindTransient, "502")},
		{text: "ok"},
	}}
	client, delays := newTestLLMClient(transport, testLLMConfig())

	result, err := client.Generate(context.Background(), "prompt", "", 0.3, 100)

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, transport.calls)
	// factor^attempt clamped to [min, max]: 2s after attempt 1, 4s after 2.
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *delays)
}

func TestGenerateDoesNotRetryFatalFailures(t *testing.T) {
	transport := &scriptedTransport{responses: []scriptedResponse{
		{err: errs.New(errs.KindFatal, "invalid api key")},
	}}
	client, delays := newTestLLMClient(transport, testLLMConfig())

	_, err := client.Generate(context.Background(), "prompt", "", 0.3, 100)

	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, 1, transport.calls)
	assert.Empty(t, *delays)
}

func TestGenerateExhaustsRetryBudget(t *testing.T) {
	transport := &scriptedTransport{responses: []scriptedResponse{
		{err: errs.New(errs.KindTransient, "timeout")},
		{err: errs.New(errs.KindTransient, "timeout")},
		{err: errs.New(errs.KindTransient, "timeout")},
	}}
	client, _ := newTestLLMClient(transport, testLLMConfig())

	_, err := client.Generate(context.Background(), "prompt", "", 0.3, 100)

	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
	assert.Equal(t, 3, transport.calls)
}

func TestBackoffDelayClamping(t *testing.T) {
	cfg := testLLMConfig()
	cfg.BackoffMin = 3 * time.Second
	cfg.BackoffMax = 5 * time.Second
	client, _ := newTestLLMClient(&scriptedTransport{}, cfg)

	assert.Equal(t, 3*time.Second, client.backoffDelay(1)) // 2s clamped up
	assert.Equal(t, 4*time.Second, client.backoffDelay(2))
	assert.Equal(t, 5*time.Second, client.backoffDelay(3)) // 8s clamped down
}

func TestGenerateStopsWhenContextCancelled(t *testing.T) {
	transport := &scriptedTransport{responses: []scriptedResponse{
		{err: errs.New(errs.KindTransient, "timeout")},
		{text: "late"},
	}}
	client, _ := newTestLLMClient(transport, testLLMConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Generate(ctx, "prompt", "", 0.3, 100)

	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
	assert.Equal(t, 1, transport.calls)
}

// deadlineTransport blocks until the per-call context expires and records
// whether a deadline was set on it.
type deadlineTransport struct {
	hadDeadline bool
}

func (d *deadlineTransport) Send(ctx context.Context, prompt, systemPrompt string, temperature float32, maxTokens int) (string, error) {
	_, d.hadDeadline = ctx.Deadline()
	<-ctx.Done()
	return "", errs.Wrap(errs.KindTransient, "request aborted", ctx.Err())
}

func TestGenerateAppliesPerRequestTimeout(t *testing.T) {
	transport := &deadlineTransport{}
	cfg := testLLMConfig()
	cfg.MaxAttempts = 1
	cfg.RequestTimeout = 10 * time.Millisecond
	client, _ := newTestLLMClient(transport, cfg)

	done := make(chan error, 1)
	go func() {
		_, err := client.Generate(context.Background(), "prompt", "", 0.3, 100)
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errs.IsTransient(err))
		assert.Contains(t, err.Error(), "context deadline exceeded")
	case <-time.After(2 * time.Second):
		t.Fatal("Generate did not return; per-request timeout was not applied")
	}
	assert.True(t, transport.hadDeadline)
}
