package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"candidate-screener/internal/errs"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openRouterTransport struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewOpenRouterTransport creates the OpenRouter backend. It speaks the
// OpenAI-style chat completions protocol.
func NewOpenRouterTransport(apiKey, model, baseURL string) (*openRouterTransport, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errs.New(errs.KindFatal, "openrouter api key is required")
	}
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}

	return &openRouterTransport{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *openRouterTransport) Send(ctx context.Context, prompt, systemPrompt string, temperature float32, maxTokens int) (string, error) {
	var messages []chatMessage
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", errs.Wrap(errs.KindFatal, "failed to encode completion request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errs.Wrap(errs.KindFatal, "failed to build completion request", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", errs.Wrap(errs.KindTransient, "completion request cancelled", err)
		}
		// Timeouts and connection failures are retryable.
		return "", errs.Wrap(errs.KindTransient, "completion request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", errs.Newf(errs.KindTransient, "completion request returned status %d", resp.StatusCode)
	default:
		return "", errs.Newf(errs.KindFatal, "completion request returned status %d", resp.StatusCode)
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errs.Wrap(errs.KindTransient, "failed to decode completion response", err)
	}

	if len(parsed.Choices) == 0 {
		return "", errs.New(errs.KindTransient, "completion response has no choices")
	}

	content := parsed.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errs.New(errs.KindTransient, "completion response is empty")
	}

	return content, nil
}
