package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"candidate-screener/internal/errs"
)

// maxEmbedInputLen bounds the text sent to the embedding endpoint; the model
// rejects inputs far beyond its token window anyway.
const maxEmbedInputLen = 40000

// EmbeddingProvider turns text into fixed-length vectors. Deterministic for
// identical input.
type EmbeddingProvider interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

type geminiTransport struct {
	client     *genai.Client
	modelName  string
	embedModel string
}

// NewGeminiTransport creates the Gemini backend used for both generation and
// embeddings.
func NewGeminiTransport(ctx context.Context, apiKey, model, embedModel string) (*geminiTransport, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errs.New(errs.KindFatal, "gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindFatal, "failed to create gemini client", err)
	}

	return &geminiTransport{
		client:     client,
		modelName:  model,
		embedModel: embedModel,
	}, nil
}

func (g *geminiTransport) Send(ctx context.Context, prompt, systemPrompt string, temperature float32, maxTokens int) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(maxTokens),
	}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), config)
	if err != nil {
		return "", classifyGeminiError("failed to generate text", err)
	}

	if resp == nil {
		return "", errs.New(errs.KindTransient, "no response generated")
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errs.New(errs.KindTransient, "no text content in response")
	}

	return text, nil
}

// Encode implements EmbeddingProvider.
func (g *geminiTransport) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for i, text := range texts {
		if len(text) > maxEmbedInputLen {
			text = text[:maxEmbedInputLen]
		}

		result, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), nil)
		if err != nil {
			return nil, classifyGeminiError(fmt.Sprintf("failed to embed text %d", i), err)
		}

		if result == nil || len(result.Embeddings) == 0 {
			return nil, errs.Newf(errs.KindTransient, "empty embedding result for text %d", i)
		}

		vectors = append(vectors, result.Embeddings[0].Values)
	}

	return vectors, nil
}

// classifyGeminiError maps API failures onto the retry taxonomy: timeouts,
// rate limits and 5xx are transient; other 4xx (auth, bad request) are fatal.
func classifyGeminiError(msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.KindTransient, msg, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || apiErr.Code == 408 || apiErr.Code >= 500:
			return errs.Wrap(errs.KindTransient, msg, err)
		case apiErr.Code >= 400:
			return errs.Wrap(errs.KindFatal, msg, err)
		}
	}

	// Network-level failures with no HTTP status are worth retrying.
	return errs.Wrap(errs.KindTransient, msg, err)
}
