package dedup

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder fetches embeddings from the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
}

// NewOpenAIEmbedder creates an embedder. Returns a nil Embedder when no API
// key is configured so callers can pass the result straight to WithEmbedder
// and get passthrough dedup.
func NewOpenAIEmbedder(apiKey string) Embedder {
	if apiKey == "" {
		return nil
	}
	return &OpenAIEmbedder{client: openai.NewClient(apiKey)}
}

// NewOpenAIEmbedderWithClient wraps an existing client, used by tests to
// point at a fixture server.
func NewOpenAIEmbedderWithClient(client *openai.Client) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client}
}

// Embed implements Embedder.
func (o *OpenAIEmbedder) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	// The API may return items out of order; place by index.
	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("embeddings response index %d out of range", item.Index)
		}
		out[item.Index] = item.Embedding
	}
	return out, nil
}
