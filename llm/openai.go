package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/driftwoodlabs/raggate/config"
	"github.com/driftwoodlabs/raggate/datatypes"
)

// OpenAIClient serves both pipeline collaborators backed by the same API:
// Embed for the retrieval pipeline and Complete for the completion stage.
type OpenAIClient struct {
	client          *openai.Client
	embeddingModel  string
	completionModel string
}

// NewOpenAIClient builds a client from the injected configuration.
func NewOpenAIClient(cfg config.OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	slog.Info("initializing OpenAI client",
		"embeddingModel", cfg.EmbeddingModel, "completionModel", cfg.CompletionModel)
	return &OpenAIClient{
		client:          openai.NewClientWithConfig(clientCfg),
		embeddingModel:  cfg.EmbeddingModel,
		completionModel: cfg.CompletionModel,
	}, nil
}

// Embed converts one utterance into its embedding vector.
func (o *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}

// Complete sends the full ordered prompt and returns every choice the model
// produced. Role filtering is the completion stage's concern, not this
// client's.
func (o *OpenAIClient) Complete(ctx context.Context, prompt []datatypes.PromptMessage) ([]Choice, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(prompt))
	for _, pm := range prompt {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    pm.Role,
			Content: pm.Content,
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.completionModel,
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("completion returned no choices", "model", o.completionModel)
	}

	choices := make([]Choice, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		choices = append(choices, Choice{Role: c.Message.Role, Text: c.Message.Content})
	}
	return choices, nil
}
