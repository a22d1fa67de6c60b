package openai_provider

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aicooking/recipegen/config"
)

// Message is one turn of a completion conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes a chat completion call.
type CompletionRequest struct {
	Messages  []Message
	Model     string
	JSONMode  bool
	MaxTokens int
}

// ProviderError is the single opaque failure kind surfaced for upstream model
// calls. Callers never receive partial results alongside it.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("provider: %s: %v", e.Op, e.Err) }
func (e *ProviderError) Unwrap() error { return e.Err }

// Client implements the provider capabilities against the OpenAI API.
type Client struct {
	api             *openai.Client
	completionModel string
	embeddingModel  string
	imageModel      string
	maxTokens       int
}

// NewClient creates an OpenAI-backed provider client.
func NewClient(cfg config.OpenAIConfig) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		api:             openai.NewClientWithConfig(oc),
		completionModel: cfg.CompletionModel,
		embeddingModel:  cfg.EmbeddingModel,
		imageModel:      cfg.ImageModel,
		maxTokens:       cfg.MaxTokens,
	}
}

// Embed returns one embedding vector for the given text. It never returns a
// partial or zero vector: any upstream failure surfaces as a ProviderError.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, &ProviderError{Op: "embed", Err: err}
	}
	if len(resp.Data) == 0 {
		return nil, &ProviderError{Op: "embed", Err: fmt.Errorf("no embeddings returned")}
	}
	return resp.Data[0].Embedding, nil
}

// Complete runs a chat completion and returns the raw text of the top choice.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.completionModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	creq := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.JSONMode {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, creq)
	if err != nil {
		return "", &ProviderError{Op: "complete", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Op: "complete", Err: fmt.Errorf("no choices in response")}
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateImage requests one image and returns its provider-hosted URL.
// The URL is time-limited; callers must copy the bytes to durable storage.
func (c *Client) GenerateImage(ctx context.Context, prompt, size, quality string) (string, error) {
	resp, err := c.api.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.imageModel,
		Size:           size,
		Quality:        quality,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", &ProviderError{Op: "generate_image", Err: err}
	}
	if len(resp.Data) == 0 {
		return "", &ProviderError{Op: "generate_image", Err: fmt.Errorf("no image in response")}
	}
	return resp.Data[0].URL, nil
}
