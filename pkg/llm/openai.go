package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider generates completions and embeddings via the OpenAI
// API, or any server speaking its protocol when BaseURL is set.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	embedModel string
	maxTokens  int
}

// NewOpenAIProvider creates an OpenAI adapter.
func NewOpenAIProvider(apiKey, baseURL, model, embedModel string, maxTokens int) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("llm: openai api key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	if model == "" {
		model = openai.GPT4oMini
	}
	if embedModel == "" {
		embedModel = string(openai.SmallEmbedding3)
	}

	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		embedModel: embedModel,
		maxTokens:  maxTokens,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete sends the conversation to the chat completions API.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	reqMsgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		reqMsgs = append(reqMsgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		reqMsgs = append(reqMsgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		Messages:  reqMsgs,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, newProviderError(p.Name(), 0, errors.New("no choices returned"))
	}

	return &Response{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Embed returns the embedding vector for text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.embedModel),
	})
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Data) == 0 {
		return nil, newProviderError(p.Name(), 0, fmt.Errorf("no embedding returned"))
	}
	return resp.Data[0].Embedding, nil
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return newProviderError(p.Name(), apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return newProviderError(p.Name(), reqErr.HTTPStatusCode, err)
	}
	return newProviderError(p.Name(), 0, err)
}
