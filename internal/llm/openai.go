package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zhuang-keju/GreyCells/internal/config"
)

// DefaultOpenAIModel is used when the config names no model.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI generates text through the OpenAI chat completions API, or any
// compatible endpoint when base_url is set.
type OpenAI struct {
	client *openai.Client
	model  string
	temp   float32
}

// NewOpenAI creates an OpenAI client from the config.
func NewOpenAI(cfg config.LLMConfig) (*OpenAI, error) {
	key, err := apiKey(cfg)
	if err != nil {
		return nil, err
	}
	var client *openai.Client
	if cfg.BaseURL != "" {
		c := openai.DefaultConfig(key)
		c.BaseURL = cfg.BaseURL
		client = openai.NewClientWithConfig(c)
	} else {
		client = openai.NewClient(key)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{client: client, model: model, temp: cfg.Temperature}, nil
}

// Name implements Client.
func (o *OpenAI) Name() string { return config.ProviderOpenAI }

// Generate implements Client.
func (o *OpenAI) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	var messages []openai.ChatCompletionMessage
	if params.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: params.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: o.temp,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &TransportError{Provider: config.ProviderOpenAI, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &TransportError{Provider: config.ProviderOpenAI, Err: errors.New("response contains no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}
