package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/zhuang-keju/GreyCells/internal/config"
)

// DefaultGeminiModel is used when the config names no model.
const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini generates text through the Google GenAI SDK.
type Gemini struct {
	client *genai.Client
	model  string
	temp   float32
}

// NewGemini creates a Gemini client from the config.
func NewGemini(ctx context.Context, cfg config.LLMConfig) (*Gemini, error) {
	key, err := apiKey(cfg)
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: key})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: client, model: model, temp: cfg.Temperature}, nil
}

// Name implements Client.
func (g *Gemini) Name() string { return config.ProviderGemini }

// Generate implements Client.
func (g *Gemini) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	temp := g.temp
	if params.Temperature != nil {
		temp = *params.Temperature
	}
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temp),
	}
	if params.MaxTokens != nil {
		genCfg.MaxOutputTokens = int32(*params.MaxTokens)
	}
	if len(params.Stop) > 0 {
		genCfg.StopSequences = params.Stop
	}
	if params.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(params.SystemPrompt, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, genCfg)
	if err != nil {
		return "", &TransportError{Provider: config.ProviderGemini, Err: err}
	}
	return resp.Text(), nil
}
