// Package llm provides the text-generation backends for the pipeline.
//
// Three providers are supported: gemini (Google GenAI SDK), openai
// (api.openai.com or any compatible endpoint via base_url), and agent
// (a local CLI coding agent such as claude or codex). All of them return
// raw text; shaping that text into structured fields is the extraction
// layer's problem, not a transport concern.
package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/zhuang-keju/GreyCells/internal/config"
)

// GenerationParams tune a single generation call. Nil pointers mean
// provider defaults.
type GenerationParams struct {
	SystemPrompt string
	Temperature  *float32
	MaxTokens    *int
	Stop         []string
}

// Client generates text from a prompt. Malformed or oddly shaped output
// is not an error here; only transport and auth failures are, and those
// are fatal to the run.
type Client interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Name() string
}

// TransportError wraps network, auth, and HTTP status failures. A
// different prompt cannot fix these, so the run aborts instead of
// retrying.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// New builds the client selected by the config. workDir is where the
// agent provider keeps its per-call invocation files; the API providers
// ignore it.
func New(ctx context.Context, cfg config.Config, workDir string) (Client, error) {
	switch cfg.LLM.Provider {
	case config.ProviderGemini:
		return NewGemini(ctx, cfg.LLM)
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.LLM)
	case config.ProviderAgent:
		return NewExecAgent(cfg.Agent, workDir)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// apiKey resolves the provider API key from the configured environment
// variable.
func apiKey(cfg config.LLMConfig) (string, error) {
	env := cfg.APIKeyEnv
	if env == "" {
		env = "LLM_API_KEY"
	}
	key := os.Getenv(env)
	if key == "" {
		return "", fmt.Errorf("%s is not set", env)
	}
	return key, nil
}
