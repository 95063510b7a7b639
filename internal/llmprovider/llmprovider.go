// Package llmprovider adapts a concrete model backend to llmclient.Caller,
// the single round-trip contract the pipeline's retry wrapper depends on.
// It selects between Gemini and a local Ollama server by config, narrowing
// goframe's chat-oriented llms.Model down to the plain system/user prompt
// pair the core pipeline passes through skills.
package llmprovider

import (
	"context"
	"fmt"

	"github.com/sevigo/goframe/llms"
	"github.com/sevigo/goframe/llms/gemini"
	"github.com/sevigo/goframe/llms/ollama"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/llmclient"
)

// Provider wraps a goframe model as an llmclient.Caller.
type Provider struct {
	model llms.Model
}

// New builds a Provider from cfg, selecting the backend by cfg.Provider:
// "gemini" for Gemini, "ollama" or empty for a local Ollama server.
func New(ctx context.Context, cfg config.AIConfig) (*Provider, error) {
	switch cfg.Provider {
	case "gemini":
		model, err := gemini.New(ctx, gemini.WithModel(cfg.GeneratorModel), gemini.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return nil, fmt.Errorf("llmprovider: init gemini: %w", err)
		}
		return &Provider{model: model}, nil
	case "ollama", "":
		model, err := ollama.New(ollama.WithServerURL(cfg.OllamaHost), ollama.WithModel(cfg.GeneratorModel))
		if err != nil {
			return nil, fmt.Errorf("llmprovider: init ollama: %w", err)
		}
		return &Provider{model: model}, nil
	default:
		return nil, fmt.Errorf("llmprovider: unknown provider %q", cfg.Provider)
	}
}

// Call performs one prompt/response round trip. The system and user
// prompts are concatenated since the pipeline's skills render a single
// combined instruction; model is accepted for interface compliance but the
// concrete backend is already bound at construction time.
func (p *Provider) Call(ctx context.Context, systemPrompt, userPrompt, model string) (llmclient.Response, error) {
	prompt := systemPrompt
	if userPrompt != "" {
		if prompt != "" {
			prompt += "\n\n"
		}
		prompt += userPrompt
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, p.model, prompt)
	if err != nil {
		return llmclient.Response{}, fmt.Errorf("llmprovider: generate: %w", err)
	}
	return llmclient.Response{Text: text}, nil
}

var _ llmclient.Caller = (*Provider)(nil)
