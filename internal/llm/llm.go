// Package llm talks to OpenAI-compatible chat-completion endpoints,
// including a local Ollama server.
package llm

import (
	"context"
)

// Message is one turn in a chat-completion conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool describes a function the model may call.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Request struct {
	Messages   []Message
	Tools      []Tool
	ToolChoice string
}

// Completion is the assistant turn returned by the model. Either Content or
// ToolCalls is populated; both empty is an error surfaced by the provider.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

type Provider interface {
	Generate(ctx context.Context, req Request) (Completion, error)
}

type Config struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

const (
	defaultOllamaBaseURL = "http://localhost:11434/v1"
	// Ollama ignores the key but the OpenAI wire format requires one.
	defaultOllamaAPIKey = "ollama"
)

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOpenAIProvider(OpenAIConfig{
			Name:       "ollama",
			APIKey:     defaultIfEmpty(cfg.APIKey, defaultOllamaAPIKey),
			Model:      cfg.Model,
			BaseURL:    defaultIfEmpty(cfg.BaseURL, defaultOllamaBaseURL),
			KeyIsLocal: true,
		}), nil
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			Name:    "openai",
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		}), nil
	case "openrouter":
		return NewOpenAIProvider(OpenAIConfig{
			Name:    "openrouter",
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: defaultIfEmpty(cfg.BaseURL, "https://openrouter.ai/api/v1"),
		}), nil
	default:
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}
}

func defaultIfEmpty(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
