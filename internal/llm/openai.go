package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/fennec-ai/fennec/internal/metrics"
)

type OpenAIConfig struct {
	Name    string
	APIKey  string
	Model   string
	BaseURL string
	// KeyIsLocal marks providers like Ollama where the key is a placeholder
	// and must not be treated as a credential requirement.
	KeyIsLocal bool
}

// OpenAIProvider speaks the OpenAI chat-completions wire format. It covers
// api.openai.com, OpenRouter, and a local Ollama server alike.
type OpenAIProvider struct {
	name       string
	apiKey     string
	model      string
	baseURL    string
	keyIsLocal bool
	client     *http.Client
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	return &OpenAIProvider{
		name:       name,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		keyIsLocal: cfg.KeyIsLocal,
		client:     &http.Client{Timeout: 35 * time.Second},
	}
}

// Name identifies the provider in settings responses and metrics labels.
func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (Completion, error) {
	if p.apiKey == "" && !p.keyIsLocal {
		return Completion{}, errors.New("missing API key for remote provider")
	}
	if p.model == "" {
		return Completion{}, errors.New("missing model for provider")
	}
	payload := map[string]any{
		"model":    p.model,
		"messages": req.Messages,
	}
	if len(req.Tools) > 0 {
		payload["tools"] = req.Tools
		toolChoice := req.ToolChoice
		if toolChoice == "" {
			toolChoice = "auto"
		}
		payload["tool_choice"] = toolChoice
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, err
	}
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := p.client.Do(httpReq)
	metrics.LLMRequestDuration.WithLabelValues(p.name).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(p.name, "transport_error").Inc()
		return Completion{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		metrics.LLMRequestsTotal.WithLabelValues(p.name, "http_error").Inc()
		return Completion{}, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content   string     `json:"content"`
				ToolCalls []ToolCall `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(p.name, "decode_error").Inc()
		return Completion{}, err
	}
	if len(parsed.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(p.name, "empty").Inc()
		return Completion{}, errors.New("LLM response had no choices")
	}
	message := parsed.Choices[0].Message
	completion := Completion{
		Content:   strings.TrimSpace(message.Content),
		ToolCalls: message.ToolCalls,
	}
	if completion.Content == "" && len(completion.ToolCalls) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(p.name, "empty").Inc()
		return Completion{}, errors.New("LLM response was empty")
	}
	metrics.LLMRequestsTotal.WithLabelValues(p.name, "ok").Inc()
	return completion, nil
}

// ListModels fetches model IDs from {base}/models. Ollama exposes its local
// tags through the same OpenAI-compatible route.
func ListModels(ctx context.Context, cfg Config) ([]string, error) {
	baseURL := cfg.BaseURL
	switch cfg.Provider {
	case "ollama", "":
		baseURL = defaultIfEmpty(baseURL, defaultOllamaBaseURL)
	case "openai":
		baseURL = defaultIfEmpty(baseURL, "https://api.openai.com/v1")
	case "openrouter":
		baseURL = defaultIfEmpty(baseURL, "https://openrouter.ai/api/v1")
	default:
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/models", nil)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("model listing failed: %s", resp.Status)
	}
	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		if item.ID != "" {
			models = append(models, item.ID)
		}
	}
	sort.Strings(models)
	return models, nil
}
