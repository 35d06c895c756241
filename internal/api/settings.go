package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fennec-ai/fennec/internal/llm"
	"github.com/fennec-ai/fennec/internal/secrets"
	"github.com/fennec-ai/fennec/internal/store"
)

var newLLMProvider = llm.NewProvider
var listLLMProviderModels = llm.ListModels
var encryptLLMSecret = secrets.Encrypt

type llmSettingsRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"api_key"`
}

type llmSettingsResponse struct {
	Configured bool   `json:"configured"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	BaseURL    string `json:"base_url"`
	HasAPIKey  bool   `json:"has_api_key"`
	APIKeyHint string `json:"api_key_hint,omitempty"`
}

func (s *Server) getLLMSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetLLMSettings(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response := llmSettingsResponse{
		Configured: false,
		Provider:   s.cfg.LLMProvider,
		Model:      s.cfg.LLMModel,
		BaseURL:    s.cfg.LLMBaseURL,
	}
	if settings != nil {
		response.Configured = true
		response.Provider = settings.Provider
		response.Model = settings.Model
		response.BaseURL = settings.BaseURL
		response.HasAPIKey = settings.APIKeyEnc != ""
		if settings.APIKeyEnc != "" && s.cfg.LLMSecretsKey != "" {
			if key, err := secrets.ParseKey(s.cfg.LLMSecretsKey); err == nil {
				if apiKey, err := secrets.Decrypt(key, settings.APIKeyEnc); err == nil {
					if len(apiKey) >= 4 {
						response.APIKeyHint = apiKey[len(apiKey)-4:]
					}
				}
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) updateLLMSettings(w http.ResponseWriter, r *http.Request) {
	var req llmSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	settings, err := s.store.GetLLMSettings(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	provider := firstNonEmpty(req.Provider, s.cfg.LLMProvider)
	model := firstNonEmpty(req.Model, s.cfg.LLMModel)
	baseURL := firstNonEmpty(req.BaseURL, s.cfg.LLMBaseURL)
	if settings != nil {
		provider = firstNonEmpty(req.Provider, settings.Provider)
		model = firstNonEmpty(req.Model, settings.Model)
		baseURL = firstNonEmpty(req.BaseURL, settings.BaseURL)
	}

	apiKeyEnc := ""
	if settings != nil {
		apiKeyEnc = settings.APIKeyEnc
	}
	if req.APIKey != "" {
		key, err := secrets.ParseKey(s.cfg.LLMSecretsKey)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ciphertext, err := encryptLLMSecret(key, req.APIKey)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		apiKeyEnc = ciphertext
	}
	if providerNeedsKey(provider) && apiKeyEnc == "" {
		http.Error(w, "API key required for provider", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	createdAt := now
	if settings != nil && settings.CreatedAt != "" {
		createdAt = settings.CreatedAt
	}
	newSettings := store.LLMSettings{
		Provider:  provider,
		Model:     model,
		BaseURL:   baseURL,
		APIKeyEnc: apiKeyEnc,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	if err := s.store.UpsertLLMSettings(r.Context(), newSettings); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.getLLMSettings(w, r)
}

func (s *Server) testLLMSettings(w http.ResponseWriter, r *http.Request) {
	var req llmSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	providerConfig, err := s.buildLLMConfig(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	provider, err := newLLMProvider(providerConfig)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	_, err = provider.Generate(ctx, llm.Request{Messages: []llm.Message{{Role: "user", Content: "ping"}}})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "Connected"})
}

func (s *Server) listLLMModels(w http.ResponseWriter, r *http.Request) {
	var req llmSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	providerConfig, err := s.buildLLMConfig(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	models, err := listLLMProviderModels(r.Context(), providerConfig)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"models": models})
}

// buildLLMConfig merges the request with stored settings and env defaults,
// decrypting the stored API key when the request does not carry one.
func (s *Server) buildLLMConfig(ctx context.Context, req llmSettingsRequest) (llm.Config, error) {
	provider := firstNonEmpty(req.Provider, s.cfg.LLMProvider)
	model := firstNonEmpty(req.Model, s.cfg.LLMModel)
	baseURL := firstNonEmpty(req.BaseURL, s.cfg.LLMBaseURL)

	settings, err := s.store.GetLLMSettings(ctx)
	if err != nil {
		return llm.Config{}, err
	}
	if settings != nil {
		provider = firstNonEmpty(req.Provider, settings.Provider)
		model = firstNonEmpty(req.Model, settings.Model)
		baseURL = firstNonEmpty(req.BaseURL, settings.BaseURL)
	}

	apiKey := req.APIKey
	if apiKey == "" && settings != nil && settings.APIKeyEnc != "" {
		key, err := secrets.ParseKey(s.cfg.LLMSecretsKey)
		if err != nil {
			return llm.Config{}, err
		}
		decrypted, err := secrets.Decrypt(key, settings.APIKeyEnc)
		if err != nil {
			return llm.Config{}, err
		}
		apiKey = decrypted
	}
	if apiKey == "" {
		switch provider {
		case "openai":
			apiKey = s.cfg.OpenAIAPIKey
		case "openrouter":
			apiKey = s.cfg.OpenRouterAPIKey
		}
	}
	if providerNeedsKey(provider) && apiKey == "" {
		return llm.Config{}, errors.New("API key required for provider")
	}

	return llm.Config{
		Provider: provider,
		Model:    model,
		BaseURL:  baseURL,
		APIKey:   apiKey,
	}, nil
}

func providerNeedsKey(provider string) bool {
	switch provider {
	case "openai", "openrouter":
		return true
	default:
		return false
	}
}

type searchSettingsRequest struct {
	Enabled    *bool `json:"enabled"`
	MaxResults *int  `json:"max_results"`
}

type searchSettingsResponse struct {
	Enabled    bool `json:"enabled"`
	MaxResults int  `json:"max_results"`
}

func (s *Server) getSearchSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSearchSettings(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response := searchSettingsResponse{
		Enabled:    s.cfg.SearchEnabled,
		MaxResults: s.cfg.SearchMaxResults,
	}
	if settings != nil {
		response.Enabled = settings.Enabled
		response.MaxResults = settings.MaxResults
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) updateSearchSettings(w http.ResponseWriter, r *http.Request) {
	var req searchSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	settings, err := s.store.GetSearchSettings(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	enabled := s.cfg.SearchEnabled
	maxResults := s.cfg.SearchMaxResults
	createdAt := ""
	if settings != nil {
		enabled = settings.Enabled
		maxResults = settings.MaxResults
		createdAt = settings.CreatedAt
	}
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	if req.MaxResults != nil {
		if *req.MaxResults <= 0 {
			http.Error(w, "max_results must be positive", http.StatusBadRequest)
			return
		}
		maxResults = *req.MaxResults
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if createdAt == "" {
		createdAt = now
	}
	if err := s.store.UpsertSearchSettings(r.Context(), store.SearchSettings{
		Enabled:    enabled,
		MaxResults: maxResults,
		CreatedAt:  createdAt,
		UpdatedAt:  now,
	}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.getSearchSettings(w, r)
}

func firstNonEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
