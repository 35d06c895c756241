package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fennec-ai/fennec/internal/agent"
	"github.com/fennec-ai/fennec/internal/events"
	"github.com/fennec-ai/fennec/internal/llm"
	"github.com/fennec-ai/fennec/internal/metrics"
	"github.com/fennec-ai/fennec/internal/persona"
	"github.com/fennec-ai/fennec/internal/search"
	"github.com/fennec-ai/fennec/internal/secrets"
	"github.com/fennec-ai/fennec/internal/store"
)

type AnswerInput struct {
	ChatID   string
	Question string
}

type AnswerOutput struct {
	Answer      string `json:"answer"`
	SearchCount int    `json:"search_count"`
}

type ChatFailureInput struct {
	ChatID string
	Error  string
}

var (
	newProvider   = llm.NewProvider
	decryptSecret = secrets.Decrypt
	marshalJSON   = json.Marshal
	newSearcher   = func(timeout time.Duration) search.Searcher {
		return search.NewDuckDuckGo(search.WithTimeout(timeout))
	}
)

const chatTitleGenerateTimeout = 2 * time.Second

type ChatActivities struct {
	store          store.Store
	defaultConfig  llm.Config
	secretsKey     []byte
	controlPlane   string
	httpClient     *http.Client
	requestTimeout time.Duration
	searchEnabled  bool
	searchResults  int
	searchTimeout  time.Duration
}

type ChatActivitiesOption func(*ChatActivities)

func WithSearchConfig(enabled bool, maxResults int, timeout time.Duration) ChatActivitiesOption {
	return func(a *ChatActivities) {
		a.searchEnabled = enabled
		if maxResults > 0 {
			a.searchResults = maxResults
		}
		if timeout > 0 {
			a.searchTimeout = timeout
		}
	}
}

func NewChatActivities(store store.Store, defaultConfig llm.Config, secretsKey []byte, controlPlaneURL string, opts ...ChatActivitiesOption) *ChatActivities {
	activities := &ChatActivities{
		store:          store,
		defaultConfig:  defaultConfig,
		secretsKey:     secretsKey,
		controlPlane:   strings.TrimRight(controlPlaneURL, "/"),
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		requestTimeout: 10 * time.Second,
		searchEnabled:  true,
		searchResults:  3,
		searchTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(activities)
		}
	}
	return activities
}

// AnswerQuestion loads the chat history, runs the tool loop, and posts the
// assistant reply back to the control plane.
func (a *ChatActivities) AnswerQuestion(ctx context.Context, input AnswerInput) (AnswerOutput, error) {
	if strings.TrimSpace(input.ChatID) == "" {
		return AnswerOutput{}, errors.New("chat_id required")
	}
	messages, err := a.store.ListMessages(ctx, input.ChatID)
	if err != nil {
		return AnswerOutput{}, err
	}
	cfg, err := a.resolveConfig(ctx)
	if err != nil {
		_ = a.emitEvent(ctx, input.ChatID, events.TypeChatFailed, map[string]any{"error": err.Error()})
		return AnswerOutput{}, err
	}
	provider, err := newProvider(cfg)
	if err != nil {
		_ = a.emitEvent(ctx, input.ChatID, events.TypeChatFailed, map[string]any{"error": err.Error()})
		return AnswerOutput{}, err
	}

	history := make([]llm.Message, 0, len(messages)+2)
	history = append(history, llm.Message{Role: "system", Content: persona.Resolve()})
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		history = append(history, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	question := strings.TrimSpace(input.Question)
	if question != "" && latestUserMessage(messages) != question {
		history = append(history, llm.Message{Role: "user", Content: question})
	}

	searcher, maxResults := a.resolveSearcher(ctx)
	runner := agent.New(provider, searcher,
		agent.WithMaxResults(maxResults),
		agent.WithSearchStarted(func(query string) {
			_ = a.emitEvent(ctx, input.ChatID, events.TypeSearchStarted, map[string]any{"query": query})
		}))

	_ = a.emitEvent(ctx, input.ChatID, events.TypeAnswerStarted, map[string]any{
		"model": cfg.Model,
	})

	outcome, err := runner.Answer(ctx, history)
	a.recordSearches(ctx, input.ChatID, outcome.Searches)
	if err != nil {
		metrics.AnswersTotal.WithLabelValues("error").Inc()
		_ = a.emitEvent(ctx, input.ChatID, events.TypeChatFailed, map[string]any{"error": err.Error()})
		return AnswerOutput{}, err
	}

	if err := a.postMessage(ctx, input.ChatID, outcome.Content); err != nil {
		return AnswerOutput{}, err
	}
	metrics.AnswersTotal.WithLabelValues("ok").Inc()
	a.maybeGenerateChatTitle(ctx, input.ChatID, provider, messages, outcome.Content)
	return AnswerOutput{
		Answer:      outcome.Content,
		SearchCount: len(outcome.Searches),
	}, nil
}

// HandleChatFailure records a terminal failure event when the answer
// activity errors out.
func (a *ChatActivities) HandleChatFailure(ctx context.Context, input ChatFailureInput) error {
	if strings.TrimSpace(input.ChatID) == "" {
		return errors.New("chat_id required")
	}
	detail := strings.TrimSpace(input.Error)
	if detail == "" {
		detail = "unknown workflow activity error"
	}
	return a.emitEvent(ctx, input.ChatID, events.TypeChatFailed, map[string]any{"error": detail})
}

func (a *ChatActivities) resolveConfig(ctx context.Context) (llm.Config, error) {
	cfg := a.defaultConfig
	settings, err := a.store.GetLLMSettings(ctx)
	if err != nil {
		return cfg, err
	}
	if settings != nil {
		cfg.Provider = settings.Provider
		cfg.Model = settings.Model
		cfg.BaseURL = settings.BaseURL
		if settings.APIKeyEnc != "" {
			if a.secretsKey == nil {
				return cfg, errors.New("LLM_SECRETS_KEY is required to decrypt API keys")
			}
			apiKey, err := decryptSecret(a.secretsKey, settings.APIKeyEnc)
			if err != nil {
				return cfg, err
			}
			cfg.APIKey = apiKey
		}
	}
	if requiresAPIKey(cfg.Provider) && cfg.APIKey == "" {
		return cfg, errors.New("missing API key for provider")
	}
	return cfg, nil
}

func requiresAPIKey(provider string) bool {
	switch provider {
	case "openai", "openrouter":
		return true
	default:
		return false
	}
}

func (a *ChatActivities) resolveSearcher(ctx context.Context) (search.Searcher, int) {
	enabled := a.searchEnabled
	maxResults := a.searchResults
	if settings, err := a.store.GetSearchSettings(ctx); err == nil && settings != nil {
		enabled = settings.Enabled
		if settings.MaxResults > 0 {
			maxResults = settings.MaxResults
		}
	}
	if !enabled {
		return nil, maxResults
	}
	return newSearcher(a.searchTimeout), maxResults
}

func (a *ChatActivities) recordSearches(ctx context.Context, chatID string, calls []agent.SearchCall) {
	for _, call := range calls {
		results := make([]store.SearchResult, 0, len(call.Results))
		for _, result := range call.Results {
			results = append(results, store.SearchResult{
				Title:   result.Title,
				URL:     result.URL,
				Snippet: result.Snippet,
			})
		}
		record := store.SearchRecord{
			ID:        uuid.New().String(),
			ChatID:    chatID,
			Query:     call.Query,
			Results:   results,
			Error:     call.Err,
			CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		}
		if err := a.store.AddSearch(ctx, record); err != nil {
			continue
		}
		payload := map[string]any{
			"search_id":    record.ID,
			"query":        call.Query,
			"result_count": len(results),
		}
		if call.Err != "" {
			payload["error"] = call.Err
		}
		_ = a.emitEvent(ctx, chatID, events.TypeSearchCompleted, payload)
	}
}

func (a *ChatActivities) maybeGenerateChatTitle(ctx context.Context, chatID string, provider llm.Provider, messages []store.Message, assistantReply string) {
	if strings.TrimSpace(assistantReply) == "" {
		return
	}
	storedEvents, err := a.store.ListEvents(ctx, chatID, 0)
	if err == nil {
		for i := len(storedEvents) - 1; i >= 0; i-- {
			if storedEvents[i].Type != events.TypeChatTitleUpdated {
				continue
			}
			if title, ok := storedEvents[i].Payload["title"].(string); ok && strings.TrimSpace(title) != "" {
				return
			}
		}
	}
	latestUser := latestUserMessage(messages)
	if latestUser == "" {
		return
	}
	titlePrompt := []llm.Message{
		{Role: "system", Content: "Generate a concise chat title (3-6 words). Return only the title text, no punctuation wrappers."},
		{Role: "user", Content: fmt.Sprintf("User request: %s\n\nAssistant response: %s", truncateRunes(latestUser, 280), truncateRunes(strings.TrimSpace(assistantReply), 600))},
	}
	titleCtx, cancel := context.WithTimeout(ctx, chatTitleGenerateTimeout)
	defer cancel()
	completion, err := provider.Generate(titleCtx, llm.Request{Messages: titlePrompt})
	if err != nil {
		return
	}
	title := sanitizeChatTitle(completion.Content)
	if title == "" {
		return
	}
	_ = a.appendLocalEvent(ctx, chatID, events.TypeChatTitleUpdated, map[string]any{"title": title})
}

func sanitizeChatTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, "`\"' ")
	if idx := strings.Index(title, "\n"); idx >= 0 {
		title = strings.TrimSpace(title[:idx])
	}
	title = strings.TrimSuffix(title, ".")
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}
	return truncateRunes(title, 72)
}

func latestUserMessage(messages []store.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}
		if content := strings.TrimSpace(messages[i].Content); content != "" {
			return content
		}
	}
	return ""
}

func truncateRunes(value string, limit int) string {
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}

// emitEvent posts the event to the control plane so live subscribers see it;
// when the control plane is unreachable it appends straight to the store.
func (a *ChatActivities) emitEvent(ctx context.Context, chatID string, eventType string, payload map[string]any) error {
	if err := a.postEvent(ctx, chatID, eventType, payload); err == nil {
		return nil
	}
	return a.appendLocalEvent(ctx, chatID, eventType, payload)
}

func (a *ChatActivities) appendLocalEvent(ctx context.Context, chatID string, eventType string, payload map[string]any) error {
	seq, err := a.store.NextSeq(ctx, chatID)
	if err != nil {
		return err
	}
	return a.store.AppendEvent(ctx, store.ChatEvent{
		ChatID:    chatID,
		Seq:       seq,
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Source:    "worker",
		TraceID:   uuid.New().String(),
		Payload:   payload,
	})
}

func (a *ChatActivities) postMessage(ctx context.Context, chatID string, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return errors.New("assistant message content empty")
	}
	url := fmt.Sprintf("%s/chats/%s/messages", a.controlPlane, chatID)
	body, err := marshalJSON(map[string]string{
		"role":    "assistant",
		"content": content,
	})
	if err != nil {
		return err
	}
	requestCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("control plane message failed: %s", resp.Status)
	}
	return nil
}

func (a *ChatActivities) postEvent(ctx context.Context, chatID string, eventType string, payload map[string]any) error {
	url := fmt.Sprintf("%s/chats/%s/events", a.controlPlane, chatID)
	body, err := marshalJSON(map[string]any{
		"type":      eventType,
		"source":    "worker",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"trace_id":  uuid.New().String(),
		"payload":   payload,
	})
	if err != nil {
		return err
	}
	requestCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("control plane event failed: %s", resp.Status)
	}
	return nil
}
