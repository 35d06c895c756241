// Package memory is the map-backed Store used in tests and when no postgres
// URL is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fennec-ai/fennec/internal/store"
)

type MemoryStore struct {
	mu       sync.RWMutex
	chats    map[string]store.Chat
	events   map[string][]store.ChatEvent
	messages map[string][]store.Message
	searches map[string][]store.SearchRecord
	seq      map[string]int64
	llm      *store.LLMSettings
	search   *store.SearchSettings
}

func New() *MemoryStore {
	return &MemoryStore{
		chats:    map[string]store.Chat{},
		events:   map[string][]store.ChatEvent{},
		messages: map[string][]store.Message{},
		searches: map[string][]store.SearchRecord{},
		seq:      map[string]int64{},
	}
}

func (m *MemoryStore) CreateChat(ctx context.Context, chat store.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(chat.Status) == "" {
		chat.Status = store.StatusRunning
	}
	m.chats[chat.ID] = chat
	return nil
}

func (m *MemoryStore) GetChat(ctx context.Context, chatID string) (*store.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return nil, nil
	}
	copy := chat
	return &copy, nil
}

func (m *MemoryStore) ListChats(ctx context.Context) ([]store.ChatSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]store.ChatSummary, 0, len(m.chats))
	for _, chat := range m.chats {
		summary := store.ChatSummary{
			ID:        chat.ID,
			Status:    chat.Status,
			Title:     chat.Title,
			Model:     chat.Model,
			CreatedAt: chat.CreatedAt,
			UpdatedAt: chat.UpdatedAt,
		}
		if messages := m.messages[chat.ID]; len(messages) > 0 {
			summary.MessageCount = int64(len(messages))
			if strings.TrimSpace(summary.Title) == "" {
				for _, msg := range messages {
					if msg.Role == "user" {
						summary.Title = msg.Content
						break
					}
				}
			}
		}
		results = append(results, summary)
	}
	sort.Slice(results, func(i, j int) bool {
		left := parseTime(results[i].UpdatedAt)
		right := parseTime(results[j].UpdatedAt)
		return left.After(right)
	})
	return results, nil
}

func (m *MemoryStore) DeleteChat(ctx context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chats, chatID)
	delete(m.events, chatID)
	delete(m.messages, chatID)
	delete(m.searches, chatID)
	delete(m.seq, chatID)
	return nil
}

func (m *MemoryStore) AddMessage(ctx context.Context, msg store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := msg
	copy.Metadata = cloneMap(msg.Metadata)
	m.messages[msg.ChatID] = append(m.messages[msg.ChatID], copy)
	return nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, chatID string) ([]store.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	messages := m.messages[chatID]
	return append([]store.Message{}, messages...), nil
}

func (m *MemoryStore) AppendEvent(ctx context.Context, event store.ChatEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.Type = normalizeEventType(event.Type)
	event.Payload = cloneMap(event.Payload)
	m.events[event.ChatID] = append(m.events[event.ChatID], event)
	m.applyChatStateLocked(event)
	return nil
}

func (m *MemoryStore) ListEvents(ctx context.Context, chatID string, afterSeq int64) ([]store.ChatEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.events[chatID]
	if afterSeq <= 0 {
		return append([]store.ChatEvent{}, events...), nil
	}
	filtered := []store.ChatEvent{}
	for _, event := range events {
		if event.Seq > afterSeq {
			filtered = append(filtered, event)
		}
	}
	return filtered, nil
}

func (m *MemoryStore) NextSeq(ctx context.Context, chatID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[chatID] += 1
	return m.seq[chatID], nil
}

func (m *MemoryStore) AddSearch(ctx context.Context, record store.SearchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := record
	copy.Results = append([]store.SearchResult{}, record.Results...)
	m.searches[record.ChatID] = append(m.searches[record.ChatID], copy)
	return nil
}

func (m *MemoryStore) ListSearches(ctx context.Context, chatID string) ([]store.SearchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.searches[chatID]
	cloned := make([]store.SearchRecord, 0, len(records))
	for _, record := range records {
		copy := record
		copy.Results = append([]store.SearchResult{}, record.Results...)
		cloned = append(cloned, copy)
	}
	return cloned, nil
}

func (m *MemoryStore) GetLLMSettings(ctx context.Context) (*store.LLMSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.llm == nil {
		return nil, nil
	}
	copy := *m.llm
	return &copy, nil
}

func (m *MemoryStore) UpsertLLMSettings(ctx context.Context, settings store.LLMSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := settings
	m.llm = &copy
	return nil
}

func (m *MemoryStore) GetSearchSettings(ctx context.Context) (*store.SearchSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.search == nil {
		return nil, nil
	}
	copy := *m.search
	return &copy, nil
}

func (m *MemoryStore) UpsertSearchSettings(ctx context.Context, settings store.SearchSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := settings
	m.search = &copy
	return nil
}

func (m *MemoryStore) applyChatStateLocked(event store.ChatEvent) {
	chat, ok := m.chats[event.ChatID]
	if !ok {
		return
	}
	switch event.Type {
	case "chat.started":
		chat.Status = store.StatusRunning
	case "answer.started":
		chat.Status = store.StatusThinking
	case "message.assistant":
		chat.Status = store.StatusRunning
	case "chat.failed":
		chat.Status = store.StatusFailed
	case "chat.cancelled":
		chat.Status = store.StatusCancelled
	case "chat.title.updated":
		if title := readString(event.Payload, "title"); title != "" {
			chat.Title = title
		}
	}
	if strings.TrimSpace(event.Timestamp) != "" {
		chat.UpdatedAt = event.Timestamp
	}
	m.chats[event.ChatID] = chat
}

func normalizeEventType(eventType string) string {
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		return ""
	}
	return strings.ReplaceAll(normalized, "_", ".")
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func readString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	raw, ok := metadata[key]
	if !ok {
		return ""
	}
	value, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func cloneMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
