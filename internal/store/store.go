// Package store defines the persistence contract shared by the in-memory and
// postgres backends.
package store

import "context"

// Chat statuses as derived from the event log.
const (
	StatusRunning   = "running"
	StatusThinking  = "thinking"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

type Chat struct {
	ID        string
	Status    string
	Title     string
	Model     string
	CreatedAt string
	UpdatedAt string
}

type ChatSummary struct {
	ID           string
	Status       string
	Title        string
	Model        string
	CreatedAt    string
	UpdatedAt    string
	MessageCount int64
}

type Message struct {
	ID         string
	ChatID     string
	Role       string
	Content    string
	ToolCallID string
	ToolName   string
	Sequence   int64
	CreatedAt  string
	Metadata   map[string]any
}

type ChatEvent struct {
	ChatID    string
	Seq       int64
	Type      string
	Timestamp string
	Source    string
	TraceID   string
	Payload   map[string]any
}

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type SearchRecord struct {
	ID        string
	ChatID    string
	Query     string
	Results   []SearchResult
	Error     string
	CreatedAt string
}

type LLMSettings struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKeyEnc string
	CreatedAt string
	UpdatedAt string
}

type SearchSettings struct {
	Enabled    bool
	MaxResults int
	CreatedAt  string
	UpdatedAt  string
}

type Store interface {
	CreateChat(ctx context.Context, chat Chat) error
	GetChat(ctx context.Context, chatID string) (*Chat, error)
	ListChats(ctx context.Context) ([]ChatSummary, error)
	DeleteChat(ctx context.Context, chatID string) error
	AddMessage(ctx context.Context, msg Message) error
	ListMessages(ctx context.Context, chatID string) ([]Message, error)
	AppendEvent(ctx context.Context, event ChatEvent) error
	ListEvents(ctx context.Context, chatID string, afterSeq int64) ([]ChatEvent, error)
	NextSeq(ctx context.Context, chatID string) (int64, error)
	AddSearch(ctx context.Context, record SearchRecord) error
	ListSearches(ctx context.Context, chatID string) ([]SearchRecord, error)
	GetLLMSettings(ctx context.Context) (*LLMSettings, error)
	UpsertLLMSettings(ctx context.Context, settings LLMSettings) error
	GetSearchSettings(ctx context.Context) (*SearchSettings, error)
	UpsertSearchSettings(ctx context.Context, settings SearchSettings) error
}
