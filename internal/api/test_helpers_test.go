package api

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/fennec-ai/fennec/internal/config"
	"github.com/fennec-ai/fennec/internal/events"
	"github.com/fennec-ai/fennec/internal/llm"
	"github.com/fennec-ai/fennec/internal/store"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateChat(ctx context.Context, chat store.Chat) error {
	args := m.Called(ctx, chat)
	return args.Error(0)
}

func (m *MockStore) GetChat(ctx context.Context, chatID string) (*store.Chat, error) {
	args := m.Called(ctx, chatID)
	if value := args.Get(0); value != nil {
		return value.(*store.Chat), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) ListChats(ctx context.Context) ([]store.ChatSummary, error) {
	args := m.Called(ctx)
	var result []store.ChatSummary
	if value := args.Get(0); value != nil {
		result = value.([]store.ChatSummary)
	}
	return result, args.Error(1)
}

func (m *MockStore) DeleteChat(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *MockStore) AddMessage(ctx context.Context, msg store.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockStore) ListMessages(ctx context.Context, chatID string) ([]store.Message, error) {
	args := m.Called(ctx, chatID)
	var result []store.Message
	if value := args.Get(0); value != nil {
		result = value.([]store.Message)
	}
	return result, args.Error(1)
}

func (m *MockStore) AppendEvent(ctx context.Context, event store.ChatEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockStore) ListEvents(ctx context.Context, chatID string, afterSeq int64) ([]store.ChatEvent, error) {
	args := m.Called(ctx, chatID, afterSeq)
	var result []store.ChatEvent
	if value := args.Get(0); value != nil {
		result = value.([]store.ChatEvent)
	}
	return result, args.Error(1)
}

func (m *MockStore) NextSeq(ctx context.Context, chatID string) (int64, error) {
	args := m.Called(ctx, chatID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) AddSearch(ctx context.Context, record store.SearchRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockStore) ListSearches(ctx context.Context, chatID string) ([]store.SearchRecord, error) {
	args := m.Called(ctx, chatID)
	var result []store.SearchRecord
	if value := args.Get(0); value != nil {
		result = value.([]store.SearchRecord)
	}
	return result, args.Error(1)
}

func (m *MockStore) GetLLMSettings(ctx context.Context) (*store.LLMSettings, error) {
	args := m.Called(ctx)
	if value := args.Get(0); value != nil {
		return value.(*store.LLMSettings), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) UpsertLLMSettings(ctx context.Context, settings store.LLMSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MockStore) GetSearchSettings(ctx context.Context) (*store.SearchSettings, error) {
	args := m.Called(ctx)
	if value := args.Get(0); value != nil {
		return value.(*store.SearchSettings), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) UpsertSearchSettings(ctx context.Context, settings store.SearchSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) Publish(event events.ChatEvent) {
	m.Called(event)
}

func (m *MockBroker) Subscribe(ctx context.Context, chatID string) <-chan events.ChatEvent {
	args := m.Called(ctx, chatID)
	if value := args.Get(0); value != nil {
		if ch, ok := value.(chan events.ChatEvent); ok {
			return ch
		}
		if ch, ok := value.(<-chan events.ChatEvent); ok {
			return ch
		}
	}
	return nil
}

type MockWorkflowService struct {
	mock.Mock
}

func (m *MockWorkflowService) StartChat(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *MockWorkflowService) SignalMessage(ctx context.Context, chatID string, message string) error {
	args := m.Called(ctx, chatID, message)
	return args.Error(0)
}

func (m *MockWorkflowService) CancelChat(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Generate(ctx context.Context, req llm.Request) (llm.Completion, error) {
	args := m.Called(ctx, req)
	if value := args.Get(0); value != nil {
		return value.(llm.Completion), args.Error(1)
	}
	return llm.Completion{}, args.Error(1)
}

func newTestServer(t *testing.T, store store.Store, broker Broker, workflows WorkflowService, cfg config.Config) *httptest.Server {
	t.Helper()
	server := NewServer(store, broker, workflows, cfg)
	return httptest.NewServer(server.Router())
}
