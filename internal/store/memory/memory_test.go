package memory

import (
	"context"
	"testing"
	"time"

	"github.com/fennec-ai/fennec/internal/store"
)

func TestCreateGetDeleteChat(t *testing.T) {
	m := New()
	ctx := context.Background()

	chat := store.Chat{ID: "chat-1", Model: "qwen3:8b", CreatedAt: "2026-01-01T00:00:00Z"}
	if err := m.CreateChat(ctx, chat); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := m.GetChat(ctx, "chat-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected chat")
	}
	if got.Status != store.StatusRunning {
		t.Errorf("status = %q, want default running", got.Status)
	}

	if err := m.DeleteChat(ctx, "chat-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = m.GetChat(ctx, "chat-1")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil after delete")
	}
}

func TestGetChat_Missing(t *testing.T) {
	m := New()
	got, err := m.GetChat(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing chat")
	}
}

func TestListChats_TitleFallbackAndCount(t *testing.T) {
	m := New()
	ctx := context.Background()

	if err := m.CreateChat(ctx, store.Chat{ID: "chat-1", CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = m.AddMessage(ctx, store.Message{ID: "m1", ChatID: "chat-1", Role: "system", Content: "You are Fennec."})
	_ = m.AddMessage(ctx, store.Message{ID: "m2", ChatID: "chat-1", Role: "user", Content: "What is the capital of France?"})

	summaries, err := m.ListChats(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("summaries = %d, want 1", len(summaries))
	}
	if summaries[0].MessageCount != 2 {
		t.Errorf("message count = %d", summaries[0].MessageCount)
	}
	if summaries[0].Title != "What is the capital of France?" {
		t.Errorf("title = %q, want first user message", summaries[0].Title)
	}
}

func TestListChats_SortedByUpdatedAt(t *testing.T) {
	m := New()
	ctx := context.Background()

	_ = m.CreateChat(ctx, store.Chat{ID: "old", UpdatedAt: "2026-01-01T00:00:00Z"})
	_ = m.CreateChat(ctx, store.Chat{ID: "new", UpdatedAt: "2026-02-01T00:00:00Z"})

	summaries, err := m.ListChats(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if summaries[0].ID != "new" || summaries[1].ID != "old" {
		t.Fatalf("order = [%s %s]", summaries[0].ID, summaries[1].ID)
	}
}

func TestAddListMessages(t *testing.T) {
	m := New()
	ctx := context.Background()

	msg := store.Message{
		ID:       "m1",
		ChatID:   "chat-1",
		Role:     "tool",
		ToolName: "web_search",
		Content:  "Title: T\nSnippet: S",
		Metadata: map[string]any{"query": "go release"},
	}
	if err := m.AddMessage(ctx, msg); err != nil {
		t.Fatalf("add: %v", err)
	}

	messages, err := m.ListMessages(ctx, "chat-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("messages = %d", len(messages))
	}
	if messages[0].ToolName != "web_search" {
		t.Errorf("tool name = %q", messages[0].ToolName)
	}

	// Stored copy must not alias the caller's metadata map.
	msg.Metadata["query"] = "changed"
	messages, _ = m.ListMessages(ctx, "chat-1")
	if messages[0].Metadata["query"] != "go release" {
		t.Error("metadata aliased caller map")
	}
}

func TestAppendEvent_NormalizesTypeAndAppliesState(t *testing.T) {
	m := New()
	ctx := context.Background()

	_ = m.CreateChat(ctx, store.Chat{ID: "chat-1"})
	if err := m.AppendEvent(ctx, store.ChatEvent{
		ChatID:    "chat-1",
		Seq:       1,
		Type:      " Chat_Failed ",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	events, err := m.ListEvents(ctx, "chat-1", 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].Type != "chat.failed" {
		t.Fatalf("events = %+v", events)
	}

	chat, _ := m.GetChat(ctx, "chat-1")
	if chat.Status != store.StatusFailed {
		t.Errorf("status = %q, want failed", chat.Status)
	}
}

func TestAppendEvent_TitleUpdate(t *testing.T) {
	m := New()
	ctx := context.Background()

	_ = m.CreateChat(ctx, store.Chat{ID: "chat-1"})
	_ = m.AppendEvent(ctx, store.ChatEvent{
		ChatID:  "chat-1",
		Seq:     1,
		Type:    "chat.title.updated",
		Payload: map[string]any{"title": "Capital of France"},
	})

	chat, _ := m.GetChat(ctx, "chat-1")
	if chat.Title != "Capital of France" {
		t.Errorf("title = %q", chat.Title)
	}
}

func TestListEvents_AfterSeq(t *testing.T) {
	m := New()
	ctx := context.Background()

	for seq := int64(1); seq <= 5; seq++ {
		_ = m.AppendEvent(ctx, store.ChatEvent{ChatID: "chat-1", Seq: seq, Type: "message.user"})
	}

	events, err := m.ListEvents(ctx, "chat-1", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Seq != 4 || events[1].Seq != 5 {
		t.Fatalf("seqs = [%d %d]", events[0].Seq, events[1].Seq)
	}
}

func TestNextSeq_Monotonic(t *testing.T) {
	m := New()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		seq, err := m.NextSeq(ctx, "chat-1")
		if err != nil {
			t.Fatalf("next seq: %v", err)
		}
		if seq != want {
			t.Fatalf("seq = %d, want %d", seq, want)
		}
	}

	seq, _ := m.NextSeq(ctx, "chat-2")
	if seq != 1 {
		t.Fatalf("independent chat seq = %d, want 1", seq)
	}
}

func TestAddListSearches(t *testing.T) {
	m := New()
	ctx := context.Background()

	record := store.SearchRecord{
		ID:     "s1",
		ChatID: "chat-1",
		Query:  "latest go release",
		Results: []store.SearchResult{
			{Title: "Go 1.24 is released!", URL: "https://go.dev/blog/go1.24", Snippet: "Today..."},
		},
	}
	if err := m.AddSearch(ctx, record); err != nil {
		t.Fatalf("add: %v", err)
	}

	records, err := m.ListSearches(ctx, "chat-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].Query != "latest go release" {
		t.Fatalf("records = %+v", records)
	}
	if len(records[0].Results) != 1 {
		t.Fatalf("results = %d", len(records[0].Results))
	}

	records[0].Results[0].Title = "mutated"
	fresh, _ := m.ListSearches(ctx, "chat-1")
	if fresh[0].Results[0].Title != "Go 1.24 is released!" {
		t.Error("results aliased between calls")
	}
}

func TestLLMSettings_RoundTrip(t *testing.T) {
	m := New()
	ctx := context.Background()

	settings, err := m.GetLLMSettings(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if settings != nil {
		t.Fatal("expected nil before upsert")
	}

	if err := m.UpsertLLMSettings(ctx, store.LLMSettings{Provider: "ollama", Model: "qwen3:8b"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	settings, err = m.GetLLMSettings(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if settings == nil || settings.Provider != "ollama" || settings.Model != "qwen3:8b" {
		t.Fatalf("settings = %+v", settings)
	}
}

func TestSearchSettings_RoundTrip(t *testing.T) {
	m := New()
	ctx := context.Background()

	settings, err := m.GetSearchSettings(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if settings != nil {
		t.Fatal("expected nil before upsert")
	}

	if err := m.UpsertSearchSettings(ctx, store.SearchSettings{Enabled: true, MaxResults: 3}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	settings, err = m.GetSearchSettings(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if settings == nil || !settings.Enabled || settings.MaxResults != 3 {
		t.Fatalf("settings = %+v", settings)
	}
}
