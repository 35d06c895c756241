package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fennec-ai/fennec/internal/events"
	"github.com/fennec-ai/fennec/internal/metrics"
	"github.com/fennec-ai/fennec/internal/store"
)

type createChatRequest struct {
	Question string         `json:"question"`
	Model    string         `json:"model"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) createChat(w http.ResponseWriter, r *http.Request) {
	req := createChatRequest{}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
	}
	id := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	chat := store.Chat{
		ID:        id,
		Status:    store.StatusRunning,
		Model:     strings.TrimSpace(req.Model),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateChat(r.Context(), chat); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.ChatsStartedTotal.Inc()

	if s.workflows != nil {
		_ = s.workflows.StartChat(r.Context(), id)
	}

	s.emitEvent(r, store.ChatEvent{
		ChatID:    id,
		Type:      events.TypeChatStarted,
		Timestamp: now,
		Source:    "control_plane",
		Payload: map[string]any{
			"status": store.StatusRunning,
			"model":  chat.Model,
		},
	})

	question := strings.TrimSpace(req.Question)
	if question != "" {
		msg := store.Message{
			ID:        uuid.New().String(),
			ChatID:    id,
			Role:      "user",
			Content:   question,
			Sequence:  time.Now().UnixNano(),
			CreatedAt: now,
			Metadata:  req.Metadata,
		}
		if err := s.store.AddMessage(r.Context(), msg); err == nil {
			if s.workflows != nil {
				_ = s.workflows.SignalMessage(r.Context(), id, question)
			}
			s.emitEvent(r, store.ChatEvent{
				ChatID:    id,
				Type:      events.TypeMessageUser,
				Timestamp: now,
				Source:    "control_plane",
				Payload: map[string]any{
					"message_id": msg.ID,
					"role":       msg.Role,
					"content":    msg.Content,
				},
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"chat_id": id,
		"status":  store.StatusRunning,
	})
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListChats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	items := make([]map[string]any, 0, len(summaries))
	for _, summary := range summaries {
		items = append(items, map[string]any{
			"chat_id":       summary.ID,
			"status":        summary.Status,
			"title":         summary.Title,
			"model":         summary.Model,
			"created_at":    summary.CreatedAt,
			"updated_at":    summary.UpdatedAt,
			"message_count": summary.MessageCount,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"chats": items})
}

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	chat, err := s.store.GetChat(r.Context(), chatID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if chat == nil {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"chat_id":    chat.ID,
		"status":     chat.Status,
		"title":      chat.Title,
		"model":      chat.Model,
		"created_at": chat.CreatedAt,
		"updated_at": chat.UpdatedAt,
	})
}

func (s *Server) deleteChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	if s.workflows != nil {
		_ = s.workflows.CancelChat(r.Context(), chatID)
	}
	if err := s.store.DeleteChat(r.Context(), chatID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addMessageRequest struct {
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) addMessage(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	var req addMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "content required", http.StatusBadRequest)
		return
	}

	msg := store.Message{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		Role:      req.Role,
		Content:   req.Content,
		Sequence:  time.Now().UnixNano(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Metadata:  req.Metadata,
	}
	if err := s.store.AddMessage(r.Context(), msg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if s.workflows != nil && req.Role == "user" {
		_ = s.workflows.SignalMessage(r.Context(), chatID, req.Content)
	}

	eventType := events.TypeMessageAssistant
	if req.Role == "user" {
		eventType = events.TypeMessageUser
	}
	s.emitEvent(r, store.ChatEvent{
		ChatID:    chatID,
		Type:      eventType,
		Timestamp: msg.CreatedAt,
		Source:    "control_plane",
		Payload:   map[string]any{"message_id": msg.ID, "role": msg.Role, "content": msg.Content},
	})

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	messages, err := s.store.ListMessages(r.Context(), chatID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	items := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		item := map[string]any{
			"message_id": msg.ID,
			"role":       msg.Role,
			"content":    msg.Content,
			"created_at": msg.CreatedAt,
		}
		if msg.ToolName != "" {
			item["tool_name"] = msg.ToolName
		}
		items = append(items, item)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": items})
}

func (s *Server) cancelChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	if s.workflows != nil {
		_ = s.workflows.CancelChat(r.Context(), chatID)
	}
	s.emitEvent(r, store.ChatEvent{
		ChatID:    chatID,
		Type:      events.TypeChatCancelled,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Source:    "control_plane",
		Payload:   map[string]any{"reason": "user_requested"},
	})
	w.WriteHeader(http.StatusAccepted)
}

type ingestEventRequest struct {
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	TraceID   string         `json:"trace_id"`
	Payload   map[string]any `json:"payload"`
}

// ingestEvent accepts events posted back by the worker's activities.
func (s *Server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	var req ingestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		http.Error(w, "event type required", http.StatusBadRequest)
		return
	}

	timestamp := req.Timestamp
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	s.emitEvent(r, store.ChatEvent{
		ChatID:    chatID,
		Type:      events.NormalizeType(req.Type),
		Timestamp: timestamp,
		Source:    req.Source,
		TraceID:   strings.TrimSpace(req.TraceID),
		Payload:   req.Payload,
	})

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) listSearches(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	records, err := s.store.ListSearches(r.Context(), chatID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		item := map[string]any{
			"search_id":  record.ID,
			"query":      record.Query,
			"results":    record.Results,
			"created_at": record.CreatedAt,
		}
		if record.Error != "" {
			item["error"] = record.Error
		}
		items = append(items, item)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"searches": items})
}

// emitEvent assigns the next sequence number, persists the event, and fans it
// out to live subscribers.
func (s *Server) emitEvent(r *http.Request, event store.ChatEvent) {
	seq, err := s.store.NextSeq(r.Context(), event.ChatID)
	if err != nil {
		s.logger.Warn().Err(err).Str("chat_id", event.ChatID).Msg("next seq failed")
		return
	}
	event.Seq = seq
	if event.TraceID == "" {
		event.TraceID = uuid.New().String()
	}
	if err := s.store.AppendEvent(r.Context(), event); err != nil {
		s.logger.Warn().Err(err).Str("chat_id", event.ChatID).Msg("append event failed")
	}
	s.broker.Publish(toEvent(event))
}
