// Package api exposes the fennec control-plane HTTP surface: chat CRUD, the
// SSE event stream, the synchronous /ask endpoint, and settings.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fennec-ai/fennec/internal/config"
	"github.com/fennec-ai/fennec/internal/events"
	"github.com/fennec-ai/fennec/internal/log"
	"github.com/fennec-ai/fennec/internal/store"
	"github.com/fennec-ai/fennec/internal/webui"
)

type Server struct {
	store      store.Store
	broker     Broker
	workflows  WorkflowService
	cfg        config.Config
	httpClient *http.Client
	logger     zerolog.Logger
}

type Broker interface {
	Publish(event events.ChatEvent)
	Subscribe(ctx context.Context, chatID string) <-chan events.ChatEvent
}

type WorkflowService interface {
	StartChat(ctx context.Context, chatID string) error
	SignalMessage(ctx context.Context, chatID string, message string) error
	CancelChat(ctx context.Context, chatID string) error
}

func NewServer(store store.Store, broker Broker, workflows WorkflowService, cfg config.Config) *Server {
	return &Server{
		store:      store,
		broker:     broker,
		workflows:  workflows,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.WithComponent("api"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Post("/chats", s.createChat)
	r.Get("/chats", s.listChats)
	r.Get("/chats/{id}", s.getChat)
	r.Delete("/chats/{id}", s.deleteChat)
	r.Post("/chats/{id}/messages", s.addMessage)
	r.Get("/chats/{id}/messages", s.listMessages)
	r.Post("/chats/{id}/cancel", s.cancelChat)
	r.Post("/chats/{id}/events", s.ingestEvent)
	r.Get("/chats/{id}/events", s.streamEvents)
	r.Get("/chats/{id}/searches", s.listSearches)
	r.Post("/ask", s.ask)
	r.Get("/settings/llm", s.getLLMSettings)
	r.Post("/settings/llm", s.updateLLMSettings)
	r.Post("/settings/llm/test", s.testLLMSettings)
	r.Post("/settings/llm/models", s.listLLMModels)
	r.Get("/settings/search", s.getSearchSettings)
	r.Post("/settings/search", s.updateSearchSettings)
	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/*", webui.Handler())

	return r
}

// requestLogger logs completed requests through zerolog, skipping the chatty
// event-stream and polling routes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSuppressRequestLog(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		started := time.Now()
		recorder := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.Status()).
			Dur("duration", time.Since(started)).
			Msg("request")
	})
}

func shouldSuppressRequestLog(method string, path string) bool {
	cleanPath := strings.TrimSpace(path)
	if strings.HasSuffix(cleanPath, "/events") {
		return true
	}
	if cleanPath == "/metrics" || cleanPath == "/health" || cleanPath == "/ready" {
		return true
	}
	if method == http.MethodGet && (cleanPath == "/chats" || strings.HasPrefix(cleanPath, "/settings/")) {
		return true
	}
	return false
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type subsystemStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status     string                     `json:"status"`
	Subsystems map[string]subsystemStatus `json:"subsystems"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	subsystems := map[string]subsystemStatus{}
	overall := http.StatusOK

	if _, err := s.store.ListChats(ctx); err != nil {
		subsystems["store"] = subsystemStatus{Status: "error", Error: err.Error()}
		overall = http.StatusServiceUnavailable
	} else {
		subsystems["store"] = subsystemStatus{Status: "ok"}
	}

	llmBaseURL := strings.TrimSpace(s.cfg.LLMBaseURL)
	if llmBaseURL == "" && (s.cfg.LLMProvider == "ollama" || s.cfg.LLMProvider == "") {
		llmBaseURL = "http://localhost:11434/v1"
	}
	if llmBaseURL == "" {
		subsystems["llm"] = subsystemStatus{Status: "skipped"}
	} else {
		resp, err := s.probeHTTP(ctx, strings.TrimRight(llmBaseURL, "/")+"/models")
		if err != nil {
			subsystems["llm"] = subsystemStatus{Status: "error", Error: err.Error()}
			overall = http.StatusServiceUnavailable
		} else if resp.StatusCode < 200 || resp.StatusCode >= 500 {
			subsystems["llm"] = subsystemStatus{Status: "error", Error: fmt.Sprintf("probe status %d", resp.StatusCode)}
			overall = http.StatusServiceUnavailable
		} else {
			subsystems["llm"] = subsystemStatus{Status: "ok"}
		}
	}

	status := "ok"
	if overall != http.StatusOK {
		status = "degraded"
	}
	writeJSONStatus(w, readinessResponse{Status: status, Subsystems: subsystems}, overall)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func (s *Server) probeHTTP(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, resp.Body.Close()
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	afterSeq := parseAfterSeq(chatID, r)
	stored, err := s.store.ListEvents(ctx, chatID, afterSeq)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for _, event := range stored {
		sendSSE(w, toEvent(event))
		flusher.Flush()
	}

	eventsChan := s.broker.Subscribe(ctx, chatID)
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-eventsChan:
			if !ok {
				return
			}
			sendSSE(w, event)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func sendSSE(w http.ResponseWriter, event events.ChatEvent) {
	payload, _ := json.Marshal(event)
	fmt.Fprintf(w, "id: %s:%d\n", event.ChatID, event.Seq)
	fmt.Fprint(w, "event: chat_event\n")
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

func toEvent(event store.ChatEvent) events.ChatEvent {
	return events.ChatEvent{
		ChatID:  event.ChatID,
		Seq:     event.Seq,
		Type:    events.NormalizeType(event.Type),
		Ts:      event.Timestamp,
		Source:  event.Source,
		TraceID: event.TraceID,
		Payload: event.Payload,
	}
}

func parseAfterSeq(chatID string, r *http.Request) int64 {
	afterParam := strings.TrimSpace(r.URL.Query().Get("after_seq"))
	if afterParam != "" {
		if parsed, err := strconv.ParseInt(afterParam, 10, 64); err == nil {
			return parsed
		}
	}
	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		return 0
	}
	parts := strings.Split(lastEventID, ":")
	if len(parts) != 2 {
		return 0
	}
	if parts[0] != chatID {
		return 0
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0
	}
	return seq
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()
	return server.ListenAndServe()
}
