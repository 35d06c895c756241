package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fennec-ai/fennec/internal/agent"
	"github.com/fennec-ai/fennec/internal/llm"
	"github.com/fennec-ai/fennec/internal/metrics"
	"github.com/fennec-ai/fennec/internal/persona"
	"github.com/fennec-ai/fennec/internal/search"
)

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer   string            `json:"answer"`
	Searches []askSearchResult `json:"searches,omitempty"`
}

type askSearchResult struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ask runs the full question-to-answer loop synchronously, without creating a
// chat. Model failures come back as the answer text so the caller always gets
// a reply.
func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		http.Error(w, "question required", http.StatusBadRequest)
		return
	}

	providerConfig, err := s.buildLLMConfig(r.Context(), llmSettingsRequest{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	provider, err := newLLMProvider(providerConfig)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	searcher, maxResults := s.resolveSearcher(r)
	opts := []agent.Option{agent.WithMaxResults(maxResults)}
	runner := agent.New(provider, searcher, opts...)

	history := []llm.Message{
		{Role: "system", Content: persona.Resolve()},
		{Role: "user", Content: question},
	}

	ctx := r.Context()
	outcome, err := runner.Answer(ctx, history)
	response := askResponse{Answer: outcome.Content}
	if err != nil {
		// Surfacing the failure as the answer keeps the UI flow intact.
		response.Answer = "An error occurred while communicating with the LLM: " + err.Error()
		metrics.AnswersTotal.WithLabelValues("error").Inc()
	} else {
		metrics.AnswersTotal.WithLabelValues("ok").Inc()
	}
	for _, call := range outcome.Searches {
		response.Searches = append(response.Searches, askSearchResult{
			Query:   call.Query,
			Results: call.Results,
			Error:   call.Err,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// resolveSearcher returns nil when searching is disabled in settings.
func (s *Server) resolveSearcher(r *http.Request) (search.Searcher, int) {
	enabled := s.cfg.SearchEnabled
	maxResults := s.cfg.SearchMaxResults
	if settings, err := s.store.GetSearchSettings(r.Context()); err == nil && settings != nil {
		enabled = settings.Enabled
		if settings.MaxResults > 0 {
			maxResults = settings.MaxResults
		}
	}
	if !enabled {
		return nil, maxResults
	}
	timeout := time.Duration(s.cfg.SearchTimeoutSecs) * time.Second
	return search.NewDuckDuckGo(search.WithTimeout(timeout)), maxResults
}
