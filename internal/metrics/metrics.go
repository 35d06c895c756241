// Package metrics provides Prometheus metrics for the fennec answer pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChatsStartedTotal counts chats created through the API.
	ChatsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fennec_chats_started_total",
		Help: "Total number of chats created.",
	})

	// AnswersTotal counts completed answers by outcome (ok, error).
	AnswersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fennec_answers_total",
		Help: "Total number of generated answers, by outcome.",
	}, []string{"outcome"})

	// LLMRequestsTotal counts chat-completion requests by provider and outcome.
	LLMRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fennec_llm_requests_total",
		Help: "Total number of LLM chat-completion requests, by provider and outcome.",
	}, []string{"provider", "outcome"})

	// LLMRequestDuration observes chat-completion latency by provider.
	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fennec_llm_request_duration_seconds",
		Help:    "Latency of LLM chat-completion requests, by provider.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 35},
	}, []string{"provider"})

	// SearchesTotal counts web searches by outcome.
	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fennec_web_searches_total",
		Help: "Total number of web searches performed, by outcome.",
	}, []string{"outcome"})
)
