package main

import (
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/fennec-ai/fennec/internal/config"
	"github.com/fennec-ai/fennec/internal/llm"
	"github.com/fennec-ai/fennec/internal/log"
	"github.com/fennec-ai/fennec/internal/secrets"
	"github.com/fennec-ai/fennec/internal/store"
	"github.com/fennec-ai/fennec/internal/store/memory"
	"github.com/fennec-ai/fennec/internal/store/postgres"
	"github.com/fennec-ai/fennec/internal/workflows"
)

var (
	loadConfig = func() (config.Config, error) {
		return config.Load(), nil
	}
	dialTemporal = client.Dial
	newStore     = func(conn string) (store.Store, error) {
		return postgres.New(conn)
	}
	newMemoryStore = func() store.Store {
		return memory.New()
	}
	parseSecretsKey = secrets.ParseKey
	newActivities   = func(st store.Store, cfg llm.Config, secretsKey []byte, controlPlaneURL string, opts ...workflows.ChatActivitiesOption) *workflows.ChatActivities {
		return workflows.NewChatActivities(st, cfg, secretsKey, controlPlaneURL, opts...)
	}
	newWorker       = worker.New
	workerInterrupt = worker.InterruptCh
)

func main() {
	if err := run(); err != nil {
		logger := log.Base()
		logger.Fatal().Err(err).Msg("fennec worker exited")
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Service: "fennec-worker"})
	logger := log.WithComponent("main")

	temporalClient, err := dialTemporal(client.Options{
		HostPort: cfg.TemporalAddress,
	})
	if err != nil {
		return err
	}
	if temporalClient != nil {
		defer temporalClient.Close()
	}

	chatStore, err := newStore(cfg.PostgresURL)
	if err != nil {
		logger.Warn().Err(err).Msg("postgres unavailable, using in-memory store")
		chatStore = newMemoryStore()
	}

	var secretsKey []byte
	if cfg.LLMSecretsKey != "" {
		parsed, err := parseSecretsKey(cfg.LLMSecretsKey)
		if err != nil {
			return err
		}
		secretsKey = parsed
	}

	apiKey := ""
	switch cfg.LLMProvider {
	case "openai":
		apiKey = cfg.OpenAIAPIKey
	case "openrouter":
		apiKey = cfg.OpenRouterAPIKey
	}

	activities := newActivities(chatStore, llm.Config{
		Provider: cfg.LLMProvider,
		Model:    cfg.LLMModel,
		BaseURL:  cfg.LLMBaseURL,
		APIKey:   apiKey,
	}, secretsKey, cfg.PublicURL, workflows.WithSearchConfig(
		cfg.SearchEnabled,
		cfg.SearchMaxResults,
		time.Duration(cfg.SearchTimeoutSecs)*time.Second,
	))

	w := newWorker(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.ChatWorkflow)
	w.RegisterActivity(activities)

	logger.Info().Str("task_queue", cfg.TemporalTaskQueue).Msg("fennec worker started")
	if err := w.Run(workerInterrupt()); err != nil {
		return err
	}

	return nil
}
