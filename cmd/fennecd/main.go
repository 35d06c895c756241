package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"

	"github.com/fennec-ai/fennec/internal/api"
	"github.com/fennec-ai/fennec/internal/config"
	"github.com/fennec-ai/fennec/internal/events"
	"github.com/fennec-ai/fennec/internal/log"
	"github.com/fennec-ai/fennec/internal/store"
	"github.com/fennec-ai/fennec/internal/store/memory"
	"github.com/fennec-ai/fennec/internal/store/postgres"
	"github.com/fennec-ai/fennec/internal/workflows"
)

type server interface {
	Start(ctx context.Context, addr string) error
}

var (
	loadConfig = func() (config.Config, error) {
		return config.Load(), nil
	}
	newBroker = events.NewBroker
	newStore  = func(conn string) (store.Store, error) {
		return postgres.New(conn)
	}
	newMemoryStore = func() store.Store {
		return memory.New()
	}
	dialTemporal       = client.Dial
	newWorkflowService = workflows.NewService
	newServer          = func(st store.Store, broker *events.Broker, workflowService *workflows.Service, cfg config.Config) server {
		return api.NewServer(st, broker, workflowService, cfg)
	}
	notifyContext = signal.NotifyContext
)

func main() {
	if err := run(); err != nil {
		logger := log.Base()
		logger.Fatal().Err(err).Msg("fennecd exited")
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Service: "fennecd"})
	logger := log.WithComponent("main")

	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broker := newBroker()
	chatStore, err := newStore(cfg.PostgresURL)
	if err != nil {
		// Postgres is optional for local use; fall back to the in-memory
		// store so the service still comes up.
		logger.Warn().Err(err).Msg("postgres unavailable, using in-memory store")
		chatStore = newMemoryStore()
	}

	workflowClient, err := dialTemporal(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		return err
	}
	if workflowClient != nil {
		defer workflowClient.Close()
	}
	workflowService := newWorkflowService(workflowClient, cfg.TemporalTaskQueue)

	apiServer := newServer(chatStore, broker, workflowService, cfg)

	addr := fmt.Sprintf(":%s", cfg.Port)
	logger.Info().Str("addr", addr).Msg("fennec control plane listening")
	if err := apiServer.Start(ctx, addr); err != nil {
		return err
	}

	return nil
}
