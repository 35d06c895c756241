package main

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.temporal.io/sdk/client"

	"github.com/fennec-ai/fennec/internal/config"
	"github.com/fennec-ai/fennec/internal/events"
	"github.com/fennec-ai/fennec/internal/store"
	"github.com/fennec-ai/fennec/internal/store/memory"
	"github.com/fennec-ai/fennec/internal/workflows"
)

type stubServer struct {
	err error
}

func (s stubServer) Start(ctx context.Context, addr string) error {
	return s.err
}

func captureDeps() func() {
	origLoadConfig := loadConfig
	origNewBroker := newBroker
	origNewStore := newStore
	origNewMemoryStore := newMemoryStore
	origDialTemporal := dialTemporal
	origNewWorkflowService := newWorkflowService
	origNewServer := newServer
	origNotifyContext := notifyContext

	return func() {
		loadConfig = origLoadConfig
		newBroker = origNewBroker
		newStore = origNewStore
		newMemoryStore = origNewMemoryStore
		dialTemporal = origDialTemporal
		newWorkflowService = origNewWorkflowService
		newServer = origNewServer
		notifyContext = origNotifyContext
	}
}

func TestRunSuccess(t *testing.T) {
	restore := captureDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return config.Config{
			Port:            "0",
			PostgresURL:     "postgres://example",
			TemporalAddress: "localhost:7233",
		}, nil
	}
	newStore = func(_ string) (store.Store, error) {
		return memory.New(), nil
	}
	dialTemporal = func(_ client.Options) (client.Client, error) {
		return nil, nil
	}
	newWorkflowService = func(_ client.Client, _ string) *workflows.Service {
		return nil
	}
	newServer = func(_ store.Store, _ *events.Broker, _ *workflows.Service, _ config.Config) server {
		return stubServer{}
	}
	notifyContext = func(ctx context.Context, _ ...os.Signal) (context.Context, context.CancelFunc) {
		return context.WithCancel(ctx)
	}

	if err := run(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestRunPostgresFailureFallsBackToMemory(t *testing.T) {
	restore := captureDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return config.Config{
			Port:            "0",
			PostgresURL:     "postgres://example",
			TemporalAddress: "localhost:7233",
		}, nil
	}
	newStore = func(_ string) (store.Store, error) {
		return nil, errors.New("connection refused")
	}
	usedMemory := false
	newMemoryStore = func() store.Store {
		usedMemory = true
		return memory.New()
	}
	dialTemporal = func(_ client.Options) (client.Client, error) {
		return nil, nil
	}
	newWorkflowService = func(_ client.Client, _ string) *workflows.Service {
		return nil
	}
	newServer = func(_ store.Store, _ *events.Broker, _ *workflows.Service, _ config.Config) server {
		return stubServer{}
	}
	notifyContext = func(ctx context.Context, _ ...os.Signal) (context.Context, context.CancelFunc) {
		return context.WithCancel(ctx)
	}

	if err := run(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !usedMemory {
		t.Fatal("expected memory store fallback")
	}
}

func TestRunConfigLoadFailure(t *testing.T) {
	restore := captureDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return config.Config{}, errors.New("config load failed")
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunTemporalClientFailure(t *testing.T) {
	restore := captureDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return config.Config{
			PostgresURL:     "postgres://example",
			TemporalAddress: "localhost:7233",
		}, nil
	}
	newStore = func(_ string) (store.Store, error) {
		return memory.New(), nil
	}
	notifyContext = func(ctx context.Context, _ ...os.Signal) (context.Context, context.CancelFunc) {
		return context.WithCancel(ctx)
	}
	dialTemporal = func(_ client.Options) (client.Client, error) {
		return nil, errors.New("temporal dial failed")
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunServerStartFailure(t *testing.T) {
	restore := captureDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return config.Config{Port: "0", TemporalAddress: "localhost:7233"}, nil
	}
	newStore = func(_ string) (store.Store, error) {
		return memory.New(), nil
	}
	dialTemporal = func(_ client.Options) (client.Client, error) {
		return nil, nil
	}
	newWorkflowService = func(_ client.Client, _ string) *workflows.Service {
		return nil
	}
	newServer = func(_ store.Store, _ *events.Broker, _ *workflows.Service, _ config.Config) server {
		return stubServer{err: errors.New("listen failed")}
	}
	notifyContext = func(ctx context.Context, _ ...os.Signal) (context.Context, context.CancelFunc) {
		return context.WithCancel(ctx)
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}
