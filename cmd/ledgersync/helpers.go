package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/felixkade/ledgersync/internal/config"
	"github.com/felixkade/ledgersync/internal/engine"
	"github.com/felixkade/ledgersync/internal/llm"
	"github.com/felixkade/ledgersync/internal/provider"
	"github.com/felixkade/ledgersync/internal/service"
	"github.com/felixkade/ledgersync/internal/storage"
	syncer "github.com/felixkade/ledgersync/internal/sync"
	"github.com/felixkade/ledgersync/internal/token"
)

// initStorage opens the configured database and brings the schema up to
// date.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := config.ExpandPath(viper.GetString("database.path"))

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// requireUser resolves the acting user from config or flags.
func requireUser() (string, error) {
	user := viper.GetString("user")
	if user == "" {
		return "", fmt.Errorf("no user configured; set user in config or pass --user")
	}
	return user, nil
}

func providerConfig() provider.Config {
	return provider.Config{
		Name:         viper.GetString("provider.name"),
		BaseURL:      viper.GetString("provider.base_url"),
		AuthURL:      viper.GetString("provider.auth_url"),
		TokenURL:     viper.GetString("provider.token_url"),
		RevokeURL:    viper.GetString("provider.revoke_url"),
		ClientID:     viper.GetString("provider.client_id"),
		ClientSecret: viper.GetString("provider.client_secret"),
		RedirectURL:  viper.GetString("provider.redirect_url"),
		Timeout:      viper.GetDuration("provider.timeout"),
	}
}

func initProvider() (*provider.Client, error) {
	return provider.NewClient(providerConfig())
}

// initClassifier builds the AI classifier, or returns nil when no API key is
// configured. Classification degrades to review flagging without it.
func initClassifier() (*llm.Classifier, error) {
	apiKey := viper.GetString("classification.api_key")
	if apiKey == "" {
		slog.Warn("no classification API key configured; unmatched transactions will be flagged for review")
		return nil, nil
	}

	cfg := llm.Config{
		Provider:        viper.GetString("classification.provider"),
		APIKey:          apiKey,
		Model:           viper.GetString("classification.model"),
		Timeout:         viper.GetDuration("classification.timeout"),
		Temperature:     viper.GetFloat64("classification.temperature"),
		ReviewThreshold: viper.GetFloat64("classification.review_threshold"),
		MaxRetries:      viper.GetInt("classification.max_retries"),
	}
	return llm.NewClassifier(cfg, slog.Default())
}

// initEngine wires the categorization pipeline over the given storage.
func initEngine(store service.Storage) (*engine.Engine, error) {
	classifier, err := initClassifier()
	if err != nil {
		return nil, err
	}
	if classifier == nil {
		return engine.New(store, nil, slog.Default()), nil
	}
	return engine.New(store, classifier, slog.Default()), nil
}

// initOrchestrator wires the full sync stack: provider client, token
// manager, and categorization engine.
func initOrchestrator(store service.Storage) (*syncer.Orchestrator, error) {
	client, err := initProvider()
	if err != nil {
		return nil, err
	}

	eng, err := initEngine(store)
	if err != nil {
		return nil, err
	}

	tokens := token.NewManager(store, client, provider.IsPermanentAuthError)
	return syncer.NewOrchestrator(store, client, tokens, slog.Default(),
		syncer.WithCategorizer(eng),
		syncer.WithConcurrency(viper.GetInt("sync.concurrency")),
	), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
