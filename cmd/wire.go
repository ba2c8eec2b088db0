package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/totalrecall/internal/aiconnectors"
	"github.com/totalrecall/internal/api"
	"github.com/totalrecall/internal/chat"
	"github.com/totalrecall/internal/config"
	"github.com/totalrecall/internal/conversations"
	"github.com/totalrecall/internal/logging"
	"github.com/totalrecall/internal/metrics"
	"github.com/totalrecall/internal/quotes"
	"github.com/totalrecall/internal/settings"
	"github.com/totalrecall/internal/store"
)

// DynamoDB attribute names of the two tables
const (
	conversationKeyAttr   = "conversationId"
	conversationValueAttr = "conversation"
	settingsKeyAttr       = "userId"
	settingsValueAttr     = "settings"
)

// loadDotEnv loads a .env file into the environment if it exists. Variables
// that are already set are left alone.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("Loaded environment file")
	return nil
}

// loadConfig reads, validates and applies the logging section
func loadConfig(configPath, envFile string) (*config.Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := setupLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) error {
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format, nil); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	return nil
}

// buildGateway registers a connector for every provider that has an API key
func buildGateway(ctx context.Context, cfg *config.Config, obs aiconnectors.Observer) (*aiconnectors.Gateway, error) {
	gw := aiconnectors.NewGateway(obs)

	providers := []struct {
		provider aiconnectors.Provider
		conf     config.ProviderConfig
	}{
		{aiconnectors.ProviderOpenAI, cfg.Providers.OpenAI},
		{aiconnectors.ProviderAnthropic, cfg.Providers.Anthropic},
	}
	for _, p := range providers {
		if p.conf.APIKey == "" {
			log.Warn().Str("provider", string(p.provider)).Msg("No API key configured, provider disabled")
			continue
		}
		conn, err := aiconnectors.NewConnector(ctx, aiconnectors.ConnectorOptions{
			Provider: p.provider,
			APIKey:   p.conf.APIKey,
			BaseURL:  p.conf.BaseURL,
			ModelConfig: aiconnectors.ModelConfig{
				Model:       p.conf.Model,
				MaxTokens:   p.conf.MaxTokens,
				Temperature: p.conf.Temperature,
			},
			SummaryMaxTokens: cfg.Summary.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		gw.Register(conn.GetProvider(), conn)
		log.Info().
			Str("provider", string(conn.GetProvider())).
			Str("model", conn.GetModel()).
			Msg("Provider registered")
	}
	return gw, nil
}

// openTables opens the conversation and settings tables of the configured
// backend. The returned func releases the backend connection.
func openTables(ctx context.Context, cfg config.StoreConfig) (store.Table, store.Table, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case config.BackendDynamoDB:
		client, err := store.NewDynamoClient(ctx, store.DynamoOptions{
			Region:          cfg.DynamoDB.Region,
			AccessKeyID:     cfg.DynamoDB.AccessKeyID,
			SecretAccessKey: cfg.DynamoDB.SecretAccessKey,
			Endpoint:        cfg.DynamoDB.Endpoint,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return store.NewDynamoTable(client, cfg.ConversationsTable, conversationKeyAttr, conversationValueAttr),
			store.NewDynamoTable(client, cfg.SettingsTable, settingsKeyAttr, settingsValueAttr),
			noop, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		opts := []store.RedisOption{store.WithRedisPrefix(cfg.Redis.Prefix), store.WithRedisTTL(cfg.Redis.TTL)}
		return store.NewRedisTable(client, cfg.ConversationsTable, opts...),
			store.NewRedisTable(client, cfg.SettingsTable, opts...),
			func() { _ = client.Close() }, nil

	case config.BackendPostgres:
		pool, err := store.NewPostgresPool(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := store.EnsurePostgresSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return store.NewPostgresTable(pool, cfg.ConversationsTable),
			store.NewPostgresTable(pool, cfg.SettingsTable),
			pool.Close, nil

	case config.BackendMemory:
		log.Warn().Msg("Using in-memory store, data is lost on exit")
		return store.NewMemoryTable(), store.NewMemoryTable(), noop, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// buildDependencies wires every service behind the HTTP routes
func buildDependencies(ctx context.Context, cfg *config.Config) (api.Dependencies, func(), error) {
	var (
		recorder    *metrics.Recorder
		storeObs    store.Observer
		providerObs aiconnectors.Observer
	)
	if cfg.Metrics.Enabled {
		recorder = metrics.New(cfg.Metrics.Runtime)
		storeObs, providerObs = recorder, recorder
	}

	convTable, settingsTable, closeTables, err := openTables(ctx, cfg.Store)
	if err != nil {
		return api.Dependencies{}, nil, err
	}

	gw, err := buildGateway(ctx, cfg, providerObs)
	if err != nil {
		closeTables()
		return api.Dependencies{}, nil, err
	}

	repo := conversations.NewRepository(
		store.Instrument(cfg.Store.ConversationsTable, convTable, storeObs),
		conversations.WithCompression(cfg.Store.Compression),
	)

	chatOpts := []chat.Option{
		chat.WithSummaryPolicy(chat.SummaryPolicy{
			Enabled:      cfg.Summary.Enabled,
			RefreshEvery: cfg.Summary.RefreshEvery,
		}),
		chat.WithHistoryPolicy(chat.HistoryPolicy{
			WindowSize:   cfg.History.WindowSize,
			DropLowValue: cfg.History.DropLowValue,
		}),
	}
	if recorder != nil {
		chatOpts = append(chatOpts, chat.WithCreateHook(recorder.ConversationCreated))
	}

	deps := api.Dependencies{
		Conversations: repo,
		Chat:          chat.NewService(repo, gw, chatOpts...),
		Settings:      settings.NewRepository(store.Instrument(cfg.Store.SettingsTable, settingsTable, storeObs)),
		Quotes:        quotes.NewClient(cfg.Quote.URL, cfg.Quote.Timeout),
		Metrics:       recorder,
	}
	return deps, closeTables, nil
}
