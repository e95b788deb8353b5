// Package app wires configuration into the adapters and services shared by
// the HTTP server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourpie/gitknow/internal/adapter/ai"
	"github.com/sourpie/gitknow/internal/adapter/store"
	"github.com/sourpie/gitknow/internal/adapter/vcs"
	"github.com/sourpie/gitknow/internal/middleware"
	"github.com/sourpie/gitknow/internal/port"
	"github.com/sourpie/gitknow/internal/service"
	"github.com/sourpie/gitknow/pkg/config"
)

// App holds every long-lived dependency.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     port.Store
	AI        port.AIProvider
	Host      port.RepoHost
	Ingestor  *service.Ingestor
	Retriever *service.Retriever
	Projects  *service.ProjectService
	Poller    *service.Poller
}

// New builds the application from configuration. Call Close when done.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	provider, err := newProvider(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	provider = service.Instrument(provider)
	host := newHost(cfg, logger)

	ingestor := service.NewIngestor(st, provider, host, service.IngestOptions{
		Ignore:             append(append([]string{}, vcs.DefaultIgnoreGlobs...), cfg.IgnoreGlobs...),
		LoaderConcurrency:  cfg.LoaderConcurrency,
		SummaryConcurrency: cfg.SummaryConcurrency,
		MaxSummaryInput:    cfg.MaxSummaryInput,
		CommitLimit:        cfg.CommitLimit,
		Dimension:          cfg.EmbeddingDimension,
		Logger:             logger,
	})
	retriever := service.NewRetriever(st, provider, service.RetrievalOptions{
		Threshold:   cfg.SimilarityThreshold,
		MatchLimit:  cfg.MatchLimit,
		TokenBudget: cfg.ContextTokenBudget,
		Logger:      logger,
	})

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     st,
		AI:        provider,
		Host:      host,
		Ingestor:  ingestor,
		Retriever: retriever,
		Projects:  service.NewProjectService(st, ingestor, retriever, logger),
		Poller:    service.NewPoller(st, ingestor, cfg.PollInterval, logger),
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// JWTConfig returns the token settings shared by the HTTP API, MCP and the CLI.
func (a *App) JWTConfig() middleware.JWTConfig {
	return JWTConfig(a.Config)
}

// JWTConfig derives token settings from configuration.
func JWTConfig(cfg *config.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		ExpiresIn: time.Duration(cfg.JWTExpiration) * time.Hour,
	}
}

func newStore(ctx context.Context, cfg *config.Config) (port.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		return store.NewSQLStore(pg, cfg.EmbeddingDimension), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func newProvider(ctx context.Context, cfg *config.Config) (port.AIProvider, error) {
	switch cfg.AIProvider {
	case "gemini":
		p, err := ai.NewGeminiProvider(ctx, ai.GeminiConfig{
			APIKey:     cfg.GeminiAPIKey,
			ChatModel:  cfg.GeminiChatModel,
			EmbedModel: cfg.GeminiEmbedModel,
			Dimension:  cfg.EmbeddingDimension,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini provider: %w", err)
		}
		return p, nil
	case "ollama":
		return ai.NewOllamaProvider(
			ai.OllamaEndpointConfig{BaseURL: cfg.OllamaEmbedURL, Model: cfg.OllamaEmbedModel, Token: cfg.OllamaEmbedToken},
			ai.OllamaEndpointConfig{BaseURL: cfg.OllamaChatURL, Model: cfg.OllamaChatModel, Token: cfg.OllamaChatToken},
			cfg.EmbeddingDimension,
		), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.AIProvider)
	}
}

func newHost(cfg *config.Config, logger *slog.Logger) port.RepoHost {
	if cfg.RepoSource == "git" {
		return vcs.NewGitProvider(cfg.GitHubToken, logger)
	}
	return vcs.NewGitHubProvider(cfg.GitHubAPIURL, cfg.GitHubToken, logger)
}
