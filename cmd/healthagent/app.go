package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"health-agent/handler"
	"health-agent/internal/config"
	"health-agent/internal/integrations/openai"
	"health-agent/internal/integrations/weaviate"
	"health-agent/internal/prompts"
	"health-agent/internal/repository"
	"health-agent/internal/usecase"
)

type database interface {
	Migrate(ctx context.Context) error
	Close() error
}

// app holds the wired services shared by every subcommand.
type app struct {
	agent    handler.Agent
	profiles handler.Profiles
	db       database
	logger   *slog.Logger
}

func (a *app) Close() error {
	return a.db.Close()
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// openApp connects the SQL store and builds the services on top of it.
// Migrations are left to the caller.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := repository.OpenSQL(ctx, cfg.Database.Driver, cfg.Database.URL, logger)
	if err != nil {
		return nil, err
	}
	llm, err := openai.NewClient(
		openai.WithAPIKey(cfg.Model.APIKey),
		openai.WithBaseURL(cfg.Model.BaseURL),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Model.Timeout}),
		openai.WithRetry(cfg.Model.MaxRetries, 0),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	registry := prompts.Default()
	if cfg.Agent.PromptsFile != "" {
		if registry, err = prompts.LoadFile(cfg.Agent.PromptsFile); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	var retriever usecase.Retriever
	if cfg.Retrieval.Enabled() {
		client, err := weaviate.NewClient(cfg.Retrieval.Scheme, cfg.Retrieval.Host)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		r, err := weaviate.New(client, cfg.Retrieval.Class,
			weaviate.WithTextProperty(cfg.Retrieval.TextProperty),
			weaviate.WithLimit(cfg.Retrieval.Limit),
		)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		retriever = r
	}

	topicMode, err := usecase.ParseTopicMode(cfg.Agent.TopicMode)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	agent, err := usecase.NewAgentService(llm, store, retriever, registry, usecase.AgentConfig{
		Model:              cfg.Model.Model,
		ClassifierModel:    cfg.Model.ClassifierModel,
		MaxTranscriptChars: cfg.Agent.MaxTranscriptChars,
		TopicMode:          topicMode,
		Location:           cfg.Agent.Location,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create agent service: %w", err)
	}
	profiles, err := usecase.NewProfileService(store, cfg.Agent.Location, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create profile service: %w", err)
	}

	logger.Info("application wired",
		"driver", cfg.Database.Driver,
		"model", cfg.Model.Model,
		"topic_mode", topicMode,
		"retrieval", cfg.Retrieval.Enabled(),
	)
	return &app{agent: agent, profiles: profiles, db: store, logger: logger}, nil
}
