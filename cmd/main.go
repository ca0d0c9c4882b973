package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"health-agent/handler"
	"health-agent/internal/integrations/openai"
	"health-agent/internal/integrations/paramstore"
	"health-agent/internal/integrations/weaviate"
	"health-agent/internal/prompts"
	"health-agent/internal/repository"
	"health-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	model := envString("MODEL", "gpt-4o-mini")
	classifierModel := envString("CLASSIFIER_MODEL", "")
	maxTranscriptChars := envInt("MAX_TRANSCRIPT_CHARS", 8000)
	topicMode, err := usecase.ParseTopicMode(os.Getenv("TOPIC_MODE"))
	if err != nil {
		slog.Error("invalid TOPIC_MODE", "err", err)
		os.Exit(1)
	}
	loc, err := time.LoadLocation(envString("TIMEZONE", "Asia/Bangkok"))
	if err != nil {
		slog.Error("invalid TIMEZONE", "err", err)
		os.Exit(1)
	}

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg), paramstore.WithPrefix(paramPrefix))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		slog.Error("failed to create state client", "err", err)
		os.Exit(1)
	}

	openaiClient, err := openai.NewClient(
		openai.WithParamStore(ssmClient, paramPrefix),
		openai.WithRetry(envInt("MODEL_MAX_RETRIES", 2), 0),
	)
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}

	registry, err := prompts.LoadParameter(ctx, ssmClient, "prompts")
	if err != nil {
		slog.Warn("prompt document unavailable, using embedded defaults", "err", err)
		registry = prompts.Default()
	}

	var retriever usecase.Retriever
	if host := os.Getenv("WEAVIATE_HOST"); host != "" {
		wvClient, err := weaviate.NewClient(envString("WEAVIATE_SCHEME", "https"), host)
		if err != nil {
			slog.Error("failed to create Weaviate client", "err", err)
			os.Exit(1)
		}
		r, err := weaviate.New(wvClient, envString("WEAVIATE_CLASS", "HealthDocument"),
			weaviate.WithTextProperty(envString("WEAVIATE_TEXT_PROPERTY", "content")),
			weaviate.WithLimit(envInt("RETRIEVAL_LIMIT", 4)),
		)
		if err != nil {
			slog.Error("failed to create retriever", "err", err)
			os.Exit(1)
		}
		retriever = r
	}

	// ---- Handler ----
	agent, err := usecase.NewAgentService(openaiClient, store, retriever, registry, usecase.AgentConfig{
		Model:              model,
		ClassifierModel:    classifierModel,
		MaxTranscriptChars: maxTranscriptChars,
		TopicMode:          topicMode,
		Location:           loc,
	}, slog.Default())
	if err != nil {
		slog.Error("failed to create agent service", "err", err)
		os.Exit(1)
	}
	profiles, err := usecase.NewProfileService(store, loc, slog.Default())
	if err != nil {
		slog.Error("failed to create profile service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(agent, profiles, slog.Default())
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
