package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"health-agent/internal/domain"
	"health-agent/internal/prompts"
)

const (
	defaultMaxTranscriptChars = 8000
	criticalSeverity          = 4
	warningSeverity           = 2
)

// TopicMode selects the granularity of the topic classifier.
type TopicMode string

const (
	// TopicModeChecklist asks for has_info and is_question and can yield
	// update_ask.
	TopicModeChecklist TopicMode = "checklist"
	// TopicModeInfoOnly asks for has_info only.
	TopicModeInfoOnly TopicMode = "info_only"
)

// ParseTopicMode maps "" to the checklist mode.
func ParseTopicMode(s string) (TopicMode, error) {
	switch m := TopicMode(strings.TrimSpace(s)); m {
	case "", TopicModeChecklist:
		return TopicModeChecklist, nil
	case TopicModeInfoOnly:
		return m, nil
	default:
		return "", errors.New("usecase: unknown topic mode " + s)
	}
}

type ModelClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
	ChatStructured(ctx context.Context, model string, messages []domain.ChatMessage, schema domain.ResponseSchema) (string, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]string, error)
}

// ProfileStore is the persistence contract. Every write merges: nil fields
// never overwrite stored values.
type ProfileStore interface {
	// GetUserContext returns nil, nil for an unknown user.
	GetUserContext(ctx context.Context, userID int64, day string) (*domain.UserContext, error)
	EnsureUser(ctx context.Context, userID int64) error
	UpsertProfile(ctx context.Context, userID int64, delta domain.ProfileDelta) error
	LatestBMI(ctx context.Context, userID int64) (*domain.BMIRecord, error)
	UpsertBMI(ctx context.Context, rec domain.BMIRecord) error
	UpsertActivity(ctx context.Context, rec domain.ActivityRecord) error
	UpsertSummary(ctx context.Context, rec domain.SummaryRecord) error
	DeleteUser(ctx context.Context, userID int64) error
}

type AgentConfig struct {
	Model              string
	ClassifierModel    string
	MaxTranscriptChars int
	TopicMode          TopicMode
	Location           *time.Location
}

// AgentService runs the response graph and the summary pipeline.
type AgentService struct {
	llm       ModelClient
	store     ProfileStore
	retriever Retriever
	prompts   *prompts.Registry
	logger    *slog.Logger

	model           string
	classifierModel string
	maxChars        int
	topicMode       TopicMode
	clock           clock
}

// NewAgentService wires the service. retriever may be nil, in which case
// retrieval always yields no documents.
func NewAgentService(llm ModelClient, store ProfileStore, retriever Retriever, registry *prompts.Registry, cfg AgentConfig, logger *slog.Logger) (*AgentService, error) {
	if llm == nil {
		return nil, errors.New("usecase: model client must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: profile store must not be nil")
	}
	if registry == nil {
		return nil, errors.New("usecase: prompt registry must not be nil")
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	if strings.TrimSpace(cfg.ClassifierModel) == "" {
		cfg.ClassifierModel = cfg.Model
	}
	if cfg.MaxTranscriptChars <= 0 {
		cfg.MaxTranscriptChars = defaultMaxTranscriptChars
	}
	if cfg.TopicMode == "" {
		cfg.TopicMode = TopicModeChecklist
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentService{
		llm:             llm,
		store:           store,
		retriever:       retriever,
		prompts:         registry,
		logger:          logger,
		model:           cfg.Model,
		classifierModel: cfg.ClassifierModel,
		maxChars:        cfg.MaxTranscriptChars,
		topicMode:       cfg.TopicMode,
		clock:           newClock(cfg.Location),
	}, nil
}

type clock struct {
	now func() time.Time
	loc *time.Location
}

func newClock(loc *time.Location) clock {
	if loc == nil {
		loc = time.UTC
	}
	return clock{now: time.Now, loc: loc}
}

func (c clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today is the local calendar date used as the per-day record key.
func (c clock) Today() string {
	return c.Now().Format(time.DateOnly)
}

var newUUID = func() string {
	return uuid.NewString()
}
