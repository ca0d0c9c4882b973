package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"health-agent/internal/domain"
	"health-agent/internal/prompts"
)

type reply struct {
	text string
	err  error
}

type llmCall struct {
	model    string
	messages []domain.ChatMessage
	schema   string
}

// fakeLLM answers structured calls by schema name and free-text calls with
// chat.
type fakeLLM struct {
	structured map[string]reply
	chat       reply
	calls      []llmCall
}

func (f *fakeLLM) Chat(_ context.Context, model string, messages []domain.ChatMessage) (string, error) {
	f.calls = append(f.calls, llmCall{model: model, messages: messages})
	return f.chat.text, f.chat.err
}

func (f *fakeLLM) ChatStructured(_ context.Context, model string, messages []domain.ChatMessage, schema domain.ResponseSchema) (string, error) {
	f.calls = append(f.calls, llmCall{model: model, messages: messages, schema: schema.Name})
	r, ok := f.structured[schema.Name]
	if !ok {
		return "", fmt.Errorf("no reply configured for %s", schema.Name)
	}
	return r.text, r.err
}

func (f *fakeLLM) call(schema string) (llmCall, bool) {
	for _, c := range f.calls {
		if c.schema == schema {
			return c, true
		}
	}
	return llmCall{}, false
}

func (f *fakeLLM) chatCall() (llmCall, bool) {
	return f.call("")
}

type fakeStore struct {
	contexts map[int64]*domain.UserContext
	getErr   error
	writeErr error

	latestBMI *domain.BMIRecord

	getCalls   int
	ensured    []int64
	profiles   map[int64]domain.ProfileDelta
	bmis       []domain.BMIRecord
	activities []domain.ActivityRecord
	summaries  []domain.SummaryRecord
	deleted    []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contexts: make(map[int64]*domain.UserContext),
		profiles: make(map[int64]domain.ProfileDelta),
	}
}

func (f *fakeStore) GetUserContext(_ context.Context, userID int64, _ string) (*domain.UserContext, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.contexts[userID], nil
}

func (f *fakeStore) EnsureUser(_ context.Context, userID int64) error {
	f.ensured = append(f.ensured, userID)
	return f.writeErr
}

func (f *fakeStore) UpsertProfile(_ context.Context, userID int64, delta domain.ProfileDelta) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.profiles[userID] = delta
	return nil
}

func (f *fakeStore) LatestBMI(_ context.Context, _ int64) (*domain.BMIRecord, error) {
	return f.latestBMI, nil
}

func (f *fakeStore) UpsertBMI(_ context.Context, rec domain.BMIRecord) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.bmis = append(f.bmis, rec)
	return nil
}

func (f *fakeStore) UpsertActivity(_ context.Context, rec domain.ActivityRecord) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.activities = append(f.activities, rec)
	return nil
}

func (f *fakeStore) UpsertSummary(_ context.Context, rec domain.SummaryRecord) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.summaries = append(f.summaries, rec)
	return nil
}

func (f *fakeStore) DeleteUser(_ context.Context, userID int64) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.deleted = append(f.deleted, userID)
	return nil
}

type fakeRetriever struct {
	docs    []string
	err     error
	queries []string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string) ([]string, error) {
	f.queries = append(f.queries, query)
	return f.docs, f.err
}

var fixedNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAgent(t *testing.T, llm ModelClient, store ProfileStore, retriever Retriever, mode TopicMode) *AgentService {
	t.Helper()
	svc, err := NewAgentService(llm, store, retriever, prompts.Default(), AgentConfig{
		Model:           "chat-model",
		ClassifierModel: "classifier-model",
		TopicMode:       mode,
	}, discardLogger())
	require.NoError(t, err)
	svc.clock.now = func() time.Time { return fixedNow }
	return svc
}

func stubUUID(t *testing.T) {
	t.Helper()
	prev := newUUID
	newUUID = func() string { return "run-1" }
	t.Cleanup(func() { newUUID = prev })
}

func userID(id int64) *int64 { return &id }

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func intPtr(i int) *int { return &i }

var errBoom = errors.New("boom")
