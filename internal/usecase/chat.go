package usecase

import (
	"context"
	"strings"

	"github.com/samber/lo"

	"health-agent/internal/conversation"
	"health-agent/internal/domain"
)

type ChatInput struct {
	Messages []domain.ConversationMessage
	// UserID nil disables every persistence-backed personalization.
	UserID *int64
	// Topic, when set, skips topic classification.
	Topic string
	// UseInfo and UseRAG default to true.
	UseInfo *bool
	UseRAG  *bool
}

type ChatOutput struct {
	RunID    string
	Response string
	Notice   string
	State    *AgentState
}

// GenerateResponse runs the response graph over in.Messages. Stage failures
// fall back to safe values and are recorded in State.InvokeQA; the only
// error returned is for invalid input.
func (s *AgentService) GenerateResponse(ctx context.Context, in ChatInput) (ChatOutput, error) {
	topic, ok := domain.ParseTopic(strings.TrimSpace(in.Topic))
	if !ok {
		return ChatOutput{}, newError(ErrorInvalidInput, "invalid_topic", nil)
	}

	disclaimer := s.text(keyDisclaimer, nil)
	messages := conversation.StripSuffix(in.Messages, disclaimer)

	st := &AgentState{
		RunID:    newUUID(),
		UserID:   in.UserID,
		Messages: messages,
		Topic:    topic,
		UseInfo:  in.UserID != nil && lo.FromPtrOr(in.UseInfo, true),
		UseRAG:   lo.FromPtrOr(in.UseRAG, true),
		InvokeQA: make(map[string]StageRecord),
	}
	st.Question = conversation.LastUserMessage(messages)
	if st.Question == "" {
		st.Question = s.prompts.Text(keyDefaultMessage, "Hello", nil)
	}
	st.transcript = conversation.Format(messages, s.maxChars)

	s.run(ctx, st)

	s.logger.InfoContext(ctx, "chat run complete",
		"run_id", st.RunID,
		"trace", strings.Join(st.Trace, ">"),
		"severity", st.SeverityRate,
		"topic", st.Topic,
		"interrupted", st.Interrupted,
		"pending_extraction", st.PendingExtraction != nil,
	)

	return ChatOutput{
		RunID:    st.RunID,
		Response: withDisclaimer(st.Response, disclaimer),
		Notice:   s.notice(st),
		State:    st,
	}, nil
}

func withDisclaimer(response, disclaimer string) string {
	if response == "" || disclaimer == "" {
		return response
	}
	return response + "\n\n" + disclaimer
}

// notice is the urgent-care directive for an interrupted run, otherwise
// the advisory for moderate severity.
func (s *AgentService) notice(st *AgentState) string {
	switch {
	case st.Interrupted:
		return s.text(keyNoticeInterrupt, nil)
	case st.SeverityRate >= warningSeverity:
		return s.text(keyNoticeWarning, nil)
	default:
		return ""
	}
}
