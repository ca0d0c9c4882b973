package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"health-agent/internal/domain"
	"health-agent/internal/persona"
)

// loadUserInfo fills Documents and UserContext. Store and retriever
// failures are logged and leave the corresponding field empty.
func (s *AgentService) loadUserInfo(ctx context.Context, st *AgentState) {
	if st.UseRAG {
		st.Documents = s.retrieve(ctx, st.RunID, st.Question)
	}
	if !st.UseInfo || st.UserID == nil {
		return
	}

	userID := *st.UserID
	uc, err := s.store.GetUserContext(ctx, userID, s.clock.Today())
	if err != nil {
		s.logger.WarnContext(ctx, "load user context failed", "run_id", st.RunID, "user_id", userID, "err", err)
		return
	}
	if uc == nil {
		if err := s.store.EnsureUser(ctx, userID); err != nil {
			s.logger.WarnContext(ctx, "create user failed", "run_id", st.RunID, "user_id", userID, "err", err)
		}
		st.IsNewUser = true
		return
	}
	st.IsNewUser = !profileKnown(uc.Profile)
	st.UserContext = persona.Format(uc, s.clock.Now())
}

func profileKnown(p domain.UserProfile) bool {
	return len(lo.Compact([]string{
		lo.FromPtr(p.Name), lo.FromPtr(p.DOB), lo.FromPtr(p.Gender),
		lo.FromPtr(p.Occupation), lo.FromPtr(p.Description), lo.FromPtr(p.ChronicDisease),
	})) > 0
}

func (s *AgentService) rateSeverity(ctx context.Context, st *AgentState) {
	var res severityResult
	rec, err := s.callStructured(ctx, s.classifierModel, severitySchema, s.severitySystemPrompt(st), s.statements(st.transcript), &res)
	st.record(StageRateSeverity, rec)
	if err != nil {
		s.warnFallback(ctx, st, StageRateSeverity, err)
		st.SeverityRate = 0
		return
	}
	st.SeverityRate = *res.Rate
}

func (s *AgentService) severityInterrupt(_ context.Context, st *AgentState) {
	st.Interrupted = true
	st.Response = ""
}

// extractTopic classifies the latest user message unless the caller already
// chose a topic. Earlier turns are left out so stale profile data does not
// turn a plain question into an update. Any failure means ask.
func (s *AgentService) extractTopic(ctx context.Context, st *AgentState) {
	if st.Topic != domain.TopicUnset {
		return
	}
	system, schema := s.topicSystemPrompt()
	input := st.Question

	if s.topicMode == TopicModeInfoOnly {
		var res topicInfoResult
		rec, err := s.callStructured(ctx, s.classifierModel, schema, system, input, &res)
		st.record(StageExtractTopic, rec)
		if err != nil {
			s.warnFallback(ctx, st, StageExtractTopic, err)
			st.Topic = domain.TopicAsk
			return
		}
		st.Topic = topicFor(*res.HasInfo, false)
		return
	}

	var res topicChecklistResult
	rec, err := s.callStructured(ctx, s.classifierModel, schema, system, input, &res)
	st.record(StageExtractTopic, rec)
	if err != nil {
		s.warnFallback(ctx, st, StageExtractTopic, err)
		st.Topic = domain.TopicAsk
		return
	}
	st.Topic = topicFor(*res.HasInfo, *res.IsQuestion)
}

func topicFor(hasInfo, isQuestion bool) domain.Topic {
	switch {
	case hasInfo && isQuestion:
		return domain.TopicUpdateAsk
	case hasInfo:
		return domain.TopicUpdate
	default:
		return domain.TopicAsk
	}
}

// extractProfile proposes a profile delta. It never writes to the store;
// the caller confirms through SaveProfile.
func (s *AgentService) extractProfile(ctx context.Context, st *AgentState) {
	var res profileResult
	rec, err := s.callStructured(ctx, s.classifierModel, profileSchema, s.profileSystemPrompt(), s.statements(st.transcript), &res)
	st.record(StageExtractProfile, rec)
	if err != nil {
		s.warnFallback(ctx, st, StageExtractProfile, err)
		return
	}
	st.PendingExtraction = sanitizeProfile(res, st.transcript, s.clock.Now())
}

func (s *AgentService) generateRaw(ctx context.Context, st *AgentState) {
	system := s.generationSystemPrompt(st)
	input := s.statements(st.transcript)
	rec := StageRecord{System: system, Input: input}

	reply, err := s.llm.Chat(ctx, s.model, chatMessages(system, input))
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrGeneration, err)
		rec.Error = err.Error()
		st.record(StageGenerateRaw, rec)
		s.warnFallback(ctx, st, StageGenerateRaw, err)
		st.Response = s.text(keyFallbackResponse, nil)
		return
	}
	rec.Response = reply
	st.record(StageGenerateRaw, rec)
	st.Response = strings.TrimSpace(reply)
}

// retrieve joins the retriever's snippets in ranking order. It never fails;
// an unavailable retriever or a blank query yields no documents.
func (s *AgentService) retrieve(ctx context.Context, runID, query string) string {
	if s.retriever == nil || strings.TrimSpace(query) == "" {
		return ""
	}
	docs, err := s.retriever.Retrieve(ctx, query)
	if err != nil {
		s.logger.WarnContext(ctx, "retrieval failed", "run_id", runID, "err", fmt.Errorf("%w: %w", ErrRetrieval, err))
		return ""
	}
	docs = lo.Filter(docs, func(d string, _ int) bool { return strings.TrimSpace(d) != "" })
	return strings.Join(docs, "\n\n")
}

func (s *AgentService) warnFallback(ctx context.Context, st *AgentState, stage string, err error) {
	attrs := []any{"stage", stage, "run_id", st.RunID, "err", err}
	if status, ok := upstreamStatusCode(err); ok {
		attrs = append(attrs, "upstream_status", status)
	}
	s.logger.WarnContext(ctx, "stage fell back", attrs...)
}
