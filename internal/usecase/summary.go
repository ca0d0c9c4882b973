package usecase

import (
	"context"
	"strings"

	"github.com/samber/lo"

	"health-agent/internal/conversation"
	"health-agent/internal/domain"
	"health-agent/internal/persona"
)

type SummaryInput struct {
	Messages []domain.ConversationMessage
	UserID   *int64
	UseRAG   *bool
}

type SummaryOutput struct {
	RunID       string
	Summary     domain.HealthSummary
	UserContext string
	// Fallback is true when the summary is the canned apology. It is never
	// persisted.
	Fallback bool
	InvokeQA map[string]StageRecord
}

// GenerateSummary produces the daily three-field summary and stores it for
// the user when one is given. It does not create missing users.
func (s *AgentService) GenerateSummary(ctx context.Context, in SummaryInput) (SummaryOutput, error) {
	out := SummaryOutput{
		RunID:    newUUID(),
		InvokeQA: make(map[string]StageRecord),
	}
	messages := conversation.StripSuffix(in.Messages, s.text(keyDisclaimer, nil))
	transcript := conversation.Format(messages, s.maxChars)

	if in.UserID != nil {
		uc, err := s.store.GetUserContext(ctx, *in.UserID, s.clock.Today())
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "load user context failed", "run_id", out.RunID, "user_id", *in.UserID, "err", err)
		case uc != nil:
			out.UserContext = persona.Format(uc, s.clock.Now())
		}
	}

	var documents string
	if lo.FromPtrOr(in.UseRAG, true) {
		documents = s.retrieve(ctx, out.RunID, transcript)
	}

	var (
		res summaryResult
		rec StageRecord
	)
	schema, err := s.summarySchema()
	if err == nil {
		rec, err = s.callStructured(ctx, s.model, schema, s.summarySystemPrompt(out.UserContext), s.summaryInput(transcript, documents), &res)
	} else {
		rec.Error = err.Error()
	}
	out.InvokeQA[StageSummary] = rec
	if err != nil {
		s.logger.WarnContext(ctx, "stage fell back", "stage", StageSummary, "run_id", out.RunID, "err", err)
		out.Summary = s.fallbackSummary()
		out.Fallback = true
		return out, nil
	}

	out.Summary = domain.HealthSummary{
		Overview:      strings.TrimSpace(*res.Overview),
		OfficeRisk:    domain.OfficeRisk(*res.OfficeRisk),
		OfficeSummary: strings.TrimSpace(*res.OfficeSummary),
	}
	if in.UserID != nil {
		record := domain.SummaryRecord{UserID: *in.UserID, Date: s.clock.Today(), HealthSummary: out.Summary}
		if err := s.store.UpsertSummary(ctx, record); err != nil {
			s.logger.ErrorContext(ctx, "persist summary failed", "run_id", out.RunID, "user_id", *in.UserID, "err", err)
		}
	}
	return out, nil
}

func (s *AgentService) summarySchema() (domain.ResponseSchema, error) {
	return buildSummarySchema(
		s.text(keySummaryOverview, nil),
		s.text(keySummaryRiskLevel, nil),
		s.text(keySummaryRiskText, nil),
	)
}

func (s *AgentService) summarySystemPrompt(userContext string) string {
	system := s.text(keySummarySystem, map[string]any{
		"overview":    s.text(keySummaryOverview, nil),
		"riskLevel":   s.text(keySummaryRiskLevel, nil),
		"riskSummary": s.text(keySummaryRiskText, nil),
	})
	if userContext == "" {
		return system
	}
	return joinSections(system, s.text(keyAboutUser, map[string]any{"persona": userContext}))
}

func (s *AgentService) summaryInput(transcript, documents string) string {
	contextBlock := s.text(keySummaryNoContext, nil)
	if documents != "" {
		contextBlock = s.text(keySummaryContext, map[string]any{"documents": documents})
	}
	return joinSections(contextBlock, s.text(keySummaryInput, map[string]any{"transcript": transcript}))
}

func (s *AgentService) fallbackSummary() domain.HealthSummary {
	return domain.HealthSummary{
		Overview:      s.text(keyFallbackOverview, nil),
		OfficeRisk:    domain.OfficeRisk(s.prompts.Text(keyFallbackOfficeRisk, string(domain.OfficeRiskUnknown), nil)),
		OfficeSummary: s.prompts.Text(keyFallbackOfficeSummary, "Unknown", nil),
	}
}
