package usecase

import (
	"strconv"
	"strings"

	"health-agent/internal/domain"
)

// Registry paths.
const (
	keyDefaultMessage   = "defaultMessage"
	keyDisclaimer       = "disclaimer"
	keyFallbackResponse = "fallbackResponse"
	keyNoticeInterrupt  = "notices.interrupt"
	keyNoticeWarning    = "notices.warning"

	keySystemPrompt     = "prompts.systemPrompt"
	keyUserInfo         = "prompts.userInfo"
	keyNewUser          = "prompts.newUser"
	keyRetrievedContext = "prompts.retrievedContext"
	keyStatements       = "prompts.statements"
	keyAboutUser        = "prompts.aboutUser"
	keySeverity         = "prompts.severity"
	keyTopicChecklist   = "prompts.topic.checklist"
	keyTopicInfoOnly    = "prompts.topic.infoOnly"
	keyProfile          = "prompts.profile"

	keySummarySystem    = "prompts.summary.system"
	keySummaryContext   = "prompts.summary.context"
	keySummaryNoContext = "prompts.summary.noContext"
	keySummaryInput     = "prompts.summary.input"
	keySummaryOverview  = "prompts.summaryPrompt"
	keySummaryRiskLevel = "prompts.symptomPrompts.officeSyndrome.riskLevelPrompt"
	keySummaryRiskText  = "prompts.symptomPrompts.officeSyndrome.riskSummaryPrompt"

	keyFallbackOverview      = "prompts.summary.fallback.overview"
	keyFallbackOfficeRisk    = "prompts.summary.fallback.officeRisk"
	keyFallbackOfficeSummary = "prompts.summary.fallback.officeSummary"
)

func (s *AgentService) text(path string, vars map[string]any) string {
	return s.prompts.Text(path, "", vars)
}

// generationSystemPrompt layers the base persona, then either the user
// context or the first-meeting instruction, then retrieved documents.
func (s *AgentService) generationSystemPrompt(st *AgentState) string {
	parts := []string{s.text(keySystemPrompt, nil)}
	switch {
	case st.UseInfo && st.UserContext != "":
		parts = append(parts, s.text(keyUserInfo, map[string]any{"persona": st.UserContext}))
	case st.IsNewUser:
		parts = append(parts, s.text(keyNewUser, nil))
	}
	if st.Documents != "" {
		parts = append(parts, s.text(keyRetrievedContext, map[string]any{"documents": st.Documents}))
	}
	return joinSections(parts...)
}

// severitySystemPrompt is the rubric, followed by the persona when known.
func (s *AgentService) severitySystemPrompt(st *AgentState) string {
	parts := []string{s.text(keySeverity, nil)}
	if st.UserContext != "" {
		parts = append(parts, s.text(keyAboutUser, map[string]any{"persona": st.UserContext}))
	}
	return joinSections(parts...)
}

func (s *AgentService) topicSystemPrompt() (string, domain.ResponseSchema) {
	if s.topicMode == TopicModeInfoOnly {
		return s.text(keyTopicInfoOnly, nil), topicInfoSchema
	}
	return s.text(keyTopicChecklist, nil), topicChecklistSchema
}

func (s *AgentService) profileSystemPrompt() string {
	return s.text(keyProfile, map[string]any{"currentYear": strconv.Itoa(s.clock.Now().Year())})
}

// statements renders the human turn shared by every stage. An empty
// transcript becomes the default greeting.
func (s *AgentService) statements(transcript string) string {
	if strings.TrimSpace(transcript) == "" {
		return s.prompts.Text(keyDefaultMessage, "Hello", nil)
	}
	return s.text(keyStatements, map[string]any{"transcript": transcript})
}

func joinSections(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
