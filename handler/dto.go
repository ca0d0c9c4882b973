package handler

import (
	"strings"

	"github.com/samber/lo"

	"health-agent/internal/domain"
	"health-agent/internal/usecase"
)

type messageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []messageDTO `json:"messages"`
	UserID   *int64       `json:"userId,omitempty"`
	Topic    string       `json:"topic,omitempty"`
	UseInfo  *bool        `json:"useInfo,omitempty"`
	UseRAG   *bool        `json:"useRag,omitempty"`
}

type chatResponse struct {
	RunID       string                         `json:"runId"`
	Response    string                         `json:"response"`
	Notice      string                         `json:"notice,omitempty"`
	Severity    int                            `json:"severity"`
	Topic       domain.Topic                   `json:"topic"`
	Interrupted bool                           `json:"interrupted"`
	IsNewUser   bool                           `json:"isNewUser"`
	Extracted   *domain.ProfileDelta           `json:"extracted,omitempty"`
	Trace       []string                       `json:"trace"`
	InvokeQA    map[string]usecase.StageRecord `json:"invokeQa,omitempty"`
}

func newChatResponse(out usecase.ChatOutput) chatResponse {
	resp := chatResponse{RunID: out.RunID, Response: out.Response, Notice: out.Notice}
	if st := out.State; st != nil {
		resp.Severity = st.SeverityRate
		resp.Topic = st.Topic
		resp.Interrupted = st.Interrupted
		resp.IsNewUser = st.IsNewUser
		resp.Extracted = st.PendingExtraction
		resp.Trace = st.Trace
		resp.InvokeQA = st.InvokeQA
	}
	return resp
}

type summaryRequest struct {
	Messages []messageDTO `json:"messages"`
	UserID   *int64       `json:"userId,omitempty"`
	UseRAG   *bool        `json:"useRag,omitempty"`
}

type summaryResponse struct {
	RunID string `json:"runId"`
	domain.HealthSummary
	Fallback    bool   `json:"fallback"`
	UserContext string `json:"userContext,omitempty"`
}

type userResponse struct {
	Context *domain.UserContext `json:"context"`
	Persona string              `json:"persona"`
}

// logRequest is one day's metrics; Date defaults to today.
type logRequest struct {
	Date           string   `json:"date,omitempty"`
	Steps          *int     `json:"steps,omitempty"`
	SleepHours     *float64 `json:"sleep_hours,omitempty"`
	CaloriesBurned *int     `json:"calories_burned,omitempty"`
	AvgHeartRate   *int     `json:"avg_heart_rate,omitempty"`
	ActiveMinutes  *int     `json:"active_minutes,omitempty"`
	Weight         *float64 `json:"weight,omitempty"`
	Height         *float64 `json:"height,omitempty"`
}

func (l logRequest) healthLog(userID int64) usecase.HealthLog {
	return usecase.HealthLog{
		UserID:         userID,
		Date:           l.Date,
		Steps:          l.Steps,
		SleepHours:     l.SleepHours,
		CaloriesBurned: l.CaloriesBurned,
		AvgHeartRate:   l.AvgHeartRate,
		ActiveMinutes:  l.ActiveMinutes,
		Weight:         l.Weight,
		Height:         l.Height,
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// toMessages accepts "user", "assistant" and an empty role, which counts as
// the user.
func toMessages(in []messageDTO) ([]domain.ConversationMessage, error) {
	for _, m := range in {
		switch domain.Role(strings.ToLower(strings.TrimSpace(m.Role))) {
		case "", domain.RoleUser, domain.RoleAssistant:
		default:
			return nil, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_role"}
		}
	}
	return lo.Map(in, func(m messageDTO, _ int) domain.ConversationMessage {
		return domain.ConversationMessage{
			Role:    domain.Role(strings.ToLower(strings.TrimSpace(m.Role))),
			Content: m.Content,
		}
	}), nil
}
