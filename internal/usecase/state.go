package usecase

import "health-agent/internal/domain"

// Stage names used as keys of AgentState.InvokeQA.
const (
	StageRateSeverity   = "rate_severity"
	StageExtractTopic   = "extract_topic"
	StageExtractProfile = "extract_profile"
	StageGenerateRaw    = "generate_raw"
	StageSummary        = "generate_summary"
)

// StageRecord is the audit entry for one model call.
type StageRecord struct {
	System   string `json:"system"`
	Input    string `json:"input"`
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// AgentState is created per GenerateResponse call and mutated in place by
// each node of the graph.
type AgentState struct {
	RunID    string                       `json:"runId"`
	UserID   *int64                       `json:"userId,omitempty"`
	Messages []domain.ConversationMessage `json:"-"`
	Question string                       `json:"question"`
	Topic    domain.Topic                 `json:"topic"`
	UseInfo  bool                         `json:"useInfo"`
	UseRAG   bool                         `json:"useRag"`

	IsNewUser         bool                   `json:"isNewUser"`
	UserContext       string                 `json:"userContext,omitempty"`
	PendingExtraction *domain.ProfileDelta   `json:"pendingExtraction,omitempty"`
	Documents         string                 `json:"documents,omitempty"`
	SeverityRate      int                    `json:"severityRate"`
	Response          string                 `json:"response,omitempty"`
	Interrupted       bool                   `json:"interrupted"`
	InvokeQA          map[string]StageRecord `json:"invokeQa"`
	Trace             []string               `json:"trace"`

	transcript string
}

// record stores the first entry for stage; later entries are ignored.
func (s *AgentState) record(stage string, rec StageRecord) {
	if s.InvokeQA == nil {
		s.InvokeQA = make(map[string]StageRecord)
	}
	if _, exists := s.InvokeQA[stage]; exists {
		return
	}
	s.InvokeQA[stage] = rec
}
