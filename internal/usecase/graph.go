package usecase

import (
	"context"

	"health-agent/internal/domain"
)

type node string

const (
	nodeLoadUserInfo      node = "load_user_info"
	nodeRateSeverity      node = "rate_severity"
	nodeSeverityInterrupt node = "severity_interrupt"
	nodeExtractTopic      node = "extract_topic"
	nodeExtractProfile    node = "extract_profile"
	nodeGenerateRaw       node = "generate_raw"
	nodeEnd               node = "end"
)

// run drives st from load_user_info to end. Every node runs at most once.
func (s *AgentService) run(ctx context.Context, st *AgentState) {
	for n := nodeLoadUserInfo; n != nodeEnd; {
		st.Trace = append(st.Trace, string(n))
		n = s.step(ctx, n, st)
	}
}

// step executes n and returns the node to run next.
func (s *AgentService) step(ctx context.Context, n node, st *AgentState) node {
	switch n {
	case nodeLoadUserInfo:
		s.loadUserInfo(ctx, st)
		return nodeRateSeverity

	case nodeRateSeverity:
		s.rateSeverity(ctx, st)
		if st.SeverityRate >= criticalSeverity {
			return nodeSeverityInterrupt
		}
		return nodeExtractTopic

	case nodeSeverityInterrupt:
		s.severityInterrupt(ctx, st)
		return nodeEnd

	case nodeExtractTopic:
		s.extractTopic(ctx, st)
		if st.Topic.NeedsProfile() {
			return nodeExtractProfile
		}
		return nodeGenerateRaw

	case nodeExtractProfile:
		s.extractProfile(ctx, st)
		if st.Topic == domain.TopicUpdateAsk {
			return nodeGenerateRaw
		}
		return nodeEnd

	case nodeGenerateRaw:
		s.generateRaw(ctx, st)
		return nodeEnd
	}
	return nodeEnd
}
