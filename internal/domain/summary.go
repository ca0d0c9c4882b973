package domain

type OfficeRisk string

const (
	OfficeRiskLow     OfficeRisk = "Low"
	OfficeRiskMedium  OfficeRisk = "Medium"
	OfficeRiskHigh    OfficeRisk = "High"
	OfficeRiskUnknown OfficeRisk = "Unknown"
)

// Valid reports whether r is one of the levels a model may return.
func (r OfficeRisk) Valid() bool {
	switch r {
	case OfficeRiskLow, OfficeRiskMedium, OfficeRiskHigh:
		return true
	default:
		return false
	}
}

// HealthSummary is the structured daily summary of a conversation.
type HealthSummary struct {
	Overview      string     `json:"overview"`
	OfficeRisk    OfficeRisk `json:"office_risk"`
	OfficeSummary string     `json:"office_summary"`
}
