package persona

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"health-agent/internal/domain"
)

var today = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

func TestCategory_Boundaries(t *testing.T) {
	cases := []struct {
		name           string
		weight, height *float64
		want           string
	}{
		{"normal", lo.ToPtr(60.0), lo.ToPtr(160.0), CategoryNormal},
		{"obese", lo.ToPtr(90.0), lo.ToPtr(160.0), CategoryObese},
		{"underweight", lo.ToPtr(45.0), lo.ToPtr(170.0), CategoryUnderweight},
		{"overweight", lo.ToPtr(80.0), lo.ToPtr(170.0), CategoryOverweight},
		{"zero height", lo.ToPtr(60.0), lo.ToPtr(0.0), CategoryUnknown},
		{"missing height", lo.ToPtr(60.0), nil, CategoryUnknown},
		{"missing weight", nil, lo.ToPtr(160.0), CategoryUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Category(tc.weight, tc.height))
		})
	}
}

func TestAnalysis(t *testing.T) {
	require.Equal(t, "23.4 (Normal weight)", Analysis(lo.ToPtr(60.0), lo.ToPtr(160.0)))
	require.Equal(t, "35.2 (Obese)", Analysis(lo.ToPtr(90.0), lo.ToPtr(160.0)))
	require.Equal(t, "Unknown", Analysis(nil, lo.ToPtr(160.0)))
}

func TestAge(t *testing.T) {
	age, ok := Age("1996-03-15", today)
	require.True(t, ok)
	require.Equal(t, 30, age)

	age, ok = Age("1996-03-16", today)
	require.True(t, ok)
	require.Equal(t, 29, age)

	_, ok = Age("not a date", today)
	require.False(t, ok)

	_, ok = Age("2030-01-01", today)
	require.False(t, ok)
}

func TestFormat_NilContext(t *testing.T) {
	require.Empty(t, Format(nil, today))
	require.Empty(t, Format(&domain.UserContext{}, today))
}

func TestFormat_FullContext(t *testing.T) {
	uc := &domain.UserContext{
		Profile: domain.UserProfile{
			UserID:         7,
			Name:           lo.ToPtr("Somchai"),
			DOB:            lo.ToPtr("1996-01-02"),
			Gender:         lo.ToPtr("male"),
			Occupation:     lo.ToPtr("Office Worker"),
			Description:    lo.ToPtr("sits 10 hours a day"),
			ChronicDisease: lo.ToPtr("asthma"),
		},
		LatestBMI: &domain.BMIRecord{Weight: lo.ToPtr(60.0), Height: lo.ToPtr(160.0)},
		TodayActivity: &domain.ActivityRecord{
			Steps:        lo.ToPtr(8000),
			SleepHours:   lo.ToPtr(6.5),
			AvgHeartRate: lo.ToPtr(0),
		},
		LatestSummary: &domain.SummaryRecord{
			Date: "2026-03-14",
			HealthSummary: domain.HealthSummary{
				Overview:      "mild back pain",
				OfficeRisk:    domain.OfficeRiskMedium,
				OfficeSummary: "stretch every hour",
			},
		},
	}

	want := "Name: Somchai\n" +
		"Age: 30\n" +
		"Gender: male\n" +
		"Occupation: Office Worker\n" +
		"BMI Status: 23.4 (Normal weight)\n" +
		"Known Chronic Diseases: asthma\n" +
		"Daily Lifestyle: sits 10 hours a day\n" +
		"Today's Activity: steps 8000, sleep 6.5 h\n" +
		"Last Summary (2026-03-14): mild back pain Office syndrome risk: Medium. stretch every hour"
	require.Equal(t, want, Format(uc, today))
}

func TestFormat_OmitsMissingSections(t *testing.T) {
	uc := &domain.UserContext{
		Profile:   domain.UserProfile{Name: lo.ToPtr("Nok"), Occupation: lo.ToPtr("  ")},
		LatestBMI: &domain.BMIRecord{Weight: lo.ToPtr(50.0)},
	}
	require.Equal(t, "Name: Nok", Format(uc, today))
}
