// Package persona renders a stored user context as a compact text block
// for prompt injection.
package persona

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"health-agent/internal/domain"
)

const (
	CategoryUnderweight = "Underweight"
	CategoryNormal      = "Normal weight"
	CategoryOverweight  = "Overweight"
	CategoryObese       = "Obese"
	CategoryUnknown     = "Unknown"
)

// BMI returns weight (kg) divided by the square of height (m). ok is false
// when either input is missing or not positive.
func BMI(weight, height *float64) (float64, bool) {
	if weight == nil || height == nil || *weight <= 0 || *height <= 0 {
		return 0, false
	}
	m := *height / 100
	return *weight / (m * m), true
}

// Category maps weight and height to a BMI category.
func Category(weight, height *float64) string {
	bmi, ok := BMI(weight, height)
	if !ok {
		return CategoryUnknown
	}
	switch {
	case bmi < 18.5:
		return CategoryUnderweight
	case bmi < 25:
		return CategoryNormal
	case bmi < 30:
		return CategoryOverweight
	default:
		return CategoryObese
	}
}

// Analysis renders BMI as "23.4 (Normal weight)", or "Unknown".
func Analysis(weight, height *float64) string {
	bmi, ok := BMI(weight, height)
	if !ok {
		return CategoryUnknown
	}
	return fmt.Sprintf("%.1f (%s)", bmi, Category(weight, height))
}

// Age returns whole years between a YYYY-MM-DD date of birth and now.
func Age(dob string, now time.Time) (int, bool) {
	born, err := time.Parse(time.DateOnly, strings.TrimSpace(dob))
	if err != nil {
		return 0, false
	}
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}

// Format renders uc. Sections without data are omitted and a nil context
// yields "".
func Format(uc *domain.UserContext, now time.Time) string {
	if uc == nil {
		return ""
	}
	p := uc.Profile
	var lines []string
	add := func(label string, v *string) {
		if s := strings.TrimSpace(lo.FromPtr(v)); s != "" {
			lines = append(lines, label+": "+s)
		}
	}

	add("Name", p.Name)
	if p.DOB != nil {
		if age, ok := Age(*p.DOB, now); ok {
			lines = append(lines, "Age: "+strconv.Itoa(age))
		}
	}
	add("Gender", p.Gender)
	add("Occupation", p.Occupation)
	if bmi := uc.LatestBMI; bmi != nil {
		if analysis := Analysis(bmi.Weight, bmi.Height); analysis != CategoryUnknown {
			lines = append(lines, "BMI Status: "+analysis)
		}
	}
	add("Known Chronic Diseases", p.ChronicDisease)
	add("Daily Lifestyle", p.Description)
	if activity := formatActivity(uc.TodayActivity); activity != "" {
		lines = append(lines, "Today's Activity: "+activity)
	}
	if s := uc.LatestSummary; s != nil && strings.TrimSpace(s.Overview) != "" {
		summary := fmt.Sprintf("Last Summary (%s): %s", s.Date, strings.TrimSpace(s.Overview))
		if s.OfficeRisk.Valid() {
			summary += fmt.Sprintf(" Office syndrome risk: %s.", s.OfficeRisk)
		}
		if advice := strings.TrimSpace(s.OfficeSummary); advice != "" && s.OfficeRisk.Valid() {
			summary += " " + advice
		}
		lines = append(lines, summary)
	}

	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func formatActivity(a *domain.ActivityRecord) string {
	if a == nil {
		return ""
	}
	parts := lo.Compact([]string{
		intMetric("steps", a.Steps, ""),
		floatMetric("sleep", a.SleepHours, " h"),
		intMetric("calories burned", a.CaloriesBurned, " kcal"),
		intMetric("avg heart rate", a.AvgHeartRate, " bpm"),
		intMetric("active", a.ActiveMinutes, " min"),
	})
	return strings.Join(parts, ", ")
}

func intMetric(label string, v *int, unit string) string {
	if lo.FromPtr(v) <= 0 {
		return ""
	}
	return fmt.Sprintf("%s %d%s", label, *v, unit)
}

func floatMetric(label string, v *float64, unit string) string {
	if lo.FromPtr(v) <= 0 {
		return ""
	}
	return label + " " + strconv.FormatFloat(*v, 'f', -1, 64) + unit
}
