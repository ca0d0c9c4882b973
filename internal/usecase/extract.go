package usecase

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"health-agent/internal/domain"
)

const (
	buddhistEraOffset    = 543
	buddhistEraMinYear   = 2400
	earliestBirthYear    = 1900
	minWeightKg          = 2.0
	maxWeightKg          = 500.0
	minHeightCm          = 30.0
	maxHeightCm          = 300.0
	numberMatchTolerance = 0.05
)

var (
	isoDatePattern   = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})$`)
	dayFirstPattern  = regexp.MustCompile(`^(\d{1,2})[-/](\d{1,2})[-/](\d{4})$`)
	bareYearPattern  = regexp.MustCompile(`^(\d{4})$`)
	numberPattern    = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	thaiDigitReplace = strings.NewReplacer(
		"๐", "0", "๑", "1", "๒", "2", "๓", "3", "๔", "4",
		"๕", "5", "๖", "6", "๗", "7", "๘", "8", "๙", "9",
	)
)

// sanitizeProfile turns a decoded extraction into a delta, dropping every
// value that is malformed, implausible or unsupported by source. It returns
// nil when nothing survives.
func sanitizeProfile(res profileResult, source string, now time.Time) *domain.ProfileDelta {
	delta := domain.ProfileDelta{
		Name:           cleanText(res.Name),
		Gender:         cleanText(res.Gender),
		Occupation:     cleanText(res.Occupation),
		Description:    cleanText(res.Description),
		ChronicDisease: cleanText(res.ChronicDisease),
	}
	if dob := cleanText(res.DOB); dob != nil {
		if normalized, ok := normalizeDOB(*dob, now); ok {
			delta.DOB = &normalized
		}
	}

	numbers := numbersIn(source)
	if w := res.Weight; w != nil && *w >= minWeightKg && *w <= maxWeightKg && mentions(numbers, *w) {
		delta.Weight = lo.ToPtr(*w)
	}
	if h := res.Height; h != nil && *h >= minHeightCm && *h <= maxHeightCm && mentionsHeight(numbers, *h) {
		delta.Height = lo.ToPtr(*h)
	}

	if delta.IsEmpty() {
		return nil
	}
	return &delta
}

func cleanText(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}

// normalizeDOB accepts YYYY-MM-DD, YYYY/MM/DD, DD/MM/YYYY or a bare year and
// returns a Gregorian YYYY-MM-DD date. Buddhist Era years are converted.
func normalizeDOB(raw string, now time.Time) (string, bool) {
	raw = thaiDigitReplace.Replace(strings.TrimSpace(raw))

	var year, month, day int
	switch {
	case isoDatePattern.MatchString(raw):
		m := isoDatePattern.FindStringSubmatch(raw)
		year, month, day = atoi(m[1]), atoi(m[2]), atoi(m[3])
	case dayFirstPattern.MatchString(raw):
		m := dayFirstPattern.FindStringSubmatch(raw)
		day, month, year = atoi(m[1]), atoi(m[2]), atoi(m[3])
	case bareYearPattern.MatchString(raw):
		year, month, day = atoi(raw), 1, 1
	default:
		return "", false
	}

	if year >= buddhistEraMinYear {
		year -= buddhistEraOffset
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow, so 1990-02-31 comes back as March.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return "", false
	}
	if year < earliestBirthYear {
		return "", false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if t.After(today) {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// numbersIn lists every number written in text, Thai digits included.
func numbersIn(text string) []float64 {
	matches := numberPattern.FindAllString(thaiDigitReplace.Replace(text), -1)
	return lo.FilterMap(matches, func(m string, _ int) (float64, bool) {
		f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
		return f, err == nil
	})
}

func mentions(numbers []float64, v float64) bool {
	return lo.ContainsBy(numbers, func(n float64) bool {
		return math.Abs(n-v) < numberMatchTolerance
	})
}

// mentionsHeight also accepts a height stated in metres.
func mentionsHeight(numbers []float64, cm float64) bool {
	return lo.ContainsBy(numbers, func(n float64) bool {
		return math.Abs(n-cm) < numberMatchTolerance || math.Abs(n*100-cm) < numberMatchTolerance*10
	})
}
