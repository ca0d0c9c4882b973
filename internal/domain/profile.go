package domain

// UserProfile is the stored identity record for a user. Every field is
// independently nullable.
type UserProfile struct {
	UserID         int64   `json:"userId" db:"user_id"`
	Name           *string `json:"name,omitempty" db:"name"`
	DOB            *string `json:"dob,omitempty" db:"dob"`
	Gender         *string `json:"gender,omitempty" db:"gender"`
	Occupation     *string `json:"occupation,omitempty" db:"occupation"`
	Description    *string `json:"description,omitempty" db:"description"`
	ChronicDisease *string `json:"chronic_disease,omitempty" db:"chronic_disease"`
}

// ProfileDelta is a partial profile update. Nil fields are never written.
type ProfileDelta struct {
	Name           *string  `json:"name,omitempty"`
	DOB            *string  `json:"dob,omitempty"`
	Gender         *string  `json:"gender,omitempty"`
	Occupation     *string  `json:"occupation,omitempty"`
	Description    *string  `json:"description,omitempty"`
	ChronicDisease *string  `json:"chronic_disease,omitempty"`
	Weight         *float64 `json:"weight,omitempty"`
	Height         *float64 `json:"height,omitempty"`
}

// IsEmpty reports whether the delta carries no field at all.
func (d ProfileDelta) IsEmpty() bool {
	return !d.HasIdentity() && d.Weight == nil && d.Height == nil
}

// HasIdentity reports whether any Users column is set.
func (d ProfileDelta) HasIdentity() bool {
	return d.Name != nil || d.DOB != nil || d.Gender != nil || d.Occupation != nil ||
		d.Description != nil || d.ChronicDisease != nil
}

// BMIRecord holds one day's body measurements in kilograms and centimetres.
type BMIRecord struct {
	UserID int64    `json:"userId" db:"user_id"`
	Date   string   `json:"date" db:"date"`
	Weight *float64 `json:"weight,omitempty" db:"weight"`
	Height *float64 `json:"height,omitempty" db:"height"`
}

// ActivityRecord holds one day's activity metrics.
type ActivityRecord struct {
	UserID         int64    `json:"userId" db:"user_id"`
	Date           string   `json:"date" db:"date"`
	Steps          *int     `json:"steps,omitempty" db:"steps"`
	SleepHours     *float64 `json:"sleep_hours,omitempty" db:"sleep_hours"`
	CaloriesBurned *int     `json:"calories_burned,omitempty" db:"calories_burned"`
	AvgHeartRate   *int     `json:"avg_heart_rate,omitempty" db:"avg_heart_rate"`
	ActiveMinutes  *int     `json:"active_minutes,omitempty" db:"active_minutes"`
}

// IsEmpty reports whether no metric is set.
func (a ActivityRecord) IsEmpty() bool {
	return a.Steps == nil && a.SleepHours == nil && a.CaloriesBurned == nil &&
		a.AvgHeartRate == nil && a.ActiveMinutes == nil
}

// SummaryRecord is a persisted daily summary.
type SummaryRecord struct {
	UserID int64  `json:"userId"`
	Date   string `json:"date"`
	HealthSummary
}

// UserContext aggregates everything the persona formatter needs about a
// user.
type UserContext struct {
	Profile       UserProfile     `json:"profile"`
	LatestBMI     *BMIRecord      `json:"latestBmi,omitempty"`
	TodayActivity *ActivityRecord `json:"todayActivity,omitempty"`
	LatestSummary *SummaryRecord  `json:"latestSummary,omitempty"`
}
