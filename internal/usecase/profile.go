package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"health-agent/internal/domain"
	"health-agent/internal/persona"
)

// HealthLog is one day's self-reported metrics. An empty Date means today.
type HealthLog struct {
	UserID         int64
	Date           string
	Steps          *int
	SleepHours     *float64
	CaloriesBurned *int
	AvgHeartRate   *int
	ActiveMinutes  *int
	Weight         *float64
	Height         *float64
}

type UserContextOutput struct {
	Context *domain.UserContext
	Persona string
}

// ProfileService owns every user-visible write. Unlike the response graph,
// its persistence failures are returned to the caller.
type ProfileService struct {
	store  ProfileStore
	clock  clock
	logger *slog.Logger
}

func NewProfileService(store ProfileStore, loc *time.Location, logger *slog.Logger) (*ProfileService, error) {
	if store == nil {
		return nil, errors.New("usecase: profile store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{store: store, clock: newClock(loc), logger: logger}, nil
}

// SaveProfile merges delta into the stored profile. Weight and height go to
// today's BMI record; a missing half is carried over from the latest
// record. Saving the same delta twice leaves the same state.
func (p *ProfileService) SaveProfile(ctx context.Context, userID int64, delta domain.ProfileDelta) error {
	if negative(delta.Weight) || negative(delta.Height) {
		return newError(ErrorInvalidInput, "negative_measurement", nil)
	}

	if delta.HasIdentity() {
		if err := p.store.UpsertProfile(ctx, userID, delta); err != nil {
			return newError(ErrorPersistence, "upsert_profile_error", err)
		}
	} else if err := p.store.EnsureUser(ctx, userID); err != nil {
		return newError(ErrorPersistence, "ensure_user_error", err)
	}

	if err := p.saveBMI(ctx, userID, p.clock.Today(), delta.Weight, delta.Height); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "profile saved", "user_id", userID, "identity", delta.HasIdentity(),
		"bmi", delta.Weight != nil || delta.Height != nil)
	return nil
}

// LogHealthData merges one day's activity and body metrics.
func (p *ProfileService) LogHealthData(ctx context.Context, in HealthLog) error {
	date := strings.TrimSpace(in.Date)
	if date == "" {
		date = p.clock.Today()
	} else if _, err := time.Parse(time.DateOnly, date); err != nil {
		return newError(ErrorInvalidInput, "invalid_date", err)
	}

	activity := domain.ActivityRecord{
		UserID:         in.UserID,
		Date:           date,
		Steps:          in.Steps,
		SleepHours:     in.SleepHours,
		CaloriesBurned: in.CaloriesBurned,
		AvgHeartRate:   in.AvgHeartRate,
		ActiveMinutes:  in.ActiveMinutes,
	}
	if activity.IsEmpty() && in.Weight == nil && in.Height == nil {
		return newError(ErrorInvalidInput, "empty_log", nil)
	}
	if negativeInt(in.Steps) || negative(in.SleepHours) || negativeInt(in.CaloriesBurned) ||
		negativeInt(in.AvgHeartRate) || negativeInt(in.ActiveMinutes) || negative(in.Weight) || negative(in.Height) {
		return newError(ErrorInvalidInput, "negative_metric", nil)
	}

	if err := p.store.EnsureUser(ctx, in.UserID); err != nil {
		return newError(ErrorPersistence, "ensure_user_error", err)
	}
	if !activity.IsEmpty() {
		if err := p.store.UpsertActivity(ctx, activity); err != nil {
			return newError(ErrorPersistence, "upsert_activity_error", err)
		}
	}
	return p.saveBMI(ctx, in.UserID, date, in.Weight, in.Height)
}

func (p *ProfileService) saveBMI(ctx context.Context, userID int64, date string, weight, height *float64) error {
	if weight == nil && height == nil {
		return nil
	}
	if weight == nil || height == nil {
		latest, err := p.store.LatestBMI(ctx, userID)
		if err != nil {
			return newError(ErrorPersistence, "latest_bmi_error", err)
		}
		if latest != nil {
			if weight == nil {
				weight = latest.Weight
			}
			if height == nil {
				height = latest.Height
			}
		}
	}
	rec := domain.BMIRecord{UserID: userID, Date: date, Weight: weight, Height: height}
	if err := p.store.UpsertBMI(ctx, rec); err != nil {
		return newError(ErrorPersistence, "upsert_bmi_error", err)
	}
	return nil
}

// UserContext returns the stored aggregate and its persona rendering.
func (p *ProfileService) UserContext(ctx context.Context, userID int64) (UserContextOutput, error) {
	uc, err := p.store.GetUserContext(ctx, userID, p.clock.Today())
	if err != nil {
		return UserContextOutput{}, newError(ErrorPersistence, "load_user_context_error", err)
	}
	if uc == nil {
		return UserContextOutput{}, newError(ErrorNotFound, "user_not_found", nil)
	}
	return UserContextOutput{Context: uc, Persona: persona.Format(uc, p.clock.Now())}, nil
}

// ResetUser deletes the user together with every dated record.
func (p *ProfileService) ResetUser(ctx context.Context, userID int64) error {
	if err := p.store.DeleteUser(ctx, userID); err != nil {
		return newError(ErrorPersistence, "delete_user_error", err)
	}
	p.logger.InfoContext(ctx, "user reset", "user_id", userID)
	return nil
}

func negative(v *float64) bool { return v != nil && *v < 0 }

func negativeInt(v *int) bool { return v != nil && *v < 0 }
