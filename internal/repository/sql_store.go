package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"health-agent/internal/domain"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLStore is the ProfileStore backed by SQLite or Postgres. Queries are
// written with ? placeholders and rebound for the active driver.
type SQLStore struct {
	db     *sqlx.DB
	driver string
	logger *slog.Logger
}

// OpenSQL connects to driver at dsn. For SQLite, dsn is a file path and the
// parent directory is created when missing.
func OpenSQL(ctx context.Context, driver, dsn string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver = strings.ToLower(strings.TrimSpace(driver))
	switch driver {
	case DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("repository: create database directory: %w", err)
		}
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("repository: unsupported driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: connect %s: %w", driver, err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &SQLStore{db: db, driver: driver, logger: logger}, nil
}

// sqliteDSN enables WAL and a busy timeout so concurrent writers wait
// instead of failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) GetUserContext(ctx context.Context, userID int64, day string) (*domain.UserContext, error) {
	var profile domain.UserProfile
	err := s.db.GetContext(ctx, &profile, s.db.Rebind(`
		SELECT user_id, name, dob, gender, occupation, description, chronic_disease
		FROM users WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: GetUserContext user: %w", err)
	}

	uc := &domain.UserContext{Profile: profile}
	if uc.LatestBMI, err = s.LatestBMI(ctx, userID); err != nil {
		return nil, fmt.Errorf("repository: GetUserContext: %w", err)
	}

	var activity domain.ActivityRecord
	err = s.db.GetContext(ctx, &activity, s.db.Rebind(`
		SELECT user_id, date, steps, sleep_hours, calories_burned, avg_heart_rate, active_minutes
		FROM activity_records WHERE user_id = ? AND date = ?`), userID, day)
	switch {
	case err == nil:
		uc.TodayActivity = &activity
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("repository: GetUserContext activity: %w", err)
	}

	var summary summaryRow
	err = s.db.GetContext(ctx, &summary, s.db.Rebind(`
		SELECT user_id, date, overview, office_risk, office_summary
		FROM summary_records WHERE user_id = ? ORDER BY date DESC LIMIT 1`), userID)
	switch {
	case err == nil:
		rec := summary.record()
		uc.LatestSummary = &rec
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("repository: GetUserContext summary: %w", err)
	}
	return uc, nil
}

func (s *SQLStore) EnsureUser(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO users (user_id) VALUES (?) ON CONFLICT (user_id) DO NOTHING`), userID)
	if err != nil {
		return fmt.Errorf("repository: EnsureUser: %w", err)
	}
	return nil
}

// UpsertProfile inserts the user or merges the non-null fields of delta
// into the stored row.
func (s *SQLStore) UpsertProfile(ctx context.Context, userID int64, delta domain.ProfileDelta) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO users (user_id, name, dob, gender, occupation, description, chronic_disease)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			name = COALESCE(excluded.name, users.name),
			dob = COALESCE(excluded.dob, users.dob),
			gender = COALESCE(excluded.gender, users.gender),
			occupation = COALESCE(excluded.occupation, users.occupation),
			description = COALESCE(excluded.description, users.description),
			chronic_disease = COALESCE(excluded.chronic_disease, users.chronic_disease)`),
		userID, delta.Name, delta.DOB, delta.Gender, delta.Occupation, delta.Description, delta.ChronicDisease)
	if err != nil {
		return fmt.Errorf("repository: UpsertProfile: %w", err)
	}
	return nil
}

func (s *SQLStore) LatestBMI(ctx context.Context, userID int64) (*domain.BMIRecord, error) {
	var rec domain.BMIRecord
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(`
		SELECT user_id, date, weight, height
		FROM bmi_records WHERE user_id = ? ORDER BY date DESC LIMIT 1`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: LatestBMI: %w", err)
	}
	return &rec, nil
}

func (s *SQLStore) UpsertBMI(ctx context.Context, rec domain.BMIRecord) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO bmi_records (user_id, date, weight, height)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, date) DO UPDATE SET
			weight = COALESCE(excluded.weight, bmi_records.weight),
			height = COALESCE(excluded.height, bmi_records.height)`),
		rec.UserID, rec.Date, rec.Weight, rec.Height)
	if err != nil {
		return fmt.Errorf("repository: UpsertBMI: %w", err)
	}
	return nil
}

func (s *SQLStore) UpsertActivity(ctx context.Context, rec domain.ActivityRecord) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO activity_records (user_id, date, steps, sleep_hours, calories_burned, avg_heart_rate, active_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, date) DO UPDATE SET
			steps = COALESCE(excluded.steps, activity_records.steps),
			sleep_hours = COALESCE(excluded.sleep_hours, activity_records.sleep_hours),
			calories_burned = COALESCE(excluded.calories_burned, activity_records.calories_burned),
			avg_heart_rate = COALESCE(excluded.avg_heart_rate, activity_records.avg_heart_rate),
			active_minutes = COALESCE(excluded.active_minutes, activity_records.active_minutes)`),
		rec.UserID, rec.Date, rec.Steps, rec.SleepHours, rec.CaloriesBurned, rec.AvgHeartRate, rec.ActiveMinutes)
	if err != nil {
		return fmt.Errorf("repository: UpsertActivity: %w", err)
	}
	return nil
}

func (s *SQLStore) UpsertSummary(ctx context.Context, rec domain.SummaryRecord) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO summary_records (user_id, date, overview, office_risk, office_summary)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, date) DO UPDATE SET
			overview = excluded.overview,
			office_risk = excluded.office_risk,
			office_summary = excluded.office_summary`),
		rec.UserID, rec.Date, rec.Overview, string(rec.OfficeRisk), rec.OfficeSummary)
	if err != nil {
		return fmt.Errorf("repository: UpsertSummary: %w", err)
	}
	return nil
}

// DeleteUser removes the user and every dated record in one transaction.
func (s *SQLStore) DeleteUser(ctx context.Context, userID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: DeleteUser begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"summary_records", "activity_records", "bmi_records", "users"} {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM "+table+" WHERE user_id = ?"), userID); err != nil {
			return fmt.Errorf("repository: DeleteUser %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: DeleteUser commit: %w", err)
	}
	return nil
}

type summaryRow struct {
	UserID        int64  `db:"user_id"`
	Date          string `db:"date"`
	Overview      string `db:"overview"`
	OfficeRisk    string `db:"office_risk"`
	OfficeSummary string `db:"office_summary"`
}

func (r summaryRow) record() domain.SummaryRecord {
	return domain.SummaryRecord{
		UserID: r.UserID,
		Date:   r.Date,
		HealthSummary: domain.HealthSummary{
			Overview:      r.Overview,
			OfficeRisk:    domain.OfficeRisk(r.OfficeRisk),
			OfficeSummary: r.OfficeSummary,
		},
	}
}
