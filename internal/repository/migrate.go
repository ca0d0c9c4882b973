package repository

import (
	"context"
	"embed"
	"fmt"
	"log"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Migrate applies every pending migration. goose keeps its configuration in
// package state, so concurrent calls against different dialects are not
// supported.
func (s *SQLStore) Migrate(ctx context.Context) error {
	goose.SetLogger(log.New(slogWriter{s.logger}, "", 0))
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect(s.dialect()); err != nil {
		return fmt.Errorf("repository: set goose dialect: %w", err)
	}
	s.logger.InfoContext(ctx, "running database migrations", "driver", s.driver)
	if err := goose.UpContext(ctx, s.db.DB, "migrations"); err != nil {
		return fmt.Errorf("repository: migrate: %w", err)
	}
	s.logger.InfoContext(ctx, "database migrations completed")
	return nil
}

func (s *SQLStore) dialect() string {
	if s.driver == DriverPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// slogWriter forwards goose's printf-style output to slog at debug level.
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Write(p []byte) (int, error) {
	w.logger.Debug(string(trimNewline(p)), "component", "goose")
	return len(p), nil
}

func trimNewline(p []byte) []byte {
	for len(p) > 0 && (p[len(p)-1] == '\n' || p[len(p)-1] == '\r') {
		p = p[:len(p)-1]
	}
	return p
}
