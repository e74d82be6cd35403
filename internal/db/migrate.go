package db

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/donnahq/donna/internal/config"
)

// RunMigrate runs a schema migration command against the configured database.
// migrationsFS must expose the .sql files at its root. Commands: up, down,
// version, force <n>.
func RunMigrate(logger *slog.Logger, cfg config.PostgresConfig, migrationsFS fs.FS, command string, args []string) error {
	src, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, DSN(cfg))
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()
	m.Log = migrateLog{logger}

	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		logVersion(logger, m, "schema up to date")
		return nil
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down: %w", err)
		}
		logger.Info("schema rolled back")
		return nil
	case "version":
		ver, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("migrate version: %w", err)
		}
		logger.Info("schema version", slog.Uint64("version", uint64(ver)), slog.Bool("dirty", dirty))
		return nil
	case "force":
		if len(args) == 0 {
			return errors.New("force requires a version number")
		}
		ver, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		if err := m.Force(ver); err != nil {
			return fmt.Errorf("migrate force: %w", err)
		}
		logger.Info("schema version forced", slog.Int("version", ver))
		return nil
	default:
		return fmt.Errorf("unknown migrate command %q (up, down, version, force)", command)
	}
}

func logVersion(logger *slog.Logger, m *migrate.Migrate, msg string) {
	ver, dirty, err := m.Version()
	if err != nil {
		return
	}
	logger.Info(msg, slog.Uint64("version", uint64(ver)), slog.Bool("dirty", dirty))
}

type migrateLog struct {
	logger *slog.Logger
}

func (l migrateLog) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l migrateLog) Verbose() bool { return false }
