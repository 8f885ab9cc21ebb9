package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

var errNoDB = errors.New("migrate: db is required")

// Run executes a goose command (up, down, redo, status, up-to, down-to)
// against the postgres schema in dir. sqlite is handled by
// ApplySQLiteSchema instead.
func Run(ctx context.Context, db *sql.DB, dir, command string, args ...string) error {
	switch {
	case db == nil:
		return errNoDB
	case dir == "":
		return errors.New("migrate: dir is required")
	}
	if err := goose.SetDialect(string(goose.DialectPostgres)); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down until it sits at target, a
// YYYYMMDDHHMMSS migration version.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir, target string) error {
	want, err := parseVersion(target)
	if err != nil {
		return err
	}
	if db == nil {
		return errNoDB
	}
	have, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case have < want:
		return Run(ctx, db, dir, "up-to", target)
	case have > want:
		return Run(ctx, db, dir, "down-to", target)
	}
	return nil
}

func parseVersion(raw string) (int64, error) {
	if raw == "" {
		return 0, errors.New("migrate: target version is required")
	}
	if _, err := time.Parse(versionLayout, raw); err != nil {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", raw, err)
	}
	return strconv.ParseInt(raw, 10, 64)
}
