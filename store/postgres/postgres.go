// Package postgres is the authoritative credential store. It implements
// authcore.UserStore over database/sql with the pgx driver and manages its
// schema with embedded goose migrations.
//
// # Architecture boundaries
//
// This package owns SQL and schema only. Activation rules, approval
// transitions allowed by policy, and password hashing all live in the engine;
// the store enforces just the row-level guarantees the engine asks for
// (unique identities, compare-and-set approval transitions, one-shot
// activation stamps).
//
// # What this package must NOT do
//
//   - interpret or log password hashes and TOTP ciphertext
//   - decide which approval transitions are legal
//   - touch Redis-held state (sessions, rate windows, one-time tokens)
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	authcore "github.com/retailstack/authcore"
	"github.com/retailstack/authcore/store/postgres/migrations"
)

// Open connects to Postgres via the pgx stdlib driver and verifies the
// connection with a ping.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// wrapDB classifies a backend failure as unavailable unless it already maps
// to a store sentinel.
func wrapDB(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return authcore.ErrUserNotFound
	}
	return fmt.Errorf("%w: %s: %v", authcore.ErrUnavailable, op, err)
}
