package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/dkeye/Converse/internal/domain"
)

// SQLite reads profiles from a users table shared with the account service.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			user_name     TEXT NOT NULL DEFAULT '',
			country       TEXT NOT NULL DEFAULT '',
			fluency_level TEXT NOT NULL DEFAULT ''
		)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("open sqlite directory %s: %w", path, err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Lookup(ctx context.Context, id domain.UserID) (domain.Profile, error) {
	p := domain.Profile{UserID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT user_name, country, fluency_level FROM users WHERE id = ?`, string(id),
	).Scan(&p.Username, &p.Country, &p.FluencyLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, fmt.Errorf("%s: %w", id, ErrUnknownUser)
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("lookup %s: %w", id, err)
	}
	return p, nil
}

// Upsert inserts or replaces one profile.
func (s *SQLite) Upsert(ctx context.Context, p domain.Profile) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, user_name, country, fluency_level)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_name=excluded.user_name,
			country=excluded.country,
			fluency_level=excluded.fluency_level`,
		string(p.UserID), p.Username, p.Country, p.FluencyLevel)
	return err
}

func (s *SQLite) Close() error { return s.db.Close() }
