// Package directory resolves user ids to profiles. Presence only needs the
// id; the profile is shown to a partner when a pair forms.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Converse/internal/domain"
)

var ErrUnknownUser = errors.New("unknown user")

type Directory interface {
	Lookup(ctx context.Context, id domain.UserID) (domain.Profile, error)
	Close() error
}

type Driver string

const (
	DriverStatic Driver = "static"
	DriverSQLite Driver = "sqlite"
	DriverRedis  Driver = "redis"
)

type Options struct {
	Driver     Driver
	SQLitePath string
	RedisAddr  string
	// Users seeds the static directory. With the sqlite driver they are
	// upserted into the users table on open.
	Users []domain.Profile
}

func Open(ctx context.Context, opt Options) (Directory, error) {
	switch opt.Driver {
	case DriverStatic, "":
		return NewStatic(opt.Users), nil
	case DriverSQLite:
		d, err := OpenSQLite(ctx, opt.SQLitePath)
		if err != nil {
			return nil, err
		}
		for _, u := range opt.Users {
			if err := d.Upsert(ctx, u); err != nil {
				d.Close()
				return nil, fmt.Errorf("seed sqlite directory with %s: %w", u.UserID, err)
			}
		}
		return d, nil
	case DriverRedis:
		return OpenRedis(ctx, opt.RedisAddr)
	default:
		return nil, fmt.Errorf("directory driver %q not supported", opt.Driver)
	}
}

// Static is an in-memory directory.
type Static struct {
	users map[domain.UserID]domain.Profile
}

func NewStatic(users []domain.Profile) *Static {
	s := &Static{users: make(map[domain.UserID]domain.Profile, len(users))}
	for _, u := range users {
		s.users[u.UserID] = u
	}
	return s
}

func (s *Static) Lookup(_ context.Context, id domain.UserID) (domain.Profile, error) {
	p, ok := s.users[id]
	if !ok {
		return domain.Profile{}, fmt.Errorf("%s: %w", id, ErrUnknownUser)
	}
	return p, nil
}

func (s *Static) Close() error { return nil }
