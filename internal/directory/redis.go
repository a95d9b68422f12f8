package directory

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/Converse/internal/domain"
)

func userKey(id domain.UserID) string {
	return fmt.Sprintf("users:%s", id)
}

// Redis reads profiles stored as hashes under users:<id>.
type Redis struct{ rdb *redis.Client }

func OpenRedis(ctx context.Context, addr string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("open redis directory %s: %w", addr, err)
	}
	return NewRedis(rdb), nil
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (r *Redis) Lookup(ctx context.Context, id domain.UserID) (domain.Profile, error) {
	m, err := r.rdb.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return domain.Profile{}, fmt.Errorf("lookup %s: %w", id, err)
	}
	if len(m) == 0 {
		return domain.Profile{}, fmt.Errorf("%s: %w", id, ErrUnknownUser)
	}
	return domain.Profile{
		UserID:       id,
		Username:     m["user_name"],
		Country:      m["country"],
		FluencyLevel: m["fluency_level"],
	}, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }
