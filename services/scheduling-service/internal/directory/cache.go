package directory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
)

// Cached is a read-through Redis cache in front of Lookup. Searches always
// go to the underlying directory. Redis failures fall through to it.
type Cached struct {
	next   Directory
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewCached(next Directory, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, rdb: rdb, ttl: ttl, prefix: "directory:contact:", logger: logger}
}

func (c *Cached) Lookup(ctx context.Context, p model.Party) (model.Contact, error) {
	key := c.prefix + p.Key()

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var contact model.Contact
		if jsonErr := json.Unmarshal(raw, &contact); jsonErr == nil {
			return contact, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "directory cache read failed", "party", p.Key(), "err", err)
	}

	contact, err := c.next.Lookup(ctx, p)
	if err != nil {
		return model.Contact{}, err
	}
	if raw, err := json.Marshal(contact); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "directory cache write failed", "party", p.Key(), "err", err)
		}
	}
	return contact, nil
}

func (c *Cached) SearchLawyers(ctx context.Context, specialization string) ([]model.Provider, error) {
	return c.next.SearchLawyers(ctx, specialization)
}

func (c *Cached) SearchNGOs(ctx context.Context, ngoType string) ([]model.Provider, error) {
	return c.next.SearchNGOs(ctx, ngoType)
}
