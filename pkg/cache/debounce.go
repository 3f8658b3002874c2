package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Debouncer is a best-effort single-flight guard for scheduler dispatches.
// It is advisory only: true exclusivity for transfer claims comes from the
// database row lock, not from this flag store.
type Debouncer struct {
	client *redis.Client
	prefix string
}

func NewDebouncer(client *redis.Client) *Debouncer {
	return &Debouncer{client: client, prefix: "dispatch:debounce"}
}

// TryAcquire sets the flag for key if it is not already set and returns
// whether the caller won the window. The flag always lives out its ttl, so
// successive dispatches of the same key are spaced at least ttl apart and a
// crashed run never wedges dispatch.
func (d *Debouncer) TryAcquire(ctx context.Context, key string, ttl time.Duration) bool {
	token := uuid.NewString()
	ok, err := d.client.SetNX(ctx, d.prefix+":"+key, token, ttl).Result()
	if err != nil {
		// Fail open: a missed debounce only risks a duplicate dispatch,
		// which downstream locking already tolerates.
		log.Warn().Err(err).Str("key", key).Msg("[Debouncer] [TryAcquire] flag store unavailable")
		return true
	}
	return ok
}
