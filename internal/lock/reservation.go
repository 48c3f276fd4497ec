package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotAcquired is returned by TryLockAll when any key is already held.
var ErrNotAcquired = errors.New("lock: already held")

// TryLockAll acquires every key without blocking, or none of them. Keys are
// taken in the given order; callers must sort them so concurrent checkouts
// touching the same records cannot deadlock. On any held key the locks taken
// so far are released and ErrNotAcquired is returned.
func (l Locker) TryLockAll(ctx context.Context, keys []string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	var held []string
	defer func() {
		for _, key := range held {
			l.release(context.Background(), key, token)
		}
	}()

	for _, key := range keys {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("key %s: %w", key, ErrNotAcquired)
		}
		held = append(held, key)
	}
	return fn(ctx)
}
