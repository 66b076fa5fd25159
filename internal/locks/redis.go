// Package locks provides a Redis-backed advisory lock used to serialize
// concurrent bookings on the same calendar slot. A booking acquires all
// of its slot keys before re-checking availability and writing rows, so
// two requests racing for one therapist-day or machine-day cannot both
// pass the availability check.
package locks

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ariel-montero/clinicsched/internal/schedule"
)

// releaseScript deletes a lock key only when it still holds the token
// written by this acquisition, so an expired lock re-taken by another
// booking is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type SlotLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewSlotLocker(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *SlotLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &SlotLocker{rdb: rdb, ttl: ttl, logger: logger}
}

// AcquireSlots takes every key with SET NX or none at all. Keys are
// acquired in sorted order so two bookings contending on overlapping
// key sets cannot deadlock each other. On contention it returns
// schedule.ErrSlotLocked with any partial acquisitions rolled back.
func (l *SlotLocker) AcquireSlots(ctx context.Context, keys []string) (func(), error) {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	token := uuid.NewString()
	held := make([]string, 0, len(sorted))
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, key := range held {
			if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil && l.logger != nil {
				l.logger.Warn("slot lock release failed", "key", key, "err", err)
			}
		}
	}

	for _, key := range sorted {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			release()
			return nil, err
		}
		if !ok {
			release()
			return nil, schedule.ErrSlotLocked
		}
		held = append(held, key)
	}
	return release, nil
}
