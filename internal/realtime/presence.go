// Package realtime pushes vote deltas and viewer presence to websocket
// clients.  Presence lives in Redis so every instance sees the same
// viewers; events reach clients through the local Hub after crossing the
// broker.
package realtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "presence:show:"

func presenceKey(showID uint64) string { return presenceKeyPrefix + strconv.FormatUint(showID, 10) }

// touchScript upserts a viewer and reports 1 when the viewer was absent or
// expired, i.e. when a "joined" event is due.
var touchScript = redis.NewScript(`
	local old = redis.call('ZSCORE', KEYS[1], ARGV[2])
	redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
	redis.call('PEXPIRE', KEYS[1], ARGV[4])
	if (not old) or tonumber(old) < tonumber(ARGV[3]) then
		return 1
	end
	return 0
`)

// removeStaleScript removes a viewer only if it is still expired, so a
// heartbeat that lands during a sweep is kept.
var removeStaleScript = redis.NewScript(`
	local s = redis.call('ZSCORE', KEYS[1], ARGV[1])
	if s and tonumber(s) < tonumber(ARGV[2]) then
		return redis.call('ZREM', KEYS[1], ARGV[1])
	end
	return 0
`)

// PresenceStore keeps one sorted set per show: member = user ID, score =
// last seen in unix milliseconds.  Entries older than ttl are treated as
// gone and removed by Sweep.
type PresenceStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewPresenceStore returns a PresenceStore expiring viewers after ttl.
func NewPresenceStore(rdb *redis.Client, ttl time.Duration) *PresenceStore {
	return &PresenceStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func (p *PresenceStore) cutoff(now time.Time) int64 { return now.Add(-p.ttl).UnixMilli() }

// Touch records the viewer as seen now.  It returns true when the viewer
// was not present before (new or expired).
func (p *PresenceStore) Touch(ctx context.Context, showID uint64, userID string) (bool, error) {
	now := p.now()
	n, err := touchScript.Run(ctx, p.rdb, []string{presenceKey(showID)},
		now.UnixMilli(), userID, p.cutoff(now), (2 * p.ttl).Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("presence touch: %w", err)
	}
	return n == 1, nil
}

// Leave removes the viewer.  It returns true when an entry was removed.
func (p *PresenceStore) Leave(ctx context.Context, showID uint64, userID string) (bool, error) {
	n, err := p.rdb.ZRem(ctx, presenceKey(showID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("presence leave: %w", err)
	}
	return n == 1, nil
}

// Viewers returns the users currently present on the show, most recently
// seen first.
func (p *PresenceStore) Viewers(ctx context.Context, showID uint64) ([]string, error) {
	ids, err := p.rdb.ZRevRangeByScore(ctx, presenceKey(showID), &redis.ZRangeBy{
		Min: strconv.FormatInt(p.cutoff(p.now()), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("presence viewers: %w", err)
	}
	return ids, nil
}

// Count returns the number of users currently present on the show.
func (p *PresenceStore) Count(ctx context.Context, showID uint64) (int64, error) {
	n, err := p.rdb.ZCount(ctx, presenceKey(showID), strconv.FormatInt(p.cutoff(p.now()), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("presence count: %w", err)
	}
	return n, nil
}

// Expired is one viewer removed by Sweep.
type Expired struct {
	ShowID uint64
	UserID string
}

// Sweep removes every expired viewer across all shows.  Each entry is
// removed individually so that when several instances sweep at once only
// one of them reports a given viewer.
func (p *PresenceStore) Sweep(ctx context.Context) ([]Expired, error) {
	cutoff := p.cutoff(p.now())
	upper := "(" + strconv.FormatInt(cutoff, 10)
	var out []Expired
	iter := p.rdb.Scan(ctx, 0, presenceKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		showID, err := strconv.ParseUint(strings.TrimPrefix(key, presenceKeyPrefix), 10, 64)
		if err != nil {
			continue
		}
		stale, err := p.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: upper}).Result()
		if err != nil {
			return out, fmt.Errorf("presence sweep %s: %w", key, err)
		}
		for _, userID := range stale {
			n, err := removeStaleScript.Run(ctx, p.rdb, []string{key}, userID, cutoff).Int()
			if err != nil {
				return out, fmt.Errorf("presence sweep %s: %w", key, err)
			}
			if n == 1 {
				out = append(out, Expired{ShowID: showID, UserID: userID})
			}
		}
	}
	if err := iter.Err(); err != nil {
		return out, fmt.Errorf("presence scan: %w", err)
	}
	return out, nil
}
