package notifications

import (
	"context"
	"strconv"
	"sync"
	"time"

	"billboard/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	onlineSetKey      = "ws:online_users"
	lastSeenKeyPrefix = "ws:last_seen:"
	lastSeenTTL       = 90 * time.Second
)

// Presence mirrors which users have at least one connection in Redis, so any
// process can answer IsOnline. Without Redis it answers from local counts.
type Presence struct {
	rdb *redis.Client

	mu     sync.Mutex
	counts map[uint]int
}

// NewPresence creates a presence tracker. rdb may be nil.
func NewPresence(rdb *redis.Client) *Presence {
	return &Presence{rdb: rdb, counts: make(map[uint]int)}
}

// Register records one more connection for userID.
func (p *Presence) Register(ctx context.Context, userID uint) {
	if userID == 0 {
		return
	}
	p.mu.Lock()
	p.counts[userID]++
	first := p.counts[userID] == 1
	p.mu.Unlock()

	if p.rdb == nil {
		return
	}
	pipe := p.rdb.Pipeline()
	if first {
		pipe.SAdd(ctx, onlineSetKey, userID)
	}
	pipe.Set(ctx, lastSeenKey(userID), time.Now().UTC().Unix(), lastSeenTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		middleware.Logger.Warn("presence register failed", "user_id", userID, "error", err)
	}
}

// Touch refreshes the last-seen key of a connected user.
func (p *Presence) Touch(ctx context.Context, userID uint) {
	if userID == 0 || p.rdb == nil {
		return
	}
	if err := p.rdb.Set(ctx, lastSeenKey(userID), time.Now().UTC().Unix(), lastSeenTTL).Err(); err != nil {
		middleware.Logger.Debug("presence touch failed", "user_id", userID, "error", err)
	}
}

// Unregister drops one connection; the last one takes the user offline.
func (p *Presence) Unregister(ctx context.Context, userID uint) {
	if userID == 0 {
		return
	}
	p.mu.Lock()
	p.counts[userID]--
	last := p.counts[userID] <= 0
	if last {
		delete(p.counts, userID)
	}
	p.mu.Unlock()

	if !last || p.rdb == nil {
		return
	}
	pipe := p.rdb.Pipeline()
	pipe.SRem(ctx, onlineSetKey, userID)
	pipe.Del(ctx, lastSeenKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		middleware.Logger.Warn("presence unregister failed", "user_id", userID, "error", err)
	}
}

// IsOnline reports whether userID has a connection in any process.
func (p *Presence) IsOnline(ctx context.Context, userID uint) bool {
	if p.rdb != nil {
		online, err := p.rdb.SIsMember(ctx, onlineSetKey, userID).Result()
		if err == nil {
			return online
		}
		middleware.Logger.Debug("presence lookup failed, using local state", "user_id", userID, "error", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[userID] > 0
}

func lastSeenKey(userID uint) string {
	return lastSeenKeyPrefix + strconv.FormatUint(uint64(userID), 10)
}
