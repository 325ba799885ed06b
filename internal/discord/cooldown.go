package discord

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Cooldown throttles command usage per (guild, user) with a token bucket.
// Moderators get a larger burst before they start hitting the limit.
type Cooldown struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
	burst    int
	modBurst int
}

// NewCooldown creates a Cooldown that refills one use per interval.
func NewCooldown(interval time.Duration, burst, modBurst int) *Cooldown {
	return &Cooldown{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
		burst:    burst,
		modBurst: modBurst,
	}
}

// Allow consumes one use for the user in the guild, reporting whether
// the command may proceed.
func (c *Cooldown) Allow(guildID, userID string, moderator bool) bool {
	burst := c.burst
	if moderator {
		burst = c.modBurst
	}

	key := guildID + "/" + userID
	c.mu.Lock()
	lim, ok := c.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(c.interval), burst)
		c.limiters[key] = lim
	}
	c.mu.Unlock()

	return lim.Allow()
}

// Forget drops all limiter state for a guild, freeing memory when the
// bot leaves it.
func (c *Cooldown) Forget(guildID string) {
	prefix := guildID + "/"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.limiters {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(c.limiters, key)
		}
	}
}
