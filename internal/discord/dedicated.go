package discord

import (
	"context"
	"sync"

	"github.com/hyeonsong/aria/internal/player"
)

// dedicatedCache mirrors the dedicated-channel table in memory so command
// preconditions never hit the database on the hot path.
type dedicatedCache struct {
	mu      sync.RWMutex
	byGuild map[string]string
}

func newDedicatedCache() *dedicatedCache {
	return &dedicatedCache{byGuild: make(map[string]string)}
}

// load replaces the cache contents from the store.
func (c *dedicatedCache) load(ctx context.Context, store player.Store) error {
	channels, err := store.DedicatedChannels(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.byGuild = channels
	c.mu.Unlock()
	return nil
}

// get returns the guild's dedicated text channel, or "" when none is set.
func (c *dedicatedCache) get(guildID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byGuild[guildID]
}

func (c *dedicatedCache) set(guildID, channelID string) {
	c.mu.Lock()
	c.byGuild[guildID] = channelID
	c.mu.Unlock()
}
