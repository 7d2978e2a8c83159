package slack

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/superclaw/internal/lru"
)

// channelNameTTL bounds how long a renamed channel keeps its old name.
const channelNameTTL = time.Hour

// ChannelNames resolves channel ids to names through conversations.info,
// keeping recent answers in an LRU cache.
type ChannelNames struct {
	api    BotAPI
	cache  *lru.Cache[string, string]
	logger zerolog.Logger
}

// NewChannelNames creates a resolver caching up to size names.
func NewChannelNames(api BotAPI, size int, logger zerolog.Logger) *ChannelNames {
	if size < 1 {
		size = 512
	}
	return &ChannelNames{
		api:    api,
		cache:  lru.New[string, string](size, channelNameTTL),
		logger: logger.With().Str("component", "slack.channels").Logger(),
	}
}

// Name returns the channel's name, or the id itself when Slack cannot
// resolve it. Failed lookups are not cached.
func (c *ChannelNames) Name(ctx context.Context, id string) string {
	if name, ok := c.cache.Get(id); ok {
		return name
	}

	ch, err := c.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: id})
	if err != nil || ch == nil || ch.Name == "" {
		c.logger.Debug().Err(err).Str("channel", id).Msg("channel name lookup failed")
		return id
	}
	c.cache.Put(id, ch.Name)
	return ch.Name
}
