package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordChannel pushes notifications to a fixed channel over the
// Discord REST API. No gateway connection is opened; plain message
// sends only need the bot token.
type DiscordChannel struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscordChannel builds the channel from a bot token and target
// channel id.
func NewDiscordChannel(token, channelID string) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &DiscordChannel{session: session, channelID: channelID}, nil
}

func (c *DiscordChannel) Name() string     { return "discord" }
func (c *DiscordChannel) IsActive() bool   { return true }
func (c *DiscordChannel) IsExternal() bool { return true }

func (c *DiscordChannel) Deliver(ctx context.Context, n Notification) error {
	content := fmt.Sprintf("⏰ **%s**\n\n%s", n.JobName, n.Content)
	if _, err := c.session.ChannelMessageSend(c.channelID, content,
		discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}
