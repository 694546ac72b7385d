package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"
)

// TelegramChannel pushes notifications to a fixed chat via the Bot
// API. Sends are rate limited so a burst of job completions does not
// trip Telegram's flood control.
type TelegramChannel struct {
	bot     *telego.Bot
	chatID  int64
	limiter *rate.Limiter
}

// NewTelegramChannel validates the token and chat id and builds the
// channel.
func NewTelegramChannel(token, chatID string) (*TelegramChannel, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramChannel{
		bot:     bot,
		chatID:  id,
		limiter: rate.NewLimiter(rate.Limit(1), 3),
	}, nil
}

func (c *TelegramChannel) Name() string     { return "telegram" }
func (c *TelegramChannel) IsActive() bool   { return true }
func (c *TelegramChannel) IsExternal() bool { return true }

func (c *TelegramChannel) Deliver(ctx context.Context, n Notification) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	text := fmt.Sprintf("⏰ *%s*\n\n%s", n.JobName, n.Content)
	msg := tu.Message(tu.ID(c.chatID), text).WithParseMode("Markdown")
	if _, err := c.bot.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
