// Package notify routes background-task results to the user: external
// chat channels first, then the interactive session's pending queue,
// with a file log as the always-on fallback.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/arclabs/arc/internal/bus"
)

// Notification is one background result to deliver.
type Notification struct {
	JobID   string
	JobName string
	Content string
	FiredAt time.Time
}

// Channel is one delivery target. External channels (Telegram,
// Discord) reach the user away from the terminal; non-external ones
// only matter when nothing external got through.
type Channel interface {
	Name() string
	IsActive() bool
	IsExternal() bool
	Deliver(ctx context.Context, n Notification) error
}

// Router fans one notification out across channels. Externals are
// tried first; when any of them succeeds the interactive queue is
// skipped, but the file log always gets a copy. A channel error never
// stops the rest.
type Router struct {
	channels []Channel
	events   *bus.Bus
	logger   *slog.Logger
}

// NewRouter builds a router over the given channels.
func NewRouter(events *bus.Bus, logger *slog.Logger, channels ...Channel) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{channels: channels, events: events, logger: logger}
}

// AddChannel appends a delivery target.
func (r *Router) AddChannel(ch Channel) {
	r.channels = append(r.channels, ch)
}

// Dispatch delivers one notification and returns the names of the
// channels that accepted it.
func (r *Router) Dispatch(ctx context.Context, n Notification) []string {
	if n.FiredAt.IsZero() {
		n.FiredAt = time.Now()
	}

	var delivered []string
	externalOK := false
	for _, ch := range r.channels {
		if !ch.IsExternal() || !ch.IsActive() {
			continue
		}
		if err := ch.Deliver(ctx, n); err != nil {
			r.logger.Warn("notification delivery failed",
				"channel", ch.Name(), "job", n.JobName, "error", err)
			continue
		}
		delivered = append(delivered, ch.Name())
		externalOK = true
	}

	for _, ch := range r.channels {
		if ch.IsExternal() || !ch.IsActive() {
			continue
		}
		if externalOK && ch.Name() != ChannelFile {
			continue
		}
		if err := ch.Deliver(ctx, n); err != nil {
			r.logger.Warn("notification delivery failed",
				"channel", ch.Name(), "job", n.JobName, "error", err)
			continue
		}
		delivered = append(delivered, ch.Name())
	}

	if r.events != nil {
		r.events.EmitNowait(bus.NewEvent(bus.EventNotification, "notify", map[string]any{
			"job_id":   n.JobID,
			"job_name": n.JobName,
			"channels": delivered,
		}))
	}
	return delivered
}
