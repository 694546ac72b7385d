// Package scheduler persists jobs with cron/interval/one-shot
// triggers and fires the due ones from a polling engine.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// Trigger types.
const (
	TriggerCron     = "cron"
	TriggerInterval = "interval"
	TriggerOneShot  = "oneshot"
)

// Trigger is the tagged time function of a job. Exactly one of the
// payload fields is meaningful, selected by Type.
type Trigger struct {
	Type       string `json:"type"`
	Expression string `json:"expression,omitempty"` // cron: 5-field expression
	Seconds    int64  `json:"seconds,omitempty"`    // interval: period in seconds
	At         int64  `json:"at,omitempty"`         // oneshot: unix time
}

// Cron builds a cron trigger.
func Cron(expression string) Trigger {
	return Trigger{Type: TriggerCron, Expression: expression}
}

// Interval builds an interval trigger.
func Interval(seconds int64) Trigger {
	return Trigger{Type: TriggerInterval, Seconds: seconds}
}

// OneShot builds a one-shot trigger.
func OneShot(at int64) Trigger {
	return Trigger{Type: TriggerOneShot, At: at}
}

// Validate rejects malformed triggers. Cron expressions are validated
// here, at creation time, so bad jobs never reach the store.
func (t Trigger) Validate() error {
	switch t.Type {
	case TriggerCron:
		if !gronx.New().IsValid(t.Expression) {
			return fmt.Errorf("invalid cron expression %q", t.Expression)
		}
	case TriggerInterval:
		if t.Seconds < 1 {
			return fmt.Errorf("interval seconds must be >= 1, got %d", t.Seconds)
		}
	case TriggerOneShot:
		if t.At <= 0 {
			return fmt.Errorf("oneshot time must be positive, got %d", t.At)
		}
	default:
		return fmt.Errorf("unknown trigger type %q", t.Type)
	}
	return nil
}

// NextFire returns the next fire time as unix seconds, or 0 when the
// job should never fire again.
//
// Interval: first fire (lastRun == 0) is immediate, then lastRun+n.
// OneShot: 0 once fired or once now is past the target.
// Cron: next matching time at or after lastRun (or now when unset).
func (t Trigger) NextFire(lastRun, now int64) int64 {
	switch t.Type {
	case TriggerInterval:
		if lastRun == 0 {
			return now
		}
		return lastRun + t.Seconds
	case TriggerOneShot:
		if lastRun > 0 || now > t.At {
			return 0
		}
		return t.At
	case TriggerCron:
		ref := lastRun
		if ref == 0 {
			ref = now
		}
		next, err := gronx.NextTickAfter(t.Expression, time.Unix(ref, 0), false)
		if err != nil {
			return 0
		}
		return next.Unix()
	}
	return 0
}

// Describe renders the trigger for display.
func (t Trigger) Describe() string {
	switch t.Type {
	case TriggerCron:
		return "cron " + t.Expression
	case TriggerInterval:
		return fmt.Sprintf("every %s", time.Duration(t.Seconds)*time.Second)
	case TriggerOneShot:
		return "once at " + time.Unix(t.At, 0).Format("2006-01-02 15:04")
	}
	return "unknown"
}

// Job is one scheduled task. Invariant: Active == (NextRun > 0).
type Job struct {
	ID        string
	Name      string
	Prompt    string
	Trigger   Trigger
	NextRun   int64
	LastRun   int64
	Active    bool
	UseTools  bool
	CreatedAt int64
}

// Store errors.
var (
	ErrNotFound      = errors.New("job not found")
	ErrDuplicateName = errors.New("job name already exists")
)
