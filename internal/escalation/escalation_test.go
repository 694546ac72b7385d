package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/arclabs/arc/internal/bus"
)

func TestAskManagerResolved(t *testing.T) {
	events := bus.New(nil)
	esc := New(events, time.Second, nil)

	var escalationID string
	ready := make(chan struct{})
	events.Subscribe(bus.EventAgentEscalation, func(ctx context.Context, ev bus.Event) error {
		escalationID = ev.String("escalation_id")
		if ev.String("question") != "overwrite the report?" {
			t.Errorf("question = %q", ev.String("question"))
		}
		close(ready)
		return nil
	})

	answer := make(chan string, 1)
	go func() {
		answer <- esc.AskManager(context.Background(), "worker:report", "overwrite the report?")
	}()

	<-ready
	if !esc.Resolve(escalationID, "yes, go ahead") {
		t.Fatal("resolve returned false for a pending escalation")
	}
	if got := <-answer; got != "yes, go ahead" {
		t.Errorf("answer = %q", got)
	}
	if esc.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0", esc.PendingCount())
	}
}

func TestAskManagerTimeoutFallback(t *testing.T) {
	esc := New(bus.New(nil), 50*time.Millisecond, nil)
	got := esc.AskManager(context.Background(), "worker:x", "anyone there?")
	if got != FallbackAnswer {
		t.Errorf("answer = %q, want fallback", got)
	}
}

func TestResolveUnknownID(t *testing.T) {
	esc := New(bus.New(nil), time.Second, nil)
	if esc.Resolve("missing", "hello") {
		t.Error("resolve of unknown id returned true")
	}
}

func TestDoubleResolveIsNoop(t *testing.T) {
	events := bus.New(nil)
	esc := New(events, time.Second, nil)

	idCh := make(chan string, 1)
	events.Subscribe(bus.EventAgentEscalation, func(ctx context.Context, ev bus.Event) error {
		idCh <- ev.String("escalation_id")
		return nil
	})

	answer := make(chan string, 1)
	go func() {
		answer <- esc.AskManager(context.Background(), "worker:x", "q")
	}()

	id := <-idCh
	if !esc.Resolve(id, "first") {
		t.Fatal("first resolve failed")
	}
	if esc.Resolve(id, "second") {
		t.Fatal("second resolve must return false")
	}
	if got := <-answer; got != "first" {
		t.Errorf("answer = %q, want first", got)
	}
}
