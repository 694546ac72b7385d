package agent

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubPlatform struct {
	name    string
	stopped bool
	stopErr error
}

func (p *stubPlatform) Name() string { return p.name }
func (p *stubPlatform) Stop() error {
	p.stopped = true
	return p.stopErr
}

func TestRegistryExperts(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.RegisterExpert(&Expert{Name: "researcher"}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterExpert(&Expert{Name: "researcher"}); err == nil {
		t.Fatal("duplicate expert name accepted")
	}
	if err := r.RegisterExpert(&Expert{Name: "coder"}); err != nil {
		t.Fatal(err)
	}

	experts := r.Experts()
	if len(experts) != 2 || experts[0].Name != "coder" || experts[1].Name != "researcher" {
		t.Errorf("experts = %+v", experts)
	}
	if _, ok := r.Expert("researcher"); !ok {
		t.Error("lookup failed")
	}
}

func TestRegistryWorkers(t *testing.T) {
	r := NewRegistry(nil)
	_, cancel := context.WithCancel(context.Background())
	r.TrackWorker("b_task", cancel, nil)
	r.TrackWorker("a_task", cancel, nil)

	if got := r.RunningWorkers(); len(got) != 2 || got[0] != "a_task" || got[1] != "b_task" {
		t.Errorf("running = %v", got)
	}
	r.UntrackWorker("a_task")
	if got := r.RunningWorkers(); len(got) != 1 || got[0] != "b_task" {
		t.Errorf("running = %v", got)
	}
}

func TestShutdownAll(t *testing.T) {
	r := NewRegistry(nil)
	plat := &stubPlatform{name: "virtual", stopErr: errors.New("already closed")}
	if err := r.RegisterExpert(&Expert{Name: "x", Platform: plat}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.TrackWorker("w_1", cancel, done)
	go func() {
		<-ctx.Done()
		close(done)
	}()

	r.ShutdownAll(time.Second)
	if !plat.stopped {
		t.Error("expert platform was not stopped")
	}
	if ctx.Err() == nil {
		t.Error("worker context was not cancelled")
	}
	if len(r.RunningWorkers()) != 0 {
		t.Error("workers not cleared")
	}

	// Idempotent: second call must not panic or block.
	r.ShutdownAll(time.Second)

	if err := r.RegisterExpert(&Expert{Name: "late"}); err == nil {
		t.Error("registration after shutdown accepted")
	}
}

func TestTrackWorkerAfterShutdownCancels(t *testing.T) {
	r := NewRegistry(nil)
	r.ShutdownAll(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	r.TrackWorker("late_1", cancel, nil)
	if ctx.Err() == nil {
		t.Error("late worker was not cancelled immediately")
	}
	if len(r.RunningWorkers()) != 0 {
		t.Error("late worker was tracked")
	}
}
