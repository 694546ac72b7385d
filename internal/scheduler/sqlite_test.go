package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "scheduler.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestSaveAndGetByName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &Job{
		Name:    "morning-brief",
		Prompt:  "summarise the news",
		Trigger: Cron("0 9 * * 1-5"),
		NextRun: time.Now().Unix() + 3600,
		Active:  true,
	}
	if err := store.Save(ctx, job); err != nil {
		t.Fatal(err)
	}
	if job.ID == "" {
		t.Fatal("Save must assign an id")
	}

	got, err := store.GetByName(ctx, "morning-brief")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != job.ID {
		t.Errorf("id = %q, want %q", got.ID, job.ID)
	}
	if got.Trigger.Type != TriggerCron || got.Trigger.Expression != "0 9 * * 1-5" {
		t.Errorf("trigger round-trip = %+v", got.Trigger)
	}
}

func TestDuplicateName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := &Job{Name: "dup", Prompt: "p", Trigger: Interval(60), NextRun: 1, Active: true}
	if err := store.Save(ctx, a); err != nil {
		t.Fatal(err)
	}
	b := &Job{Name: "dup", Prompt: "p", Trigger: Interval(60), NextRun: 1, Active: true}
	if err := store.Save(ctx, b); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("err = %v, want ErrDuplicateName", err)
	}
}

func TestGetDue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	due := &Job{Name: "due", Prompt: "p", Trigger: Interval(60), NextRun: now - 10, Active: true}
	future := &Job{Name: "future", Prompt: "p", Trigger: Interval(60), NextRun: now + 600, Active: true}
	inactive := &Job{Name: "inactive", Prompt: "p", Trigger: Interval(60), NextRun: 0, Active: false}
	for _, j := range []*Job{due, future, inactive} {
		if err := store.Save(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.GetDue(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "due" {
		t.Fatalf("due jobs = %+v, want [due]", got)
	}
}

func TestUpdateAfterRunDeactivatesOnZero(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &Job{Name: "j", Prompt: "p", Trigger: Interval(60), NextRun: 100, Active: true}
	if err := store.Save(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateAfterRun(ctx, job.ID, 0, 100); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetByName(ctx, "j")
	if err != nil {
		t.Fatal(err)
	}
	if got.Active {
		t.Error("job still active after next_run = 0")
	}
	if got.NextRun != 0 || got.LastRun != 100 {
		t.Errorf("next_run/last_run = %d/%d, want 0/100", got.NextRun, got.LastRun)
	}
}

func TestDeleteUnknown(t *testing.T) {
	store := newTestStore(t)
	if err := store.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	// A second Init must tolerate the existing use_tools column.
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}
}
