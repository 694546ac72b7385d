package scheduler

import (
	"testing"
	"time"
)

func TestIntervalNextFire(t *testing.T) {
	trig := Interval(60)
	now := time.Now().Unix()

	t.Run("first fire is immediate", func(t *testing.T) {
		if got := trig.NextFire(0, now); got != now {
			t.Errorf("NextFire(0, now) = %d, want %d", got, now)
		}
	})
	t.Run("subsequent fires are last_run+n", func(t *testing.T) {
		if got := trig.NextFire(1000, now); got != 1060 {
			t.Errorf("NextFire(1000, now) = %d, want 1060", got)
		}
	})
}

func TestOneShotNextFire(t *testing.T) {
	now := int64(2000)
	trig := OneShot(2500)

	t.Run("pending", func(t *testing.T) {
		if got := trig.NextFire(0, now); got != 2500 {
			t.Errorf("got %d, want 2500", got)
		}
	})
	t.Run("already fired", func(t *testing.T) {
		if got := trig.NextFire(2500, 2600); got != 0 {
			t.Errorf("got %d, want 0", got)
		}
	})
	t.Run("missed window", func(t *testing.T) {
		if got := trig.NextFire(0, 3000); got != 0 {
			t.Errorf("got %d, want 0", got)
		}
	})
}

func TestCronNextFire(t *testing.T) {
	// Every hour on the hour.
	trig := Cron("0 * * * *")
	ref := time.Date(2026, 8, 24, 9, 30, 0, 0, time.UTC).Unix()
	got := trig.NextFire(ref, ref)
	want := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC).Unix()
	if got != want {
		t.Errorf("NextFire = %s, want %s", time.Unix(got, 0).UTC(), time.Unix(want, 0).UTC())
	}
}

func TestTriggerValidate(t *testing.T) {
	tests := []struct {
		name    string
		trig    Trigger
		wantErr bool
	}{
		{"valid cron", Cron("0 9 * * 1-5"), false},
		{"invalid cron", Cron("not a cron"), true},
		{"valid interval", Interval(1800), false},
		{"zero interval", Interval(0), true},
		{"valid oneshot", OneShot(1740481200), false},
		{"zero oneshot", OneShot(0), true},
		{"unknown type", Trigger{Type: "weekly"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trig.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
