package sqlite

import (
	"errors"
	"testing"
	"time"

	"github.com/gridline-data/corridor.report/internal/timeutil"
)

// withMockClock swaps the package clock for a mock and restores it when
// the test ends.
func withMockClock(t *testing.T) *timeutil.MockClock {
	t.Helper()
	mock := timeutil.NewMockClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	old := clock
	clock = mock
	t.Cleanup(func() { clock = old })
	return mock
}

func TestIsSQLiteBusy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"database is locked", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"SQLITE_BUSY", errors.New("SQLITE_BUSY"), true},
		{"other error", errors.New("no such table: towers"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := isSQLiteBusy(c.err); got != c.want {
				t.Errorf("isSQLiteBusy(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func TestRetryOnBusy(t *testing.T) {
	busyErr := errors.New("database is locked (5) (SQLITE_BUSY)")

	t.Run("first try succeeds", func(t *testing.T) {
		calls := 0
		if err := retryOnBusy(func() error { calls++; return nil }); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("busy then success", func(t *testing.T) {
		withMockClock(t)
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			if calls < 3 {
				return busyErr
			}
			return nil
		})
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("non-busy error is not retried", func(t *testing.T) {
		calls := 0
		wantErr := errors.New("constraint violation")
		err := retryOnBusy(func() error { calls++; return wantErr })
		if err != wantErr {
			t.Errorf("expected %v back unwrapped, got %v", wantErr, err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		withMockClock(t)
		calls := 0
		err := retryOnBusy(func() error { calls++; return busyErr })
		if err == nil {
			t.Error("expected the busy error after exhausting retries")
		}
		if calls != busyMaxAttempts {
			t.Errorf("expected %d calls, got %d", busyMaxAttempts, calls)
		}
	})

	t.Run("backoff doubles", func(t *testing.T) {
		mock := withMockClock(t)
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			if calls < 4 {
				return busyErr
			}
			return nil
		})
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
		got := mock.Sleeps()
		if len(got) != len(want) {
			t.Fatalf("expected %d sleeps, got %d: %v", len(want), len(got), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("sleep %d: expected %v, got %v", i, want[i], got[i])
			}
		}
	})
}
