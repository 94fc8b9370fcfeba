package sqlite

import (
	"strings"
	"time"

	"github.com/gridline-data/corridor.report/internal/timeutil"
)

const (
	busyMaxAttempts  = 5
	busyInitialDelay = 10 * time.Millisecond
)

// clock backs retry sleeps and run timestamps; tests swap in a mock.
var clock timeutil.Clock = timeutil.RealClock{}

// isSQLiteBusy reports whether err is a transient lock conflict worth
// retrying. modernc.org/sqlite surfaces these as plain strings.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs fn up to busyMaxAttempts times with exponential
// backoff starting at busyInitialDelay. Non-busy errors fail
// immediately.
func retryOnBusy(fn func() error) error {
	delay := busyInitialDelay
	var err error
	for attempt := 0; attempt < busyMaxAttempts; attempt++ {
		if attempt > 0 {
			clock.Sleep(delay)
			delay *= 2
		}
		err = fn()
		if err == nil || !isSQLiteBusy(err) {
			return err
		}
	}
	return err
}
