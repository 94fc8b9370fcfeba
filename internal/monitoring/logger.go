package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or embedding applications can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that forwards to f with a fixed prefix, used to
// tag pipeline stage output (e.g. "cluster:", "dedupe:"). A nil f forwards
// to the package logger active at call time.
func Prefixed(prefix string, f func(format string, v ...interface{})) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		if f != nil {
			f(prefix+" "+format, v...)
			return
		}
		Logf(prefix+" "+format, v...)
	}
}
