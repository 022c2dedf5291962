package logging

import (
	"time"
)

// TimingContext holds timing information for manual Start/End tracking
type TimingContext struct {
	name      string
	startTime time.Time
	logger    *Logger
}

// Start begins a timing measurement on the global logger.
// Must be paired with End() to log the duration.
//
// Example:
//
//	t := logging.Start("connectivity check")
//	// ... do work ...
//	logging.End(t)
func Start(name string) TimingContext {
	return Get().Start(name)
}

// Start begins a timing measurement logged through l
func (l *Logger) Start(name string) TimingContext {
	return TimingContext{
		name:      name,
		startTime: time.Now(),
		logger:    l,
	}
}

// Elapsed returns the time since Start
func (t TimingContext) Elapsed() time.Duration {
	return time.Since(t.startTime)
}

// End completes a timing measurement and logs the duration at debug level
// with any extra key-value pairs.
func End(t TimingContext, args ...any) {
	logger := t.logger
	if logger == nil {
		logger = Get()
	}
	if !logger.IsEnabled() {
		return
	}

	duration := t.Elapsed()
	logger.Debug(t.name, append([]any{
		"duration", duration.String(),
		"ms", duration.Milliseconds(),
	}, args...)...)
}

// EndWithCount completes a timing measurement and logs the duration with an
// item count.
//
// Example:
//
//	t := log.Start("fetch")
//	items, err := cluster.List(ctx, info, ns)
//	logging.EndWithCount(t, len(items))
func EndWithCount(t TimingContext, count int) {
	End(t, "count", count)
}

// Time executes fn and logs its execution time on the global logger
func Time(name string, fn func()) {
	t := Start(name)
	fn()
	End(t)
}
