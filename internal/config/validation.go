package config

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError is one invalid setting
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate checks the settings. The poll interval must be a positive multiple
// of the tick interval and the tick must stay under one second.
func (c Config) Validate() error {
	var errs []error

	switch {
	case c.TickInterval <= 0:
		errs = append(errs, &ValidationError{Field: "tick-interval", Message: "must be positive"})
	case c.TickInterval >= time.Second:
		errs = append(errs, &ValidationError{
			Field:   "tick-interval",
			Message: fmt.Sprintf("must be less than 1s, got %s", c.TickInterval),
		})
	}

	switch {
	case c.PollInterval <= 0:
		errs = append(errs, &ValidationError{Field: "poll-interval", Message: "must be positive"})
	case c.TickInterval > 0 && c.PollInterval%c.TickInterval != 0:
		errs = append(errs, &ValidationError{
			Field:   "poll-interval",
			Message: fmt.Sprintf("must be a multiple of tick-interval (%s), got %s", c.TickInterval, c.PollInterval),
		})
	}

	if c.RequestTimeout <= 0 {
		errs = append(errs, &ValidationError{Field: "request-timeout", Message: "must be positive"})
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, &ValidationError{Field: "connect-timeout", Message: "must be positive"})
	}
	if c.MetricsStaleFactor < 1 {
		errs = append(errs, &ValidationError{
			Field:   "metrics-stale-factor",
			Message: fmt.Sprintf("must be at least 1, got %d", c.MetricsStaleFactor),
		})
	}
	if c.LogBufferLines < 1 {
		errs = append(errs, &ValidationError{
			Field:   "log-buffer-lines",
			Message: fmt.Sprintf("must be at least 1, got %d", c.LogBufferLines),
		})
	}
	if c.LogTailLines < 0 {
		errs = append(errs, &ValidationError{Field: "log-tail-lines", Message: "must not be negative"})
	}
	if c.DocumentHistory < 1 {
		errs = append(errs, &ValidationError{
			Field:   "document-history",
			Message: fmt.Sprintf("must be at least 1, got %d", c.DocumentHistory),
		})
	}

	return errors.Join(errs...)
}
