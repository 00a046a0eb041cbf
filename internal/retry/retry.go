// Package retry runs remote calls again after transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"tagforge/internal/models"
)

// Strategy returns the delay in milliseconds before retry attempt+1, or a
// negative value to give up.
type Strategy interface {
	NextBackoff(attempt int) int64
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as final so Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retryable reports whether calling again could succeed. Malformed input,
// unparseable output, missing resources, cancellation and errors marked
// Permanent are final.
func Retryable(err error) bool {
	var p *permanentError
	switch {
	case err == nil:
		return false
	case errors.As(err, &p),
		errors.Is(err, models.ErrInvalidArgument),
		errors.Is(err, models.ErrParse),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// strategy gives up. A nil strategy means a single attempt. label names the
// call in log lines.
func Do(ctx context.Context, s Strategy, label string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if s == nil || ctx.Err() != nil || !Retryable(err) {
			return err
		}
		backoffMs := s.NextBackoff(attempt)
		if backoffMs < 0 {
			log.Warnf("Giving up on %s after %d attempts: %v", label, attempt+1, err)
			return err
		}
		log.Warnf("%s failed: %v; retrying in %dms", label, err, backoffMs)
		timer := time.NewTimer(time.Duration(backoffMs) * time.Millisecond)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("waiting to retry %s: %w", label, ctx.Err())
		}
	}
}
