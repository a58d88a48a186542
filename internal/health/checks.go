package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/speechscore/internal/resilience"
)

// Storage reports whether the working directories accept writes.
func Storage(s interface{ CheckWritable() error }) Checker {
	return Checker{Name: "storage", Check: func(context.Context) error { return s.CheckWritable() }}
}

// Transcoder reports whether the media conversion binary is available.
func Transcoder(t interface {
	Check(ctx context.Context) error
}) Checker {
	return Checker{Name: "transcoder", Check: t.Check}
}

// Catalog reports whether the asset catalog answers.
func Catalog(c interface {
	Ping(ctx context.Context) error
}) Checker {
	return Checker{Name: "catalog", Check: c.Ping}
}

// Breakers fails while any upstream circuit is open, naming when each will
// next admit a probe.
func Breakers(breakers ...*resilience.CircuitBreaker) Checker {
	return Checker{Name: "upstream", Check: func(context.Context) error {
		var errs []error
		for _, b := range breakers {
			s := b.Snapshot()
			if s.State != resilience.StateOpen {
				continue
			}
			errs = append(errs, fmt.Errorf("%s: %w after %d failures, retry at %s",
				s.Name, resilience.ErrCircuitOpen, s.ConsecutiveFailures, s.RetryAt.UTC().Format(time.RFC3339)))
		}
		return errors.Join(errs...)
	}}
}
