package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/api/googleapi"

	"github.com/Hexploration-Inc/orai/internal/types"
)

// Error is a failed provider call.
type Error struct {
	Op        string
	Code      int
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("gmail %s: status %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("gmail %s: %v", e.Op, e.Err)
}

// Unwrap exposes the cause plus the taxonomy sentinels, so callers can
// match on types.ErrProvider and, for 404s, types.ErrNotFound.
func (e *Error) Unwrap() []error {
	errs := []error{types.ErrProvider, e.Err}
	if e.Code == http.StatusNotFound {
		errs = append(errs, types.ErrNotFound)
	}
	return errs
}

// RetryPolicy bounds retries of transient failures.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy is three attempts with 200ms doubling backoff.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

func newBreaker(logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			var nce *nonCircuitError
			return err == nil || errors.As(err, &nce)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// nonCircuitError carries client errors through the breaker without
// counting them as failures.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string { return e.err.Error() }

// execute runs fn under the breaker with bounded retries, and returns an
// *Error on failure.
func (c *Client) execute(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	attempts := c.retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return c.observe(op, wrapError(op, ctx.Err()))
			case <-time.After(c.retry.delay(attempt - 1)):
			}
		}

		_, err := c.cb.Execute(func() (interface{}, error) {
			if err := fn(); err != nil {
				if !isTransient(err) {
					return nil, &nonCircuitError{err: err}
				}
				return nil, err
			}
			return nil, nil
		})
		if err == nil {
			return c.observe(op, nil)
		}

		var nce *nonCircuitError
		if errors.As(err, &nce) {
			return c.observe(op, wrapError(op, nce.err))
		}
		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("gmail call rejected by circuit breaker", "op", op, "state", c.cb.State().String())
			break
		}
		c.logger.Debug("gmail call failed, retrying", "op", op, "attempt", attempt+1, "error", err)
	}
	return c.observe(op, wrapError(op, lastErr))
}

func (c *Client) observe(op string, err error) error {
	c.metrics.ProviderCall(op, err)
	return err
}

// isTransient reports whether err is worth retrying and counting against
// the breaker: rate limits, server errors and network failures.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	e := &Error{Op: op, Err: err, Transient: isTransient(err)}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		e.Code = apiErr.Code
	}
	return e
}
