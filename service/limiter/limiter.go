package limiter

import (
	"time"

	serr "github.com/truxe-io/admission/error"
)

// Unlimited disables metering for a rule.
const Unlimited int64 = -1

// Rule bounds the number of hits allowed per fixed window. Rules are
// immutable once read by a check; swapped rules apply to future windows only.
type Rule struct {
	Max    int64
	Window time.Duration
}

// Validate checks for semantic correctness.
func (r Rule) Validate() error {
	if r.Max < 0 && r.Max != Unlimited {
		return serr.Wrap(serr.ErrInvalidRule, "max must be >= 0 or unlimited")
	}

	if r.Window <= 0 {
		return serr.Wrap(serr.ErrInvalidRule, "window must be > 0")
	}

	return nil
}

// Result carries the admission decision for a single dimension check.
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds returns the retry hint rounded up to full seconds.
func (r Result) RetryAfterSeconds() int64 {
	if r.RetryAfter <= 0 {
		return 0
	}

	return int64((r.RetryAfter + time.Second - 1) / time.Second)
}

// Service decides if a hit on the given dimension is within its rule.
type Service interface {
	Check(ns, dimension, id string, rule Rule) (Result, error)
}

// ServiceMiddleware is a chainable behaviour modifier for Service.
type ServiceMiddleware func(Service) Service
