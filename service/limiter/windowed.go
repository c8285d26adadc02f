package limiter

import (
	"strconv"
	"strings"
	"time"

	"github.com/truxe-io/admission/platform/counter"
)

type windowedService struct {
	counters counter.Service
	now      func() time.Time
}

// WindowedService returns a fixed-window Service implementation on top of the
// shared counter store. Time is truncated into fixed, non-overlapping buckets,
// so two adjacent windows can together admit up to twice the nominal rate at
// a boundary. That is the intended precision/cost tradeoff.
func WindowedService(counters counter.Service) Service {
	return &windowedService{
		counters: counters,
		now:      time.Now,
	}
}

func (s *windowedService) Check(ns, dimension, id string, rule Rule) (Result, error) {
	if rule.Max == Unlimited {
		return Result{
			Allowed:   true,
			Limit:     Unlimited,
			Remaining: Unlimited,
		}, nil
	}

	var (
		now         = s.now()
		windowMs    = rule.Window.Milliseconds()
		windowStart = now.UnixMilli() / windowMs * windowMs
		resetAt     = time.UnixMilli(windowStart + windowMs)
	)

	count, err := s.counters.IncrEx(
		ns,
		Key(dimension, id, windowStart),
		ttlSeconds(rule.Window),
	)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Allowed: count <= rule.Max,
		Limit:   rule.Max,
		ResetAt: resetAt,
	}

	if remaining := rule.Max - count; remaining > 0 {
		res.Remaining = remaining
	}

	if !res.Allowed {
		res.RetryAfter = resetAt.Sub(now)
	}

	return res, nil
}

// Key builds the composite counter key for a window bucket.
func Key(dimension, id string, windowStart int64) string {
	return strings.Join(
		[]string{dimension, id, strconv.FormatInt(windowStart, 10)},
		counter.KeySeparator,
	)
}

func ttlSeconds(window time.Duration) int64 {
	ttl := int64((window + time.Second - 1) / time.Second)
	if ttl < 1 {
		ttl = 1
	}

	return ttl
}
