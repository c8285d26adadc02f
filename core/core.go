package core

import "time"

// Violation reasons surfaced to callers alongside the per-dimension names.
const (
	ReasonBreaker   = "circuit_breaker"
	ReasonIPBlocked = "ip_blocked"
	ReasonPlanLimit = "plan_limit"
)

// Protected downstream dependencies tracked by the breaker.
const (
	DepStore = "store"
)

// UpgradeHint accompanies plan-limit denials.
const UpgradeHint = "upgrade your plan to raise this quota"

var timeNow = time.Now

// Identifiers carries the request identities known to the middleware. Absent
// identifiers simply skip their dimension.
type Identifiers struct {
	Address string
	Email   string
	Org     string
	Token   string
	User    string
}

// Result is the admission decision for one request. It is produced fresh per
// request and never stored.
type Result struct {
	Allowed    bool
	Hint       string
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
	Violated   string
}

// RetryAfterSeconds returns the retry hint rounded up to full seconds.
func (r Result) RetryAfterSeconds() int64 {
	if r.RetryAfter <= 0 {
		return 0
	}

	return int64((r.RetryAfter + time.Second - 1) / time.Second)
}
