package core

import (
	"fmt"

	"github.com/truxe-io/admission/platform/counter"
	"github.com/truxe-io/admission/service/alert"
	"github.com/truxe-io/admission/service/block"
	"github.com/truxe-io/admission/service/breaker"
	"github.com/truxe-io/admission/service/detector"
	"github.com/truxe-io/admission/service/limiter"
	"github.com/truxe-io/admission/service/plan"
	"github.com/truxe-io/admission/service/policy"

	serr "github.com/truxe-io/admission/error"
)

// Namespaces for platform-wide limit keys.
const (
	nsPlatform = "platform"
	idAll      = "all"
)

// EvaluateFunc decides whether one request may proceed. It never returns an
// error: every recoverable condition resolves to a decision, store failures
// fail open.
type EvaluateFunc func(operation string, ids Identifiers) Result

// Evaluate composes breaker, blocklist, plan quotas and policy dimensions
// into the admission decision. Checks run cheapest and most global first so
// the reported violation is deterministic.
func Evaluate(
	breakers breaker.Service,
	blocks block.Service,
	plans plan.Service,
	policies policy.Service,
	limits limiter.Service,
	counters counter.Service,
	emergency func() bool,
	sink alert.Sink,
	stats *Stats,
) EvaluateFunc {
	return func(operation string, ids Identifiers) Result {
		stats.check()

		ev := &evaluation{
			breakers: breakers,
			counters: counters,
			limits:   limits,
			sink:     sink,
			stats:    stats,
			tightest: Result{Allowed: true, Limit: limiter.Unlimited, Remaining: limiter.Unlimited},
		}

		ev.feedAggregates(operation, ids)

		// 1. Circuit breaker, the cheapest and most global gate.
		if ok, retryAfter := breakers.Allow(breaker.DepGlobal); !ok {
			return ev.deny(Result{
				Violated:   ReasonBreaker,
				RetryAfter: retryAfter,
			})
		}

		// 2. Address blocklist supersedes every other check.
		if ids.Address != "" {
			blocked, remaining, err := blocks.IsBlocked(ids.Address)
			if err != nil {
				ev.degraded("blocklist", err)
			} else if blocked {
				return ev.deny(Result{
					Violated:   ReasonIPBlocked,
					RetryAfter: remaining,
				})
			}
		}

		tighten := emergency != nil && emergency()

		// 3. Plan quota for the resolved identity.
		if res, denied := ev.checkPlan(plans, operation, ids, tighten); denied {
			return ev.deny(res)
		}

		// 4. Per-dimension rules for the operation.
		p, err := policies.Get(operation)
		if err != nil && !serr.IsUnknownOperation(err) {
			ev.degraded("policy", err)
		}

		if p != nil {
			for _, d := range policy.CheckOrder {
				id, ok := identifier(d, ids)
				if !ok {
					continue
				}

				rule, ok := p.Rules[d]
				if !ok {
					continue
				}

				if res, denied := ev.check(operation, d.String(), id, rule, tighten); denied {
					return ev.deny(res)
				}
			}

			// 5a. Operation-wide global rule.
			if rule, ok := p.Rules[policy.DimensionGlobal]; ok {
				if res, denied := ev.check(operation, policy.DimensionGlobal.String(), idAll, rule, tighten); denied {
					return ev.deny(res)
				}
			}
		}

		// 5b. Platform-wide global rule.
		if res, denied := ev.check(nsPlatform, policy.DimensionGlobal.String(), idAll, policies.Global(), tighten); denied {
			return ev.deny(res)
		}

		stats.allow()

		return ev.tightest
	}
}

// AuthFailureFunc records one failed authentication for the abuse aggregates.
type AuthFailureFunc func(address string)

// AuthFailure feeds the failed-authentication aggregate the detector
// inspects. Best-effort, a store failure only surfaces as a degraded event.
func AuthFailure(
	counters counter.Service,
	sink alert.Sink,
	stats *Stats,
) AuthFailureFunc {
	return func(address string) {
		w := detector.WindowStart(timeNow())

		if _, err := counters.IncrEx(
			detector.TrafficNamespace,
			detector.TrafficFailedAuthKey(w),
			detector.TrafficTTLSeconds,
		); err != nil {
			stats.degrade()
			_ = sink.Raise(alert.New(
				alert.KindDegradedMode,
				alert.SeverityWarning,
				fmt.Sprintf("auth failure aggregate unavailable: %s", err),
				nil,
			))
		}
	}
}

type evaluation struct {
	breakers breaker.Service
	counters counter.Service
	limits   limiter.Service
	sink     alert.Sink
	stats    *Stats
	tightest Result
}

// check evaluates one dimension, failing open on store errors.
func (ev *evaluation) check(
	ns, dimension, id string,
	rule limiter.Rule,
	tighten bool,
) (Result, bool) {
	if tighten {
		rule = policy.Tighten(rule)
	}

	res, err := ev.limits.Check(ns, dimension, id, rule)
	if err != nil {
		ev.degraded(dimension, err)
		return Result{}, false
	}

	ev.breakers.Success(DepStore)

	if !res.Allowed {
		return Result{
			Limit:      res.Limit,
			Remaining:  res.Remaining,
			ResetAt:    res.ResetAt,
			RetryAfter: res.RetryAfter,
			Violated:   dimension,
		}, true
	}

	ev.observe(res)

	return Result{}, false
}

func (ev *evaluation) checkPlan(
	plans plan.Service,
	operation string,
	ids Identifiers,
	tighten bool,
) (Result, bool) {
	if ids.User == "" {
		return Result{}, false
	}

	action, ok := plan.ActionFor(operation)
	if !ok {
		return Result{}, false
	}

	pl, err := plans.Resolve(ids.User, ids.Org)
	if err != nil {
		// Resolution failure falls back to the most restrictive plan.
		ev.degraded("plan", err)
		pl = plan.Free
	}

	rule, ok := plan.QuotaRule(pl, action)
	if !ok || rule.Max == limiter.Unlimited {
		return Result{}, false
	}

	res, denied := ev.check(string(action), policy.DimensionUser.String(), ids.User, rule, tighten)
	if denied {
		res.Violated = ReasonPlanLimit
		res.Hint = UpgradeHint
	}

	return res, denied
}

func (ev *evaluation) degraded(source string, err error) {
	ev.stats.degrade()
	ev.breakers.Failure(DepStore)

	_ = ev.sink.Raise(alert.New(
		alert.KindDegradedMode,
		alert.SeverityWarning,
		fmt.Sprintf("%s unavailable, failing open: %s", source, err),
		nil,
	))
}

func (ev *evaluation) deny(res Result) Result {
	ev.stats.denied(res.Violated)

	_ = ev.sink.Raise(alert.New(
		alert.KindDenial,
		alert.SeverityInfo,
		fmt.Sprintf("request denied by %s", res.Violated),
		map[string]string{
			"violated": res.Violated,
		},
	))

	return res
}

// feedAggregates maintains the per-address and global traffic counters the
// abuse detector scans. Failures degrade silently, never block admission.
func (ev *evaluation) feedAggregates(operation string, ids Identifiers) {
	w := detector.WindowStart(timeNow())

	if _, err := ev.counters.IncrEx(
		detector.TrafficNamespace,
		detector.TrafficGlobalKey(w),
		detector.TrafficTTLSeconds,
	); err != nil {
		ev.degraded("traffic aggregate", err)
		return
	}

	if ids.Address != "" {
		if _, err := ev.counters.IncrEx(
			detector.TrafficNamespace,
			detector.TrafficAddressKey(ids.Address, w),
			detector.TrafficTTLSeconds,
		); err != nil {
			ev.degraded("traffic aggregate", err)
		}
	}
}

// observe keeps the tightest currently-passing dimension so callers can
// surface rate-limit headers on allowed responses.
func (ev *evaluation) observe(res limiter.Result) {
	if res.Remaining == limiter.Unlimited {
		return
	}

	if ev.tightest.Remaining != limiter.Unlimited && ev.tightest.Remaining <= res.Remaining {
		return
	}

	ev.tightest = Result{
		Allowed:   true,
		Limit:     res.Limit,
		Remaining: res.Remaining,
		ResetAt:   res.ResetAt,
	}
}

func identifier(d policy.Dimension, ids Identifiers) (string, bool) {
	switch d {
	case policy.DimensionIP:
		return ids.Address, ids.Address != ""
	case policy.DimensionUser:
		return ids.User, ids.User != ""
	case policy.DimensionEmail:
		return ids.Email, ids.Email != ""
	case policy.DimensionToken:
		return ids.Token, ids.Token != ""
	}

	return "", false
}
