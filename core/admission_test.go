package core

import (
	"errors"
	"testing"
	"time"

	"github.com/truxe-io/admission/platform/counter"
	"github.com/truxe-io/admission/service/alert"
	"github.com/truxe-io/admission/service/block"
	"github.com/truxe-io/admission/service/breaker"
	"github.com/truxe-io/admission/service/limiter"
	"github.com/truxe-io/admission/service/plan"
	"github.com/truxe-io/admission/service/policy"
)

func TestEvaluateLoginScenario(t *testing.T) {
	e := newTestEngine(t, nil)

	for want := int64(4); want >= 0; want-- {
		res := e.evaluate("login", Identifiers{Address: "203.0.113.5"})

		if have := res.Allowed; !have {
			t.Fatalf("have %v, want true", have)
		}

		if have := res.Remaining; have != want {
			t.Errorf("have %v, want %v", have, want)
		}
	}

	res := e.evaluate("login", Identifiers{Address: "203.0.113.5"})

	if have, want := res.Allowed, false; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := res.Violated, "perIP"; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := res.Remaining, int64(0); have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have := res.RetryAfterSeconds(); have <= 0 {
		t.Errorf("have %v, want > 0", have)
	}
}

func TestEvaluatePrecedence(t *testing.T) {
	// Exhaust perUser and global at once, the violation must always name the
	// first dimension in the fixed evaluation order.
	ps := policy.List{
		{
			Operation: "api",
			Rules: map[policy.Dimension]limiter.Rule{
				policy.DimensionUser:   {Max: 0, Window: time.Minute},
				policy.DimensionGlobal: {Max: 0, Window: time.Minute},
			},
		},
	}

	for i := 0; i < 5; i++ {
		e := newTestEngine(t, ps)

		res := e.evaluate("api", Identifiers{User: "42"})

		if have, want := res.Allowed, false; have != want {
			t.Fatalf("have %v, want %v", have, want)
		}

		if have, want := res.Violated, "perUser"; have != want {
			t.Errorf("have %v, want %v", have, want)
		}
	}
}

func TestEvaluateBreakerOpen(t *testing.T) {
	e := newTestEngine(t, nil)

	e.breakers.Trip(breaker.DepGlobal)

	res := e.evaluate("login", Identifiers{Address: "203.0.113.5"})

	if have, want := res.Allowed, false; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := res.Violated, ReasonBreaker; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have := res.RetryAfterSeconds(); have <= 0 {
		t.Errorf("have %v, want > 0", have)
	}
}

func TestEvaluateBlockedAddress(t *testing.T) {
	e := newTestEngine(t, nil)

	if err := e.blocks.Block("203.0.113.5", time.Hour); err != nil {
		t.Fatal(err)
	}

	res := e.evaluate("login", Identifiers{Address: "203.0.113.5"})

	if have, want := res.Violated, ReasonIPBlocked; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have := res.RetryAfter; have <= 0 {
		t.Errorf("have %v, want > 0", have)
	}
}

func TestEvaluatePlanQuota(t *testing.T) {
	e := newTestEngine(t, nil)

	// Free tier allows 5 magic links per hour.
	for i := 0; i < 5; i++ {
		res := e.evaluate("magiclink", Identifiers{User: "42"})

		if have := res.Allowed; !have {
			t.Fatalf("have %v, want true", have)
		}
	}

	res := e.evaluate("magiclink", Identifiers{User: "42"})

	if have, want := res.Allowed, false; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := res.Violated, ReasonPlanLimit; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := res.Hint, UpgradeHint; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestEvaluatePlanResolutionFailsRestrictive(t *testing.T) {
	e := newTestEngine(t, nil)
	e.plans.err = errors.New("identity store down")

	// Resolution failure must fall back to free, not to a permissive tier.
	for i := 0; i < 5; i++ {
		e.evaluate("magiclink", Identifiers{User: "42"})
	}

	res := e.evaluate("magiclink", Identifiers{User: "42"})

	if have, want := res.Violated, ReasonPlanLimit; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestEvaluateUnlimitedPlanBypassesQuota(t *testing.T) {
	e := newTestEngine(t, nil)
	e.plans.plan = plan.Enterprise

	for i := 0; i < 50; i++ {
		res := e.evaluate("magiclink", Identifiers{User: "42"})

		if have := res.Allowed; !have {
			t.Fatalf("have %v, want true", have)
		}
	}
}

func TestEvaluateFailOpen(t *testing.T) {
	e := newTestEngine(t, nil)
	e.useErrorStore()

	res := e.evaluate("ping", Identifiers{})

	if have, want := res.Allowed, true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// Two store operations failed: the traffic aggregate and the platform
	// global check. Each one is recorded exactly once.
	if have, want := e.sink.count(alert.KindDegradedMode), 2; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := e.stats.Snapshot().Degraded, uint64(2); have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestEvaluateUnknownOperationGlobalOnly(t *testing.T) {
	e := newTestEngine(t, nil)

	res := e.evaluate("unknown.op", Identifiers{Address: "203.0.113.5"})

	if have, want := res.Allowed, true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestEvaluateEmergencyTightens(t *testing.T) {
	e := newTestEngine(t, nil)
	e.emergency = true

	// Emergency mode halves the login perIP limit of 5 down to 2.
	for i := 0; i < 2; i++ {
		res := e.evaluate("login", Identifiers{Address: "203.0.113.5"})

		if have := res.Allowed; !have {
			t.Fatalf("have %v, want true", have)
		}
	}

	res := e.evaluate("login", Identifiers{Address: "203.0.113.5"})

	if have, want := res.Allowed, false; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestEvaluateMissingIdentifierSkipsDimension(t *testing.T) {
	e := newTestEngine(t, nil)

	// No address supplied: the login perIP rule of 5 cannot apply.
	for i := 0; i < 10; i++ {
		res := e.evaluate("login", Identifiers{})

		if have := res.Allowed; !have {
			t.Fatalf("have %v, want true", have)
		}
	}
}

type testEngine struct {
	blocks    block.Service
	breakers  breaker.Service
	counters  counter.Service
	emergency bool
	evaluate  EvaluateFunc
	plans     *fakePlans
	policies  policy.Service
	sink      *captureSink
	stats     *Stats

	limits limiter.Service
}

func newTestEngine(t *testing.T, ps policy.List) *testEngine {
	t.Helper()

	if ps == nil {
		ps = policy.Defaults()
	}

	policies, err := policy.MemService(limiter.Rule{}, ps)
	if err != nil {
		t.Fatal(err)
	}

	e := &testEngine{
		breakers: breaker.MemService(breaker.Options{}),
		counters: counter.MemService(),
		plans:    &fakePlans{plan: plan.Free},
		policies: policies,
		sink:     &captureSink{},
		stats:    NewStats(),
	}

	e.blocks = block.StoreService(e.counters)
	e.limits = limiter.WindowedService(e.counters)

	e.rebuild()

	return e
}

func (e *testEngine) rebuild() {
	e.evaluate = Evaluate(
		e.breakers,
		e.blocks,
		e.plans,
		e.policies,
		e.limits,
		e.counters,
		func() bool { return e.emergency },
		e.sink,
		e.stats,
	)
}

func (e *testEngine) useErrorStore() {
	e.counters = errorStore{}
	e.blocks = block.StoreService(e.counters)
	e.limits = limiter.WindowedService(e.counters)
	e.rebuild()
}

type fakePlans struct {
	err  error
	plan plan.Plan
}

func (p *fakePlans) Resolve(userID, orgID string) (plan.Plan, error) {
	if p.err != nil {
		return plan.Free, p.err
	}

	return p.plan, nil
}

type captureSink struct {
	alerts []*alert.Alert
}

func (s *captureSink) Raise(a *alert.Alert) error {
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *captureSink) count(kind alert.Kind) int {
	n := 0

	for _, a := range s.alerts {
		if a.Kind == kind {
			n++
		}
	}

	return n
}

type errorStore struct{}

func (s errorStore) Del(ns, key string) error {
	return errors.New("store down")
}

func (s errorStore) Get(ns, key string) (int64, error) {
	return 0, errors.New("store down")
}

func (s errorStore) IncrEx(ns, key string, ttlSeconds int64) (int64, error) {
	return 0, errors.New("store down")
}

func (s errorStore) ScanCounts(ns, match string) (map[string]int64, error) {
	return nil, errors.New("store down")
}

func (s errorStore) SetEx(ns, key string, value, ttlSeconds int64) error {
	return errors.New("store down")
}

func (s errorStore) TTL(ns, key string) (int64, error) {
	return 0, errors.New("store down")
}
