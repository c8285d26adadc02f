package breaker

import (
	"sort"
	"sync"
	"time"
)

// Options parametrise the state machine. Zero values fall back to the
// package defaults.
type Options struct {
	FailureThreshold int
	HalfOpenMaxCalls int
	OnTransition     TransitionFunc
	RecoveryTimeout  time.Duration
}

type instance struct {
	failures      int
	halfOpenCalls int
	halfOpenOKs   int
	lastFailureAt time.Time
	nextAttemptAt time.Time
	state         State
}

type memService struct {
	mu        sync.Mutex
	instances map[string]*instance
	now       func() time.Time
	opts      Options
}

// MemService returns a memory based Service implementation. Breaker state is
// deliberately per-process, the cool-down is the system's backoff mechanism
// and does not need cluster agreement.
func MemService(opts Options) Service {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}

	if opts.HalfOpenMaxCalls <= 0 {
		opts.HalfOpenMaxCalls = DefaultHalfOpenMaxCalls
	}

	if opts.RecoveryTimeout <= 0 {
		opts.RecoveryTimeout = DefaultRecoveryTimeout
	}

	return &memService{
		instances: map[string]*instance{},
		now:       time.Now,
		opts:      opts,
	}
}

func (s *memService) Allow(dep string) (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		in  = s.instance(dep)
		now = s.now()
	)

	switch in.state {
	case StateClosed:
		return true, 0
	case StateOpen:
		if now.Before(in.nextAttemptAt) {
			return false, in.nextAttemptAt.Sub(now)
		}

		// The cool-down has passed, this observation flips the breaker to
		// half-open and counts as the first probe.
		s.transition(dep, in, StateHalfOpen)
		in.halfOpenCalls = 1
		in.halfOpenOKs = 0

		return true, 0
	default: // StateHalfOpen
		if in.halfOpenCalls < s.opts.HalfOpenMaxCalls {
			in.halfOpenCalls++
			return true, 0
		}

		return false, s.opts.RecoveryTimeout
	}
}

func (s *memService) Failure(dep string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		in  = s.instance(dep)
		now = s.now()
	)

	in.failures++
	in.lastFailureAt = now

	switch in.state {
	case StateClosed:
		if in.failures >= s.opts.FailureThreshold {
			s.open(dep, in, now)
		}
	case StateHalfOpen:
		s.open(dep, in, now)
	}
}

func (s *memService) Snapshot(dep string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot(dep, s.instance(dep))
}

func (s *memService) Snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	deps := make([]string, 0, len(s.instances))

	for dep := range s.instances {
		deps = append(deps, dep)
	}

	sort.Strings(deps)

	sns := make([]Snapshot, 0, len(deps))

	for _, dep := range deps {
		sns = append(sns, s.snapshot(dep, s.instances[dep]))
	}

	return sns
}

func (s *memService) Success(dep string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in := s.instance(dep)

	switch in.state {
	case StateClosed:
		if in.failures > 0 {
			in.failures--
		}
	case StateOpen:
		if s.now().Before(in.nextAttemptAt) {
			return
		}

		// Instances fed success/failure observations only, without an Allow
		// gate, still leave OPEN once the cool-down passes and the dependency
		// answers again. The observation counts as the first probe.
		s.transition(dep, in, StateHalfOpen)
		in.halfOpenCalls = 1
		in.halfOpenOKs = 1
	case StateHalfOpen:
		in.halfOpenOKs++

		if in.halfOpenOKs >= s.opts.HalfOpenMaxCalls {
			s.transition(dep, in, StateClosed)
			in.failures = 0
			in.halfOpenCalls = 0
			in.halfOpenOKs = 0
		}
	}
}

func (s *memService) Trip(dep string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.open(dep, s.instance(dep), s.now())
}

func (s *memService) instance(dep string) *instance {
	if _, ok := s.instances[dep]; !ok {
		s.instances[dep] = &instance{state: StateClosed}
	}

	return s.instances[dep]
}

func (s *memService) open(dep string, in *instance, now time.Time) {
	s.transition(dep, in, StateOpen)
	in.halfOpenCalls = 0
	in.halfOpenOKs = 0
	in.nextAttemptAt = now.Add(s.opts.RecoveryTimeout)
}

func (s *memService) snapshot(dep string, in *instance) Snapshot {
	return Snapshot{
		Dependency:    dep,
		Failures:      in.failures,
		HalfOpenCalls: in.halfOpenCalls,
		LastFailureAt: in.lastFailureAt,
		NextAttemptAt: in.nextAttemptAt,
		State:         in.state,
	}
}

func (s *memService) transition(dep string, in *instance, to State) {
	// Re-tripping an open breaker only restarts the cool-down.
	if in.state == to {
		return
	}

	from := in.state
	in.state = to

	if s.opts.OnTransition != nil {
		s.opts.OnTransition(dep, from, to)
	}
}
