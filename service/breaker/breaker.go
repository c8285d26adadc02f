package breaker

import "time"

// Breaker states.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// Defaults.
const (
	DefaultFailureThreshold = 5
	DefaultHalfOpenMaxCalls = 3
	DefaultRecoveryTimeout  = 60 * time.Second
)

// DepGlobal is the dedicated instance used for abuse-triggered shutdowns.
const DepGlobal = "global"

var stateNames = map[State]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half_open",
}

// State of a single breaker instance. Transitions only move along
// closed -> open -> half_open -> {closed, open}.
type State uint8

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}

	return "unknown"
}

// Snapshot is a read-only view of one breaker instance.
type Snapshot struct {
	Dependency    string
	Failures      int
	HalfOpenCalls int
	LastFailureAt time.Time
	NextAttemptAt time.Time
	State         State
}

// TransitionFunc observes state changes.
type TransitionFunc func(dep string, from, to State)

// Service keeps one independent breaker per protected dependency. It is the
// sole owner of breaker state.
type Service interface {
	// Allow reports whether a call may proceed. When denied, the remaining
	// cool-down is returned.
	Allow(dep string) (bool, time.Duration)
	// Failure records a critical failure of the dependency.
	Failure(dep string)
	// Snapshot returns the current state of one instance.
	Snapshot(dep string) Snapshot
	// Snapshots returns the current state of all instances.
	Snapshots() []Snapshot
	// Success records a successful call.
	Success(dep string)
	// Trip forces the instance open, restarting its cool-down.
	Trip(dep string)
}

// ServiceMiddleware is a chainable behaviour modifier for Service.
type ServiceMiddleware func(Service) Service
