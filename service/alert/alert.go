package alert

import (
	"time"

	"github.com/truxe-io/admission/platform/flake"
)

// Alert kinds.
const (
	KindAttackDeclared Kind = "attack_declared"
	KindAttackResolved Kind = "attack_resolved"
	KindBreakerState   Kind = "breaker_state_change"
	KindDegradedMode   Kind = "degraded_mode"
	KindDenial         Kind = "denial"
	KindEmergencyOff   Kind = "emergency_off"
	KindEmergencyOn    Kind = "emergency_on"
)

// Alert severities.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const flakeNamespace = "alerts"

// Kind names the event class.
type Kind string

// Severity indicates urgency for the observability collaborator.
type Severity string

// Alert is one emitted engine event.
type Alert struct {
	ID        uint64            `json:"id"`
	Kind      Kind              `json:"kind"`
	Severity  Severity          `json:"severity"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// New constructs an Alert with ID and timestamp filled in.
func New(kind Kind, severity Severity, message string, details map[string]string) *Alert {
	id, err := flake.NextID(flakeNamespace)
	if err != nil {
		id = 0
	}

	return &Alert{
		ID:        id,
		Kind:      kind,
		Severity:  severity,
		Message:   message,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
}

// Sink receives engine events. Delivery is best-effort, a failing sink must
// never block or fail the request path.
type Sink interface {
	Raise(a *Alert) error
}

// SinkMiddleware is a chainable behaviour modifier for Sink.
type SinkMiddleware func(Sink) Sink

type fanoutSink struct {
	sinks []Sink
}

// FanoutSink returns a Sink which raises every alert on all given sinks. All
// sinks run, the first error observed is returned.
func FanoutSink(sinks ...Sink) Sink {
	return &fanoutSink{sinks: sinks}
}

func (s *fanoutSink) Raise(a *Alert) error {
	var first error

	for _, sink := range s.sinks {
		if err := sink.Raise(a); err != nil && first == nil {
			first = err
		}
	}

	return first
}

type nopSink struct{}

// NopSink returns a Sink which drops all alerts.
func NopSink() Sink {
	return nopSink{}
}

func (s nopSink) Raise(a *Alert) error {
	return nil
}
