package alert

import "testing"

func TestSampleMiddleware(t *testing.T) {
	var (
		captured = &captureSink{}
		sink     = SampleMiddleware(1, 2, KindDenial)(captured)
	)

	for i := 0; i < 10; i++ {
		if err := sink.Raise(New(KindDenial, SeverityInfo, "limit exceeded", nil)); err != nil {
			t.Fatal(err)
		}
	}

	if have, want := len(captured.alerts), 2; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// Unsampled kinds always pass.
	for i := 0; i < 5; i++ {
		if err := sink.Raise(New(KindAttackDeclared, SeverityCritical, "attack", nil)); err != nil {
			t.Fatal(err)
		}
	}

	if have, want := len(captured.alerts), 7; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestFanoutSink(t *testing.T) {
	var (
		first  = &captureSink{}
		second = &captureSink{}
		sink   = FanoutSink(first, second)
	)

	if err := sink.Raise(New(KindDenial, SeverityInfo, "limit exceeded", nil)); err != nil {
		t.Fatal(err)
	}

	if have, want := len(first.alerts), 1; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := len(second.alerts), 1; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestNewFillsIdentity(t *testing.T) {
	a := New(KindEmergencyOn, SeverityWarning, "emergency mode active", map[string]string{
		"ttl": "600",
	})

	if a.ID == 0 {
		t.Error("have 0, want flake id")
	}

	if a.CreatedAt.IsZero() {
		t.Error("have zero, want timestamp")
	}
}

type captureSink struct {
	alerts []*Alert
}

func (s *captureSink) Raise(a *Alert) error {
	s.alerts = append(s.alerts, a)
	return nil
}
