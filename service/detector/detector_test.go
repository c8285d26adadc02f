package detector

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/truxe-io/admission/platform/counter"
	"github.com/truxe-io/admission/service/alert"
	"github.com/truxe-io/admission/service/block"
	"github.com/truxe-io/admission/service/breaker"
)

func TestEvaluateQuiet(t *testing.T) {
	d, _, _ := testDetector(t, Thresholds{})

	sig, err := d.Evaluate()
	if err != nil {
		t.Fatal(err)
	}

	if have, want := sig.Attack, false; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestEvaluateDistributedHighVolume(t *testing.T) {
	ts := Thresholds{HighVolumeHits: 5, MaxHighVolumeAddresses: 3}

	d, counters, sink := testDetector(t, ts)

	w := WindowStart(time.Now())

	for i := 0; i < 4; i++ {
		addr := fmt.Sprintf("203.0.113.%d", i)

		for j := 0; j < 6; j++ {
			if _, err := counters.IncrEx(TrafficNamespace, TrafficAddressKey(addr, w), TrafficTTLSeconds); err != nil {
				t.Fatal(err)
			}
		}
	}

	sig, err := d.Evaluate()
	if err != nil {
		t.Fatal(err)
	}

	if have, want := sig.Attack, true; have != want {
		t.Fatalf("have %v, want %v", have, want)
	}

	if have, want := len(sig.HighVolume), 4; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// Mitigations applied: breaker tripped, addresses blocked, emergency on.
	if have, want := d.breakers.Snapshot(breaker.DepGlobal).State, breaker.StateOpen; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	blocked, _, err := d.blocks.IsBlocked("203.0.113.0")
	if err != nil {
		t.Fatal(err)
	}

	if have, want := blocked, true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := d.EmergencyActive(), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := sink.kinds(), []alert.Kind{alert.KindAttackDeclared, alert.KindEmergencyOn}; len(have) != len(want) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestEvaluateGlobalSpike(t *testing.T) {
	ts := Thresholds{GlobalSpike: 10}

	d, counters, _ := testDetector(t, ts)

	w := WindowStart(time.Now())

	for i := 0; i < 11; i++ {
		if _, err := counters.IncrEx(TrafficNamespace, TrafficGlobalKey(w), TrafficTTLSeconds); err != nil {
			t.Fatal(err)
		}
	}

	sig, err := d.Evaluate()
	if err != nil {
		t.Fatal(err)
	}

	if have, want := sig.Attack, true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := sig.GlobalCount, int64(11); have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestEvaluateFailedAuthSpike(t *testing.T) {
	ts := Thresholds{FailedAuthPerAddress: 1}

	d, counters, _ := testDetector(t, ts)

	w := WindowStart(time.Now())

	for i := 0; i < 11; i++ {
		if _, err := counters.IncrEx(TrafficNamespace, TrafficFailedAuthKey(w), TrafficTTLSeconds); err != nil {
			t.Fatal(err)
		}
	}

	sig, err := d.Evaluate()
	if err != nil {
		t.Fatal(err)
	}

	if have, want := sig.Attack, true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestEvaluateResolvesAttack(t *testing.T) {
	ts := Thresholds{GlobalSpike: 10, EmergencyTTL: time.Second}

	d, counters, sink := testDetector(t, ts)

	w := WindowStart(time.Now())

	for i := 0; i < 11; i++ {
		if _, err := counters.IncrEx(TrafficNamespace, TrafficGlobalKey(w), 1); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := d.Evaluate(); err != nil {
		t.Fatal(err)
	}

	// Counters expire, next cycle sees a quiet system.
	time.Sleep(1100 * time.Millisecond)

	sig, err := d.Evaluate()
	if err != nil {
		t.Fatal(err)
	}

	if have, want := sig.Attack, false; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	ks := sink.kinds()

	if have, want := ks[len(ks)-1], alert.KindAttackResolved; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestEvaluateBlocksIPv6HighVolume(t *testing.T) {
	ts := Thresholds{HighVolumeHits: 1, GlobalSpike: 1}

	d, counters, _ := testDetector(t, ts)

	w := WindowStart(time.Now())

	for i := 0; i < 2; i++ {
		if _, err := counters.IncrEx(TrafficNamespace, TrafficAddressKey("2001:db8::1", w), TrafficTTLSeconds); err != nil {
			t.Fatal(err)
		}

		if _, err := counters.IncrEx(TrafficNamespace, TrafficGlobalKey(w), TrafficTTLSeconds); err != nil {
			t.Fatal(err)
		}
	}

	sig, err := d.Evaluate()
	if err != nil {
		t.Fatal(err)
	}

	if have, want := sig.Attack, true; have != want {
		t.Fatalf("have %v, want %v", have, want)
	}

	if have, want := len(sig.HighVolume), 1; have != want {
		t.Fatalf("have %v, want %v", sig.HighVolume, want)
	}

	if have, want := sig.HighVolume[0], "2001:db8::1"; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	blocked, _, err := d.blocks.IsBlocked("2001:db8::1")
	if err != nil {
		t.Fatal(err)
	}

	if have, want := blocked, true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestThresholdsWireRoundTrip(t *testing.T) {
	var ts Thresholds

	raw := []byte(`{"blockDurationMs":3600000,"emergencyTtlMs":600000,"globalSpike":100}`)

	if err := json.Unmarshal(raw, &ts); err != nil {
		t.Fatal(err)
	}

	if have, want := ts.BlockDuration, time.Hour; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := ts.EmergencyTTL, 10*time.Minute; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := ts.GlobalSpike, int64(100); have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	encoded, err := json.Marshal(ts)
	if err != nil {
		t.Fatal(err)
	}

	var have Thresholds

	if err := json.Unmarshal(encoded, &have); err != nil {
		t.Fatal(err)
	}

	if have != ts {
		t.Errorf("have %+v, want %+v", have, ts)
	}
}

func TestMitigationIdempotent(t *testing.T) {
	ts := Thresholds{HighVolumeHits: 1, GlobalSpike: 1, BlockDuration: time.Hour}

	d, counters, _ := testDetector(t, ts)

	w := WindowStart(time.Now())

	for i := 0; i < 2; i++ {
		if _, err := counters.IncrEx(TrafficNamespace, TrafficAddressKey("203.0.113.9", w), TrafficTTLSeconds); err != nil {
			t.Fatal(err)
		}

		if _, err := counters.IncrEx(TrafficNamespace, TrafficGlobalKey(w), TrafficTTLSeconds); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := d.Evaluate(); err != nil {
		t.Fatal(err)
	}

	if _, err := d.Evaluate(); err != nil {
		t.Fatal(err)
	}

	_, remaining, err := d.blocks.IsBlocked("203.0.113.9")
	if err != nil {
		t.Fatal(err)
	}

	if remaining > time.Hour {
		t.Errorf("have %v, want <= 1h", remaining)
	}
}

type captureSink struct {
	alerts []*alert.Alert
}

func (s *captureSink) Raise(a *alert.Alert) error {
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *captureSink) kinds() []alert.Kind {
	ks := make([]alert.Kind, 0, len(s.alerts))

	for _, a := range s.alerts {
		ks = append(ks, a.Kind)
	}

	return ks
}

func testDetector(t *testing.T, ts Thresholds) (*Detector, counter.Service, *captureSink) {
	t.Helper()

	var (
		counters = counter.MemService()
		sink     = &captureSink{}
		d        = New(
			counters,
			block.StoreService(counters),
			breaker.MemService(breaker.Options{}),
			sink,
			DefaultInterval,
			ts,
		)
	)

	return d, counters, sink
}
