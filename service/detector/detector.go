package detector

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/truxe-io/admission/platform/counter"
	"github.com/truxe-io/admission/service/alert"
	"github.com/truxe-io/admission/service/block"
	"github.com/truxe-io/admission/service/breaker"
)

// Defaults.
const (
	DefaultBlockDuration          = time.Hour
	DefaultEmergencyTTL           = 10 * time.Minute
	DefaultFailedAuthPerAddress   = 50
	DefaultGlobalSpike            = 50000
	DefaultHighVolumeHits         = 100
	DefaultInterval               = 30 * time.Second
	DefaultMaxHighVolumeAddresses = 10
)

// Counter namespaces and key prefixes shared with the facade, which feeds the
// aggregates on the request path.
const (
	TrafficNamespace   = "traffic"
	emergencyNamespace = "emergency"
	emergencyKey       = "mode"

	keyFailedAuth = "failedauth"
	keyGlobal     = "global"
	keyIP         = "ip"
)

const trafficWindow = time.Minute

// TrafficTTLSeconds keeps two windows alive so the detector can look at the
// prior minute.
const TrafficTTLSeconds = 120

// Thresholds parametrise attack detection. Zero values fall back to the
// package defaults.
type Thresholds struct {
	BlockDuration          time.Duration
	EmergencyTTL           time.Duration
	FailedAuthPerAddress   int64
	GlobalSpike            int64
	HighVolumeHits         int64
	MaxHighVolumeAddresses int
}

// thresholdsWire is the admin payload form, durations in milliseconds.
type thresholdsWire struct {
	BlockDurationMs        int64 `json:"blockDurationMs"`
	EmergencyTTLMs         int64 `json:"emergencyTtlMs"`
	FailedAuthPerAddress   int64 `json:"failedAuthPerAddress"`
	GlobalSpike            int64 `json:"globalSpike"`
	HighVolumeHits         int64 `json:"highVolumeHits"`
	MaxHighVolumeAddresses int   `json:"maxHighVolumeAddresses"`
}

// MarshalJSON encodes durations as milliseconds to match the admin payload.
func (t Thresholds) MarshalJSON() ([]byte, error) {
	return json.Marshal(thresholdsWire{
		BlockDurationMs:        t.BlockDuration.Milliseconds(),
		EmergencyTTLMs:         t.EmergencyTTL.Milliseconds(),
		FailedAuthPerAddress:   t.FailedAuthPerAddress,
		GlobalSpike:            t.GlobalSpike,
		HighVolumeHits:         t.HighVolumeHits,
		MaxHighVolumeAddresses: t.MaxHighVolumeAddresses,
	})
}

// UnmarshalJSON decodes millisecond durations from the admin payload.
func (t *Thresholds) UnmarshalJSON(data []byte) error {
	var w thresholdsWire

	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*t = Thresholds{
		BlockDuration:          time.Duration(w.BlockDurationMs) * time.Millisecond,
		EmergencyTTL:           time.Duration(w.EmergencyTTLMs) * time.Millisecond,
		FailedAuthPerAddress:   w.FailedAuthPerAddress,
		GlobalSpike:            w.GlobalSpike,
		HighVolumeHits:         w.HighVolumeHits,
		MaxHighVolumeAddresses: w.MaxHighVolumeAddresses,
	}

	return nil
}

func (t Thresholds) withDefaults() Thresholds {
	if t.BlockDuration <= 0 {
		t.BlockDuration = DefaultBlockDuration
	}

	if t.EmergencyTTL <= 0 {
		t.EmergencyTTL = DefaultEmergencyTTL
	}

	if t.FailedAuthPerAddress <= 0 {
		t.FailedAuthPerAddress = DefaultFailedAuthPerAddress
	}

	if t.GlobalSpike <= 0 {
		t.GlobalSpike = DefaultGlobalSpike
	}

	if t.HighVolumeHits <= 0 {
		t.HighVolumeHits = DefaultHighVolumeHits
	}

	if t.MaxHighVolumeAddresses <= 0 {
		t.MaxHighVolumeAddresses = DefaultMaxHighVolumeAddresses
	}

	return t
}

// Signal is the ephemeral aggregate computed every cycle. It is discarded
// after mitigation, only emitted alerts survive.
type Signal struct {
	Attack      bool
	FailedAuths int64
	GlobalCount int64
	HighVolume  []string
	Reasons     []string
}

// Detector periodically inspects the shared traffic aggregates and applies
// mitigations when an attack signature shows. It is the only component doing
// cross-request reasoning.
type Detector struct {
	blocks   block.Service
	breakers breaker.Service
	counters counter.Service
	interval time.Duration
	now      func() time.Time
	sink     alert.Sink

	mu         sync.Mutex
	attacking  bool
	thresholds Thresholds
}

// New constructs a Detector. Mitigations are best-effort and independently
// idempotent; re-declaring an attack refreshes block TTLs instead of
// stacking them.
func New(
	counters counter.Service,
	blocks block.Service,
	breakers breaker.Service,
	sink alert.Sink,
	interval time.Duration,
	thresholds Thresholds,
) *Detector {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Detector{
		blocks:     blocks,
		breakers:   breakers,
		counters:   counters,
		interval:   interval,
		now:        time.Now,
		sink:       sink,
		thresholds: thresholds.withDefaults(),
	}
}

// EmergencyActive consults the TTL-bound emergency flag. Store failures read
// as inactive so a degraded store never tightens limits on its own.
func (d *Detector) EmergencyActive() bool {
	_, err := d.counters.Get(emergencyNamespace, emergencyKey)
	return err == nil
}

// Evaluate runs one detection cycle and applies mitigations on attack.
func (d *Detector) Evaluate() (*Signal, error) {
	ts := d.Thresholds()

	sig, err := d.signal(ts)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	wasAttacking := d.attacking
	d.attacking = sig.Attack
	d.mu.Unlock()

	if !sig.Attack {
		if wasAttacking {
			_ = d.sink.Raise(alert.New(
				alert.KindAttackResolved,
				alert.SeverityInfo,
				"attack signature cleared",
				nil,
			))
		}

		return sig, nil
	}

	d.mitigate(sig, ts)

	return sig, nil
}

// Run evaluates on a fixed interval until stop is closed. It never blocks
// request-path evaluation.
func (d *Detector) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := d.Evaluate(); err != nil {
				_ = d.sink.Raise(alert.New(
					alert.KindDegradedMode,
					alert.SeverityWarning,
					fmt.Sprintf("detector cycle failed: %s", err),
					nil,
				))
			}
		case <-stop:
			return
		}
	}
}

// SetThresholds swaps the detection thresholds for future cycles.
func (d *Detector) SetThresholds(ts Thresholds) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.thresholds = ts.withDefaults()
}

// Thresholds returns the active detection thresholds.
func (d *Detector) Thresholds() Thresholds {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.thresholds
}

func (d *Detector) mitigate(sig *Signal, ts Thresholds) {
	d.breakers.Trip(breaker.DepGlobal)

	for _, addr := range sig.HighVolume {
		// Block refreshes the TTL on repeat declarations.
		_ = d.blocks.Block(addr, ts.BlockDuration)
	}

	_ = d.counters.SetEx(
		emergencyNamespace,
		emergencyKey,
		1,
		int64(ts.EmergencyTTL/time.Second),
	)

	_ = d.sink.Raise(alert.New(
		alert.KindAttackDeclared,
		alert.SeverityCritical,
		"attack signature detected",
		map[string]string{
			"failed_auths": strconv.FormatInt(sig.FailedAuths, 10),
			"global_count": strconv.FormatInt(sig.GlobalCount, 10),
			"high_volume":  strconv.Itoa(len(sig.HighVolume)),
			"reasons":      strings.Join(sig.Reasons, ","),
		},
	))

	_ = d.sink.Raise(alert.New(
		alert.KindEmergencyOn,
		alert.SeverityWarning,
		"emergency mode active",
		map[string]string{
			"ttl_seconds": strconv.FormatInt(int64(ts.EmergencyTTL/time.Second), 10),
		},
	))
}

func (d *Detector) signal(ts Thresholds) (*Signal, error) {
	counts, err := d.counters.ScanCounts(TrafficNamespace, keyIP+counter.KeySeparator+"*")
	if err != nil {
		return nil, err
	}

	sig := &Signal{}

	// Keys carry their window start, sum both live windows per address. The
	// address itself may contain the separator (IPv6), only the leading
	// prefix and the trailing window start are fixed.
	byAddr := map[string]int64{}

	for key, count := range counts {
		ps := strings.Split(key, counter.KeySeparator)
		if len(ps) < 3 {
			continue
		}

		addr := strings.Join(ps[1:len(ps)-1], counter.KeySeparator)

		byAddr[addr] += count
	}

	for addr, count := range byAddr {
		if count > ts.HighVolumeHits {
			sig.HighVolume = append(sig.HighVolume, addr)
		}
	}

	sig.GlobalCount = d.sum(keyGlobal)
	sig.FailedAuths = d.sum(keyFailedAuth)

	if len(sig.HighVolume) > ts.MaxHighVolumeAddresses {
		sig.Attack = true
		sig.Reasons = append(sig.Reasons, "distributed_high_volume")
	}

	if sig.GlobalCount > ts.GlobalSpike {
		sig.Attack = true
		sig.Reasons = append(sig.Reasons, "global_spike")
	}

	if sig.FailedAuths > 10*ts.FailedAuthPerAddress {
		sig.Attack = true
		sig.Reasons = append(sig.Reasons, "failed_auth_spike")
	}

	return sig, nil
}

func (d *Detector) sum(prefix string) int64 {
	var total int64

	for _, w := range liveWindows(d.now()) {
		count, err := d.counters.Get(TrafficNamespace, trafficKey(prefix, w))
		if err != nil {
			continue
		}

		total += count
	}

	return total
}

// TrafficGlobalKey builds the global aggregate key for a window start.
func TrafficGlobalKey(windowStart int64) string {
	return trafficKey(keyGlobal, windowStart)
}

// TrafficFailedAuthKey builds the failed-authentication aggregate key.
func TrafficFailedAuthKey(windowStart int64) string {
	return trafficKey(keyFailedAuth, windowStart)
}

func trafficKey(prefix string, windowStart int64) string {
	return strings.Join(
		[]string{prefix, strconv.FormatInt(windowStart, 10)},
		counter.KeySeparator,
	)
}

// TrafficAddressKey builds the per-address aggregate key.
func TrafficAddressKey(address string, windowStart int64) string {
	return strings.Join(
		[]string{keyIP, address, strconv.FormatInt(windowStart, 10)},
		counter.KeySeparator,
	)
}

// WindowStart truncates now to the traffic aggregation window.
func WindowStart(now time.Time) int64 {
	ms := trafficWindow.Milliseconds()
	return now.UnixMilli() / ms * ms
}

func liveWindows(now time.Time) []int64 {
	current := WindowStart(now)
	return []int64{current, current - trafficWindow.Milliseconds()}
}
