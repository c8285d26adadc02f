package core

import (
	"time"

	"github.com/asaskevich/govalidator"

	"github.com/truxe-io/admission/platform/counter"
	"github.com/truxe-io/admission/service/block"
	"github.com/truxe-io/admission/service/detector"
	"github.com/truxe-io/admission/service/limiter"
	"github.com/truxe-io/admission/service/policy"

	serr "github.com/truxe-io/admission/error"
)

// Administrative operations mutate shared policy and blocklist state. Unlike
// request-path checks they report failures synchronously to the caller and
// never apply partial changes.

// RuleAdjustFunc hot-swaps one dimension rule of an operation for future
// windows.
type RuleAdjustFunc func(operation, dimension string, max int64, windowMs int64) error

// RuleAdjust validates and applies a rule change.
func RuleAdjust(policies policy.Service) RuleAdjustFunc {
	return func(operation, dimension string, max int64, windowMs int64) error {
		if operation == "" {
			return serr.Wrap(serr.ErrInvalidRule, "operation missing")
		}

		d, err := policy.ParseDimension(dimension)
		if err != nil {
			return err
		}

		return policies.SetRule(operation, d, limiter.Rule{
			Max:    max,
			Window: time.Duration(windowMs) * time.Millisecond,
		})
	}
}

// KeyResetFunc clears one counter key ahead of its window rollover.
type KeyResetFunc func(ns, key string) error

// KeyReset removes the counter key from the store.
func KeyReset(counters counter.Service) KeyResetFunc {
	return func(ns, key string) error {
		if ns == "" || key == "" {
			return serr.Wrap(serr.ErrInvalidRule, "namespace and key required")
		}

		return counters.Del(ns, key)
	}
}

// AddressBlockFunc places an address on the temporary blocklist.
type AddressBlockFunc func(address string, duration time.Duration) error

// AddressBlock validates the address and blocks it.
func AddressBlock(blocks block.Service) AddressBlockFunc {
	return func(address string, duration time.Duration) error {
		if !govalidator.IsIP(address) {
			return serr.Wrap(serr.ErrInvalidRule, "invalid address %s", address)
		}

		if duration <= 0 {
			duration = detector.DefaultBlockDuration
		}

		return blocks.Block(address, duration)
	}
}

// AddressUnblockFunc lifts a block before its TTL expires.
type AddressUnblockFunc func(address string) error

// AddressUnblock validates the address and removes its block.
func AddressUnblock(blocks block.Service) AddressUnblockFunc {
	return func(address string) error {
		if !govalidator.IsIP(address) {
			return serr.Wrap(serr.ErrInvalidRule, "invalid address %s", address)
		}

		return blocks.Unblock(address)
	}
}

// ThresholdsGetFunc returns the active detection thresholds.
type ThresholdsGetFunc func() detector.Thresholds

// ThresholdsGet reads the detector thresholds.
func ThresholdsGet(d *detector.Detector) ThresholdsGetFunc {
	return func() detector.Thresholds {
		return d.Thresholds()
	}
}

// ThresholdsSetFunc swaps the detection thresholds.
type ThresholdsSetFunc func(ts detector.Thresholds) error

// ThresholdsSet validates and applies new detector thresholds.
func ThresholdsSet(d *detector.Detector) ThresholdsSetFunc {
	return func(ts detector.Thresholds) error {
		if ts.BlockDuration < 0 || ts.EmergencyTTL < 0 {
			return serr.Wrap(serr.ErrInvalidRule, "durations must not be negative")
		}

		if ts.FailedAuthPerAddress < 0 || ts.GlobalSpike < 0 || ts.HighVolumeHits < 0 {
			return serr.Wrap(serr.ErrInvalidRule, "thresholds must not be negative")
		}

		d.SetThresholds(ts)

		return nil
	}
}
