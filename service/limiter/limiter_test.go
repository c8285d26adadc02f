package limiter

import (
	"errors"
	"testing"
	"time"

	"github.com/truxe-io/admission/platform/counter"
)

func TestWindowedServiceCountdown(t *testing.T) {
	var (
		s    = testService(time.Unix(1700000000, 0))
		rule = Rule{Max: 5, Window: time.Minute}
	)

	for want := int64(4); want >= 0; want-- {
		res, err := s.Check("login", "ip", "203.0.113.5", rule)
		if err != nil {
			t.Fatal(err)
		}

		if have := res.Allowed; !have {
			t.Errorf("have %v, want true", have)
		}

		if have := res.Remaining; have != want {
			t.Errorf("have %v, want %v", have, want)
		}
	}

	res, err := s.Check("login", "ip", "203.0.113.5", rule)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := res.Allowed, false; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := res.Remaining, int64(0); have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have := res.RetryAfterSeconds(); have <= 0 {
		t.Errorf("have %v, want > 0", have)
	}
}

func TestWindowedServiceRollover(t *testing.T) {
	var (
		now  = time.UnixMilli(1700000000000).Add(59*time.Second + 999*time.Millisecond)
		s    = testService(now)
		rule = Rule{Max: 1, Window: time.Minute}
	)

	if _, err := s.Check("login", "ip", "203.0.113.5", rule); err != nil {
		t.Fatal(err)
	}

	res, err := s.Check("login", "ip", "203.0.113.5", rule)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := res.Allowed, false; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// Cross the window boundary, the counter must start over.
	s.now = func() time.Time {
		return now.Add(2 * time.Millisecond)
	}

	res, err = s.Check("login", "ip", "203.0.113.5", rule)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := res.Allowed, true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestWindowedServiceUnlimited(t *testing.T) {
	s := &windowedService{
		counters: errorService{},
		now:      time.Now,
	}

	res, err := s.Check("login", "ip", "203.0.113.5", Rule{Max: Unlimited, Window: time.Minute})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := res.Allowed, true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := res.Remaining, Unlimited; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestWindowedServiceResetAt(t *testing.T) {
	var (
		now  = time.UnixMilli(1700000030000)
		s    = testService(now)
		rule = Rule{Max: 5, Window: time.Minute}
	)

	res, err := s.Check("login", "ip", "203.0.113.5", rule)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := res.ResetAt, time.UnixMilli(1700000060000); !have.Equal(want) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestRuleValidate(t *testing.T) {
	rs := []Rule{
		{Max: -2, Window: time.Minute},
		{Max: 5, Window: 0},
		{Max: 5, Window: -time.Second},
	}

	for _, r := range rs {
		if err := r.Validate(); err == nil {
			t.Errorf("have nil, want error for %v", r)
		}
	}

	for _, r := range []Rule{
		{Max: 0, Window: time.Second},
		{Max: Unlimited, Window: time.Hour},
	} {
		if err := r.Validate(); err != nil {
			t.Errorf("have %v, want nil", err)
		}
	}
}

func testService(now time.Time) *windowedService {
	return &windowedService{
		counters: counter.MemService(),
		now: func() time.Time {
			return now
		},
	}
}

type errorService struct{}

func (s errorService) Del(ns, key string) error {
	return errors.New("store down")
}

func (s errorService) Get(ns, key string) (int64, error) {
	return 0, errors.New("store down")
}

func (s errorService) IncrEx(ns, key string, ttlSeconds int64) (int64, error) {
	return 0, errors.New("store down")
}

func (s errorService) ScanCounts(ns, match string) (map[string]int64, error) {
	return nil, errors.New("store down")
}

func (s errorService) SetEx(ns, key string, value, ttlSeconds int64) error {
	return errors.New("store down")
}

func (s errorService) TTL(ns, key string) (int64, error) {
	return 0, errors.New("store down")
}
