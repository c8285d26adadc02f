package counter

import (
	"time"

	kitmetrics "github.com/go-kit/kit/metrics"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/truxe-io/admission/platform/metrics"
)

type instrumentService struct {
	component string
	errCount  kitmetrics.Counter
	next      Service
	opCount   kitmetrics.Counter
	opLatency *prometheus.HistogramVec
	store     string
}

// InstrumentServiceMiddleware observes key aspects of Service operations and
// exposes Prometheus metrics.
func InstrumentServiceMiddleware(
	component, store string,
	errCount kitmetrics.Counter,
	opCount kitmetrics.Counter,
	opLatency *prometheus.HistogramVec,
) ServiceMiddleware {
	return func(next Service) Service {
		return &instrumentService{
			component: component,
			errCount:  errCount,
			next:      next,
			opCount:   opCount,
			opLatency: opLatency,
			store:     store,
		}
	}
}

func (s *instrumentService) Del(ns, key string) (err error) {
	defer func(begin time.Time) {
		s.track("Del", ns, begin, err)
	}(time.Now())

	return s.next.Del(ns, key)
}

func (s *instrumentService) Get(ns, key string) (count int64, err error) {
	defer func(begin time.Time) {
		if IsKeyNotFound(err) {
			s.track("Get", ns, begin, nil)
			return
		}

		s.track("Get", ns, begin, err)
	}(time.Now())

	return s.next.Get(ns, key)
}

func (s *instrumentService) IncrEx(ns, key string, ttlSeconds int64) (count int64, err error) {
	defer func(begin time.Time) {
		s.track("IncrEx", ns, begin, err)
	}(time.Now())

	return s.next.IncrEx(ns, key, ttlSeconds)
}

func (s *instrumentService) ScanCounts(ns, match string) (counts map[string]int64, err error) {
	defer func(begin time.Time) {
		s.track("ScanCounts", ns, begin, err)
	}(time.Now())

	return s.next.ScanCounts(ns, match)
}

func (s *instrumentService) SetEx(ns, key string, value, ttlSeconds int64) (err error) {
	defer func(begin time.Time) {
		s.track("SetEx", ns, begin, err)
	}(time.Now())

	return s.next.SetEx(ns, key, value, ttlSeconds)
}

func (s *instrumentService) TTL(ns, key string) (ttl int64, err error) {
	defer func(begin time.Time) {
		if IsKeyNotFound(err) {
			s.track("TTL", ns, begin, nil)
			return
		}

		s.track("TTL", ns, begin, err)
	}(time.Now())

	return s.next.TTL(ns, key)
}

func (s *instrumentService) track(
	method, namespace string,
	begin time.Time,
	err error,
) {
	if err != nil {
		s.errCount.With(
			metrics.FieldComponent, s.component,
			metrics.FieldMethod, method,
			metrics.FieldNamespace, namespace,
			metrics.FieldStore, s.store,
		).Add(1)

		return
	}

	s.opCount.With(
		metrics.FieldComponent, s.component,
		metrics.FieldMethod, method,
		metrics.FieldNamespace, namespace,
		metrics.FieldStore, s.store,
	).Add(1)

	s.opLatency.With(prometheus.Labels{
		metrics.FieldComponent: s.component,
		metrics.FieldMethod:    method,
		metrics.FieldNamespace: namespace,
		metrics.FieldStore:     s.store,
	}).Observe(time.Since(begin).Seconds())
}
