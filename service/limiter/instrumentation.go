package limiter

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

// InstrumentMiddleware observes key aspects of Service operations and exposes
// Prometheus metrics.
func InstrumentMiddleware(
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

func (s *instrumentService) Check(ns, dimension, id string, rule Rule) (res Result, err error) {
	defer func(begin time.Time) {
		if err != nil {
			s.errCount.With(
				metrics.FieldComponent, s.component,
				metrics.FieldDimension, dimension,
				metrics.FieldMethod, "Check",
				metrics.FieldNamespace, ns,
				metrics.FieldStore, s.store,
			).Add(1)

			return
		}

		s.opCount.With(
			metrics.FieldComponent, s.component,
			metrics.FieldDimension, dimension,
			metrics.FieldMethod, "Check",
			metrics.FieldNamespace, ns,
			metrics.FieldStore, s.store,
		).Add(1)

		s.opLatency.With(prometheus.Labels{
			metrics.FieldComponent: s.component,
			metrics.FieldDimension: dimension,
			metrics.FieldMethod:    "Check",
			metrics.FieldNamespace: ns,
			metrics.FieldStore:     s.store,
		}).Observe(time.Since(begin).Seconds())
	}(time.Now())

	return s.next.Check(ns, dimension, id, rule)
}
