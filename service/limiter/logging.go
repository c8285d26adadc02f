package limiter

import (
	"time"

	"github.com/go-kit/log"
)

type logService struct {
	logger log.Logger
	next   Service
}

// LogMiddleware given a Logger wraps the next Service with logging
// capabilities.
func LogMiddleware(logger log.Logger, store string) ServiceMiddleware {
	return func(next Service) Service {
		logger = log.With(
			logger,
			"service", "limiter",
			"store", store,
		)

		return &logService{logger: logger, next: next}
	}
}

func (s *logService) Check(ns, dimension, id string, rule Rule) (res Result, err error) {
	defer func(begin time.Time) {
		ps := []interface{}{
			"allowed", res.Allowed,
			"dimension", dimension,
			"duration_ns", time.Since(begin).Nanoseconds(),
			"method", "Check",
			"namespace", ns,
			"remaining", res.Remaining,
		}

		if err != nil {
			ps = append(ps, "err", err)
		}

		_ = s.logger.Log(ps...)
	}(time.Now())

	return s.next.Check(ns, dimension, id, rule)
}
