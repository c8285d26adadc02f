package block

import (
	"time"

	"github.com/go-kit/log"
)

type logService struct {
	logger log.Logger
	next   Service
}

// LogMiddleware given a Logger wraps the next Service with logging of
// mutating operations.
func LogMiddleware(logger log.Logger, store string) ServiceMiddleware {
	return func(next Service) Service {
		logger = log.With(
			logger,
			"service", "block",
			"store", store,
		)

		return &logService{logger: logger, next: next}
	}
}

func (s *logService) Block(address string, ttl time.Duration) (err error) {
	defer func(begin time.Time) {
		ps := []interface{}{
			"address", address,
			"duration_ns", time.Since(begin).Nanoseconds(),
			"method", "Block",
			"ttl", ttl.String(),
		}

		if err != nil {
			ps = append(ps, "err", err)
		}

		_ = s.logger.Log(ps...)
	}(time.Now())

	return s.next.Block(address, ttl)
}

func (s *logService) IsBlocked(address string) (bool, time.Duration, error) {
	return s.next.IsBlocked(address)
}

func (s *logService) Unblock(address string) (err error) {
	defer func(begin time.Time) {
		ps := []interface{}{
			"address", address,
			"duration_ns", time.Since(begin).Nanoseconds(),
			"method", "Unblock",
		}

		if err != nil {
			ps = append(ps, "err", err)
		}

		_ = s.logger.Log(ps...)
	}(time.Now())

	return s.next.Unblock(address)
}
