package breaker

import (
	"time"

	"github.com/go-kit/log"
)

type logService struct {
	logger log.Logger
	next   Service
}

// LogMiddleware given a Logger wraps the next Service with logging of state
// mutating operations. Allow is deliberately not logged, it sits on the
// request path.
func LogMiddleware(logger log.Logger) ServiceMiddleware {
	return func(next Service) Service {
		logger = log.With(logger, "service", "breaker")

		return &logService{logger: logger, next: next}
	}
}

func (s *logService) Allow(dep string) (bool, time.Duration) {
	return s.next.Allow(dep)
}

func (s *logService) Failure(dep string) {
	_ = s.logger.Log(
		"dependency", dep,
		"method", "Failure",
	)

	s.next.Failure(dep)
}

func (s *logService) Snapshot(dep string) Snapshot {
	return s.next.Snapshot(dep)
}

func (s *logService) Snapshots() []Snapshot {
	return s.next.Snapshots()
}

func (s *logService) Success(dep string) {
	s.next.Success(dep)
}

func (s *logService) Trip(dep string) {
	_ = s.logger.Log(
		"dependency", dep,
		"method", "Trip",
	)

	s.next.Trip(dep)
}
