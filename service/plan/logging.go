package plan

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
			"service", "plan",
			"store", store,
		)

		return &logService{logger: logger, next: next}
	}
}

func (s *logService) Resolve(userID, orgID string) (p Plan, err error) {
	defer func(begin time.Time) {
		ps := []interface{}{
			"duration_ns", time.Since(begin).Nanoseconds(),
			"method", "Resolve",
			"org_id", orgID,
			"plan", string(p),
			"user_id", userID,
		}

		if err != nil {
			ps = append(ps, "err", err)
		}

		_ = s.logger.Log(ps...)
	}(time.Now())

	return s.next.Resolve(userID, orgID)
}
