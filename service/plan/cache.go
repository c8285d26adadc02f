package plan

import (
	"strings"
	"time"

	"github.com/truxe-io/admission/platform/counter"
)

const (
	cacheNamespace  = "plan"
	cacheTTLSeconds = int64(time.Hour / time.Second)
)

// Plans are cached as small integer codes because the counter store speaks
// int64 values only.
var (
	planCodes = map[Plan]int64{
		Free:       1,
		Starter:    2,
		Pro:        3,
		Enterprise: 4,
	}
	codePlans = map[int64]Plan{
		1: Free,
		2: Starter,
		3: Pro,
		4: Enterprise,
	}
)

type cacheService struct {
	counters counter.Service
	next     Service
}

// CacheMiddleware caches resolved plans in the counter store for a bounded
// TTL keyed by (userID, orgID). Cache failures fall through to the source.
func CacheMiddleware(counters counter.Service) ServiceMiddleware {
	return func(next Service) Service {
		return &cacheService{
			counters: counters,
			next:     next,
		}
	}
}

func (s *cacheService) Resolve(userID, orgID string) (Plan, error) {
	key := cacheKey(userID, orgID)

	if code, err := s.counters.Get(cacheNamespace, key); err == nil {
		if p, ok := codePlans[code]; ok {
			return p, nil
		}
	}

	p, err := s.next.Resolve(userID, orgID)
	if err != nil {
		return p, err
	}

	// Best-effort, a failed cache write must not fail the resolution.
	_ = s.counters.SetEx(cacheNamespace, key, planCodes[p], cacheTTLSeconds)

	return p, nil
}

func cacheKey(userID, orgID string) string {
	return strings.Join([]string{userID, orgID}, counter.KeySeparator)
}
