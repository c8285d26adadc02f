package block

import (
	"time"

	"github.com/truxe-io/admission/platform/counter"
)

const blockNamespace = "blocked"

type storeService struct {
	counters counter.Service
}

// StoreService returns a counter store backed Service implementation. The
// store expires entries on its own, there is no cleanup loop.
func StoreService(counters counter.Service) Service {
	return &storeService{counters: counters}
}

func (s *storeService) Block(address string, ttl time.Duration) error {
	return s.counters.SetEx(blockNamespace, address, 1, ttlSeconds(ttl))
}

func (s *storeService) IsBlocked(address string) (bool, time.Duration, error) {
	ttl, err := s.counters.TTL(blockNamespace, address)
	if err != nil {
		if counter.IsKeyNotFound(err) {
			return false, 0, nil
		}

		return false, 0, err
	}

	if ttl <= 0 {
		return false, 0, nil
	}

	return true, time.Duration(ttl) * time.Second, nil
}

func (s *storeService) Unblock(address string) error {
	return s.counters.Del(blockNamespace, address)
}

func ttlSeconds(ttl time.Duration) int64 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}

	return secs
}
