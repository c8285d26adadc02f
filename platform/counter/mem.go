package counter

import (
	"path"
	"sync"
	"time"
)

type memEntry struct {
	value     int64
	expiresAt time.Time
}

type memService struct {
	mu      sync.Mutex
	buckets map[string]map[string]*memEntry
}

// MemService returns a memory based Service implementation.
func MemService() Service {
	return &memService{
		buckets: map[string]map[string]*memEntry{},
	}
}

func (s *memService) Del(ns, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[ns]; ok {
		delete(b, key)
	}

	return nil
}

func (s *memService) Get(ns, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(ns, key)
	if e == nil {
		return 0, wrapError(ErrKeyNotFound, "%s%s%s", ns, KeySeparator, key)
	}

	return e.value, nil
}

func (s *memService) IncrEx(ns, key string, ttlSeconds int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(ns, key)
	if e == nil {
		e = &memEntry{}
		s.bucket(ns)[key] = e
	}

	e.value++
	e.expiresAt = time.Now().Add(time.Duration(ttlSeconds) * time.Second)

	return e.value, nil
}

func (s *memService) ScanCounts(ns, match string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[string]int64{}

	for key, e := range s.bucket(ns) {
		if e.expiresAt.Before(time.Now()) {
			continue
		}

		if ok, _ := path.Match(match, key); ok {
			counts[key] = e.value
		}
	}

	return counts, nil
}

func (s *memService) SetEx(ns, key string, value, ttlSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bucket(ns)[key] = &memEntry{
		value:     value,
		expiresAt: time.Now().Add(time.Duration(ttlSeconds) * time.Second),
	}

	return nil
}

func (s *memService) TTL(ns, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(ns, key)
	if e == nil {
		return 0, wrapError(ErrKeyNotFound, "%s%s%s", ns, KeySeparator, key)
	}

	return int64(time.Until(e.expiresAt).Seconds()), nil
}

func (s *memService) bucket(ns string) map[string]*memEntry {
	if _, ok := s.buckets[ns]; !ok {
		s.buckets[ns] = map[string]*memEntry{}
	}

	return s.buckets[ns]
}

func (s *memService) entry(ns, key string) *memEntry {
	e, ok := s.bucket(ns)[key]
	if !ok {
		return nil
	}

	if e.expiresAt.Before(time.Now()) {
		delete(s.bucket(ns), key)
		return nil
	}

	return e
}
