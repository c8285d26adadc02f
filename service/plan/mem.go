package plan

import "sync"

// MemService returns a memory based Service implementation.
func MemService() *MemoryService {
	return &MemoryService{
		plans: map[string]Plan{},
	}
}

// MemoryService is an in-memory plan source, used in tests and as a static
// fallback when no identity store is configured.
type MemoryService struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// Resolve returns the stored plan or Free.
func (s *MemoryService) Resolve(userID, orgID string) (Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.plans[cacheKey(userID, orgID)]; ok {
		return p, nil
	}

	return Free, nil
}

// Set stores the plan for the identity.
func (s *MemoryService) Set(userID, orgID string, p Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plans[cacheKey(userID, orgID)] = p
}
