package block

import "time"

// Service is the temporary address blocklist. Entries live in the counter
// store bounded by a TTL; re-blocking an address refreshes its TTL instead of
// stacking durations.
type Service interface {
	Block(address string, ttl time.Duration) error
	IsBlocked(address string) (bool, time.Duration, error)
	Unblock(address string) error
}

// ServiceMiddleware is a chainable behaviour modifier for Service.
type ServiceMiddleware func(Service) Service
