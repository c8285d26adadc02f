package counter

// KeySeparator is used to build complete keys out of parts.
const KeySeparator = ":"

// Service is the shared counter store the admission engine builds on. All
// durable state (window counters, blocklist entries, plan cache, emergency
// flag) lives behind this interface so two engine instances sharing a store
// enforce cluster-wide consistent quotas.
type Service interface {
	// Del removes the key. Missing keys are not an error.
	Del(ns, key string) error
	// Get returns the current count for the key or ErrKeyNotFound.
	Get(ns, key string) (int64, error)
	// IncrEx increments the key and applies the expiry as one atomic unit of
	// work. A counter must never be observable without an eventual expiry.
	IncrEx(ns, key string, ttlSeconds int64) (int64, error)
	// ScanCounts returns the counts of all keys in ns matching the glob
	// pattern, keyed by the unprefixed key.
	ScanCounts(ns, match string) (map[string]int64, error)
	// SetEx stores the value with the given expiry.
	SetEx(ns, key string, value, ttlSeconds int64) error
	// TTL returns the remaining lifetime of the key, or ErrKeyNotFound if the
	// key does not exist.
	TTL(ns, key string) (int64, error)
}

// ServiceMiddleware is a chainable behaviour modifier for Service.
type ServiceMiddleware func(Service) Service
