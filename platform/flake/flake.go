package flake

import (
	"sync"
	"time"

	"github.com/sony/sonyflake"
)

var (
	mu     sync.Mutex
	flakes = map[string]*sonyflake.Sonyflake{}
)

// NextID returns the next safe to use ID for the given namespace. When no
// machine ID can be derived the error is returned instead of a generator, so
// callers can fall back rather than crash.
func NextID(namespace string) (uint64, error) {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := flakes[namespace]; !ok {
		var s sonyflake.Settings
		s.StartTime = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

		f, err := sonyflake.New(s)
		if err != nil {
			return 0, err
		}

		flakes[namespace] = f
	}

	return flakes[namespace].NextID()
}
