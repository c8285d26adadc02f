package counter

import (
	"fmt"
	"strings"

	"github.com/gomodule/redigo/redis"

	predis "github.com/truxe-io/admission/platform/redis"
)

const scanBatchSize = 100

type redisService struct {
	pool   *redis.Pool
	prefix string
}

// RedisService returns a Redis backed Service implementation.
func RedisService(pool *redis.Pool, prefix string) Service {
	return &redisService{
		pool:   pool,
		prefix: prefix,
	}
}

func (s *redisService) Del(ns, key string) error {
	con := s.pool.Get()
	defer con.Close()

	_, err := con.Do(predis.CommandDel, s.prefixKey(ns, key))
	if err != nil {
		return fmt.Errorf("counter del failed: %s", err)
	}

	return nil
}

func (s *redisService) Get(ns, key string) (int64, error) {
	con := s.pool.Get()
	defer con.Close()

	res, err := con.Do(predis.CommandGet, s.prefixKey(ns, key))
	if err != nil {
		return 0, fmt.Errorf("counter get failed: %s", err)
	}

	if res == nil {
		return 0, wrapError(ErrKeyNotFound, "%s%s%s", ns, KeySeparator, key)
	}

	count, err := redis.Int64(res, nil)
	if err != nil {
		return 0, fmt.Errorf("counter scan failed: %s", err)
	}

	return count, nil
}

// IncrEx runs INCR and EXPIRE inside a single MULTI/EXEC transaction so that
// concurrent requests never observe a count without an eventual expiry.
func (s *redisService) IncrEx(ns, key string, ttlSeconds int64) (int64, error) {
	con := s.pool.Get()
	defer con.Close()

	con.Send(predis.CommandMulti)
	con.Send(predis.CommandIncr, s.prefixKey(ns, key))
	con.Send(predis.CommandExpire, s.prefixKey(ns, key), ttlSeconds)

	res, err := redis.Values(con.Do(predis.CommandExec))
	if err != nil {
		return 0, fmt.Errorf("counter incr failed: %s", err)
	}

	var count int64

	if _, err := redis.Scan(res, &count); err != nil {
		return 0, err
	}

	return count, nil
}

func (s *redisService) ScanCounts(ns, match string) (map[string]int64, error) {
	con := s.pool.Get()
	defer con.Close()

	var (
		counts  = map[string]int64{}
		cursor  = int64(0)
		pattern = s.prefixKey(ns, match)
	)

	for {
		res, err := redis.Values(con.Do(
			predis.CommandScan, cursor,
			predis.ArgMatch, pattern,
			predis.ArgCount, scanBatchSize,
		))
		if err != nil {
			return nil, fmt.Errorf("counter scan failed: %s", err)
		}

		var keys []string

		if _, err := redis.Scan(res, &cursor, &keys); err != nil {
			return nil, err
		}

		for _, k := range keys {
			res, err := con.Do(predis.CommandGet, k)
			if err != nil {
				return nil, fmt.Errorf("counter get failed: %s", err)
			}

			if res == nil {
				continue
			}

			count, err := redis.Int64(res, nil)
			if err != nil {
				continue
			}

			counts[s.stripKey(ns, k)] = count
		}

		if cursor == 0 {
			break
		}
	}

	return counts, nil
}

func (s *redisService) SetEx(ns, key string, value, ttlSeconds int64) error {
	con := s.pool.Get()
	defer con.Close()

	_, err := con.Do(predis.CommandSetEx, s.prefixKey(ns, key), ttlSeconds, value)
	if err != nil {
		return fmt.Errorf("counter set failed: %s", err)
	}

	return nil
}

func (s *redisService) TTL(ns, key string) (int64, error) {
	con := s.pool.Get()
	defer con.Close()

	// TTL returns -2 for a key that doesn't exist and -1 if none is set.
	ttl, err := redis.Int64(con.Do(predis.CommandTTL, s.prefixKey(ns, key)))
	if err != nil {
		return 0, fmt.Errorf("counter ttl failed: %s", err)
	}

	if ttl == -2 {
		return 0, wrapError(ErrKeyNotFound, "%s%s%s", ns, KeySeparator, key)
	}

	return ttl, nil
}

func (s *redisService) prefixKey(ns, key string) string {
	return strings.Join([]string{s.prefix, ns, key}, KeySeparator)
}

func (s *redisService) stripKey(ns, key string) string {
	return strings.TrimPrefix(
		key,
		strings.Join([]string{s.prefix, ns, ""}, KeySeparator),
	)
}
