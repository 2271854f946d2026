package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
)

// RedisStore shares the daily counter between processes using INCRBY guarded
// by a Lua script, so check and increment happen atomically on the server.
type RedisStore struct {
	rc     *redis.Client
	prefix string
}

func NewRedisStore(addr string, db int) *RedisStore {
	rc := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return &RedisStore{rc: rc, prefix: "quota:"}
}

func (s *RedisStore) Close() error {
	return s.rc.Close()
}

// keys expire two days after first use; a day key is never read after that.
var luaReserve = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
local n = tonumber(ARGV[1])
if used + n > tonumber(ARGV[2]) then return 0 end
redis.call('INCRBY', KEYS[1], n)
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

var luaRelease = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
local left = used - tonumber(ARGV[1])
if left < 0 then left = 0 end
if redis.call('EXISTS', KEYS[1]) == 1 then redis.call('SET', KEYS[1], left, 'KEEPTTL') end
return left
`)

const keyTTL = 48 * time.Hour

func (s *RedisStore) Reserve(ctx context.Context, day string, n, ceiling int) (bool, error) {
	res, err := luaReserve.Run(ctx, s.rc, []string{s.prefix + day}, n, ceiling, keyTTL.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", appErrors.ErrStoreUnavailable, err)
	}
	return res == 1, nil
}

func (s *RedisStore) Release(ctx context.Context, day string, n int) error {
	if err := luaRelease.Run(ctx, s.rc, []string{s.prefix + day}, n).Err(); err != nil {
		return fmt.Errorf("%w: %v", appErrors.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Used(ctx context.Context, day string) (int, error) {
	used, err := s.rc.Get(ctx, s.prefix+day).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", appErrors.ErrStoreUnavailable, err)
	}
	return used, nil
}

func (s *RedisStore) Reset(ctx context.Context, day string) error {
	if err := s.rc.Del(ctx, s.prefix+day).Err(); err != nil {
		return fmt.Errorf("%w: %v", appErrors.ErrStoreUnavailable, err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
