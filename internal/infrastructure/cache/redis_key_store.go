// Package cache provides a KeyStore backed by a shared Redis instance.
//
// Locks are SET NX PX keys whose expiry doubles as the lock timeout, and
// responses are plain keys with the configured TTL. Acquire, persist and release
// run as Lua scripts so the response-exists check, the lock compare and the
// write happen in one round trip. Guarantees hold across every instance sharing
// the Redis deployment, subject to Redis' own consistency model: a failover to
// a replica that missed the last write can let a duplicate through.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sangkips/idempotency-gateway/internal/domain/entity"
	"github.com/sangkips/idempotency-gateway/internal/domain/repository"
)

const defaultKeyPrefix = "idem:"

// acquireScript: KEYS[1]=lock KEYS[2]=response ARGV[1]=token ARGV[2]=timeout ms.
// Returns {1, 0} when acquired, {0, -1} when a response exists, {0, pttl} when
// another holder owns the lock.
var acquireScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
	return {0, -1}
end
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
	return {1, 0}
end
return {0, redis.call('PTTL', KEYS[1])}
`)

// persistScript: KEYS[1]=lock KEYS[2]=response ARGV[1]=token ARGV[2]=payload
// ARGV[3]=ttl ms.
var persistScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
redis.call('DEL', KEYS[1])
return 1
`)

// releaseScript: KEYS[1]=lock ARGV[1]=token
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Config holds connection settings for NewClient
type Config struct {
	Addr     string
	DB       int
	Password string
}

// NewClient opens a Redis client
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
}

// RedisKeyStore implements repository.KeyStore on Redis
type RedisKeyStore struct {
	rdb    redis.UniversalClient
	prefix string
	logger *log.Logger
	now    func() time.Time
}

// Option configures a RedisKeyStore
type Option func(*RedisKeyStore)

// WithKeyPrefix namespaces all keys written by the store
func WithKeyPrefix(prefix string) Option {
	return func(s *RedisKeyStore) {
		s.prefix = prefix
	}
}

// WithLogger sets the logger used for backend failures
func WithLogger(logger *log.Logger) Option {
	return func(s *RedisKeyStore) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for the expiry double-check
func WithClock(now func() time.Time) Option {
	return func(s *RedisKeyStore) {
		s.now = now
	}
}

// NewRedisKeyStore wraps an existing client
func NewRedisKeyStore(rdb redis.UniversalClient, opts ...Option) *RedisKeyStore {
	s := &RedisKeyStore{
		rdb:    rdb,
		prefix: defaultKeyPrefix,
		logger: log.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Both keys of an identity share a hash tag so the scripts stay single-slot on
// Redis Cluster.
func (s *RedisKeyStore) lockKey(id entity.CompositeIdentity) string {
	return s.prefix + "{" + id.String() + "}:lock"
}

func (s *RedisKeyStore) responseKey(id entity.CompositeIdentity) string {
	return s.prefix + "{" + id.String() + "}:resp"
}

// Lookup reads and decodes the cached response. Undecodable payloads are
// reported as storage failures.
func (s *RedisKeyStore) Lookup(ctx context.Context, id entity.CompositeIdentity) (*entity.CachedResponse, bool, error) {
	key := s.responseKey(id)
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.fail("GET", key, err)
	}

	resp, err := entity.DecodeCachedResponse(data)
	if err != nil {
		return nil, false, s.fail("DECODE", key, err)
	}
	if resp.IsExpired(s.now()) {
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			s.logger.Printf("lvl=warn msg=\"redis DEL of expired response failed\" key=%q err=%v", key, err)
		}
		return nil, false, nil
	}
	return resp, true, nil
}

// TryAcquireLock runs the acquire script
func (s *RedisKeyStore) TryAcquireLock(ctx context.Context, id entity.CompositeIdentity, timeout time.Duration) (repository.LockResult, error) {
	token := repository.LockToken(uuid.NewString())
	lockKey := s.lockKey(id)

	res, err := acquireScript.Run(ctx, s.rdb,
		[]string{lockKey, s.responseKey(id)},
		string(token), milliseconds(timeout),
	).Int64Slice()
	if err != nil {
		return repository.LockResult{}, s.fail("ACQUIRE", lockKey, err)
	}
	if len(res) != 2 {
		return repository.LockResult{}, s.fail("ACQUIRE", lockKey, fmt.Errorf("unexpected script reply %v", res))
	}

	if res[0] == 1 {
		return repository.LockResult{Acquired: true, Token: token}, nil
	}
	result := repository.LockResult{Acquired: false}
	if res[1] > 0 {
		result.HeldUntil = s.now().Add(time.Duration(res[1]) * time.Millisecond)
	}
	return result, nil
}

// Persist writes the response and deletes the lock if token still owns it
func (s *RedisKeyStore) Persist(ctx context.Context, id entity.CompositeIdentity, token repository.LockToken, resp *entity.CachedResponse, ttl time.Duration) error {
	payload, err := resp.Encode()
	if err != nil {
		return fmt.Errorf("%w: encode response: %v", repository.ErrStoreUnavailable, err)
	}

	lockKey := s.lockKey(id)
	n, err := persistScript.Run(ctx, s.rdb,
		[]string{lockKey, s.responseKey(id)},
		string(token), payload, milliseconds(ttl),
	).Int64()
	if err != nil {
		return s.fail("PERSIST", lockKey, err)
	}
	if n == 0 {
		return repository.ErrLockLost
	}
	return nil
}

// ReleaseLock deletes the lock if token still owns it
func (s *RedisKeyStore) ReleaseLock(ctx context.Context, id entity.CompositeIdentity, token repository.LockToken) error {
	lockKey := s.lockKey(id)
	n, err := releaseScript.Run(ctx, s.rdb, []string{lockKey}, string(token)).Int64()
	if err != nil {
		return s.fail("RELEASE", lockKey, err)
	}
	if n == 0 {
		return repository.ErrLockLost
	}
	return nil
}

func (s *RedisKeyStore) fail(op, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger.Printf("lvl=error msg=\"redis %s failed\" key=%q err=%v", op, key, err)
	return fmt.Errorf("%w: redis %s %q: %v", repository.ErrStoreUnavailable, op, key, err)
}

// milliseconds rounds d up to at least one millisecond, the smallest PX value
func milliseconds(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}

var _ repository.KeyStore = (*RedisKeyStore)(nil)
