package memory

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sangkips/idempotency-gateway/internal/domain/entity"
	"github.com/sangkips/idempotency-gateway/internal/domain/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newIdentity(t *testing.T, raw string) entity.CompositeIdentity {
	t.Helper()
	key, ok := entity.TryCreateIdempotencyKey(raw, 0)
	require.True(t, ok)
	return entity.NewCompositeIdentity("post", "/orders", key)
}

func newResponse(t *testing.T, now time.Time, ttl time.Duration) *entity.CachedResponse {
	t.Helper()
	resp, err := entity.NewCachedResponse(http.StatusCreated, http.Header{"Content-Type": {"application/json"}}, []byte(`{"id":1}`), "", now, ttl)
	require.NoError(t, err)
	return resp
}

func TestKeyStore_AcquirePersistLookup(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewKeyStore(WithClock(clock.Now))
	ctx := context.Background()
	id := newIdentity(t, "abc-123")

	_, found, err := store.Lookup(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)

	lock, err := store.TryAcquireLock(ctx, id, 10*time.Second)
	require.NoError(t, err)
	require.True(t, lock.Acquired)
	assert.NotEmpty(t, lock.Token)

	second, err := store.TryAcquireLock(ctx, id, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, second.Acquired)
	assert.Equal(t, clock.Now().Add(10*time.Second), second.HeldUntil)

	require.NoError(t, store.Persist(ctx, id, lock.Token, newResponse(t, clock.Now(), time.Hour), time.Hour))

	got, found, err := store.Lookup(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, http.StatusCreated, got.StatusCode)
	assert.Equal(t, []byte(`{"id":1}`), got.Body)

	// a completed identity cannot be locked again while the response is live
	third, err := store.TryAcquireLock(ctx, id, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, third.Acquired)
	assert.True(t, third.HeldUntil.IsZero())
}

func TestKeyStore_ExpiredResponseIsNotFound(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewKeyStore(WithClock(clock.Now))
	ctx := context.Background()
	id := newIdentity(t, "expiring")

	lock, err := store.TryAcquireLock(ctx, id, time.Second)
	require.NoError(t, err)
	require.NoError(t, store.Persist(ctx, id, lock.Token, newResponse(t, clock.Now(), time.Minute), time.Minute))

	clock.Advance(time.Minute)

	_, found, err := store.Lookup(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, store.Stats()["entries"])

	again, err := store.TryAcquireLock(ctx, id, time.Second)
	require.NoError(t, err)
	assert.True(t, again.Acquired)
}

func TestKeyStore_StaleLockIsReclaimed(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewKeyStore(WithClock(clock.Now))
	ctx := context.Background()
	id := newIdentity(t, "stale")

	first, err := store.TryAcquireLock(ctx, id, 5*time.Second)
	require.NoError(t, err)
	require.True(t, first.Acquired)

	clock.Advance(5 * time.Second)

	second, err := store.TryAcquireLock(ctx, id, 5*time.Second)
	require.NoError(t, err)
	require.True(t, second.Acquired)
	assert.NotEqual(t, first.Token, second.Token)

	// the original holder lost its lock and cannot persist over the new one
	err = store.Persist(ctx, id, first.Token, newResponse(t, clock.Now(), time.Hour), time.Hour)
	assert.ErrorIs(t, err, repository.ErrLockLost)
	assert.ErrorIs(t, store.ReleaseLock(ctx, id, first.Token), repository.ErrLockLost)

	require.NoError(t, store.ReleaseLock(ctx, id, second.Token))
	assert.Equal(t, 0, store.Stats()["entries"])
}

func TestKeyStore_ReleaseAllowsReacquire(t *testing.T) {
	store := NewKeyStore()
	ctx := context.Background()
	id := newIdentity(t, "release-me")

	lock, err := store.TryAcquireLock(ctx, id, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.ReleaseLock(ctx, id, lock.Token))

	again, err := store.TryAcquireLock(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.True(t, again.Acquired)
}

func TestKeyStore_DistinctIdentitiesDoNotCollide(t *testing.T) {
	store := NewKeyStore()
	ctx := context.Background()
	key, ok := entity.TryCreateIdempotencyKey("shared", 0)
	require.True(t, ok)

	post := entity.NewCompositeIdentity("POST", "/orders", key)
	put := entity.NewCompositeIdentity("PUT", "/orders", key)
	other := entity.NewCompositeIdentity("POST", "/payments", key)

	for _, id := range []entity.CompositeIdentity{post, put, other} {
		lock, err := store.TryAcquireLock(ctx, id, time.Minute)
		require.NoError(t, err)
		assert.True(t, lock.Acquired, id.String())
	}
}

func TestKeyStore_ConcurrentAcquireHasSingleWinner(t *testing.T) {
	store := NewKeyStore()
	ctx := context.Background()
	id := newIdentity(t, "race")

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := store.TryAcquireLock(ctx, id, time.Minute)
			if err == nil && lock.Acquired {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestKeyStore_DeleteExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewKeyStore(WithClock(clock.Now))
	ctx := context.Background()

	done := newIdentity(t, "done")
	lock, err := store.TryAcquireLock(ctx, done, time.Second)
	require.NoError(t, err)
	require.NoError(t, store.Persist(ctx, done, lock.Token, newResponse(t, clock.Now(), time.Minute), time.Minute))

	_, err = store.TryAcquireLock(ctx, newIdentity(t, "abandoned"), time.Second)
	require.NoError(t, err)

	live := newIdentity(t, "live")
	_, err = store.TryAcquireLock(ctx, live, time.Hour)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	removed, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Equal(t, 1, store.Stats()["active_locks"])
}

func TestKeyStore_CancelledContext(t *testing.T) {
	store := NewKeyStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.Lookup(ctx, newIdentity(t, "cancelled"))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.TryAcquireLock(ctx, newIdentity(t, "cancelled"), time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
