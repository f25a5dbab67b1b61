package service

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sangkips/idempotency-gateway/internal/domain/entity"
	"github.com/sangkips/idempotency-gateway/internal/domain/enum"
	"github.com/sangkips/idempotency-gateway/internal/domain/repository"
	"github.com/sangkips/idempotency-gateway/internal/domain/repository/mocks"
	"github.com/sangkips/idempotency-gateway/internal/infrastructure/memory"
	"github.com/sangkips/idempotency-gateway/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var discard = log.New(io.Discard, "", 0)

func newTestService(t *testing.T, store repository.KeyStore, mutate func(*IdempotencyOptions), opts ...IdempotencyServiceOption) *IdempotencyService {
	t.Helper()
	o := DefaultIdempotencyOptions()
	if mutate != nil {
		mutate(&o)
	}
	svc, err := NewIdempotencyService(store, o, append([]IdempotencyServiceOption{WithLogger(discard)}, opts...)...)
	require.NoError(t, err)
	return svc
}

func newRequest(method, route, key, body string) Request {
	h := http.Header{}
	if key != "" {
		h.Set("Idempotency-Key", key)
	}
	return Request{Method: method, RouteTemplate: route, Header: h, Body: []byte(body)}
}

// countingHandler returns status/body and counts invocations
func countingHandler(calls *atomic.Int32, status int, body string) Handler {
	return func(ctx context.Context) (*Response, error) {
		n := calls.Add(1)
		h := http.Header{}
		h.Set("Content-Type", "application/json")
		h.Set("X-Call", strings.Repeat("i", int(n)))
		return &Response{StatusCode: status, Header: h, Body: []byte(body)}, nil
	}
}

func requireAppError(t *testing.T, err error, code int, reason string) *apperror.AppError {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
	assert.Equal(t, reason, appErr.Reason)
	return appErr
}

func TestNewIdempotencyService_RejectsInvalidOptions(t *testing.T) {
	_, err := NewIdempotencyService(nil, DefaultIdempotencyOptions())
	assert.Error(t, err)

	opts := DefaultIdempotencyOptions()
	opts.TTL = 0
	_, err = NewIdempotencyService(memory.NewKeyStore(), opts)
	assert.Error(t, err)
}

func TestExecute_FirstRequestExecutesAndRetryReplays(t *testing.T) {
	clock := newTestClock()
	store := memory.NewKeyStore(memory.WithClock(clock.Now))
	svc := newTestService(t, store, nil, WithClock(clock.Now))
	ctx := context.Background()

	var calls atomic.Int32
	handler := countingHandler(&calls, http.StatusCreated, `{"id":1}`)

	first, err := svc.Execute(ctx, newRequest("POST", "/orders", "abc-123", `{"sku":"A"}`), handler)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, first.StatusCode)
	assert.Equal(t, "created", first.Header.Get(entity.HeaderIdempotencyStatus))
	assert.Equal(t, clock.Now().Add(24*time.Hour).Format(time.RFC3339), first.Header.Get(entity.HeaderIdempotencyExpires))
	assert.Empty(t, first.Header.Get(entity.HeaderReplayed))

	clock.Advance(time.Minute)

	second, err := svc.Execute(ctx, newRequest("POST", "/orders", "abc-123", `{"sku":"A"}`), handler)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, []byte(`{"id":1}`), second.Body)
	assert.Equal(t, "i", second.Header.Get("X-Call"))
	assert.Equal(t, "application/json", second.Header.Get("Content-Type"))
	assert.Equal(t, "cached", second.Header.Get(entity.HeaderIdempotencyStatus))
	assert.Equal(t, "true", second.Header.Get(entity.HeaderReplayed))
	assert.Equal(t, first.Header.Get(entity.HeaderIdempotencyExpires), second.Header.Get(entity.HeaderIdempotencyExpires))
}

func TestExecute_ExpiredResponseExecutesAgain(t *testing.T) {
	clock := newTestClock()
	store := memory.NewKeyStore(memory.WithClock(clock.Now))
	svc := newTestService(t, store, func(o *IdempotencyOptions) { o.TTL = time.Hour }, WithClock(clock.Now))

	var calls atomic.Int32
	handler := countingHandler(&calls, http.StatusOK, `ok`)

	_, err := svc.Execute(context.Background(), newRequest("PUT", "/orders/:id", "k1", ""), handler)
	require.NoError(t, err)

	clock.Advance(time.Hour)

	resp, err := svc.Execute(context.Background(), newRequest("PUT", "/orders/:id", "k1", ""), handler)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "created", resp.Header.Get(entity.HeaderIdempotencyStatus))
}

func TestExecute_KeyValidation(t *testing.T) {
	testCases := []struct {
		name       string
		key        string
		requireKey bool
		wantReason string
		wantCalls  int32
	}{
		{name: "missing_key_required", key: "", requireKey: true, wantReason: apperror.ReasonMissingKey},
		{name: "missing_key_optional_passes_through", key: "", requireKey: false, wantCalls: 1},
		{name: "invalid_characters", key: "abc 123", requireKey: true, wantReason: apperror.ReasonInvalidKey},
		{name: "invalid_even_when_optional", key: "abc/123", requireKey: false, wantReason: apperror.ReasonInvalidKey},
		{name: "too_long", key: strings.Repeat("a", 257), requireKey: true, wantReason: apperror.ReasonInvalidKey},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			// no expectations: the store must never be touched
			store := mocks.NewMockKeyStore(ctrl)
			svc := newTestService(t, store, func(o *IdempotencyOptions) { o.RequireKey = tc.requireKey })

			var calls atomic.Int32
			resp, err := svc.Execute(context.Background(), newRequest("POST", "/orders", tc.key, ""),
				countingHandler(&calls, http.StatusCreated, "{}"))

			assert.Equal(t, tc.wantCalls, calls.Load())
			if tc.wantReason != "" {
				requireAppError(t, err, http.StatusBadRequest, tc.wantReason)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, resp.Header.Get(entity.HeaderIdempotencyStatus))
		})
	}
}

func TestExecute_UnprotectedMethodBypassesStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockKeyStore(ctrl)
	svc := newTestService(t, store, nil)

	var calls atomic.Int32
	for i := 0; i < 2; i++ {
		_, err := svc.Execute(context.Background(), newRequest("GET", "/orders/:id", "abc", ""),
			countingHandler(&calls, http.StatusOK, "{}"))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.False(t, svc.Protects("GET"))
	assert.True(t, svc.Protects("delete"))
}

func TestExecute_IdentityIncludesMethodAndRoute(t *testing.T) {
	svc := newTestService(t, memory.NewKeyStore(), nil)
	ctx := context.Background()

	var calls atomic.Int32
	handler := countingHandler(&calls, http.StatusOK, "{}")

	for _, req := range []Request{
		newRequest("POST", "/orders", "same-key", ""),
		newRequest("PUT", "/orders", "same-key", ""),
		newRequest("POST", "/invoices", "same-key", ""),
		newRequest("POST", "/orders", "SAME-KEY", ""),
	} {
		resp, err := svc.Execute(ctx, req, handler)
		require.NoError(t, err)
		assert.Equal(t, "created", resp.Header.Get(entity.HeaderIdempotencyStatus))
	}
	assert.Equal(t, int32(4), calls.Load())
}

func TestExecute_RejectModeConflict(t *testing.T) {
	svc := newTestService(t, memory.NewKeyStore(), nil)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := svc.Execute(gctx, newRequest("POST", "/orders", "dup-1", ""), func(ctx context.Context) (*Response, error) {
			close(started)
			<-release
			return &Response{StatusCode: http.StatusCreated, Body: []byte("{}")}, nil
		})
		return err
	})

	<-started
	var calls atomic.Int32
	_, err := svc.Execute(ctx, newRequest("POST", "/orders", "dup-1", ""), countingHandler(&calls, http.StatusCreated, "{}"))
	appErr := requireAppError(t, err, http.StatusConflict, apperror.ReasonConflict)
	assert.GreaterOrEqual(t, appErr.RetryAfter, 1)
	assert.LessOrEqual(t, appErr.RetryAfter, 30)
	assert.Equal(t, int32(0), calls.Load())

	close(release)
	require.NoError(t, g.Wait())

	resp, err := svc.Execute(ctx, newRequest("POST", "/orders", "dup-1", ""), countingHandler(&calls, http.StatusCreated, "{}"))
	require.NoError(t, err)
	assert.Equal(t, "cached", resp.Header.Get(entity.HeaderIdempotencyStatus))
	assert.Equal(t, int32(0), calls.Load())
}

func TestExecute_WaitModeReplaysOriginal(t *testing.T) {
	svc := newTestService(t, memory.NewKeyStore(), func(o *IdempotencyOptions) {
		o.ConflictHandling = enum.ConflictModeWait
		o.PollInterval = 5 * time.Millisecond
		o.LockTimeout = 5 * time.Second
	})
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	handler := func(ctx context.Context) (*Response, error) {
		calls.Add(1)
		close(started)
		<-release
		return &Response{StatusCode: http.StatusCreated, Body: []byte(`{"id":"o-1"}`)}, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := svc.Execute(gctx, newRequest("POST", "/orders", "dup-1", ""), handler)
		return err
	})
	<-started

	var waiter *Response
	g.Go(func() error {
		var err error
		waiter, err = svc.Execute(gctx, newRequest("POST", "/orders", "dup-1", ""), handler)
		return err
	})

	time.Sleep(20 * time.Millisecond)
	close(release)
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), calls.Load())
	require.NotNil(t, waiter)
	assert.Equal(t, http.StatusCreated, waiter.StatusCode)
	assert.Equal(t, []byte(`{"id":"o-1"}`), waiter.Body)
	assert.Equal(t, "cached", waiter.Header.Get(entity.HeaderIdempotencyStatus))
}

func TestExecute_WaitModeGivesUpAfterLockTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockKeyStore(ctrl)
	svc := newTestService(t, store, func(o *IdempotencyOptions) {
		o.ConflictHandling = enum.ConflictModeWait
		o.PollInterval = 5 * time.Millisecond
		o.LockTimeout = 40 * time.Millisecond
	})

	store.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(nil, false, nil).AnyTimes()
	store.EXPECT().TryAcquireLock(gomock.Any(), gomock.Any(), 40*time.Millisecond).
		Return(repository.LockResult{HeldUntil: time.Now().Add(time.Second)}, nil).AnyTimes()

	var calls atomic.Int32
	_, err := svc.Execute(context.Background(), newRequest("POST", "/orders", "slow", ""),
		countingHandler(&calls, http.StatusCreated, "{}"))

	requireAppError(t, err, http.StatusConflict, apperror.ReasonConflict)
	assert.Equal(t, int32(0), calls.Load())
}

func TestExecute_WaitModeCancellation(t *testing.T) {
	testCases := []struct {
		name       string
		makeCtx    func() (context.Context, context.CancelFunc)
		wantCode   int
		wantReason string
		wantErr    error
	}{
		{
			name: "client_cancelled",
			makeCtx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				time.AfterFunc(20*time.Millisecond, cancel)
				return ctx, cancel
			},
			wantCode:   apperror.StatusClientClosedRequest,
			wantReason: apperror.ReasonCancelled,
			wantErr:    context.Canceled,
		},
		{
			name: "deadline_exceeded",
			makeCtx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 20*time.Millisecond)
			},
			wantCode:   http.StatusGatewayTimeout,
			wantReason: apperror.ReasonTimeout,
			wantErr:    context.DeadlineExceeded,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mocks.NewMockKeyStore(ctrl)
			svc := newTestService(t, store, func(o *IdempotencyOptions) {
				o.ConflictHandling = enum.ConflictModeWait
				o.PollInterval = 5 * time.Millisecond
				o.LockTimeout = time.Minute
			})

			store.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(nil, false, nil).AnyTimes()
			store.EXPECT().TryAcquireLock(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(repository.LockResult{HeldUntil: time.Now().Add(time.Minute)}, nil).AnyTimes()

			ctx, cancel := tc.makeCtx()
			defer cancel()

			var calls atomic.Int32
			_, err := svc.Execute(ctx, newRequest("POST", "/orders", "gone", ""),
				countingHandler(&calls, http.StatusCreated, "{}"))

			requireAppError(t, err, tc.wantCode, tc.wantReason)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, int32(0), calls.Load())
		})
	}
}

func TestExecute_ConcurrentDuplicatesExecuteOnce(t *testing.T) {
	svc := newTestService(t, memory.NewKeyStore(), func(o *IdempotencyOptions) {
		o.ConflictHandling = enum.ConflictModeWait
		o.PollInterval = 2 * time.Millisecond
		o.LockTimeout = 5 * time.Second
	})

	var calls atomic.Int32
	handler := func(ctx context.Context) (*Response, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return &Response{StatusCode: http.StatusCreated, Body: []byte(`{"invoice":"INV-1"}`)}, nil
	}

	const n = 20
	results := make([]*Response, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			resp, err := svc.Execute(context.Background(), newRequest("POST", "/orders", "burst", ""), handler)
			results[i] = resp
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), calls.Load())
	created := 0
	for _, resp := range results {
		assert.Equal(t, []byte(`{"invoice":"INV-1"}`), resp.Body)
		if resp.Header.Get(entity.HeaderIdempotencyStatus) == "created" {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestExecute_HandlerFailureReleasesLock(t *testing.T) {
	svc := newTestService(t, memory.NewKeyStore(), nil)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := svc.Execute(ctx, newRequest("POST", "/orders", "retry-me", ""), func(ctx context.Context) (*Response, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Panics(t, func() {
		_, _ = svc.Execute(ctx, newRequest("POST", "/orders", "retry-me", ""), func(ctx context.Context) (*Response, error) {
			panic("handler exploded")
		})
	})

	var calls atomic.Int32
	resp, err := svc.Execute(ctx, newRequest("POST", "/orders", "retry-me", ""), countingHandler(&calls, http.StatusCreated, "{}"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "created", resp.Header.Get(entity.HeaderIdempotencyStatus))
}

func TestExecute_NilResponseIsAnError(t *testing.T) {
	svc := newTestService(t, memory.NewKeyStore(), nil)
	_, err := svc.Execute(context.Background(), newRequest("POST", "/orders", "nil", ""), func(ctx context.Context) (*Response, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestExecute_CachingPolicy(t *testing.T) {
	testCases := []struct {
		name        string
		status      int
		body        string
		cacheErrors bool
		wantCached  bool
		wantStatus  string
	}{
		{name: "success_cached", status: http.StatusOK, body: "{}", wantCached: true},
		{name: "client_error_not_cached", status: http.StatusUnprocessableEntity, body: "{}"},
		{name: "server_error_not_cached", status: http.StatusInternalServerError, body: "{}"},
		{name: "error_cached_when_enabled", status: http.StatusUnprocessableEntity, body: "{}", cacheErrors: true, wantCached: true},
		{name: "oversized_not_cached", status: http.StatusCreated, body: strings.Repeat("x", 65), wantStatus: "created"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, memory.NewKeyStore(), func(o *IdempotencyOptions) {
				o.CacheErrorResponses = tc.cacheErrors
				o.MaxBodySize = 64
			})
			ctx := context.Background()

			var calls atomic.Int32
			handler := countingHandler(&calls, tc.status, tc.body)

			first, err := svc.Execute(ctx, newRequest("POST", "/orders", "policy", ""), handler)
			require.NoError(t, err)
			assert.Equal(t, tc.status, first.StatusCode)
			assert.Equal(t, tc.body, string(first.Body))

			second, err := svc.Execute(ctx, newRequest("POST", "/orders", "policy", ""), handler)
			require.NoError(t, err)

			if tc.wantCached {
				assert.Equal(t, int32(1), calls.Load())
				assert.Equal(t, "cached", second.Header.Get(entity.HeaderIdempotencyStatus))
			} else {
				assert.Equal(t, int32(2), calls.Load())
				assert.Equal(t, tc.wantStatus, first.Header.Get(entity.HeaderIdempotencyStatus))
				assert.Empty(t, first.Header.Get(entity.HeaderIdempotencyExpires))
			}
		})
	}
}

func TestExecute_Fingerprint(t *testing.T) {
	svc := newTestService(t, memory.NewKeyStore(), func(o *IdempotencyOptions) { o.Fingerprinting = true })
	ctx := context.Background()

	var calls atomic.Int32
	handler := countingHandler(&calls, http.StatusCreated, "{}")

	_, err := svc.Execute(ctx, newRequest("POST", "/orders", "fp", `{"amount":10}`), handler)
	require.NoError(t, err)

	resp, err := svc.Execute(ctx, newRequest("POST", "/orders", "fp", `{"amount":10}`), handler)
	require.NoError(t, err)
	assert.Equal(t, "cached", resp.Header.Get(entity.HeaderIdempotencyStatus))

	_, err = svc.Execute(ctx, newRequest("POST", "/orders", "fp", `{"amount":99}`), handler)
	requireAppError(t, err, http.StatusUnprocessableEntity, apperror.ReasonFingerprintMismatch)

	_, err = svc.Execute(ctx, newRequest("POST", "/orders", "fp", ""), handler)
	requireAppError(t, err, http.StatusUnprocessableEntity, apperror.ReasonFingerprintMismatch)

	assert.Equal(t, int32(1), calls.Load())
}

func TestExecute_StoreFailurePolicy(t *testing.T) {
	storeErr := errors.Join(repository.ErrStoreUnavailable, errors.New("connection refused"))

	testCases := []struct {
		name      string
		failOpen  bool
		setup     func(store *mocks.MockKeyStore)
		wantCalls int32
	}{
		{
			name: "lookup_fails_closed",
			setup: func(store *mocks.MockKeyStore) {
				store.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(nil, false, storeErr)
			},
		},
		{
			name: "acquire_fails_closed",
			setup: func(store *mocks.MockKeyStore) {
				store.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(nil, false, nil)
				store.EXPECT().TryAcquireLock(gomock.Any(), gomock.Any(), gomock.Any()).Return(repository.LockResult{}, storeErr)
			},
		},
		{
			name:     "lookup_fails_open",
			failOpen: true,
			setup: func(store *mocks.MockKeyStore) {
				store.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(nil, false, storeErr)
			},
			wantCalls: 1,
		},
		{
			name:     "acquire_fails_open",
			failOpen: true,
			setup: func(store *mocks.MockKeyStore) {
				store.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(nil, false, nil)
				store.EXPECT().TryAcquireLock(gomock.Any(), gomock.Any(), gomock.Any()).Return(repository.LockResult{}, storeErr)
			},
			wantCalls: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mocks.NewMockKeyStore(ctrl)
			tc.setup(store)
			svc := newTestService(t, store, func(o *IdempotencyOptions) { o.FailOpen = tc.failOpen })

			var calls atomic.Int32
			resp, err := svc.Execute(context.Background(), newRequest("POST", "/orders", "store-down", ""),
				countingHandler(&calls, http.StatusCreated, "{}"))

			assert.Equal(t, tc.wantCalls, calls.Load())
			if !tc.failOpen {
				appErr := requireAppError(t, err, http.StatusServiceUnavailable, apperror.ReasonStoreUnavailable)
				assert.ErrorIs(t, appErr, repository.ErrStoreUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, http.StatusCreated, resp.StatusCode)
			assert.Empty(t, resp.Header.Get(entity.HeaderIdempotencyStatus))
		})
	}
}

func TestExecute_PersistOutcomes(t *testing.T) {
	testCases := []struct {
		name        string
		persistErr  error
		wantRelease bool
	}{
		{name: "lock_lost_skips_release", persistErr: repository.ErrLockLost},
		{name: "store_error_releases", persistErr: repository.ErrStoreUnavailable, wantRelease: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mocks.NewMockKeyStore(ctrl)
			svc := newTestService(t, store, nil)

			store.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(nil, false, nil)
			store.EXPECT().TryAcquireLock(gomock.Any(), gomock.Any(), 30*time.Second).
				Return(repository.LockResult{Acquired: true, Token: "tok-1"}, nil)
			store.EXPECT().Persist(gomock.Any(), gomock.Any(), repository.LockToken("tok-1"), gomock.Any(), 24*time.Hour).
				Return(tc.persistErr)
			if tc.wantRelease {
				store.EXPECT().ReleaseLock(gomock.Any(), gomock.Any(), repository.LockToken("tok-1")).Return(nil)
			}

			var calls atomic.Int32
			resp, err := svc.Execute(context.Background(), newRequest("POST", "/orders", "persist", ""),
				countingHandler(&calls, http.StatusCreated, "{}"))

			require.NoError(t, err)
			assert.Equal(t, http.StatusCreated, resp.StatusCode)
			assert.Equal(t, "created", resp.Header.Get(entity.HeaderIdempotencyStatus))
			assert.Empty(t, resp.Header.Get(entity.HeaderIdempotencyExpires))
		})
	}
}

func TestExecute_DeniedByCompletedResponseReplays(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockKeyStore(ctrl)
	svc := newTestService(t, store, nil)

	now := time.Now()
	cached, err := entity.NewCachedResponse(http.StatusCreated, http.Header{"Content-Type": {"application/json"}},
		[]byte(`{"id":7}`), "", now, time.Hour)
	require.NoError(t, err)

	gomock.InOrder(
		store.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(nil, false, nil),
		store.EXPECT().TryAcquireLock(gomock.Any(), gomock.Any(), gomock.Any()).Return(repository.LockResult{}, nil),
		store.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(cached, true, nil),
	)

	var calls atomic.Int32
	resp, err := svc.Execute(context.Background(), newRequest("POST", "/orders", "race", ""),
		countingHandler(&calls, http.StatusCreated, "{}"))
	require.NoError(t, err)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, []byte(`{"id":7}`), resp.Body)
	assert.Equal(t, "true", resp.Header.Get(entity.HeaderReplayed))
}

func TestExecute_PersistSurvivesClientCancellation(t *testing.T) {
	svc := newTestService(t, memory.NewKeyStore(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := svc.Execute(ctx, newRequest("POST", "/orders", "left-early", ""), func(ctx context.Context) (*Response, error) {
		cancel()
		return &Response{StatusCode: http.StatusCreated, Body: []byte("{}")}, nil
	})
	require.NoError(t, err)

	var calls atomic.Int32
	resp, err := svc.Execute(context.Background(), newRequest("POST", "/orders", "left-early", ""),
		countingHandler(&calls, http.StatusCreated, "{}"))
	require.NoError(t, err)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, "cached", resp.Header.Get(entity.HeaderIdempotencyStatus))
}
