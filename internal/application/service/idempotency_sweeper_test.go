package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sangkips/idempotency-gateway/internal/domain/repository/mocks"
	"github.com/sangkips/idempotency-gateway/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestNewSweeper_SkipsStoresWithoutSweep(t *testing.T) {
	ctrl := gomock.NewController(t)
	assert.Nil(t, NewSweeper(mocks.NewMockKeyStore(ctrl), time.Minute, discard))
	assert.Nil(t, NewSweeper(memory.NewKeyStore(), 0, discard))
	assert.NotNil(t, NewSweeper(memory.NewKeyStore(), time.Minute, discard))
}

func TestSweeper_SweepOnce(t *testing.T) {
	clock := newTestClock()
	store := memory.NewKeyStore(memory.WithClock(clock.Now))
	svc := newTestService(t, store, func(o *IdempotencyOptions) { o.TTL = time.Minute }, WithClock(clock.Now))

	for _, key := range []string{"a", "b"} {
		_, err := svc.Execute(context.Background(), newRequest("POST", "/orders", key, ""), func(ctx context.Context) (*Response, error) {
			return &Response{StatusCode: http.StatusCreated}, nil
		})
		require.NoError(t, err)
	}

	sweeper := NewSweeper(store, time.Minute, discard)
	assert.Equal(t, int64(0), sweeper.SweepOnce(context.Background()))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, int64(2), sweeper.SweepOnce(context.Background()))
}

func TestSweeper_RunUntilCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockExpiredSweeper(ctrl)
	store.EXPECT().DeleteExpired(gomock.Any()).Return(int64(0), errors.New("db down")).MinTimes(1)

	sweeper := &Sweeper{store: store, interval: 5 * time.Millisecond, logger: discard}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
