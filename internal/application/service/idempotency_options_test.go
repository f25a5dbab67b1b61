package service

import (
	"testing"
	"time"

	"github.com/sangkips/idempotency-gateway/internal/domain/enum"
	"github.com/stretchr/testify/assert"
)

func TestIdempotencyOptions_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(o *IdempotencyOptions)
		wantErr bool
	}{
		{name: "defaults", mutate: func(o *IdempotencyOptions) {}},
		{name: "wait_mode", mutate: func(o *IdempotencyOptions) { o.ConflictHandling = enum.ConflictModeWait }},
		{name: "empty_header", mutate: func(o *IdempotencyOptions) { o.HeaderName = "" }, wantErr: true},
		{name: "zero_ttl", mutate: func(o *IdempotencyOptions) { o.TTL = 0 }, wantErr: true},
		{name: "negative_lock_timeout", mutate: func(o *IdempotencyOptions) { o.LockTimeout = -time.Second }, wantErr: true},
		{name: "poll_longer_than_lock", mutate: func(o *IdempotencyOptions) { o.PollInterval = time.Minute }, wantErr: true},
		{name: "unknown_conflict_mode", mutate: func(o *IdempotencyOptions) { o.ConflictHandling = "queue" }, wantErr: true},
		{name: "zero_key_length", mutate: func(o *IdempotencyOptions) { o.MaxKeyLength = 0 }, wantErr: true},
		{name: "zero_body_size", mutate: func(o *IdempotencyOptions) { o.MaxBodySize = 0 }, wantErr: true},
		{name: "no_methods", mutate: func(o *IdempotencyOptions) { o.Methods = nil }, wantErr: true},
		{name: "safe_method", mutate: func(o *IdempotencyOptions) { o.Methods = []string{"GET"} }, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			o := DefaultIdempotencyOptions()
			tc.mutate(&o)
			err := o.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIdempotencyOptions_Defaults(t *testing.T) {
	o := DefaultIdempotencyOptions()
	assert.Equal(t, "Idempotency-Key", o.HeaderName)
	assert.Equal(t, enum.ConflictModeReject, o.ConflictHandling)
	assert.False(t, o.FailOpen)
	assert.True(t, o.RequireKey)
	assert.True(t, o.protects("patch"))
	assert.False(t, o.protects("OPTIONS"))
	assert.True(t, o.shouldCache(204))
	assert.False(t, o.shouldCache(409))
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte(`{"amount":10}`))
	assert.Len(t, a, 64)
	assert.Equal(t, a, Fingerprint([]byte(`{"amount":10}`)))
	assert.NotEqual(t, a, Fingerprint([]byte(`{"amount":11}`)))
	assert.NotEqual(t, a, Fingerprint(nil))
}
