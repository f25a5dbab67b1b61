package entity

import (
	"strings"
)

// DefaultMaxKeyLength is the longest key accepted when no limit is configured
const DefaultMaxKeyLength = 256

// IdempotencyKey is a validated client-supplied idempotency key.
// The zero value is not a valid key; build one with TryCreateIdempotencyKey.
type IdempotencyKey struct {
	value string
}

// TryCreateIdempotencyKey validates raw and returns the key. ok is false when raw
// is blank, longer than maxLength, or contains characters outside [A-Za-z0-9_-].
// A non-positive maxLength falls back to DefaultMaxKeyLength.
func TryCreateIdempotencyKey(raw string, maxLength int) (IdempotencyKey, bool) {
	if maxLength <= 0 {
		maxLength = DefaultMaxKeyLength
	}
	if strings.TrimSpace(raw) == "" || len(raw) > maxLength {
		return IdempotencyKey{}, false
	}
	for i := 0; i < len(raw); i++ {
		if !isKeyChar(raw[i]) {
			return IdempotencyKey{}, false
		}
	}
	return IdempotencyKey{value: raw}, true
}

func isKeyChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	}
	return false
}

// String returns the key exactly as the client sent it
func (k IdempotencyKey) String() string {
	return k.value
}

// IsZero reports whether k was never validated
func (k IdempotencyKey) IsZero() bool {
	return k.value == ""
}

// CompositeIdentity is the storage lookup key: METHOD:ROUTE_TEMPLATE:KEY.
// Route templates (e.g. /orders/:id) are used instead of resolved paths so that
// path parameters do not fragment the key space.
type CompositeIdentity struct {
	Method string
	Route  string
	Key    IdempotencyKey
}

// NewCompositeIdentity normalizes method to upper case
func NewCompositeIdentity(method, route string, key IdempotencyKey) CompositeIdentity {
	return CompositeIdentity{
		Method: strings.ToUpper(strings.TrimSpace(method)),
		Route:  route,
		Key:    key,
	}
}

// String renders the colon-delimited form used by key-value backends
func (c CompositeIdentity) String() string {
	return c.Method + ":" + c.Route + ":" + c.Key.String()
}
