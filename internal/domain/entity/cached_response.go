package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrInvalidStatusCode = errors.New("status code must be between 100 and 599")
	ErrInvalidExpiry     = errors.New("expiry must be after creation time")
)

// hopByHopHeaders are connection-scoped and must never be replayed.
// Content-Length is recomputed by the transport on replay.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Proxy-Connection":    {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Content-Length":      {},
	"Date":                {},
}

// CachedResponse is an immutable snapshot of a completed response
type CachedResponse struct {
	StatusCode  int         `json:"status_code"`
	Header      http.Header `json:"header,omitempty"`
	Body        []byte      `json:"body,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	Fingerprint string      `json:"fingerprint,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// NewCachedResponse snapshots a response. The header is filtered and copied,
// the body is copied, and ExpiresAt is createdAt+ttl.
func NewCachedResponse(statusCode int, header http.Header, body []byte, fingerprint string, createdAt time.Time, ttl time.Duration) (*CachedResponse, error) {
	if statusCode < 100 || statusCode > 599 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidStatusCode, statusCode)
	}
	if ttl <= 0 {
		return nil, ErrInvalidExpiry
	}

	filtered := FilterHeaders(header)
	resp := &CachedResponse{
		StatusCode:  statusCode,
		Header:      filtered,
		Body:        append([]byte(nil), body...),
		ContentType: filtered.Get("Content-Type"),
		Fingerprint: fingerprint,
		CreatedAt:   createdAt,
		ExpiresAt:   createdAt.Add(ttl),
	}
	return resp, nil
}

// IsExpired reports whether the snapshot is no longer eligible for replay at now
func (r *CachedResponse) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Validate checks the invariants of a decoded snapshot
func (r *CachedResponse) Validate() error {
	if r.StatusCode < 100 || r.StatusCode > 599 {
		return fmt.Errorf("%w: got %d", ErrInvalidStatusCode, r.StatusCode)
	}
	if !r.ExpiresAt.After(r.CreatedAt) {
		return ErrInvalidExpiry
	}
	return nil
}

// Encode serializes the snapshot for key-value backends. Body bytes are base64
// encoded and timestamps keep nanosecond precision.
func (r *CachedResponse) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeCachedResponse is the inverse of Encode
func DecodeCachedResponse(data []byte) (*CachedResponse, error) {
	var r CachedResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode cached response: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("decode cached response: %w", err)
	}
	return &r, nil
}

// FilterHeaders returns a copy of h without hop-by-hop headers, headers named
// in Connection, and the idempotency annotations added on the way out.
func FilterHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	connScoped := map[string]struct{}{}
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				connScoped[http.CanonicalHeaderKey(name)] = struct{}{}
			}
		}
	}

	for name, values := range h {
		canonical := http.CanonicalHeaderKey(name)
		if _, skip := hopByHopHeaders[canonical]; skip {
			continue
		}
		if _, skip := connScoped[canonical]; skip {
			continue
		}
		if IsAnnotationHeader(canonical) {
			continue
		}
		out[canonical] = append([]string(nil), values...)
	}
	return out
}

// Annotation headers set on every protected response
const (
	HeaderIdempotencyStatus  = "Idempotency-Status"
	HeaderIdempotencyExpires = "Idempotency-Expires"
	HeaderReplayed           = "X-Idempotency-Replayed"
)

// IsAnnotationHeader reports whether name is one of the annotation headers
func IsAnnotationHeader(name string) bool {
	switch http.CanonicalHeaderKey(name) {
	case HeaderIdempotencyStatus, HeaderIdempotencyExpires, HeaderReplayed:
		return true
	}
	return false
}
