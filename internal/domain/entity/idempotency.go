package entity

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord is the relational row for one composite identity.
// An unprocessed row is a lock held by LockToken until ExpiresAt; a processed
// row carries the cached response until ExpiresAt.
type IdempotencyRecord struct {
	ID                    uuid.UUID   `gorm:"type:uuid;primaryKey"`
	Key                   string      `gorm:"size:256;not null;uniqueIndex:idx_idempotency_identity,priority:3"`
	Route                 string      `gorm:"size:512;not null;uniqueIndex:idx_idempotency_identity,priority:1"`
	Method                string      `gorm:"size:16;not null;uniqueIndex:idx_idempotency_identity,priority:2"`
	StatusCode            int         `gorm:"not null;default:0;check:chk_idempotency_status_code,processed = false OR (status_code >= 100 AND status_code <= 599)"`
	ResponseHeaders       http.Header `gorm:"serializer:json;type:text"`
	ResponseBody          []byte
	ContentType           string    `gorm:"size:255"`
	RequestFingerprint    string    `gorm:"size:128"`
	LockToken             string    `gorm:"size:64;not null"`
	Processed             bool      `gorm:"not null;default:false"`
	CreatedAt             time.Time `gorm:"not null"`
	ExpiresAt             time.Time `gorm:"not null;index:idx_idempotency_expires_at;check:chk_idempotency_expiry,expires_at > created_at"`
	ProcessingCompletedAt *time.Time
}

// TableName returns the table name for IdempotencyRecord
func (IdempotencyRecord) TableName() string {
	return "idempotency_keys"
}

// IsExpired checks if the row's lock or cached response has expired at now
func (r *IdempotencyRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ToCachedResponse converts a processed row into a snapshot
func (r *IdempotencyRecord) ToCachedResponse() *CachedResponse {
	return &CachedResponse{
		StatusCode:  r.StatusCode,
		Header:      r.ResponseHeaders,
		Body:        r.ResponseBody,
		ContentType: r.ContentType,
		Fingerprint: r.RequestFingerprint,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}
