package enum

// IdempotencyStatus is the value of the Idempotency-Status response header.
type IdempotencyStatus string

const (
	// IdempotencyStatusCreated marks a response produced by a fresh execution
	IdempotencyStatusCreated IdempotencyStatus = "created"
	// IdempotencyStatusCached marks a replayed response
	IdempotencyStatusCached IdempotencyStatus = "cached"
)

func (s IdempotencyStatus) String() string {
	return string(s)
}
