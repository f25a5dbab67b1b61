package enum

// ConflictMode decides what happens when a duplicate request arrives while the
// original is still being processed.
type ConflictMode string

const (
	// ConflictModeReject answers 409 Conflict immediately with a Retry-After hint.
	ConflictModeReject ConflictMode = "reject"
	// ConflictModeWait polls the store until the original completes or the lock
	// timeout elapses.
	ConflictModeWait ConflictMode = "wait"
)

func (m ConflictMode) String() string {
	return string(m)
}

// IsValid reports whether m is a known mode
func (m ConflictMode) IsValid() bool {
	return m == ConflictModeReject || m == ConflictModeWait
}
