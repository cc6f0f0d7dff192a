package index

import (
	"errors"
	"fmt"
)

// Error wraps an index mutation/read failure with retryability. Transient
// errors (timeouts, 5xx, breaker open) go to the backoff path; permanent
// ones (4xx the index will never accept) go straight to the dead letter.
type Error struct {
	Permanent bool
	Status    int // HTTP status, 0 for transport errors
	Err       error
}

func (e *Error) Error() string {
	class := "transient"
	if e.Permanent {
		class = "permanent"
	}
	if e.Status != 0 {
		return fmt.Sprintf("index: %s status=%d: %v", class, e.Status, e.Err)
	}
	return fmt.Sprintf("index: %s: %v", class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrConflict reports an index-side version conflict: the indexed document
// is already at or past the expected version. Callers treat it as benign
// (the write was superseded).
var ErrConflict = errors.New("index: version conflict")

// ErrBreakerOpen is returned without touching the network while the circuit
// breaker is open.
var ErrBreakerOpen = &Error{Permanent: false, Err: errors.New("circuit breaker open")}

// IsPermanent reports whether err is a non-retryable index failure.
func IsPermanent(err error) bool {
	var ie *Error
	return errors.As(err, &ie) && ie.Permanent
}
