package notify

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrDuplicate reports a ledger insert for a (paper, channel) pair that
	// already has a record. Expected under concurrent sends; callers treat
	// it as already-handled, not as a failure.
	ErrDuplicate = errors.New("notification already recorded")

	// ErrLedgerUnavailable reports that durable storage cannot be reached.
	// Dedup correctness cannot be guaranteed without it, so the current
	// cycle aborts its remaining ledger writes.
	ErrLedgerUnavailable = errors.New("ledger storage unavailable")
)

// DeliveryError is a classified failure returned by channel senders.
// Retryable failures are transient (timeouts, 5xx, rate limits); terminal
// ones (bad credentials, malformed recipient, other 4xx) must not be retried.
type DeliveryError struct {
	Retryable bool
	Err       error
}

func (e *DeliveryError) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s delivery error: %v", kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// RetryableError wraps a transient failure.
func RetryableError(format string, args ...any) *DeliveryError {
	return &DeliveryError{Retryable: true, Err: fmt.Errorf(format, args...)}
}

// TerminalError wraps a failure that must never be retried.
func TerminalError(format string, args ...any) *DeliveryError {
	return &DeliveryError{Retryable: false, Err: fmt.Errorf(format, args...)}
}

// IsRetryable reports whether err may be retried. Unclassified errors count
// as retryable: transport-level failures (connection refused, reset, EOF)
// arrive unwrapped from net/http and are transient by nature.
func IsRetryable(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return err != nil
}

// ClassifyStatus maps an HTTP response status into the delivery taxonomy.
// Rate limiting and request timeouts retry; every other 4xx is terminal.
func ClassifyStatus(status int, body string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return RetryableError("status %d: %s", status, body)
	case status >= 500:
		return RetryableError("status %d: %s", status, body)
	default:
		return TerminalError("status %d: %s", status, body)
	}
}
