package notify

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	if err := ClassifyStatus(http.StatusOK, ""); err != nil {
		t.Fatalf("2xx should not error: %v", err)
	}
	if err := ClassifyStatus(http.StatusBadGateway, "oops"); !IsRetryable(err) {
		t.Fatalf("5xx should retry: %v", err)
	}
	if err := ClassifyStatus(http.StatusTooManyRequests, ""); !IsRetryable(err) {
		t.Fatalf("429 should retry: %v", err)
	}
	if err := ClassifyStatus(http.StatusForbidden, ""); IsRetryable(err) {
		t.Fatalf("403 must be terminal: %v", err)
	}
}

func TestIsRetryableUnwrapsChains(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("channel slack: %w", TerminalError("bad token"))
	if IsRetryable(wrapped) {
		t.Fatal("terminal classification should survive wrapping")
	}

	plain := errors.New("connection reset by peer")
	if !IsRetryable(plain) {
		t.Fatal("unclassified errors default to retryable")
	}

	if IsRetryable(nil) {
		t.Fatal("nil error is not retryable")
	}
}
