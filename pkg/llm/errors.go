package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// ErrTimeout marks an upstream call that exceeded its deadline.
var ErrTimeout = errors.New("upstream call timed out")

// ErrUnreachable marks a local model service that could not be reached,
// distinct from authentication or validation failures.
var ErrUnreachable = errors.New("service unreachable")

// UnknownProviderError is returned when a configured or derived provider
// matches no registered backend.
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider: %s", e.Provider)
}

// ConfigError is returned when a required configuration field is missing.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s is required", e.Field)
}

// UpstreamError is returned when a backend responds with a non-success status
// or a malformed payload. Message carries the upstream-provided error text
// when available.
type UpstreamError struct {
	Provider   ProviderType
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (%d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// TransportError normalizes a raw transport failure into the error taxonomy:
// deadline overruns become ErrTimeout, refused connections ErrUnreachable,
// everything else an UpstreamError.
func TransportError(provider ProviderType, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return fmt.Errorf("%s: %w", provider, ErrTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w", provider, ErrTimeout)
	}
	if errors.Is(err, syscall.ECONNREFUSED) || strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf("%s: %w", provider, ErrUnreachable)
	}
	return &UpstreamError{Provider: provider, Message: err.Error()}
}
