// Package testutil provides shared test helpers.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Common test timeout constants.
const (
	// DefaultTestTimeout is the standard timeout for most async test operations.
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is for operations expected to complete quickly.
	ShortTestTimeout = 1 * time.Second
)

// WaitFor receives one value from ch or fails the test after timeout.
func WaitFor[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
	var zero T
	return zero
}

// RequireNoReceive fails the test if ch yields a value within wait.
func RequireNoReceive[T any](t *testing.T, ch <-chan T, wait time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
		require.Fail(t, msg)
	case <-time.After(wait):
	}
}
