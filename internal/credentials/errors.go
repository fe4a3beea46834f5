package credentials

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means a required attribute is absent from the instance configuration.
	ErrNotConfigured = errors.New("not configured")
	// ErrSecretUnavailable means system.config could not be read or carries no secret.
	ErrSecretUnavailable = errors.New("system secret unavailable")
)

// MigrationError reports why a plaintext-to-encrypted migration did not complete.
type MigrationError struct {
	Reason string
	Err    error
}

func (e *MigrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential migration: %s: %v", e.Reason, e.Err)
	}
	return "credential migration: " + e.Reason
}

func (e *MigrationError) Unwrap() error { return e.Err }
