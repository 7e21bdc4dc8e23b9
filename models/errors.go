package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed enqueue payloads
	ErrValidation = errors.New("validation failed")
	// ErrStoreUnavailable marks backing store connectivity loss
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrAuth marks a missing, invalid or expired bearer credential
	ErrAuth = errors.New("unauthorized")
	// ErrForbidden marks a valid credential without the rights for the call
	ErrForbidden = errors.New("forbidden")
	// ErrLostRace means a pairing candidate was already consumed or expired
	ErrLostRace = errors.New("candidate already consumed")
	// ErrNotQueued means the user has no outstanding request
	ErrNotQueued = errors.New("user not queued")
	// ErrContention means a transaction kept losing its optimistic lock and gave up
	ErrContention = errors.New("transaction contention")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Wrap adds context following "component.method: action failed: %w".
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// StoreError wraps a backing store failure so errors.Is(err, ErrStoreUnavailable) holds.
func StoreError(err error, method, action string) error {
	if err == nil {
		return nil
	}
	return Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err), "RedisService", method, action)
}
