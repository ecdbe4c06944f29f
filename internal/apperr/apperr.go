// Package apperr defines the error kinds shared by the server, the content
// store adapters and the upload client.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means deployment settings are missing. Fatal for the
	// operation that needed them.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation means a required field is missing or malformed.
	ErrValidation = errors.New("validation error")
	// ErrPayloadTooLarge means a file exceeds the upload ceiling.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrTransfer means the direct upload to object storage failed.
	ErrTransfer = errors.New("transfer error")
	// ErrStore means a content store call failed.
	ErrStore = errors.New("store error")
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized means the caller has no valid admin session.
	ErrUnauthorized = errors.New("unauthorized")
)

// Configuration wraps ErrConfiguration with a description.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Validation wraps ErrValidation with a description.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// TooLarge reports a file of size bytes against the ceiling limit.
func TooLarge(name string, size, limit int64) error {
	return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrPayloadTooLarge, name, size, limit)
}

// StoreError carries the status and message returned by the content store.
type StoreError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("store %s: status %d: %s", e.Op, e.Status, msg)
	}
	return fmt.Sprintf("store %s: %s", e.Op, msg)
}

func (e *StoreError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrStore, e.Err}
	}
	return []error{ErrStore}
}

// TransferError is returned once every upload attempt has failed.
type TransferError struct {
	StatusCode int
	Attempts   int
	Err        error
}

func (e *TransferError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload failed after %d attempt(s): storage returned status %d", e.Attempts, e.StatusCode)
	}
	return fmt.Sprintf("upload failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTransfer, e.Err}
	}
	return []error{ErrTransfer}
}
