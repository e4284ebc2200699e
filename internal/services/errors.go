// Package services contains the application logic for the peer-finder
// queue: enrollment, match runs, unpairing, fallback sweeps and exports.
// HTTP handlers translate the errors defined here into transport responses.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// ValidationError reports a rejected request field. Field holds the
// wire-level name of the offending input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
