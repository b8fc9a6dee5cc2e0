// Package errors provides error wrapping utilities and the sentinel errors
// shared by the item store, the job coordinator and the exporter.
package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	// ErrValidation marks form input rejected before any request is issued.
	ErrValidation = stderrors.New("validation failed")
	// ErrNoData is returned when an export is requested on an empty store.
	ErrNoData = stderrors.New("no data to export")
	// ErrProcessing is returned when a job is requested for an item that already has one in flight.
	ErrProcessing = stderrors.New("item is already processing")
	// ErrIndexRange is returned for an index outside the current item sequence.
	ErrIndexRange = stderrors.New("item index out of range")
	// ErrStaleItem is returned when an outcome targets a sequence that has since been replaced.
	ErrStaleItem = stderrors.New("item belongs to a replaced traversal")
)

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf is Wrap with a formatted context.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// New returns an error with the given text.
func New(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
