// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNoPriorQuote       = errors.New("no quote on or before date")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrNoOpenPosition     = errors.New("no open position")
	ErrAlreadyStarted     = errors.New("simulation already started")
	ErrNotStarted         = errors.New("simulation not started")
	ErrMarketClosed       = errors.New("market is closed")
	ErrNoSession          = errors.New("no session for instrument on date")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrEmptySeries        = errors.New("empty price series")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrDataNotFound       = errors.New("data not found")
	ErrDatabaseError      = errors.New("database error")
)

// PositionError represents a failed operation on a position.
type PositionError struct {
	Instrument string
	Action     string
	Err        error
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("position error [%s] %s: %v", e.Instrument, e.Action, e.Err)
}

func (e *PositionError) Unwrap() error {
	return e.Err
}

// NewPositionError creates a new PositionError.
func NewPositionError(instrument, action string, err error) *PositionError {
	return &PositionError{
		Instrument: instrument,
		Action:     action,
		Err:        err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError. The sentinel err, when
// non-nil, is reachable through errors.Is.
func NewValidationError(field string, value interface{}, message string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType   string
	Instrument string
	Message    string
	Err        error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Instrument, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Instrument, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, instrument, message string, err error) *DataError {
	return &DataError{
		DataType:   dataType,
		Instrument: instrument,
		Message:    message,
		Err:        err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
