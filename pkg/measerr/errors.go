// Package measerr defines the error taxonomy shared by the measurement
// pipeline: grid planning, persistence, acquisition and aggregation.
package measerr

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Use errors.Is to classify a returned error.
var (
	// ErrConfiguration reports invalid grid or sweep parameters. Not retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation reports a malformed trace at save time.
	ErrValidation = errors.New("validation error")
	// ErrDriverTimeout reports that sweep completion was not observed in time.
	// The caller may retry the whole sweep.
	ErrDriverTimeout = errors.New("driver timeout")
	// ErrDriverCommunication reports a transport-level failure. Fatal.
	ErrDriverCommunication = errors.New("driver communication error")
	// ErrMissingKey reports a fit quantity absent from a retained fit record.
	ErrMissingKey = errors.New("missing key")
)

// Configuration returns an error matching ErrConfiguration.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Validation returns an error matching ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Communication wraps a transport failure of the named driver operation so
// that it matches both ErrDriverCommunication and the underlying cause.
func Communication(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDriverCommunication) {
		return err
	}
	return &CommunicationError{Op: op, Cause: err}
}

// CommunicationError is a driver I/O failure during Op.
type CommunicationError struct {
	Op    string
	Cause error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("driver communication error during %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying transport error.
func (e *CommunicationError) Unwrap() error { return e.Cause }

// Is matches ErrDriverCommunication.
func (e *CommunicationError) Is(target error) bool { return target == ErrDriverCommunication }

// TimeoutError describes a sweep repetition whose completion flag never
// appeared within the computed budget.
type TimeoutError struct {
	Repetition int // 1-based repetition that failed
	Of         int // total repetitions requested
	Elapsed    time.Duration
	Expected   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("driver timeout: repetition %d/%d not complete after %s (budget %s)",
		e.Repetition, e.Of, e.Elapsed.Round(time.Millisecond), e.Expected.Round(time.Millisecond))
}

// Is matches ErrDriverTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrDriverTimeout }

// MissingKeyError reports that Key was absent from the fit record stored at
// corrected power Power.
type MissingKeyError struct {
	Key   string
	Power int
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing key %q in fit record at %d dBm", e.Key, e.Power)
}

// Is matches ErrMissingKey.
func (e *MissingKeyError) Is(target error) bool { return target == ErrMissingKey }
