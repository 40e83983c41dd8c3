package domain

import (
	"errors"
	"fmt"
)

var (
	// Base errors
	ErrUnknown  = errors.New("uninitialized audio object")
	ErrGeneric  = errors.New("audio error")
	ErrInternal = errors.New("internal error")

	// Device errors
	ErrDeviceNotFound = errors.New("audio device not found")
	ErrDeviceClosed   = errors.New("audio device is closed")
	ErrNotConfigured  = errors.New("audio device is not configured")

	// Format errors
	ErrFormatNotSupported = errors.New("sample format not supported")
	ErrRateMismatch       = errors.New("sample rate does not match device")

	// Render goroutine errors
	ErrThreadError = errors.New("failed to start render thread")
)

// Status is the error taxonomy stored on devices. The zero value is
// StatusUnknown so an uninitialized or reset device never reads as healthy.
type Status int

const (
	StatusUnknown Status = iota
	StatusSuccess
	StatusGenericError
	StatusDeviceNotFound
	StatusFormatNotSupported
	StatusThreadError
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusSuccess:
		return "success"
	case StatusGenericError:
		return "generic error"
	case StatusDeviceNotFound:
		return "device not found"
	case StatusFormatNotSupported:
		return "format not supported"
	case StatusThreadError:
		return "thread error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Err returns the sentinel error for s, or nil for StatusSuccess.
func (s Status) Err() error {
	switch s {
	case StatusSuccess:
		return nil
	case StatusGenericError:
		return ErrGeneric
	case StatusDeviceNotFound:
		return ErrDeviceNotFound
	case StatusFormatNotSupported:
		return ErrFormatNotSupported
	case StatusThreadError:
		return ErrThreadError
	default:
		return ErrUnknown
	}
}

// StatusOf maps an error back onto the taxonomy.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrDeviceNotFound):
		return StatusDeviceNotFound
	case errors.Is(err, ErrFormatNotSupported), errors.Is(err, ErrRateMismatch):
		return StatusFormatNotSupported
	case errors.Is(err, ErrThreadError):
		return StatusThreadError
	case errors.Is(err, ErrUnknown):
		return StatusUnknown
	default:
		return StatusGenericError
	}
}

type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func NewDomainError(code string, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewDomainErrorWithDetails(code string, message string, details string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: details,
		Err:     err,
	}
}

// Error codes for consistent error handling
const (
	ErrCodeInternal    = "INTERNAL"
	ErrCodeAudioDevice = "AUDIO_DEVICE"
	ErrCodeFormat      = "FORMAT"
	ErrCodeThread      = "THREAD"
	ErrCodeStore       = "STORE"
)

func IsAudioError(err error) bool {
	return errors.Is(err, ErrDeviceNotFound) || errors.Is(err, ErrDeviceClosed) ||
		errors.Is(err, ErrFormatNotSupported) || errors.Is(err, ErrRateMismatch) ||
		errors.Is(err, ErrThreadError) || errors.Is(err, ErrNotConfigured)
}
