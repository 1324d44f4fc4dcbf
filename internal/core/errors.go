// Package core defines sentinel errors.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed carriers below unwrap to one of these so callers
// can always branch with errors.Is.
var (
	// Driver library loading
	ErrLoad           = errors.New("s2onet: driver load failed")
	ErrNotFound       = errors.New("s2onet: driver library not found")
	ErrMissingExport  = errors.New("s2onet: driver library missing export")
	ErrInvalidLibrary = errors.New("s2onet: invalid driver library")
	ErrAlreadyLoaded  = errors.New("s2onet: a different driver library is already loaded")
	ErrNotLoaded      = errors.New("s2onet: driver library not loaded")

	// Handle open
	ErrOpen                  = errors.New("s2onet: driver open failed")
	ErrDriverRejected        = errors.New("s2onet: driver rejected open")
	ErrInsufficientPrivilege = errors.New("s2onet: insufficient privilege")
	ErrBadFilter             = errors.New("s2onet: bad filter expression")

	// Receive
	ErrClosed      = errors.New("s2onet: handle closed")
	ErrTruncated   = errors.New("s2onet: frame truncated by receive buffer")
	ErrDriverFault = errors.New("s2onet: driver fault")

	// Close
	ErrAlreadyClosed = errors.New("s2onet: handle already closed")

	// Session lifecycle
	ErrAlreadyRunning = errors.New("s2onet: capture already running")
	ErrNotRunning     = errors.New("s2onet: capture not running")
	ErrStopTimeout    = errors.New("s2onet: capture worker did not stop in time")
	ErrWorkerPanic    = errors.New("s2onet: capture worker panicked")
	ErrSessionFailed  = errors.New("s2onet: capture session failed")

	// Configuration
	ErrConfigInvalid = errors.New("s2onet: invalid configuration")
)

// LoadError describes a failure to load the driver library.
type LoadError struct {
	Path   string
	Symbol string // Set for ErrMissingExport
	Err    error
}

func (e *LoadError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("load %s: %v: %s", e.Path, e.Err, e.Symbol)
	}
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// DriverError maps a driver return code to a typed kind. Code is the raw
// numeric value reported by the driver or the OS, kept for diagnostics.
type DriverError struct {
	Op   string // open | recv | close
	Code uint32
	Err  error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s: %v (code %d)", e.Op, e.Err, e.Code)
}

func (e *DriverError) Unwrap() error { return e.Err }

// DriverCode extracts the raw driver code from err, if any.
func DriverCode(err error) (uint32, bool) {
	var de *DriverError
	if errors.As(err, &de) {
		return de.Code, true
	}
	return 0, false
}
