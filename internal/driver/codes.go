package driver

import (
	"errors"

	"firestige.xyz/s2onet/internal/core"
)

// Win32 error codes reported by the capture driver.
const (
	codeAccessDenied       uint32 = 5
	codeInvalidHandle      uint32 = 6
	codeInvalidParameter   uint32 = 87
	codeInsufficientBuffer uint32 = 122
	codeModNotFound        uint32 = 126
	codeNoData             uint32 = 232
	codeOperationAborted   uint32 = 995
)

func openError(code uint32) error {
	var kind error
	switch code {
	case codeAccessDenied:
		kind = core.ErrInsufficientPrivilege
	case codeInvalidParameter:
		kind = core.ErrBadFilter
	default:
		kind = core.ErrDriverRejected
	}
	return &core.DriverError{Op: "open", Code: code, Err: kind}
}

func recvError(code uint32) error {
	var kind error
	switch code {
	case codeNoData, codeInvalidHandle, codeOperationAborted:
		kind = core.ErrClosed
	case codeInsufficientBuffer:
		kind = core.ErrTruncated
	default:
		kind = core.ErrDriverFault
	}
	return &core.DriverError{Op: "recv", Code: code, Err: kind}
}

func closeError(code uint32) error {
	return &core.DriverError{Op: "close", Code: code, Err: core.ErrDriverFault}
}

// errorKind is the metrics label for a driver error.
func errorKind(err error) string {
	switch {
	case errors.Is(err, core.ErrClosed):
		return "closed"
	case errors.Is(err, core.ErrTruncated):
		return "truncated"
	case errors.Is(err, core.ErrInsufficientPrivilege):
		return "insufficient_privilege"
	case errors.Is(err, core.ErrBadFilter):
		return "bad_filter"
	case errors.Is(err, core.ErrDriverRejected):
		return "driver_rejected"
	case errors.Is(err, core.ErrAlreadyClosed):
		return "already_closed"
	default:
		return "driver_fault"
	}
}
