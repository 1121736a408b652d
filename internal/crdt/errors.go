package crdt

import "github.com/lirlia/crdt-replicator/internal/crdterrors"

// Error is re-exported so callers of this package can type-switch on
// crdt.Error without importing internal/crdterrors directly.
type Error = crdterrors.Error

// ErrorCode is re-exported alongside Error for the same reason.
type ErrorCode = crdterrors.Code

// AsError unwraps err into a *Error if it is (or wraps) one.
func AsError(err error) (*Error, bool) {
	return crdterrors.As(err)
}

// IsErrorCode reports whether err is a *Error carrying code.
func IsErrorCode(err error, code ErrorCode) bool {
	return crdterrors.Is(err, code)
}
