// internal/session/errors.go
package session

// Error is a session failure kind. Each kind carries a stable numeric code
// that the status exporter publishes as "last error code".
type Error struct {
	code uint16
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Code returns the exported error code.
func (e *Error) Code() uint16 { return e.code }

// Error kinds. Wrapped errors keep the transport or codec cause in the
// chain; test with errors.Is.
var (
	ErrBusy                     = &Error{code: 2, msg: "device busy"}
	ErrNotConnected             = &Error{code: 3, msg: "not connected"}
	ErrTransportFailure         = &Error{code: 4, msg: "transport failure"}
	ErrEncodeInvariantViolation = &Error{code: 5, msg: "encode invariant violation"}
	ErrIncompleteHistogram      = &Error{code: 6, msg: "incomplete histogram"}
	ErrClosed                   = &Error{code: 7, msg: "session closed"}
)
