package fins

import (
	"fmt"
	"time"
)

// AddressError reports a memory reference that could not be parsed.
// It is returned before any network I/O takes place.
type AddressError struct {
	Text   string
	Reason string
}

func (e AddressError) Error() string {
	return fmt.Sprintf("invalid memory address %q: %s", e.Text, e.Reason)
}

// ProtocolError reports a malformed or truncated FINS frame.
type ProtocolError struct {
	Reason string
}

func (e ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// ConnectionError reports a failure to establish or use the transport:
// connection refused, handshake rejection, or a broken socket.
type ConnectionError struct {
	Op  string
	Err error
}

func (e ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

func (e ConnectionError) Unwrap() error { return e.Err }

// TimeoutError reports that no response arrived within the configured timeout.
// The session remains open; retrying or disconnecting is the caller's call.
type TimeoutError struct {
	Timeout time.Duration
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("response timeout after %s", e.Timeout)
}

// ResponseError is a failure reported by the controller itself: a nonzero
// MRES/SRES pair in the response frame. Both codes are preserved verbatim so
// operators can cross-reference the controller documentation.
type ResponseError struct {
	Operation string
	Address   string
	MRES      byte
	SRES      byte
}

func (e ResponseError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("%s %s failed: MRES=%02X SRES=%02X", e.Operation, e.Address, e.MRES, e.SRES)
	}
	return fmt.Sprintf("%s failed: MRES=%02X SRES=%02X", e.Operation, e.MRES, e.SRES)
}

// EndCode returns the combined 16-bit end code (MRES high byte, SRES low byte).
func (e ResponseError) EndCode() uint16 {
	return uint16(e.MRES)<<8 | uint16(e.SRES)
}

// ReadError wraps any failure of a read operation with the address involved.
// When the controller rejected the request, errors.As can recover the
// underlying ResponseError and its raw MRES/SRES.
type ReadError struct {
	Address string
	Err     error
}

func (e ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Address, e.Err)
}

func (e ReadError) Unwrap() error { return e.Err }

// WriteError wraps any failure of a write operation with the address involved.
type WriteError struct {
	Address string
	Err     error
}

func (e WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Address, e.Err)
}

func (e WriteError) Unwrap() error { return e.Err }

// ClientClosedError is returned by operations on a closed client.
type ClientClosedError struct{}

func (e ClientClosedError) Error() string {
	return "client is closed"
}
