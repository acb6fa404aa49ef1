package protocol

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSessionFailed is returned by every call on a session that already failed.
	ErrSessionFailed = errors.New("protocol session failed earlier")

	// ErrNotSynchronized is returned when a command is issued before Synchronize.
	ErrNotSynchronized = errors.New("protocol session not synchronized")
)

// ProtocolError represents a non-zero result code returned by the bootloader.
type ProtocolError struct {
	// Operation is the command that failed
	Operation string

	// StatusCode is the result code from the bootloader
	StatusCode int
}

func (e *ProtocolError) Error() string {
	statusName := getStatusName(e.StatusCode)
	return fmt.Sprintf("%s failed: %s (%d)", e.Operation, statusName, e.StatusCode)
}

// IsProtocolError returns true if the error is a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// StatusCode returns the bootloader result code carried by err, if any.
func StatusCode(err error) (int, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.StatusCode, true
	}
	return 0, false
}

// TimeoutError indicates that the expected reply did not arrive in time.
type TimeoutError struct {
	Operation string
	Expected  string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timeout after %v waiting for %s", e.Operation, e.Timeout, e.Expected)
}

// IsTimeout returns true if the error is a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// MismatchError indicates a reply that arrived but did not match the expected token.
type MismatchError struct {
	Operation string
	Expected  string
	Got       string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: expected %q, got %q", e.Operation, e.Expected, e.Got)
}

// IsMismatch returns true if the error is a MismatchError.
func IsMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}

// getStatusName returns a human-readable name for a result code.
func getStatusName(code int) string {
	switch code {
	case StatusSuccess:
		return "success"
	case ErrInvalidCommand:
		return "invalid command"
	case ErrSrcAddr:
		return "source address error"
	case ErrDstAddr:
		return "destination address error"
	case ErrSrcAddrNotMapped:
		return "source address not mapped"
	case ErrDstAddrNotMapped:
		return "destination address not mapped"
	case ErrCount:
		return "count error"
	case ErrInvalidSector:
		return "invalid sector"
	case ErrSectorNotBlank:
		return "sector not blank"
	case ErrSectorNotPrepared:
		return "sector not prepared for write"
	case ErrCompare:
		return "compare error"
	case ErrBusy:
		return "flash interface busy"
	case ErrParam:
		return "parameter error"
	case ErrAddr:
		return "address error"
	case ErrAddrNotMapped:
		return "address not mapped"
	case ErrCmdLocked:
		return "command locked"
	case ErrInvalidCode:
		return "invalid unlock code"
	case ErrInvalidBaudRate:
		return "invalid baud rate"
	case ErrInvalidStopBit:
		return "invalid stop bit setting"
	case ErrCodeReadProtection:
		return "code read protection enabled"
	case ErrInvalidFlashUnit:
		return "invalid flash unit"
	case ErrUserCodeChecksum:
		return "user code checksum invalid"
	case ErrSettingActiveBank:
		return "error setting active bank"
	default:
		return fmt.Sprintf("unknown result code %d", code)
	}
}
