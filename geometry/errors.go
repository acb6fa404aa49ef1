package geometry

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownDevice is returned when no device table entry matches an ID or name.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrNoTransferRAM is returned when the bootloader leaves no usable RAM for staging data.
	ErrNoTransferRAM = errors.New("no transfer RAM available")
)

// RangeError indicates an address range that the selected device cannot map to sectors.
type RangeError struct {
	Low    uint32
	High   uint32
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("address range 0x%08X-0x%08X: %s", e.Low, e.High, e.Reason)
}

// IsRangeError returns true if the error is a RangeError.
func IsRangeError(err error) bool {
	var re *RangeError
	return errors.As(err, &re)
}
