package bootloader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/moffa90/go-lpcisp/geometry"
)

// PolicyError indicates that the code read protection policy forbids staging a chunk.
type PolicyError struct {
	Desired  CRPLevel
	Allowed  CRPLevel
	Existing uint32
	Reason   string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("CRP policy violation: %s (desired %v, allowed %v, image word 0x%08X)",
		e.Reason, e.Desired, e.Allowed, e.Existing)
}

// IsPolicyError returns true if the error is a PolicyError.
func IsPolicyError(err error) bool {
	var pe *PolicyError
	return errors.As(err, &pe)
}

// ChecksumError indicates that a staged chunk cannot hold the vector table checksum.
type ChecksumError struct {
	ChunkSize int
	Vectors   int
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("cannot patch vector checksum: chunk of %d bytes is smaller than %d vectors",
		e.ChunkSize, e.Vectors)
}

// IsChecksumError returns true if the error is a ChecksumError.
func IsChecksumError(err error) bool {
	var ce *ChecksumError
	return errors.As(err, &ce)
}

// VerificationError indicates that flash content differs from what was staged.
type VerificationError struct {
	Address uint32
	Offset  uint32
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("firmware verification failed: flash at 0x%08X differs at offset %d",
		e.Address, e.Offset)
}

// IsVerificationError returns true if the error is a VerificationError.
func IsVerificationError(err error) bool {
	var ve *VerificationError
	return errors.As(err, &ve)
}

// OperationError carries the step that failed and where it was working.
type OperationError struct {
	// Op is the failing step, such as "erase" or "copy"
	Op string

	// Chunk is the index of the image chunk, or -1
	Chunk int

	// Address is the flash address being worked on
	Address uint32

	// Sector is valid when HasSector is set
	Sector    geometry.Sector
	HasSector bool

	Err error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Chunk >= 0 {
		fmt.Fprintf(&b, " chunk %d", e.Chunk)
	}
	fmt.Fprintf(&b, " at 0x%08X", e.Address)
	if e.HasSector {
		fmt.Fprintf(&b, " (sector %v)", e.Sector)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *OperationError) Unwrap() error {
	return e.Err
}
