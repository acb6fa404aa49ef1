package protocol

import "fmt"

// BootCodeVersion is the bootloader version reported by the K command.
type BootCodeVersion struct {
	Major uint32
	Minor uint32
}

func (v BootCodeVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// SerialNumber is the 128-bit device serial number reported by the N command,
// in the order the words are sent.
type SerialNumber [4]uint32

func (s SerialNumber) String() string {
	return fmt.Sprintf("%08X-%08X-%08X-%08X", s[0], s[1], s[2], s[3])
}

// BlankCheckResult is the outcome of a blank check.
type BlankCheckResult struct {
	// Blank is true when every sector in the range is erased
	Blank bool

	// Offset is the offset of the first non-blank word when Blank is false
	Offset uint32

	// Content is the value of that word
	Content uint32
}

// CompareResult is the outcome of a memory compare.
type CompareResult struct {
	// Equal is true when both ranges hold the same bytes
	Equal bool

	// Offset is the offset of the first mismatch when Equal is false
	Offset uint32
}
