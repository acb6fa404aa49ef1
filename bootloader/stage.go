package bootloader

import (
	"encoding/binary"
	"fmt"

	"github.com/moffa90/go-lpcisp/geometry"
)

// CRPLevel is a code read protection level.
type CRPLevel int

// Protection levels. Levels 3 and 4 can make the part permanently unprogrammable
// over ISP.
const (
	CRPNone CRPLevel = iota
	CRP1
	CRP2
	CRP3
	CRPNoISP
)

// crpWords holds the flash encoding of every level, indexed by level.
var crpWords = [...]uint32{
	CRPNone:  0xFFFFFFFF,
	CRP1:     0x12345678,
	CRP2:     0x87654321,
	CRP3:     0x43218765,
	CRPNoISP: 0x4E697370,
}

func (l CRPLevel) String() string {
	switch l {
	case CRPNone:
		return "none"
	case CRPNoISP:
		return "NO_ISP"
	default:
		return fmt.Sprintf("CRP%d", int(l))
	}
}

// Word returns the flash encoding of the level.
func (l CRPLevel) Word() uint32 {
	return crpWords[l]
}

// Valid reports whether l is a known level.
func (l CRPLevel) Valid() bool {
	return l >= CRPNone && l <= CRPNoISP
}

// DecodeCRP returns the level encoded by word. Unrecognized words return false.
func DecodeCRP(word uint32) (CRPLevel, bool) {
	for l, w := range crpWords {
		if w == word {
			return CRPLevel(l), true
		}
	}
	return 0, false
}

// CRPPolicy controls what ends up in the code read protection word.
type CRPPolicy struct {
	// Level is the level to write
	Level CRPLevel

	// MaxLevel is the highest level that may be written
	MaxLevel CRPLevel

	// Disabled leaves the staged word untouched
	Disabled bool
}

// ApplyCRP enforces policy on the protection word at offset within chunk and
// reports whether the word was rewritten.
//
// Levels 3 and 4 are written only when the desired level, the allowed maximum
// and the level already present in the image are all the same. A blank or known
// level is overwritten with the desired level. Any other value is left alone
// and rejected.
func ApplyCRP(chunk []byte, offset int, policy CRPPolicy) (bool, error) {
	if policy.Disabled {
		return false, nil
	}
	if offset < 0 || offset+4 > len(chunk) {
		return false, fmt.Errorf("CRP word at offset %d outside %d byte chunk", offset, len(chunk))
	}

	word := binary.LittleEndian.Uint32(chunk[offset:])
	desired, allowed := policy.Level, policy.MaxLevel

	if !desired.Valid() || !allowed.Valid() {
		return false, &PolicyError{Desired: desired, Allowed: allowed, Existing: word, Reason: "unknown protection level"}
	}
	if desired > allowed {
		return false, &PolicyError{Desired: desired, Allowed: allowed, Existing: word, Reason: "desired level exceeds allowed level"}
	}

	existing, known := DecodeCRP(word)
	if !known {
		return false, &PolicyError{Desired: desired, Allowed: allowed, Existing: word, Reason: "unrecognized protection word in image"}
	}

	if desired >= CRP3 {
		if desired != allowed || desired != existing {
			return false, &PolicyError{Desired: desired, Allowed: allowed, Existing: word,
				Reason: "levels 3 and above need desired, allowed and image level to agree"}
		}
	}

	if word == desired.Word() {
		return false, nil
	}
	binary.LittleEndian.PutUint32(chunk[offset:], desired.Word())
	return true, nil
}

// PatchChecksum stores the negated sum of the other reset vectors in the family's
// checksum slot so that all vectors sum to zero. It reports whether the slot changed.
func PatchChecksum(chunk []byte, family *geometry.Family) (bool, error) {
	n := family.ChecksumVectors
	if n == 0 {
		return false, nil
	}
	if len(chunk) < n*4 {
		return false, &ChecksumError{ChunkSize: len(chunk), Vectors: n}
	}

	var sum uint32
	for i := 0; i < n; i++ {
		if i != family.ChecksumVector {
			sum += binary.LittleEndian.Uint32(chunk[i*4:])
		}
	}

	slot := chunk[family.ChecksumVector*4:]
	want := -sum
	if binary.LittleEndian.Uint32(slot) == want {
		return false, nil
	}
	binary.LittleEndian.PutUint32(slot, want)
	return true, nil
}

// erased reports whether every byte of b is in the erased state.
func erased(b []byte) bool {
	for _, v := range b {
		if v != 0xFF {
			return false
		}
	}
	return true
}
