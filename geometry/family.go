package geometry

import "strings"

// SectorGroup is a run of equally sized flash sectors.
type SectorGroup struct {
	// Size is the size of one sector in bytes
	Size uint32

	// Count is the number of sectors in the group
	Count int
}

// Reservation is a piece of RAM used by the bootloader itself.
// A negative Size reserves -Size bytes below the top of the region containing Address.
type Reservation struct {
	Address uint32
	Size    int
}

// RAMUsage lists the RAM reservations of a bootloader, in any order.
type RAMUsage []Reservation

// Family is the static memory description shared by all members of a device family.
type Family struct {
	// Name identifies the family in logs and listings
	Name string

	// Sectors is the per-bank sector layout in address order
	Sectors []SectorGroup

	// Banks holds the base address of each flash bank.
	// An empty list means one implicit bank at address 0.
	Banks []uint32

	// RAMs holds the base address of each on-chip RAM region
	RAMs []uint32

	// BlockSizes are the allowed copy-RAM-to-flash sizes, ascending
	BlockSizes []int

	// ChecksumVectors is the number of reset vectors covered by the vector checksum (0 = none)
	ChecksumVectors int

	// ChecksumVector is the index of the vector that holds the checksum
	ChecksumVector int

	// IDMasks selects, per part ID word, the bits that identify a member.
	// A zero mask means the word is not compared.
	IDMasks []uint32

	// CRPOffset is the bank relative offset of the code read protection word (0 = none)
	CRPOffset uint32

	// Binary is set when the bootloader moves payloads as raw bytes instead of text lines
	Binary bool
}

// Member is one concrete part of a Family.
type Member struct {
	// Name is the part number
	Name string

	// FlashSize is the total flash size in bytes, split evenly across banks
	FlashSize uint32

	// RAMSizes holds the size of each RAM region of Family.RAMs
	RAMSizes []uint32

	// IDs are the part identification words reported by the bootloader
	IDs []uint32

	// Family is the shared memory layout
	Family *Family

	// Usage is the RAM the bootloader reserves for itself
	Usage RAMUsage
}

// IDWords returns how many part ID words are needed to identify a member of the family.
func (f *Family) IDWords() int {
	return len(f.IDMasks)
}

// IDsMatch reports whether the observed part ID words identify this member.
// Every ID word with a non-zero mask must match under that mask.
func (m *Member) IDsMatch(observed []uint32) bool {
	if m.Family == nil {
		return false
	}

	for i, mask := range m.Family.IDMasks {
		if mask == 0 {
			continue
		}
		if i >= len(observed) || i >= len(m.IDs) {
			return false
		}
		if observed[i]&mask != m.IDs[i]&mask {
			return false
		}
	}

	return true
}

// NameMatches reports whether the member name starts with prefix, ignoring case.
func (m *Member) NameMatches(prefix string) bool {
	return len(prefix) <= len(m.Name) && strings.EqualFold(m.Name[:len(prefix)], prefix)
}

func (m *Member) String() string {
	return m.Name
}
