package geometry

import "fmt"

// sectorBankShift is the position of the bank field inside a Sector value.
const sectorBankShift = 16

// Sector identifies one flash sector: a bank field in the upper half and the
// in-bank sector index in the lower half. The bank field is zero for single bank
// families and bank+1 otherwise.
type Sector uint32

// Banked reports whether the sector carries a bank field.
func (s Sector) Banked() bool {
	return s>>sectorBankShift != 0
}

// Bank returns the bank index of the sector. Unbanked sectors live in bank 0.
func (s Sector) Bank() int {
	if !s.Banked() {
		return 0
	}
	return int(s>>sectorBankShift) - 1
}

// Index returns the sector number within its bank.
func (s Sector) Index() int {
	return int(s & (1<<sectorBankShift - 1))
}

func (s Sector) String() string {
	if s.Banked() {
		return fmt.Sprintf("%d:%d", s.Bank(), s.Index())
	}
	return fmt.Sprintf("%d", s.Index())
}

// SectorRange is an inclusive run of sectors within one bank.
type SectorRange struct {
	First Sector
	Last  Sector
}

// Bank returns the bank both ends of the range live in.
func (r SectorRange) Bank() int {
	return r.First.Bank()
}

// Len returns the number of sectors in the range.
func (r SectorRange) Len() int {
	return r.Last.Index() - r.First.Index() + 1
}

func (r SectorRange) String() string {
	return fmt.Sprintf("%v..%v", r.First, r.Last)
}

// SectorInfo is a sector together with its absolute address and size.
type SectorInfo struct {
	Sector  Sector
	Address uint32
	Size    uint32
}

// BankCount returns the number of flash banks; always at least one.
func (m *Member) BankCount() int {
	if len(m.Family.Banks) == 0 {
		return 1
	}
	return len(m.Family.Banks)
}

// BankBase returns the base address of a flash bank.
func (m *Member) BankBase(bank int) uint32 {
	if len(m.Family.Banks) == 0 {
		return 0
	}
	return m.Family.Banks[bank]
}

// BankSize returns the flash size of one bank.
func (m *Member) BankSize() uint32 {
	return m.FlashSize / uint32(m.BankCount())
}

// MakeSector builds the sector coordinate for an in-bank index.
func (m *Member) MakeSector(bank, index int) Sector {
	if m.BankCount() == 1 {
		return Sector(index)
	}
	return Sector(uint32(bank+1)<<sectorBankShift | uint32(index))
}

// walkBank calls fn for each sector of one bank in address order, stopping at the end
// of the bank's flash or when fn returns false.
func (m *Member) walkBank(bank int, fn func(index int, offset, size uint32) bool) {
	limit := m.BankSize()
	index := 0
	offset := uint32(0)

	for _, g := range m.Family.Sectors {
		for i := 0; i < g.Count; i++ {
			if offset >= limit {
				return
			}
			if !fn(index, offset, g.Size) {
				return
			}
			index++
			offset += g.Size
		}
	}
}

// Sectors returns every sector of the device in numbering order:
// bank ascending, then group declaration order, then sector ascending.
func (m *Member) Sectors() []SectorInfo {
	var out []SectorInfo
	for bank := 0; bank < m.BankCount(); bank++ {
		base := m.BankBase(bank)
		m.walkBank(bank, func(index int, offset, size uint32) bool {
			out = append(out, SectorInfo{
				Sector:  m.MakeSector(bank, index),
				Address: base + offset,
				Size:    size,
			})
			return true
		})
	}
	return out
}

// SectorCount returns the number of sectors in one bank.
func (m *Member) SectorCount() int {
	n := 0
	m.walkBank(0, func(int, uint32, uint32) bool {
		n++
		return true
	})
	return n
}

// Ordinal returns a dense index of the sector over all banks, usable as a bitmap position.
func (m *Member) Ordinal(s Sector) int {
	return s.Bank()*m.SectorCount() + s.Index()
}

// BankOf returns the bank holding addr and the offset of addr within that bank.
func (m *Member) BankOf(addr uint32) (bank int, offset uint32, ok bool) {
	size := m.BankSize()
	for b := 0; b < m.BankCount(); b++ {
		base := m.BankBase(b)
		if addr >= base && addr-base < size {
			return b, addr - base, true
		}
	}
	return 0, 0, false
}

// AddressToSector returns the sector containing addr, or false when addr lies
// outside the device's flash.
func (m *Member) AddressToSector(addr uint32) (Sector, bool) {
	bank, offset, ok := m.BankOf(addr)
	if !ok {
		return 0, false
	}

	var found Sector
	ok = false
	m.walkBank(bank, func(index int, start, size uint32) bool {
		if offset >= start && offset-start < size {
			found = m.MakeSector(bank, index)
			ok = true
			return false
		}
		return true
	})

	return found, ok
}

// SectorToAddress returns the absolute start address and size of a sector.
func (m *Member) SectorToAddress(s Sector) (addr, size uint32, ok bool) {
	bank := s.Bank()
	if bank >= m.BankCount() || s.Banked() != (m.BankCount() > 1) {
		return 0, 0, false
	}

	base := m.BankBase(bank)
	m.walkBank(bank, func(index int, offset, sz uint32) bool {
		if index == s.Index() {
			addr, size, ok = base+offset, sz, true
			return false
		}
		return true
	})

	return addr, size, ok
}

// AddressRangeToSectorRange maps the inclusive address range lo..hi to the sectors
// containing its endpoints. Ranges spanning two banks are rejected because banked
// flash commands address a single bank.
func (m *Member) AddressRangeToSectorRange(lo, hi uint32) (SectorRange, error) {
	if lo > hi {
		return SectorRange{}, &RangeError{Low: lo, High: hi, Reason: "start above end"}
	}

	first, ok := m.AddressToSector(lo)
	if !ok {
		return SectorRange{}, &RangeError{Low: lo, High: hi, Reason: fmt.Sprintf("0x%08X is outside flash", lo)}
	}

	last, ok := m.AddressToSector(hi)
	if !ok {
		return SectorRange{}, &RangeError{Low: lo, High: hi, Reason: fmt.Sprintf("0x%08X is outside flash", hi)}
	}

	if first.Bank() != last.Bank() {
		return SectorRange{}, &RangeError{Low: lo, High: hi, Reason: "range spans two flash banks"}
	}

	return SectorRange{First: first, Last: last}, nil
}

// BankLastSector returns the highest sector of a bank.
func (m *Member) BankLastSector(bank int) (Sector, bool) {
	if bank < 0 || bank >= m.BankCount() {
		return 0, false
	}

	n := m.SectorCount()
	if n == 0 {
		return 0, false
	}

	return m.MakeSector(bank, n-1), true
}
