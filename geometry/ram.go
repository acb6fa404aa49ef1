package geometry

import (
	"fmt"
	"sort"
)

// ChunkAlignment is the alignment of every transfer chunk in bytes.
const ChunkAlignment = 4

// Region is an on-chip RAM region.
type Region struct {
	Base uint32
	Size uint32
}

// Top returns the first address above the region.
func (r Region) Top() uint64 {
	return uint64(r.Base) + uint64(r.Size)
}

// Contains reports whether addr lies inside the region.
func (r Region) Contains(addr uint32) bool {
	return addr >= r.Base && uint64(addr) < r.Top()
}

// Window is a free RAM range not claimed by the bootloader.
type Window struct {
	Address uint32
	Size    uint32
}

// End returns the first address above the window.
func (w Window) End() uint64 {
	return uint64(w.Address) + uint64(w.Size)
}

func (w Window) String() string {
	return fmt.Sprintf("[0x%08X, 0x%08X)", w.Address, w.End())
}

// Chunk is a fixed size, word aligned piece of a Window used to stage one transfer.
type Chunk struct {
	Address uint32
	Size    uint32
}

// span resolves a reservation against region r, returning ok=false when the
// reservation belongs to another region.
func (res Reservation) span(r Region) (lo, hi uint64, ok bool) {
	if !r.Contains(res.Address) {
		return 0, 0, false
	}

	top := r.Top()
	if res.Size < 0 {
		down := uint64(-res.Size)
		if down > uint64(r.Size) {
			down = uint64(r.Size)
		}
		return top - down, top, true
	}

	hi = uint64(res.Address) + uint64(res.Size)
	if hi > top {
		hi = top
	}
	return uint64(res.Address), hi, true
}

// FreeWindows returns the maximal gaps of region r left between the reservations in usage
// and between a reservation and the region boundaries. Reservations of other regions are
// ignored; adjacent free ranges are not merged across a reservation.
func FreeWindows(r Region, usage RAMUsage) []Window {
	type span struct{ lo, hi uint64 }

	spans := make([]span, 0, len(usage))
	for _, res := range usage {
		if lo, hi, ok := res.span(r); ok && hi > lo {
			spans = append(spans, span{lo, hi})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].lo < spans[j].lo })

	var out []Window
	cursor := uint64(r.Base)
	for _, s := range spans {
		if s.lo > cursor {
			out = append(out, Window{Address: uint32(cursor), Size: uint32(s.lo - cursor)})
		}
		if s.hi > cursor {
			cursor = s.hi
		}
	}
	if top := r.Top(); cursor < top {
		out = append(out, Window{Address: uint32(cursor), Size: uint32(top - cursor)})
	}

	return out
}

// Regions returns the member's RAM regions.
func (m *Member) Regions() []Region {
	out := make([]Region, 0, len(m.Family.RAMs))
	for i, base := range m.Family.RAMs {
		if i >= len(m.RAMSizes) || m.RAMSizes[i] == 0 {
			continue
		}
		out = append(out, Region{Base: base, Size: m.RAMSizes[i]})
	}
	return out
}

// TransferWindows returns the free windows of every RAM region of the member.
func (m *Member) TransferWindows() []Window {
	var out []Window
	for _, r := range m.Regions() {
		out = append(out, FreeWindows(r, m.Usage)...)
	}
	return out
}

func alignUp(v uint64, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}

func eachChunk(windows []Window, size int, fn func(Chunk)) {
	if size <= 0 {
		return
	}

	sz := uint64(size)
	for _, w := range windows {
		end := w.End()
		for a := alignUp(uint64(w.Address), ChunkAlignment); a+sz <= end; a += sz {
			fn(Chunk{Address: uint32(a), Size: uint32(size)})
		}
	}
}

// ChunkCount returns how many size byte chunks Partition would produce.
func ChunkCount(windows []Window, size int) int {
	n := 0
	eachChunk(windows, size, func(Chunk) { n++ })
	return n
}

// Partition slices each window, after aligning its start to ChunkAlignment, into as many
// size byte chunks as fit. Remainders are dropped; chunks never straddle two windows.
func Partition(windows []Window, size int) []Chunk {
	var out []Chunk
	eachChunk(windows, size, func(c Chunk) { out = append(out, c) })
	return out
}

// SelectChunkSize picks the copy block size used for staging. It starts with the smallest
// declared block size and moves to a larger one whenever the RAM usable at that size is at
// least half of the best achievable total.
func (m *Member) SelectChunkSize(windows []Window) (int, error) {
	sizes := m.Family.BlockSizes
	if len(sizes) == 0 {
		return 0, fmt.Errorf("family %s declares no block sizes", m.Family.Name)
	}

	best := 0
	for _, bs := range sizes {
		if t := ChunkCount(windows, bs) * bs; t > best {
			best = t
		}
	}
	if best == 0 {
		return 0, ErrNoTransferRAM
	}

	size := sizes[0]
	for _, bs := range sizes[1:] {
		if 2*ChunkCount(windows, bs)*bs >= best {
			size = bs
		}
	}

	return size, nil
}
