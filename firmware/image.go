package firmware

import (
	"fmt"
	"sort"
)

// ErasedByte is the value of erased flash, used to pad gaps.
const ErasedByte = 0xFF

// Segment is a contiguous run of image bytes.
type Segment struct {
	// Address is the absolute address of Data[0]
	Address uint32

	// Data is the segment content
	Data []byte
}

// End returns the first address after the segment.
func (s Segment) End() uint64 {
	return uint64(s.Address) + uint64(len(s.Data))
}

// Image is a sparse executable image.
type Image struct {
	// Segments are sorted by address and never overlap
	Segments []Segment

	// Entry is the start address when HasEntry is set
	Entry    uint32
	HasEntry bool
}

// Window is an aligned address range of an image.
type Window struct {
	Address uint32
	Size    uint32
}

// NewImage builds an image from segments in any order. Adjacent segments are
// merged; overlapping segments are rejected.
func NewImage(segments ...Segment) (*Image, error) {
	sorted := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if len(s.Data) == 0 {
			continue
		}
		if s.End() > 1<<32 {
			return nil, fmt.Errorf("segment at 0x%08X with %d bytes exceeds the address space", s.Address, len(s.Data))
		}
		sorted = append(sorted, s)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	img := &Image{}
	for _, s := range sorted {
		n := len(img.Segments)
		if n > 0 {
			last := &img.Segments[n-1]
			if uint64(s.Address) < last.End() {
				return nil, fmt.Errorf("segment at 0x%08X overlaps segment at 0x%08X", s.Address, last.Address)
			}
			if uint64(s.Address) == last.End() {
				last.Data = append(last.Data, s.Data...)
				continue
			}
		}
		img.Segments = append(img.Segments, Segment{
			Address: s.Address,
			Data:    append([]byte(nil), s.Data...),
		})
	}

	return img, nil
}

// Empty reports whether the image holds no bytes.
func (img *Image) Empty() bool {
	return len(img.Segments) == 0
}

// Size returns the number of image bytes, not counting gaps.
func (img *Image) Size() int {
	n := 0
	for _, s := range img.Segments {
		n += len(s.Data)
	}
	return n
}

// Low returns the lowest image address.
func (img *Image) Low() uint32 {
	if img.Empty() {
		return 0
	}
	return img.Segments[0].Address
}

// High returns the highest image address, inclusive.
func (img *Image) High() uint32 {
	if img.Empty() {
		return 0
	}
	return uint32(img.Segments[len(img.Segments)-1].End() - 1)
}

// Fill copies the image bytes that fall into [base, base+len(dst)) into dst and
// sets every other byte to ErasedByte. It reports whether any image byte was copied.
func (img *Image) Fill(dst []byte, base uint32) bool {
	for i := range dst {
		dst[i] = ErasedByte
	}

	lo := uint64(base)
	hi := lo + uint64(len(dst))
	covered := false

	for _, s := range img.Segments {
		start, end := uint64(s.Address), s.End()
		if end <= lo || start >= hi {
			continue
		}
		if start < lo {
			start = lo
		}
		if end > hi {
			end = hi
		}
		copy(dst[start-lo:end-lo], s.Data[start-uint64(s.Address):end-uint64(s.Address)])
		covered = true
	}

	return covered
}

// Windows returns the size-aligned windows that contain image bytes, in address order.
func (img *Image) Windows(size uint32) []Window {
	if size == 0 {
		return nil
	}

	var out []Window
	next := uint64(0)
	for _, s := range img.Segments {
		first := uint64(s.Address) / uint64(size) * uint64(size)
		if first < next {
			first = next
		}
		for a := first; a < s.End(); a += uint64(size) {
			out = append(out, Window{Address: uint32(a), Size: size})
			next = a + uint64(size)
		}
	}

	return out
}

// Ranges returns the inclusive address range of every segment.
func (img *Image) Ranges() [][2]uint32 {
	out := make([][2]uint32, 0, len(img.Segments))
	for _, s := range img.Segments {
		out = append(out, [2]uint32{s.Address, uint32(s.End() - 1)})
	}
	return out
}
