package bootloader

import (
	"sort"

	"github.com/moffa90/go-lpcisp/firmware"
	"github.com/moffa90/go-lpcisp/geometry"
)

// PlanSectors maps every image segment to its sector range and merges ranges
// that touch or overlap, so each run of sectors is erased once.
func PlanSectors(m *geometry.Member, img *firmware.Image) ([]geometry.SectorRange, error) {
	var ranges []geometry.SectorRange
	for _, r := range img.Ranges() {
		sr, err := m.AddressRangeToSectorRange(r[0], r[1])
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, sr)
	}

	return mergeRanges(ranges), nil
}

func mergeRanges(ranges []geometry.SectorRange) []geometry.SectorRange {
	if len(ranges) == 0 {
		return nil
	}

	sorted := append([]geometry.SectorRange(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Bank() != sorted[j].Bank() {
			return sorted[i].Bank() < sorted[j].Bank()
		}
		return sorted[i].First.Index() < sorted[j].First.Index()
	})

	out := []geometry.SectorRange{sorted[0]}
	for _, r := range sorted[1:] {
		cur := &out[len(out)-1]
		if r.Bank() == cur.Bank() && r.First.Index() <= cur.Last.Index()+1 {
			if r.Last.Index() > cur.Last.Index() {
				cur.Last = r.Last
			}
			continue
		}
		out = append(out, r)
	}

	return out
}

// expand lists the sectors of a range in order.
func expand(m *geometry.Member, r geometry.SectorRange) []geometry.Sector {
	out := make([]geometry.Sector, 0, r.Len())
	for i := r.First.Index(); i <= r.Last.Index(); i++ {
		out = append(out, m.MakeSector(r.Bank(), i))
	}
	return out
}

func single(s geometry.Sector) geometry.SectorRange {
	return geometry.SectorRange{First: s, Last: s}
}
