package geometry

import (
	"fmt"
	"sort"
)

// Region is a named byte range of an image.
type Region struct {
	Name   string
	Offset int64
	Length int64
}

// End returns the offset of the first byte after r.
func (r Region) End() int64 { return r.Offset + r.Length }

func (r Region) String() string {
	return fmt.Sprintf("%s [%#x, %#x)", r.Name, r.Offset, r.End())
}

// Overlaps reports whether r and o share at least one byte.
func (r Region) Overlaps(o Region) bool {
	return r.Length > 0 && o.Length > 0 && r.Offset < o.End() && o.Offset < r.End()
}

// Regions returns the regions of the volume when it starts at byte offset
// base of the image: the boot sector, the rest of the reserved area, every
// FAT copy, the root directory and the data area.
func (l Layout) Regions(base int64) []Region {
	ss := int64(l.SectorSize)
	sector := func(s uint32) int64 { return base + int64(s)*ss }

	regions := []Region{
		{Name: "boot", Offset: base, Length: ss},
		{Name: "reserved", Offset: base + ss, Length: int64(l.ReservedSectors-1) * ss},
	}
	fatStart := uint32(l.ReservedSectors)
	for i := uint32(0); i < uint32(l.FATCopies); i++ {
		regions = append(regions, Region{
			Name:   fmt.Sprintf("fat%d", i+1),
			Offset: sector(fatStart + i*l.FATSectors),
			Length: int64(l.FATSectors) * ss,
		})
	}
	regions = append(regions,
		Region{
			Name:   "root",
			Offset: sector(fatStart + uint32(l.FATCopies)*l.FATSectors),
			Length: int64(l.RootDirSectors) * ss,
		},
		Region{
			Name:   "data",
			Offset: sector(l.DataStart),
			Length: int64(l.DataSectors) * ss,
		})
	return regions
}

// Find returns the region called name.
func Find(regions []Region, name string) (Region, bool) {
	for _, r := range regions {
		if r.Name == name {
			return r, true
		}
	}
	return Region{}, false
}

// FirstOverlap returns the first pair of overlapping regions, if any.
func FirstOverlap(regions []Region) (a, b Region, ok bool) {
	sorted := append([]Region(nil), regions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })
	var prev *Region
	for i := range sorted {
		r := sorted[i]
		if r.Length == 0 {
			continue
		}
		if prev != nil && prev.Overlaps(r) {
			return *prev, r, true
		}
		if prev == nil || r.End() > prev.End() {
			prev = &sorted[i]
		}
	}
	return Region{}, Region{}, false
}
