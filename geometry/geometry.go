// Package geometry derives the sector layout of a FAT12/FAT16 volume
// (reserved area, FAT copies, root directory, data area) from a small set
// of declared parameters, and describes the result as named byte regions.
package geometry

import (
	"errors"
	"fmt"

	"github.com/unodos/unoimg/fat"
)

// ErrInvalid is matched by every *Error.
var ErrInvalid = errors.New("invalid geometry")

// Error names the parameter which makes a geometry unusable.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("geometry: %s: %s", e.Field, e.Reason)
}

func (e *Error) Is(target error) bool { return target == ErrInvalid }

// DirEntrySize is the size of one directory entry in bytes.
const DirEntrySize = 32

// Sector sizes a boot sector can describe. The boot sector itself is 512
// bytes, so smaller sectors cannot hold it.
const (
	MinSectorSize = 512
	MaxSectorSize = 4096
)

// Params are the declared parameters of one FAT volume: a whole floppy, or
// one partition of a hard disk.
type Params struct {
	Variant           fat.Variant
	SectorSize        uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	FATCopies         uint8
	RootEntries       uint16
	// TotalSectors is the number of sectors governed by the volume.
	TotalSectors uint32
	// SectorsPerFAT is used as-is when non-zero, otherwise derived from
	// the cluster count.
	SectorsPerFAT uint16

	Media           uint8
	SectorsPerTrack uint16
	Heads           uint16
}

// Disk describes the CHS geometry of a hard disk.
type Disk struct {
	Cylinders       uint32
	Heads           uint32
	SectorsPerTrack uint32
}

// Sectors returns the total number of sectors addressable through d.
func (d Disk) Sectors() uint32 {
	return d.Cylinders * d.Heads * d.SectorsPerTrack
}

// Layout is the result of Compute. All sector numbers are relative to the
// start of the volume.
type Layout struct {
	Params

	FATSectors     uint32
	RootDirSectors uint32
	DataStart      uint32
	DataSectors    uint32
	Clusters       uint32
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

func (p Params) validate() error {
	switch {
	case !p.Variant.Valid():
		return &Error{"variant", fmt.Sprintf("unsupported FAT variant %v", p.Variant)}
	case p.SectorSize < MinSectorSize || p.SectorSize > MaxSectorSize || p.SectorSize&(p.SectorSize-1) != 0:
		return &Error{"sector size", fmt.Sprintf("%d is not a power of two from %d to %d", p.SectorSize, MinSectorSize, MaxSectorSize)}
	case p.SectorsPerCluster == 0 || p.SectorsPerCluster&(p.SectorsPerCluster-1) != 0:
		return &Error{"sectors per cluster", fmt.Sprintf("%d is not a power of two", p.SectorsPerCluster)}
	case p.ReservedSectors == 0:
		return &Error{"reserved sectors", "the boot sector needs at least one reserved sector"}
	case p.FATCopies == 0:
		return &Error{"FAT copies", "at least one FAT is required"}
	case p.RootEntries == 0:
		return &Error{"root entries", "the root directory needs at least one entry"}
	case p.TotalSectors == 0:
		return &Error{"total sectors", "must not be zero"}
	}
	return nil
}

// Compute derives the layout of the volume described by p.
func Compute(p Params) (Layout, error) {
	if err := p.validate(); err != nil {
		return Layout{}, err
	}
	ss := uint32(p.SectorSize)
	l := Layout{
		Params:         p,
		RootDirSectors: ceilDiv(uint32(p.RootEntries)*DirEntrySize, ss),
		FATSectors:     uint32(p.SectorsPerFAT),
	}
	if l.FATSectors == 0 {
		clusters := p.TotalSectors / uint32(p.SectorsPerCluster)
		l.FATSectors = ceilDiv(p.Variant.TableBytes(clusters), ss)
		if l.FATSectors > 0xFFFF {
			return Layout{}, &Error{"sectors per FAT", fmt.Sprintf("derived size %d does not fit the BPB", l.FATSectors)}
		}
	}
	l.DataStart = uint32(p.ReservedSectors) + uint32(p.FATCopies)*l.FATSectors + l.RootDirSectors
	if p.TotalSectors < l.DataStart+1 {
		return Layout{}, &Error{"total sectors", fmt.Sprintf(
			"%d sectors cannot hold %d reserved + %d×%d FAT + %d root directory sectors and data",
			p.TotalSectors, p.ReservedSectors, p.FATCopies, l.FATSectors, l.RootDirSectors)}
	}
	l.DataSectors = p.TotalSectors - l.DataStart
	l.Clusters = l.DataSectors / uint32(p.SectorsPerCluster)
	if l.Clusters == 0 {
		return Layout{}, &Error{"total sectors", fmt.Sprintf(
			"%d data sectors do not fill a single %d-sector cluster", l.DataSectors, p.SectorsPerCluster)}
	}
	return l, nil
}

// ClusterSize returns the cluster size in bytes.
func (l Layout) ClusterSize() int {
	return int(l.SectorSize) * int(l.SectorsPerCluster)
}

// FATBytes returns the size of one FAT copy in bytes.
func (l Layout) FATBytes() int {
	return int(l.FATSectors) * int(l.SectorSize)
}

// Capacity returns the number of clusters files can be allocated to. It is
// bounded by the data area, by the entries one FAT copy can hold and by
// the highest cluster index the variant can address.
func (l Layout) Capacity() uint32 {
	capacity := l.Clusters
	entries := l.Variant.Entries(uint32(l.FATBytes()))
	if entries < fat.FirstCluster {
		return 0
	}
	if n := entries - fat.FirstCluster; n < capacity {
		capacity = n
	}
	if n := l.Variant.MaxCluster() - fat.FirstCluster + 1; n < capacity {
		capacity = n
	}
	return capacity
}

// ClusterOffset returns the byte offset of cluster relative to the start of
// the data area.
func (l Layout) ClusterOffset(cluster uint32) int64 {
	return int64(cluster-fat.FirstCluster) * int64(l.ClusterSize())
}
