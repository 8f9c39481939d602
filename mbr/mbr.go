// Package mbr builds and parses a classic Master Boot Record: 446 bytes of
// boot code, four 16-byte partition entries at 0x1BE and the 0x55 0xAA
// signature.
package mbr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// SectorSize is the size of the MBR.
	SectorSize = 512
	// BootCodeSize is the room for boot code in front of the table.
	BootCodeSize = 446
	// TableOffset is the byte offset of the first partition entry.
	TableOffset = 0x1BE
	// Entries is the number of partition entries.
	Entries = 4

	// TypeFAT16 is the partition type of a FAT16 volume of 32 MB or more.
	TypeFAT16 = 0x06
	// TypeFAT12 is the partition type of a FAT12 volume.
	TypeFAT12 = 0x01
	// TypeFAT16Small is the partition type of a FAT16 volume below 32 MB.
	TypeFAT16Small = 0x04

	activeFlag = 0x80

	// MaxCylinder is the highest cylinder a CHS address can carry.
	MaxCylinder = 1023
	// MaxHeads and MaxSectorsPerTrack bound the geometries CHS addresses
	// can express: the head is one byte, the sector six bits.
	MaxHeads           = 255
	MaxSectorsPerTrack = 63
)

var (
	// ErrBootCodeTooLarge is returned when boot code exceeds BootCodeSize.
	ErrBootCodeTooLarge = errors.New("MBR boot code larger than 446 bytes")

	// ErrNoSignature is returned by Parse for sectors without 0x55 0xAA.
	ErrNoSignature = errors.New("no MBR signature")

	// ErrGeometry is returned for disk geometries CHS addresses cannot
	// express.
	ErrGeometry = errors.New("disk geometry not addressable by CHS")
)

// CheckGeometry returns an error wrapping ErrGeometry unless heads and
// sectorsPerTrack are within 1..MaxHeads and 1..MaxSectorsPerTrack.
func CheckGeometry(heads, sectorsPerTrack uint32) error {
	if heads == 0 || heads > MaxHeads {
		return fmt.Errorf("%w: %d heads, want 1 to %d", ErrGeometry, heads, MaxHeads)
	}
	if sectorsPerTrack == 0 || sectorsPerTrack > MaxSectorsPerTrack {
		return fmt.Errorf("%w: %d sectors per track, want 1 to %d", ErrGeometry, sectorsPerTrack, MaxSectorsPerTrack)
	}
	return nil
}

// CHS is a cylinder/head/sector address. Sectors count from 1.
type CHS struct {
	Cylinder uint16
	Head     uint8
	Sector   uint8
}

// ToCHS converts lba using the given disk geometry. Cylinders beyond
// MaxCylinder are clamped.
func ToCHS(lba uint32, heads, sectorsPerTrack uint32) CHS {
	if heads == 0 || sectorsPerTrack == 0 {
		return CHS{}
	}
	cylinder := lba / (heads * sectorsPerTrack)
	if cylinder > MaxCylinder {
		cylinder = MaxCylinder
	}
	return CHS{
		Cylinder: uint16(cylinder),
		Head:     uint8((lba / sectorsPerTrack) % heads),
		Sector:   uint8(lba%sectorsPerTrack + 1),
	}
}

// Bytes returns the 3-byte on-disk form: head, sector with cylinder bits
// 8-9 in its top two bits, cylinder bits 0-7.
func (c CHS) Bytes() [3]byte {
	return [3]byte{
		c.Head,
		c.Sector&0x3F | uint8(c.Cylinder>>2)&0xC0,
		uint8(c.Cylinder),
	}
}

func chsFromBytes(b [3]byte) CHS {
	return CHS{
		Head:     b[0],
		Sector:   b[1] & 0x3F,
		Cylinder: uint16(b[1]&0xC0)<<2 | uint16(b[2]),
	}
}

// Partition describes one partition.
type Partition struct {
	Bootable bool
	Type     uint8
	StartLBA uint32
	Sectors  uint32
}

// End returns the LBA of the last sector of p.
func (p Partition) End() uint32 { return p.StartLBA + p.Sectors - 1 }

// write to byte offset 0x1BE + 16*i
type partitionEntry struct {
	Status   uint8
	FirstCHS [3]byte
	Type     uint8
	LastCHS  [3]byte
	StartLBA uint32
	Sectors  uint32
}

// Build returns an MBR carrying bootCode and a single partition entry; the
// remaining three entries are zero.
func Build(bootCode []byte, p Partition, heads, sectorsPerTrack uint32) ([SectorSize]byte, error) {
	var sector [SectorSize]byte
	if len(bootCode) > BootCodeSize {
		return sector, fmt.Errorf("%w: %d bytes", ErrBootCodeTooLarge, len(bootCode))
	}
	if p.Sectors == 0 {
		return sector, fmt.Errorf("partition at LBA %d has no sectors", p.StartLBA)
	}
	if err := CheckGeometry(heads, sectorsPerTrack); err != nil {
		return sector, err
	}
	copy(sector[:], bootCode)

	entry := partitionEntry{
		Type:     p.Type,
		FirstCHS: ToCHS(p.StartLBA, heads, sectorsPerTrack).Bytes(),
		LastCHS:  ToCHS(p.End(), heads, sectorsPerTrack).Bytes(),
		StartLBA: p.StartLBA,
		Sectors:  p.Sectors,
	}
	if p.Bootable {
		entry.Status = activeFlag
	}
	buf := bytes.NewBuffer(make([]byte, 0, 16))
	// buf.Write never fails
	binary.Write(buf, binary.LittleEndian, &entry)
	copy(sector[TableOffset:], buf.Bytes())
	sector[510] = 0x55
	sector[511] = 0xAA
	return sector, nil
}

// Parse returns the non-empty partition entries of sector along with their
// decoded CHS start and end addresses.
func Parse(sector []byte) ([]Partition, error) {
	if len(sector) < SectorSize || sector[510] != 0x55 || sector[511] != 0xAA {
		return nil, ErrNoSignature
	}
	var entries [Entries]partitionEntry
	rd := bytes.NewReader(sector[TableOffset:510])
	if err := binary.Read(rd, binary.LittleEndian, &entries); err != nil {
		return nil, err
	}
	var parts []Partition
	for _, e := range entries {
		if e.Type == 0 && e.Sectors == 0 {
			continue
		}
		if e.Status != 0 && e.Status != activeFlag {
			return nil, fmt.Errorf("%w: invalid status byte %#x", ErrNoSignature, e.Status)
		}
		parts = append(parts, Partition{
			Bootable: e.Status == activeFlag,
			Type:     e.Type,
			StartLBA: e.StartLBA,
			Sectors:  e.Sectors,
		})
	}
	return parts, nil
}

// EntryCHS decodes the CHS start and end of entry i of sector.
func EntryCHS(sector []byte, i int) (first, last CHS) {
	off := TableOffset + 16*i
	var f, l [3]byte
	copy(f[:], sector[off+1:off+4])
	copy(l[:], sector[off+5:off+8])
	return chsFromBytes(f), chsFromBytes(l)
}
