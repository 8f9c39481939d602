// Package bootrecord builds and parses the boot sector of a FAT12/FAT16
// volume: the jump stub, the BIOS Parameter Block with its extended
// fields, and the 0x55 0xAA signature.
package bootrecord

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// SectorSize is the size of a boot sector. It does not depend on the
// logical sector size of the volume.
const SectorSize = 512

// Byte range of the BPB in a boot sector: OEM name through file system
// type string.
const (
	BPBStart = 0x03
	BPBEnd   = 0x3E
)

var (
	// JumpCode is a short jump over the BPB followed by a NOP.
	JumpCode = [3]byte{0xEB, 0x3C, 0x90}

	// Signature terminates every boot sector.
	Signature = [2]byte{0x55, 0xAA}

	// ErrShortSector is returned for sectors shorter than SectorSize.
	ErrShortSector = errors.New("boot sector shorter than 512 bytes")

	// ErrNoBPB is returned by Parse for sectors not carrying a FAT BPB.
	ErrNoBPB = errors.New("no FAT BIOS parameter block")
)

// BPB holds the fields at offsets 0x00-0x3D of a FAT12/FAT16 boot sector,
// in on-disk order.
type BPB struct {
	JumpBoot          [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16 // 0x0B
	SectorsPerCluster uint8  // 0x0D
	ReservedSectors   uint16 // 0x0E
	NumFATs           uint8  // 0x10
	RootEntries       uint16 // 0x11
	TotalSectors16    uint16 // 0x13, 0: see TotalSectors32
	Media             uint8  // 0x15
	SectorsPerFAT     uint16 // 0x16
	SectorsPerTrack   uint16 // 0x18
	Heads             uint16 // 0x1A
	HiddenSectors     uint32 // 0x1C
	TotalSectors32    uint32 // 0x20
	DriveNumber       uint8  // 0x24
	Reserved1         uint8  // 0x25
	BootSignature     uint8  // 0x26, 0x29: the next three fields are valid
	VolumeID          uint32 // 0x27
	VolumeLabel       [11]byte
	FileSystemType    [8]byte
}

// ExtendedBootSignature marks the presence of VolumeID, VolumeLabel and
// FileSystemType.
const ExtendedBootSignature = 0x29

// SetTotalSectors stores n in the 16-bit field when it fits, in the 32-bit
// field otherwise.
func (b *BPB) SetTotalSectors(n uint32) {
	if n <= 0xFFFF {
		b.TotalSectors16 = uint16(n)
		b.TotalSectors32 = 0
		return
	}
	b.TotalSectors16 = 0
	b.TotalSectors32 = n
}

// TotalSectors returns whichever total sector field is in use.
func (b *BPB) TotalSectors() uint32 {
	if b.TotalSectors16 != 0 {
		return uint32(b.TotalSectors16)
	}
	return b.TotalSectors32
}

// Build returns a boot sector carrying b. With a template, the template's
// jump code, OEM name and boot code are kept and only the parameter fields
// (0x0B-0x3D) and the signature are written over it; without, the sector
// holds JumpCode, b.OEMName and no boot code.
func Build(b BPB, template []byte) ([SectorSize]byte, error) {
	var sector [SectorSize]byte
	if len(template) > SectorSize {
		return sector, fmt.Errorf("boot sector template is %d bytes, want at most %d", len(template), SectorSize)
	}
	if b.JumpBoot == [3]byte{} {
		b.JumpBoot = JumpCode
	}
	var buf bytes.Buffer
	// bytes.Buffer writes never fail
	binary.Write(&buf, binary.LittleEndian, &b)
	copy(sector[:], buf.Bytes())
	if template != nil {
		copy(sector[:], template)
		copy(sector[0x0B:BPBEnd], buf.Bytes()[0x0B:])
	}
	copy(sector[SectorSize-2:], Signature[:])
	return sector, nil
}

// Parse decodes the BPB of sector.
func Parse(sector []byte) (BPB, error) {
	var b BPB
	if len(sector) < SectorSize {
		return b, ErrShortSector
	}
	if err := binary.Read(bytes.NewReader(sector), binary.LittleEndian, &b); err != nil {
		return b, err
	}
	if !(b.JumpBoot[0] == 0xEB && b.JumpBoot[2] == 0x90) && b.JumpBoot[0] != 0xE9 {
		return b, fmt.Errorf("%w: jump code %x", ErrNoBPB, b.JumpBoot)
	}
	switch b.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return b, fmt.Errorf("%w: %d bytes per sector", ErrNoBPB, b.BytesPerSector)
	}
	if b.SectorsPerCluster == 0 || b.NumFATs == 0 || b.ReservedSectors == 0 {
		return b, fmt.Errorf("%w: zero cluster size, FAT count or reserved sectors", ErrNoBPB)
	}
	return b, nil
}

// Graft returns a copy of osSector whose BPB range is taken from
// fsSector. The jump stub, boot code and signature stay those of
// osSector, so OS boot code can be placed on a volume without changing the
// geometry its FAT, directory and data were laid out with.
func Graft(osSector, fsSector []byte) ([]byte, error) {
	return GraftRange(osSector, fsSector, BPBStart, BPBEnd)
}

// GraftRange is Graft with an explicit preserved range [start, end).
func GraftRange(osSector, fsSector []byte, start, end int) ([]byte, error) {
	if len(osSector) < SectorSize || len(fsSector) < SectorSize {
		return nil, ErrShortSector
	}
	if start < 0 || end > SectorSize-len(Signature) || start > end {
		return nil, fmt.Errorf("invalid preserved range [%d, %d)", start, end)
	}
	merged := make([]byte, SectorSize)
	copy(merged, osSector)
	copy(merged[start:end], fsSector[start:end])
	return merged, nil
}
