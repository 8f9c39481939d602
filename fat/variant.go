package fat

import "fmt"

// Variant identifies the width of the entries in a File Allocation Table.
type Variant uint8

const (
	// FAT12 entries are 12 bits wide; two entries share three bytes.
	FAT12 Variant = 12
	// FAT16 entries are plain little-endian 16-bit values.
	FAT16 Variant = 16
)

// FirstCluster is the first cluster index available for file data.
const FirstCluster = 2

const (
	// Media descriptors, stored in the low byte of entry 0.
	MediaRemovable = uint8(0xF0)
	MediaFixed     = uint8(0xF8)
)

func (v Variant) String() string {
	switch v {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	}
	return fmt.Sprintf("Variant(%d)", uint8(v))
}

// Valid reports whether v is a supported variant.
func (v Variant) Valid() bool {
	return v == FAT12 || v == FAT16
}

// Mask returns the bits an entry of this variant can hold.
func (v Variant) Mask() uint16 {
	if v == FAT12 {
		return 0x0FFF
	}
	return 0xFFFF
}

// EndOfChain returns the value written to the last entry of a chain.
func (v Variant) EndOfChain() uint16 {
	return v.Mask()
}

// IsEndOfChain reports whether value terminates a chain. Any value in the
// reserved range 0xFF8-0xFFF (0xFFF8-0xFFFF for FAT16) does.
func (v Variant) IsEndOfChain(value uint16) bool {
	return value >= v.Mask()&^0x7
}

// MaxCluster returns the highest cluster index that can hold file data.
// Larger values are reserved (bad cluster marker, end of chain).
func (v Variant) MaxCluster() uint32 {
	return uint32(v.Mask()) - 9 // 0xFF6 or 0xFFF6
}

// TableBytes returns the number of bytes needed to store entries table
// entries, including the two reserved ones if they are counted by the
// caller.
func (v Variant) TableBytes(entries uint32) uint32 {
	if v == FAT12 {
		return (entries*3 + 1) / 2
	}
	return entries * 2
}

// Entries returns how many entries fit into size bytes.
func (v Variant) Entries(size uint32) uint32 {
	if v == FAT12 {
		return size * 2 / 3
	}
	return size / 2
}
