package fat

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrInvalidCluster is returned when accessing an entry outside of the
	// table or one of the two reserved entries.
	ErrInvalidCluster = errors.New("invalid cluster")

	// ErrBrokenChain is returned when following a chain runs into a free
	// cluster, leaves the table or loops.
	ErrBrokenChain = errors.New("broken cluster chain")
)

// SetEntry12 returns a copy of buf in which the 12-bit entry of cluster is
// set to value. The entry starts at byte cluster*3/2: even clusters occupy
// the low 12 bits of the two bytes found there, odd clusters the high 12
// bits. The nibble shared with the neighbouring entry is preserved, so
// writing two neighbouring entries yields the same bytes in either order.
func SetEntry12(buf []byte, cluster uint32, value uint16) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	putEntry12(out, cluster, value)
	return out
}

// Entry12 decodes the 12-bit entry of cluster from buf.
func Entry12(buf []byte, cluster uint32) uint16 {
	off := cluster * 3 / 2
	pair := uint16(buf[off]) | uint16(buf[off+1])<<8
	if cluster%2 == 0 {
		return pair & 0x0FFF
	}
	return pair >> 4
}

// putEntry12 is the in-place read-modify-write of the two bytes holding the
// entry of cluster.
func putEntry12(buf []byte, cluster uint32, value uint16) {
	off := cluster * 3 / 2
	value &= 0x0FFF
	if cluster%2 == 0 {
		buf[off] = byte(value)
		buf[off+1] = buf[off+1]&0xF0 | byte(value>>8)
		return
	}
	buf[off] = buf[off]&0x0F | byte(value<<4)
	buf[off+1] = byte(value >> 4)
}

// Table is an encoded File Allocation Table. Its buffer is what ends up in
// every FAT copy of the image.
type Table struct {
	variant Variant
	buf     []byte
}

// NewTable returns a zeroed table of size bytes whose reserved entries hold
// the media descriptor (entry 0) and the all-ones marker (entry 1).
func NewTable(v Variant, media uint8, size int) (*Table, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("unsupported FAT variant %v", v)
	}
	if v.Entries(uint32(size)) < FirstCluster {
		return nil, fmt.Errorf("%v table of %d bytes cannot hold the reserved entries", v, size)
	}
	t := &Table{
		variant: v,
		buf:     make([]byte, size),
	}
	t.put(0, v.Mask()&^0xFF|uint16(media))
	t.put(1, v.Mask())
	return t, nil
}

// LoadTable wraps an existing table, e.g. one read back from an image.
func LoadTable(v Variant, buf []byte) (*Table, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("unsupported FAT variant %v", v)
	}
	return &Table{variant: v, buf: buf}, nil
}

// Variant returns the entry width of the table.
func (t *Table) Variant() Variant { return t.variant }

// Len returns the number of entries the table can hold.
func (t *Table) Len() uint32 {
	return t.variant.Entries(uint32(len(t.buf)))
}

// Bytes returns the encoded table. The slice aliases the table.
func (t *Table) Bytes() []byte { return t.buf }

func (t *Table) put(cluster uint32, value uint16) {
	if t.variant == FAT12 {
		putEntry12(t.buf, cluster, value)
		return
	}
	binary.LittleEndian.PutUint16(t.buf[cluster*2:], value)
}

// Set stores value in the entry of cluster.
func (t *Table) Set(cluster uint32, value uint16) error {
	if cluster < FirstCluster || cluster >= t.Len() {
		return fmt.Errorf("%w: %d (table holds %d entries)", ErrInvalidCluster, cluster, t.Len())
	}
	if value > t.variant.Mask() {
		return fmt.Errorf("value %#x does not fit a %v entry", value, t.variant)
	}
	t.put(cluster, value)
	return nil
}

// Get returns the entry of cluster. Entries 0 and 1 may be read.
func (t *Table) Get(cluster uint32) (uint16, error) {
	if cluster >= t.Len() {
		return 0, fmt.Errorf("%w: %d (table holds %d entries)", ErrInvalidCluster, cluster, t.Len())
	}
	if t.variant == FAT12 {
		return Entry12(t.buf, cluster), nil
	}
	return binary.LittleEndian.Uint16(t.buf[cluster*2:]), nil
}

// Link writes the successor relationship of c: every cluster points to the
// next one, the last one carries the end-of-chain marker. Entries are
// written in increasing cluster order.
func (t *Table) Link(c Chain) error {
	if c.Count == 0 {
		return fmt.Errorf("%w: empty chain", ErrInvalidCluster)
	}
	last := c.First + c.Count - 1
	for cluster := c.First; cluster < last; cluster++ {
		if err := t.Set(cluster, uint16(cluster+1)); err != nil {
			return err
		}
	}
	return t.Set(last, t.variant.EndOfChain())
}

// Chain follows the chain starting at first and returns its clusters in
// order.
func (t *Table) Chain(first uint32) ([]uint32, error) {
	var (
		clusters []uint32
		seen     = make(map[uint32]bool)
	)
	for cluster := first; ; {
		if cluster < FirstCluster || cluster >= t.Len() {
			return clusters, fmt.Errorf("%w: cluster %d out of range", ErrBrokenChain, cluster)
		}
		if seen[cluster] {
			return clusters, fmt.Errorf("%w: loop at cluster %d", ErrBrokenChain, cluster)
		}
		seen[cluster] = true
		clusters = append(clusters, cluster)
		next, err := t.Get(cluster)
		if err != nil {
			return clusters, err
		}
		if t.variant.IsEndOfChain(next) {
			return clusters, nil
		}
		if next == 0 {
			return clusters, fmt.Errorf("%w: cluster %d is free", ErrBrokenChain, cluster)
		}
		cluster = uint32(next)
	}
}
