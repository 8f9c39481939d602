package direntry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Size is the size of one encoded entry in bytes.
const Size = 32

// Attribute bits.
const (
	AttrReadOnly    = 0x01
	AttrHidden      = 0x02
	AttrSystem      = 0x04
	AttrVolumeLabel = 0x08
	AttrDirectory   = 0x10
	AttrArchive     = 0x20

	// AttrLongName marks a VFAT long name entry.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeLabel
)

var attrNames = []struct {
	bit  uint8
	name string
}{
	{AttrReadOnly, "RO"},
	{AttrHidden, "HIDDEN"},
	{AttrSystem, "SYSTEM"},
	{AttrVolumeLabel, "VOLUME"},
	{AttrDirectory, "DIR"},
	{AttrArchive, "ARCHIVE"},
}

// AttrString returns the names of the attribute bits set in attr, joined by
// "|", or "LFN" for long name entries.
func AttrString(attr uint8) string {
	if attr&AttrLongName == AttrLongName {
		return "LFN"
	}
	var names []string
	for _, a := range attrNames {
		if attr&a.bit != 0 {
			names = append(names, a.name)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, "|")
}

// ErrDirectoryFull is returned when the root directory has no free entry
// left. The volume label occupies one entry.
var ErrDirectoryFull = errors.New("root directory full")

// Entry is one root directory entry.
type Entry struct {
	Name         [11]byte
	Attr         uint8
	FirstCluster uint16
	Size         uint32
	// ModTime is stored as DOS write time and date when non-zero. The
	// zero value keeps both fields zero, which makes images reproducible.
	ModTime time.Time
}

// IsVolumeLabel reports whether e is the volume label entry.
func (e Entry) IsVolumeLabel() bool {
	return e.Attr&AttrVolumeLabel != 0 && e.Attr&AttrLongName != AttrLongName
}

// String returns the display name of e.
func (e Entry) String() string {
	return DisplayName(e.Name)
}

// DOS stamps cover 1980 to 2107 with two-second resolution.
var (
	dosFirst = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)
	dosLast  = time.Date(2107, time.December, 31, 23, 59, 58, 0, time.UTC)
)

// clampDOS moves t into the range DOS stamps can represent.
func clampDOS(t time.Time) time.Time {
	t = t.UTC()
	if t.Before(dosFirst) {
		return dosFirst
	}
	if t.After(dosLast) {
		return dosLast
	}
	return t
}

func dosTime(t time.Time) uint16 {
	if t.IsZero() {
		return 0
	}
	t = clampDOS(t)
	return uint16(t.Hour())<<11 |
		uint16(t.Minute())<<5 |
		uint16(t.Second()/2)
}

func dosDate(t time.Time) uint16 {
	if t.IsZero() {
		return 0
	}
	t = clampDOS(t)
	return uint16(t.Year()-1980)<<9 |
		uint16(t.Month())<<5 |
		uint16(t.Day())
}

func unmarshalTimeDate(t, d uint16) time.Time {
	if d == 0 {
		return time.Time{}
	}
	return time.Date(
		int(d>>9)+1980,
		time.Month(d>>5&0xF),
		int(d&0x1F),
		int(t>>11),
		int(t>>5&0x3F),
		int(t&0x1F)*2,
		0,
		time.UTC)
}

// AppendBinary appends the 32-byte encoding of e to b.
func (e Entry) AppendBinary(b []byte) []byte {
	var raw [Size]byte
	copy(raw[0:11], e.Name[:])
	raw[11] = e.Attr
	// 12-21: reserved, creation and access stamps, all zero
	mod := e.ModTime.UTC()
	binary.LittleEndian.PutUint16(raw[22:], dosTime(mod))
	binary.LittleEndian.PutUint16(raw[24:], dosDate(mod))
	binary.LittleEndian.PutUint16(raw[26:], e.FirstCluster)
	binary.LittleEndian.PutUint32(raw[28:], e.Size)
	return append(b, raw[:]...)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (e Entry) MarshalBinary() ([]byte, error) {
	return e.AppendBinary(make([]byte, 0, Size)), nil
}

// Parse decodes the entries of a directory region. Decoding stops at the
// first never-used entry; deleted entries are skipped.
func Parse(b []byte) []Entry {
	var entries []Entry
	for off := 0; off+Size <= len(b); off += Size {
		raw := b[off : off+Size]
		if raw[0] == 0x00 {
			break
		}
		if raw[0] == 0xE5 {
			continue
		}
		var e Entry
		copy(e.Name[:], raw[0:11])
		e.Attr = raw[11]
		e.ModTime = unmarshalTimeDate(
			binary.LittleEndian.Uint16(raw[22:]),
			binary.LittleEndian.Uint16(raw[24:]))
		e.FirstCluster = binary.LittleEndian.Uint16(raw[26:])
		e.Size = binary.LittleEndian.Uint32(raw[28:])
		entries = append(entries, e)
	}
	return entries
}

// Builder collects the entries of a root directory: the volume label
// first, then the files in the order they were allocated.
type Builder struct {
	capacity int
	entries  []Entry
}

// NewBuilder returns a Builder for a root directory of rootEntries entries
// whose first entry is the volume label.
func NewBuilder(rootEntries int, label [11]byte) (*Builder, error) {
	if rootEntries < 1 {
		return nil, fmt.Errorf("%w: %d entries leave no room for the volume label", ErrDirectoryFull, rootEntries)
	}
	return &Builder{
		capacity: rootEntries,
		entries: []Entry{{
			Name: label,
			Attr: AttrVolumeLabel,
		}},
	}, nil
}

// Add appends e. It fails with ErrDirectoryFull when the directory cannot
// take another entry.
func (b *Builder) Add(e Entry) error {
	if len(b.entries)+1 > b.capacity {
		return fmt.Errorf("%w: cannot add %s, %d entries including the volume label",
			ErrDirectoryFull, DisplayName(e.Name), b.capacity)
	}
	b.entries = append(b.entries, e)
	return nil
}

// File is a convenience for adding an archive entry.
func (b *Builder) File(name [11]byte, firstCluster uint16, size uint32) error {
	return b.Add(Entry{
		Name:         name,
		Attr:         AttrArchive,
		FirstCluster: firstCluster,
		Size:         size,
	})
}

// Entries returns the entries added so far, label first.
func (b *Builder) Entries() []Entry { return b.entries }

// Bytes encodes the directory into a zeroed region of size bytes.
func (b *Builder) Bytes(size int) ([]byte, error) {
	if need := len(b.entries) * Size; need > size {
		return nil, fmt.Errorf("%w: %d entries need %d bytes, region holds %d", ErrDirectoryFull, len(b.entries), need, size)
	}
	buf := make([]byte, 0, size)
	for _, e := range b.entries {
		buf = e.AppendBinary(buf)
	}
	return buf[:size], nil
}
