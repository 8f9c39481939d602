// Package direntry encodes the 32-byte entries of a flat FAT root
// directory: 8.3 short names, the volume label entry and one entry per
// file.
package direntry

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// ErrInvalidName is matched by every *NameError.
var ErrInvalidName = errors.New("invalid 8.3 name")

// NameError describes why a name cannot be stored as 8.3 name.
type NameError struct {
	Name   string
	Reason string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("%q: %s", e.Name, e.Reason)
}

func (e *NameError) Is(target error) bool { return target == ErrInvalidName }

var blank = [11]byte{' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}

// split upper-cases name and splits it at its last dot.
func split(name string) (base, ext string) {
	name = strings.ToUpper(name)
	if idx := strings.LastIndexByte(name, '.'); idx > -1 {
		return name[:idx], name[idx+1:]
	}
	return name, ""
}

// oem maps s to code page 437. Runes without a representation become '_'.
func oem(s string) []byte {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			b = append(b, '_')
			continue
		}
		c, ok := charmap.CodePage437.EncodeRune(r)
		if !ok {
			c = '_'
		}
		b = append(b, c)
	}
	return b
}

func pack(base, ext []byte) [11]byte {
	result := blank
	copy(result[:8], base)
	copy(result[8:], ext)
	// 0xE5 marks deleted entries; a name starting with it is stored as 0x05.
	if result[0] == 0xE5 {
		result[0] = 0x05
	}
	return result
}

// ShortName converts name to its 11-byte 8.3 form: upper-cased, split at
// the last dot, base and extension space-padded (or truncated) to 8 and 3
// bytes. Dots left in the base become underscores. It never fails.
func ShortName(name string) [11]byte {
	base, ext := split(name)
	return pack(oem(strings.ReplaceAll(base, ".", "_")), oem(ext))
}

// ShortNameStrict is like ShortName, but rejects names which ShortName
// would have to alter beyond case folding and padding.
func ShortNameStrict(name string) ([11]byte, error) {
	base, ext := split(name)
	switch {
	case base == "":
		return blank, &NameError{name, "empty base name"}
	case len(base) > 8:
		return blank, &NameError{name, fmt.Sprintf("base name %q longer than 8 characters", base)}
	case len(ext) > 3:
		return blank, &NameError{name, fmt.Sprintf("extension %q longer than 3 characters", ext)}
	case strings.ContainsRune(base, '.'):
		return blank, &NameError{name, "more than one dot"}
	}
	for _, part := range []string{base, ext} {
		for i := 0; i < len(part); i++ {
			if c := part[i]; c < 0x20 || c > 0x7E {
				return blank, &NameError{name, fmt.Sprintf("byte %#02x outside printable ASCII", c)}
			}
		}
	}
	return pack([]byte(base), []byte(ext)), nil
}

// Label converts a volume label to its 11-byte space-padded form.
func Label(label string) [11]byte {
	result := blank
	copy(result[:], oem(strings.ToUpper(label)))
	return result
}

// DisplayName returns the conventional "BASE.EXT" form of an 11-byte name.
func DisplayName(name [11]byte) string {
	if name[0] == 0x05 {
		name[0] = 0xE5
	}
	decode := func(b []byte) string {
		var sb strings.Builder
		for _, c := range b {
			sb.WriteRune(charmap.CodePage437.DecodeByte(c))
		}
		return strings.TrimRight(sb.String(), " ")
	}
	base := decode(name[:8])
	if ext := decode(name[8:]); ext != "" {
		return base + "." + ext
	}
	return base
}
