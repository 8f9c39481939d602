package image

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// DeriveSerial returns a volume serial number which depends only on the
// label and the names and contents of files, so rebuilding an image from
// the same inputs yields the same bytes.
func DeriveSerial(label string, files []File) uint32 {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err) // only fails for keys longer than 64 bytes
	}
	var n [8]byte
	write := func(b []byte) {
		binary.LittleEndian.PutUint64(n[:], uint64(len(b)))
		h.Write(n[:])
		h.Write(b)
	}
	write([]byte(label))
	for _, f := range files {
		write([]byte(f.Name))
		write(f.Data)
	}
	return binary.LittleEndian.Uint32(h.Sum(nil))
}

// Digest returns the BLAKE2b-256 digest of an image.
func Digest(img []byte) [blake2b.Size256]byte {
	return blake2b.Sum256(img)
}
