package image_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/unodos/unoimg/direntry"
	"github.com/unodos/unoimg/fat"
	"github.com/unodos/unoimg/geometry"
	"github.com/unodos/unoimg/image"
)

func FuzzSizes(f *testing.F) {
	f.Add([]byte{10, 0, 0, 0, 0xE8, 0x03, 0, 0})
	f.Add([]byte{0, 0, 0, 0})
	f.Fuzz(func(t *testing.T, inp []byte) {
		if len(inp)%4 != 0 {
			return
		}
		var files []image.File
		for cnt := 0; len(inp) > 0; cnt++ {
			fileSize := binary.LittleEndian.Uint32(inp[:4])
			inp = inp[4:]
			if fileSize > 64*1024 {
				return // do not generate files over 64 KB
			}
			files = append(files, image.File{
				Name: fmt.Sprintf("%d.TXT", cnt),
				Data: bytes.Repeat([]byte("x"), int(fileSize)),
			})
		}

		img, _, err := image.Build(image.Config{
			Geometry: geometry.Params{
				Variant:           fat.FAT12,
				SectorSize:        512,
				SectorsPerCluster: 1,
				ReservedSectors:   1,
				FATCopies:         2,
				RootEntries:       224,
				TotalSectors:      2880,
				SectorsPerFAT:     9,
				Media:             fat.MediaRemovable,
			},
			Files: files,
		})
		if errors.Is(err, fat.ErrCapacityExceeded) || errors.Is(err, direntry.ErrDirectoryFull) {
			return
		}
		if err != nil {
			t.Fatal(err)
		}

		v, err := image.Open(bytes.NewReader(img))
		if err != nil {
			t.Fatal(err)
		}
		if err := v.CheckFATCopies(); err != nil {
			t.Fatal(err)
		}
		for _, f := range files {
			got, err := v.ReadFile(f.Name)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, f.Data) {
				t.Fatalf("%s: read back %d bytes, wrote %d", f.Name, len(got), len(f.Data))
			}
		}
	})
}
