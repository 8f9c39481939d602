package image_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/unodos/unoimg/fat"
	"github.com/unodos/unoimg/geometry"
	"github.com/unodos/unoimg/image"
)

func TestDosfsck(t *testing.T) {
	dosfsck, err := exec.LookPath("dosfsck")
	if err != nil {
		t.Skip("dosfsck not installed")
	}

	for _, tt := range []struct {
		name   string
		params geometry.Params
	}{
		{
			name: "floppy",
			params: geometry.Params{
				Variant:           fat.FAT12,
				SectorSize:        512,
				SectorsPerCluster: 1,
				ReservedSectors:   1,
				FATCopies:         2,
				RootEntries:       224,
				TotalSectors:      2880,
				SectorsPerFAT:     9,
				Media:             fat.MediaRemovable,
				SectorsPerTrack:   18,
				Heads:             2,
			},
		},
		{
			name: "hard disk volume",
			params: geometry.Params{
				Variant:           fat.FAT16,
				SectorSize:        512,
				SectorsPerCluster: 4,
				ReservedSectors:   5,
				FATCopies:         2,
				RootEntries:       512,
				TotalSectors:      130977,
				Media:             fat.MediaFixed,
				SectorsPerTrack:   63,
				Heads:             16,
			},
		},
	} {
		tt := tt // copy
		t.Run(tt.name, func(t *testing.T) {
			img, _, err := image.Build(image.Config{
				Geometry: tt.params,
				Label:    "UNODOS",
				Files: []image.File{
					{Name: "resolv.conf", Data: []byte("nameserver 8.8.8.8")},
					{Name: "kernel.bin", Data: make([]byte, 300*1024)},
					{Name: "s.txt", Data: []byte("short file name")},
				},
			})
			if err != nil {
				t.Fatal(err)
			}
			fn := filepath.Join(t.TempDir(), "fs.img")
			if err := os.WriteFile(fn, img, 0644); err != nil {
				t.Fatal(err)
			}
			cmd := exec.Command(dosfsck, "-n", "-v", fn)
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			if err := cmd.Run(); err != nil {
				t.Fatal(err)
			}
		})
	}
}
