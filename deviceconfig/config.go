// Package deviceconfig contains the image profiles unoimg knows about: the
// geometry of the FAT volume, where it sits on the disk, and which raw boot
// blobs live outside of it.
package deviceconfig

import (
	"sort"

	"github.com/unodos/unoimg/fat"
	"github.com/unodos/unoimg/geometry"
	"github.com/unodos/unoimg/image"
)

// BlobSlot represents a blob that is stored on the raw disk, outside of the
// FAT volume.
type BlobSlot struct {
	// Name of the input providing the blob.
	Name string
	// Offset on the disk where this blob should be stored.
	Offset int64
	// Maximum length of the blob.
	// `[Offset, Offset+MaxLength)` must not overlap for any 2 BlobSlots of a
	// profile, nor overlap the FAT volume.
	MaxLength int64
	Required  bool
}

type Profile struct {
	// Slug is a unique, short string used on the command line to refer to
	// this profile.
	Slug     string
	Geometry geometry.Params
	// VolumeStart is the first sector of the FAT volume.
	VolumeStart uint32
	// DiskSectors is the size of the whole disk. Zero means the volume
	// ends the disk.
	DiskSectors uint32
	// Partitioned disks carry an MBR with one FAT partition.
	Partitioned     bool
	RequireBootCode bool
	DriveNumber     uint8
	OEM             string
	// BootCodeSectors is the number of OS boot sectors merged into the
	// volume's reserved area by `unoimg graft`.
	BootCodeSectors int
	// Blobs stored on the raw disk.
	Blobs []BlobSlot
	// Files which must be present in the root directory.
	RequiredFiles []FileSlot
	// OptionalFiles are added when present and skipped with a warning
	// otherwise.
	OptionalFiles []FileSlot
}

// FileSlot names a build output and the root directory entry it is stored
// as.
type FileSlot struct {
	// Source is relative to the build directory.
	Source string
	Name   string
}

const sectorSize = 512

// HD64 is the CHS geometry of the hd64 profile.
var HD64 = geometry.Disk{Cylinders: 130, Heads: 16, SectorsPerTrack: 63}

var floppy144 = geometry.Params{
	Variant:           fat.FAT12,
	SectorSize:        sectorSize,
	SectorsPerCluster: 1,
	ReservedSectors:   1,
	FATCopies:         2,
	RootEntries:       224,
	TotalSectors:      2880,
	SectorsPerFAT:     9,
	Media:             fat.MediaRemovable,
	SectorsPerTrack:   18,
	Heads:             2,
}

func with(p geometry.Params, modify func(*geometry.Params)) geometry.Params {
	modify(&p)
	return p
}

var (
	// Profiles contains a mapping from a human-readable description to the
	// profile.
	Profiles = map[string]Profile{
		"1.44 MB floppy": {
			Slug:     "floppy144",
			Geometry: floppy144,
			OEM:      "MSDOS5.0",
		},
		"360 KB floppy": {
			Slug: "floppy360",
			Geometry: with(floppy144, func(p *geometry.Params) {
				p.SectorsPerCluster = 2
				p.RootEntries = 112
				p.TotalSectors = 720
				p.SectorsPerFAT = 2
				p.Media = 0xFD
				p.SectorsPerTrack = 9
			}),
			OEM: "MSDOS5.0",
		},
		// Sector 0 boot, sectors 1-4 stage 2, sector 5 reserved, sectors 6-77
		// kernel, FAT12 volume from sector 78 on.
		"UnoDOS 1.44 MB boot floppy": {
			Slug: "unodos144",
			Geometry: with(floppy144, func(p *geometry.Params) {
				p.TotalSectors = 2880 - 78
			}),
			VolumeStart: 78,
			DiskSectors: 2880,
			OEM:         "UNODOS",
			Blobs: []BlobSlot{
				{"boot.bin", 0 * sectorSize, 1 * sectorSize, true},    // sector 0
				{"stage2.bin", 1 * sectorSize, 4 * sectorSize, true},  // sectors 1 - 4
				{"kernel.bin", 6 * sectorSize, 72 * sectorSize, true}, // sectors 6 - 77
			},
		},
		"UnoDOS bootable test floppy": {
			Slug: "bootable144",
			Geometry: with(floppy144, func(p *geometry.Params) {
				p.ReservedSectors = 5
			}),
			OEM:             "UNODOS",
			BootCodeSectors: 5,
		},
		"UnoDOS 64 MB hard disk": {
			Slug: "hd64",
			Geometry: geometry.Params{
				Variant:           fat.FAT16,
				SectorSize:        sectorSize,
				SectorsPerCluster: 4,
				ReservedSectors:   5, // VBR + 4 sectors for stage2_hd
				FATCopies:         2,
				RootEntries:       512,
				TotalSectors:      HD64.Sectors() - 63,
				Media:             fat.MediaFixed,
				SectorsPerTrack:   uint16(HD64.SectorsPerTrack),
				Heads:             uint16(HD64.Heads),
			},
			VolumeStart:     63,
			DiskSectors:     HD64.Sectors(),
			Partitioned:     true,
			RequireBootCode: true,
			DriveNumber:     0x80,
			OEM:             "UNODOS",
			RequiredFiles:   []FileSlot{{"kernel.bin", "KERNEL.BIN"}},
			OptionalFiles: []FileSlot{
				{"launcher.bin", "LAUNCHER.BIN"},
				{"clock.bin", "CLOCK.BIN"},
				{"browser.bin", "BROWSER.BIN"},
				{"mouse_test.bin", "MOUSE.BIN"},
				{"music.bin", "MUSIC.BIN"},
				{"mkboot.bin", "MKBOOT.BIN"},
				{"settings.bin", "SETTINGS.BIN"},
				{"tetris.bin", "TETRIS.BIN"},
				{"demo.bin", "DEMO.BIN"},
				{"apitest.bin", "APITEST.BIN"},
				{"notepad.bin", "TEXT.BIN"},
			},
		},
	}
)

func GetProfileBySlug(slug string) (Profile, bool) {
	for _, p := range Profiles {
		if p.Slug == slug {
			return p, true
		}
	}

	return Profile{}, false
}

// Slugs returns the slugs of all profiles.
func Slugs() []string {
	slugs := make([]string, 0, len(Profiles))
	for _, p := range Profiles {
		slugs = append(slugs, p.Slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Config returns an image configuration for p. Blob slots are carried over
// without data.
func (p Profile) Config() image.Config {
	cfg := image.Config{
		Geometry:        p.Geometry,
		VolumeStart:     p.VolumeStart,
		DiskSectors:     p.DiskSectors,
		Partitioned:     p.Partitioned,
		RequireBootCode: p.RequireBootCode,
		DriveNumber:     p.DriveNumber,
		OEM:             p.OEM,
	}
	for _, b := range p.Blobs {
		cfg.Blobs = append(cfg.Blobs, image.Blob{
			Name:      b.Name,
			Offset:    b.Offset,
			MaxLength: b.MaxLength,
			Required:  b.Required,
		})
	}
	return cfg
}
