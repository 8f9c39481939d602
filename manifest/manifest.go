// Package manifest reads YAML build descriptions and turns them into image
// configurations by loading every referenced input.
//
// A manifest looks like this:
//
//	profile: hd64
//	label: UNODOS
//	serial: auto
//	mbr: mbr.bin
//	vbr: vbr.bin
//	stage2: stage2_hd.bin
//	files:
//	  - source: kernel.bin
//	    name: KERNEL.BIN
//	  - source: clock.bin
//	    optional: true
package manifest

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"

	"github.com/unodos/unoimg/deviceconfig"
	"github.com/unodos/unoimg/fat"
	"github.com/unodos/unoimg/geometry"
)

// SerialAuto derives the volume serial from the image contents.
const SerialAuto = "auto"

// Geometry overrides fields of the profile geometry. Zero values keep the
// profile's value.
type Geometry struct {
	Variant           string `yaml:"variant,omitempty"`
	SectorSize        uint16 `yaml:"sector_size,omitempty"`
	SectorsPerCluster uint8  `yaml:"sectors_per_cluster,omitempty"`
	ReservedSectors   uint16 `yaml:"reserved_sectors,omitempty"`
	FATCopies         uint8  `yaml:"fat_copies,omitempty"`
	RootEntries       uint16 `yaml:"root_entries,omitempty"`
	TotalSectors      uint32 `yaml:"total_sectors,omitempty"`
	SectorsPerFAT     uint16 `yaml:"sectors_per_fat,omitempty"`
	Media             uint8  `yaml:"media,omitempty"`
	SectorsPerTrack   uint16 `yaml:"sectors_per_track,omitempty"`
	Heads             uint16 `yaml:"heads,omitempty"`
	// Cylinders sizes the disk as cylinders × heads × sectors per track.
	// The volume then covers everything from its start to the disk end.
	Cylinders uint32 `yaml:"cylinders,omitempty"`
}

// Blob fills a blob slot of the profile, or declares a new one when Offset
// is set.
type Blob struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	// Offset and MaxSectors are in sectors.
	Offset     *int64 `yaml:"offset,omitempty"`
	MaxSectors int64  `yaml:"max_sectors,omitempty"`
	Optional   bool   `yaml:"optional,omitempty"`
}

// File is stored in the root directory as Name, or as the base name of
// Source when Name is empty.
type File struct {
	Source   string `yaml:"source"`
	Name     string `yaml:"name,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`
}

// Manifest describes one image.
type Manifest struct {
	Profile     string    `yaml:"profile,omitempty"`
	Geometry    *Geometry `yaml:"geometry,omitempty"`
	VolumeStart *uint32   `yaml:"volume_start,omitempty"`
	DiskSectors uint32    `yaml:"disk_sectors,omitempty"`

	Label       string `yaml:"label,omitempty"`
	OEM         string `yaml:"oem,omitempty"`
	Serial      string `yaml:"serial,omitempty"`
	StrictNames bool   `yaml:"strict_names,omitempty"`
	// Timestamps stores the modification time of every source file in its
	// directory entry.
	Timestamps bool `yaml:"timestamps,omitempty"`

	MBR    string `yaml:"mbr,omitempty"`
	VBR    string `yaml:"vbr,omitempty"`
	Stage2 string `yaml:"stage2,omitempty"`
	Blobs  []Blob `yaml:"blobs,omitempty"`
	Files  []File `yaml:"files,omitempty"`

	// dir is the directory relative source paths are resolved against.
	dir string
}

// Dir returns the directory relative source paths are resolved against.
func (m *Manifest) Dir() string { return m.dir }

// SetDir changes the directory relative source paths are resolved against.
func (m *Manifest) SetDir(dir string) { m.dir = dir }

// Parse decodes a manifest. Unknown fields are rejected.
func Parse(r io.Reader) (*Manifest, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.UnmarshalStrict(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads the manifest at path. Relative source paths are resolved
// against the directory containing it.
func Load(fs afero.Fs, path string) (*Manifest, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

// Marshal encodes m as YAML.
func (m *Manifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}

// FromProfile returns the manifest building profile from the outputs in
// buildDir: its required and optional files and, for profiles requiring
// boot code, mbr.bin, vbr.bin and stage2_hd.bin.
func FromProfile(p deviceconfig.Profile, buildDir string) *Manifest {
	m := &Manifest{
		Profile: p.Slug,
		dir:     buildDir,
	}
	if p.RequireBootCode {
		if p.Partitioned {
			m.MBR = "mbr.bin"
		}
		m.VBR = "vbr.bin"
		m.Stage2 = "stage2_hd.bin"
	}
	for _, b := range p.Blobs {
		m.Blobs = append(m.Blobs, Blob{Name: b.Name, Source: b.Name, Optional: !b.Required})
	}
	for _, f := range p.RequiredFiles {
		m.Files = append(m.Files, File{Source: f.Source, Name: f.Name})
	}
	for _, f := range p.OptionalFiles {
		m.Files = append(m.Files, File{Source: f.Source, Name: f.Name, Optional: true})
	}
	return m
}

func parseVariant(s string) (fat.Variant, error) {
	switch s {
	case "FAT12", "fat12", "12":
		return fat.FAT12, nil
	case "FAT16", "fat16", "16":
		return fat.FAT16, nil
	}
	return 0, fmt.Errorf("unknown FAT variant %q", s)
}

// apply overrides the non-zero fields of g in p.
func (g *Geometry) apply(p *geometry.Params) error {
	if g.Variant != "" {
		v, err := parseVariant(g.Variant)
		if err != nil {
			return err
		}
		p.Variant = v
	}
	set16 := func(dst *uint16, v uint16) {
		if v != 0 {
			*dst = v
		}
	}
	set8 := func(dst *uint8, v uint8) {
		if v != 0 {
			*dst = v
		}
	}
	set16(&p.SectorSize, g.SectorSize)
	set8(&p.SectorsPerCluster, g.SectorsPerCluster)
	set16(&p.ReservedSectors, g.ReservedSectors)
	set8(&p.FATCopies, g.FATCopies)
	set16(&p.RootEntries, g.RootEntries)
	set16(&p.SectorsPerFAT, g.SectorsPerFAT)
	set8(&p.Media, g.Media)
	set16(&p.SectorsPerTrack, g.SectorsPerTrack)
	set16(&p.Heads, g.Heads)
	if g.TotalSectors != 0 {
		p.TotalSectors = g.TotalSectors
	}
	return nil
}

func parseSerial(s string) (serial uint32, auto bool, err error) {
	switch s {
	case "":
		return 0, false, nil
	case SerialAuto:
		return 0, true, nil
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, false, fmt.Errorf("serial %q: %w", s, err)
	}
	return uint32(v), false, nil
}
