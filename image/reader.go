package image

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"

	"github.com/unodos/unoimg/bootrecord"
	"github.com/unodos/unoimg/direntry"
	"github.com/unodos/unoimg/fat"
	"github.com/unodos/unoimg/geometry"
	"github.com/unodos/unoimg/mbr"
)

// fat12MaxClusters is the cluster count below which a volume without a file
// system type string is FAT12.
const fat12MaxClusters = 4085

// Volume is a FAT volume read back from an image.
type Volume struct {
	r      io.ReaderAt
	base   int64
	bpb    bootrecord.BPB
	layout geometry.Layout
	table  *fat.Table
	root   []direntry.Entry

	// Partition is the partition the volume was found in, if the image
	// starts with an MBR.
	Partition *mbr.Partition
}

// Open reads the volume at the start of r, or in the first partition when r
// starts with an MBR.
func Open(r io.ReaderAt) (*Volume, error) {
	sector := make([]byte, bootrecord.SectorSize)
	if _, err := r.ReadAt(sector, 0); err != nil {
		return nil, err
	}
	if _, err := bootrecord.Parse(sector); err == nil {
		return OpenAt(r, 0)
	}
	parts, err := mbr.Parse(sector)
	if err != nil {
		return nil, fmt.Errorf("neither a FAT boot sector nor an MBR: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("MBR has no partitions")
	}
	part := parts[0]
	for _, p := range parts {
		if p.Bootable {
			part = p
			break
		}
	}
	v, err := OpenAt(r, int64(part.StartLBA)*mbr.SectorSize)
	if err != nil {
		return nil, fmt.Errorf("partition at LBA %d: %w", part.StartLBA, err)
	}
	v.Partition = &part
	return v, nil
}

func variantOf(b bootrecord.BPB) fat.Variant {
	if b.BootSignature == bootrecord.ExtendedBootSignature {
		switch string(bytes.TrimRight(b.FileSystemType[:], " ")) {
		case "FAT12":
			return fat.FAT12
		case "FAT16":
			return fat.FAT16
		}
	}
	return 0
}

// OpenAt reads the volume whose boot sector is at byte offset base of r.
func OpenAt(r io.ReaderAt, base int64) (*Volume, error) {
	sector := make([]byte, bootrecord.SectorSize)
	if _, err := r.ReadAt(sector, base); err != nil {
		return nil, err
	}
	bpb, err := bootrecord.Parse(sector)
	if err != nil {
		return nil, err
	}
	params := geometry.Params{
		Variant:           variantOf(bpb),
		SectorSize:        bpb.BytesPerSector,
		SectorsPerCluster: bpb.SectorsPerCluster,
		ReservedSectors:   bpb.ReservedSectors,
		FATCopies:         bpb.NumFATs,
		RootEntries:       bpb.RootEntries,
		TotalSectors:      bpb.TotalSectors(),
		SectorsPerFAT:     bpb.SectorsPerFAT,
		Media:             bpb.Media,
		SectorsPerTrack:   bpb.SectorsPerTrack,
		Heads:             bpb.Heads,
	}
	if params.Variant == 0 {
		params.Variant = fat.FAT16
		if l, err := geometry.Compute(params); err == nil && l.Clusters < fat12MaxClusters {
			params.Variant = fat.FAT12
		}
	}
	layout, err := geometry.Compute(params)
	if err != nil {
		return nil, err
	}

	v := &Volume{
		r:      r,
		base:   base,
		bpb:    bpb,
		layout: layout,
	}
	fatBuf, err := v.readRegion("fat1")
	if err != nil {
		return nil, err
	}
	if v.table, err = fat.LoadTable(layout.Variant, fatBuf); err != nil {
		return nil, err
	}
	rootBuf, err := v.readRegion("root")
	if err != nil {
		return nil, err
	}
	v.root = direntry.Parse(rootBuf)
	return v, nil
}

func (v *Volume) readRegion(name string) ([]byte, error) {
	reg, ok := geometry.Find(v.layout.Regions(v.base), name)
	if !ok {
		return nil, fmt.Errorf("no %s region", name)
	}
	buf := make([]byte, reg.Length)
	if _, err := v.r.ReadAt(buf, reg.Offset); err != nil {
		return nil, fmt.Errorf("reading %v: %w", reg, err)
	}
	return buf, nil
}

// BPB returns the BIOS parameter block of the volume.
func (v *Volume) BPB() bootrecord.BPB { return v.bpb }

// Layout returns the geometry of the volume.
func (v *Volume) Layout() geometry.Layout { return v.layout }

// Table returns the first FAT copy.
func (v *Volume) Table() *fat.Table { return v.table }

// Label returns the volume label, as stored in the root directory when
// present and in the BPB otherwise.
func (v *Volume) Label() string {
	for _, e := range v.root {
		if e.IsVolumeLabel() {
			return string(bytes.TrimRight(e.Name[:], " "))
		}
	}
	return string(bytes.TrimRight(v.bpb.VolumeLabel[:], " "))
}

// Entries returns the root directory entries, without the volume label.
func (v *Volume) Entries() []direntry.Entry {
	var entries []direntry.Entry
	for _, e := range v.root {
		if e.IsVolumeLabel() || e.Attr&direntry.AttrLongName == direntry.AttrLongName {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

// Lookup returns the entry for name.
func (v *Volume) Lookup(name string) (direntry.Entry, error) {
	short := direntry.ShortName(name)
	for _, e := range v.Entries() {
		if e.Name == short {
			return e, nil
		}
	}
	return direntry.Entry{}, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
}

func (v *Volume) clusterOffset(cluster uint32) int64 {
	return v.base + int64(v.layout.DataStart)*int64(v.layout.SectorSize) + v.layout.ClusterOffset(cluster)
}

// ReadFile follows the cluster chain of name and returns its contents.
func (v *Volume) ReadFile(name string) ([]byte, error) {
	e, err := v.Lookup(name)
	if err != nil {
		return nil, err
	}
	clusters, err := v.table.Chain(uint32(e.FirstCluster))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	cs := int64(v.layout.ClusterSize())
	if need := (int64(e.Size) + cs - 1) / cs; int64(len(clusters)) < need {
		return nil, fmt.Errorf("%s: %d byte file, but chain holds only %d clusters", name, e.Size, len(clusters))
	}
	data := make([]byte, 0, len(clusters)*int(cs))
	buf := make([]byte, cs)
	for _, c := range clusters {
		if _, err := v.r.ReadAt(buf, v.clusterOffset(c)); err != nil {
			return nil, fmt.Errorf("%s: cluster %d: %w", name, c, err)
		}
		data = append(data, buf...)
	}
	return data[:e.Size], nil
}

// Extents returns the byte offset and length of name within the image. It
// fails for files whose clusters are not contiguous.
func (v *Volume) Extents(name string) (offset int64, length int64, err error) {
	e, err := v.Lookup(name)
	if err != nil {
		return 0, 0, err
	}
	clusters, err := v.table.Chain(uint32(e.FirstCluster))
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", name, err)
	}
	for i, c := range clusters {
		if c != clusters[0]+uint32(i) {
			return 0, 0, fmt.Errorf("%s: fragmented at cluster %d", name, c)
		}
	}
	return v.clusterOffset(clusters[0]), int64(e.Size), nil
}

// CheckFATCopies returns an error unless every FAT copy equals the first.
func (v *Volume) CheckFATCopies() error {
	for i := 2; i <= int(v.layout.FATCopies); i++ {
		name := fmt.Sprintf("fat%d", i)
		buf, err := v.readRegion(name)
		if err != nil {
			return err
		}
		if !bytes.Equal(buf, v.table.Bytes()) {
			return fmt.Errorf("%s differs from fat1", name)
		}
	}
	return nil
}
