// Package image assembles complete disk images: an optional MBR, raw boot
// blobs at fixed offsets, and a FAT12/FAT16 volume holding a flat root
// directory. Everything is computed and checked before the first byte of
// the image buffer is written.
package image

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/unodos/unoimg/bootrecord"
	"github.com/unodos/unoimg/direntry"
	"github.com/unodos/unoimg/fat"
	"github.com/unodos/unoimg/geometry"
	"github.com/unodos/unoimg/mbr"
)

// DefaultOEM is used when Config.OEM is empty.
const DefaultOEM = "MSDOS5.0"

// Blob is raw data placed at a fixed byte offset of the image, outside of
// the FAT volume: OS boot sectors, a kernel, a bootloader.
type Blob struct {
	Name   string
	Offset int64
	// MaxLength is the size of the slot reserved for the blob. Zero means
	// the blob may extend up to the next region.
	MaxLength int64
	Data      []byte
	Required  bool
}

// File is a file stored in the root directory.
type File struct {
	// Name is converted to an 8.3 short name.
	Name string
	Data []byte
	// ModTime, when non-zero, is stored as the entry's write time and date.
	ModTime time.Time
}

// Config describes one image.
type Config struct {
	Geometry geometry.Params

	// VolumeStart is the sector at which the FAT volume starts.
	VolumeStart uint32
	// DiskSectors is the size of the image in sectors. Zero means
	// VolumeStart + Geometry.TotalSectors.
	DiskSectors uint32

	// Partitioned writes an MBR with one active partition covering the
	// volume to sector 0. The volume's hidden sectors are set to
	// VolumeStart.
	Partitioned   bool
	MBRCode       []byte
	PartitionType uint8 // zero means mbr.TypeFAT16

	// BootTemplate supplies the jump code, OEM name and boot code of the
	// volume boot sector.
	BootTemplate []byte
	// Stage2 is placed in the reserved sectors following the boot sector.
	Stage2 []byte
	// RequireBootCode makes BootTemplate, Stage2 and (for partitioned
	// images) MBRCode mandatory.
	RequireBootCode bool

	Blobs []Blob
	Files []File

	Label       string
	OEM         string
	Serial      uint32
	DriveNumber uint8
	// StrictNames rejects file names which do not fit 8.3 instead of
	// truncating them.
	StrictNames bool

	Logger *zap.Logger
}

// Placement records where a file ended up.
type Placement struct {
	Name      string
	ShortName [11]byte
	Chain     fat.Chain
	Size      int64
	// Offset is the byte offset of the first cluster within the image.
	Offset int64
}

// Report summarizes a build.
type Report struct {
	Layout       geometry.Layout
	Regions      []geometry.Region
	Files        []Placement
	FreeClusters uint32
	Size         int64
}

func (cfg *Config) logger() *zap.Logger {
	if cfg.Logger == nil {
		return zap.NewNop()
	}
	return cfg.Logger
}

func (cfg *Config) checkInputs() error {
	var err error
	if cfg.RequireBootCode {
		if cfg.Partitioned && cfg.MBRCode == nil {
			err = multierr.Append(err, &MissingInputError{Name: "MBR boot code"})
		}
		if cfg.BootTemplate == nil {
			err = multierr.Append(err, &MissingInputError{Name: "volume boot record"})
		}
		if cfg.Stage2 == nil {
			err = multierr.Append(err, &MissingInputError{Name: "second stage loader"})
		}
	}
	for _, b := range cfg.Blobs {
		if b.Required && b.Data == nil {
			err = multierr.Append(err, &MissingInputError{Name: b.Name})
		}
	}
	return err
}

func (cfg *Config) shortName(name string) ([11]byte, error) {
	if cfg.StrictNames {
		return direntry.ShortNameStrict(name)
	}
	return direntry.ShortName(name), nil
}

// plan is everything Build computes before touching the image buffer.
type plan struct {
	layout  geometry.Layout
	base    int64
	size    int64
	regions []geometry.Region
	stage2  geometry.Region
	dir     *direntry.Builder
	files   []Placement
	free    uint32
}

func (cfg *Config) plan() (*plan, error) {
	if err := cfg.checkInputs(); err != nil {
		return nil, err
	}
	layout, err := geometry.Compute(cfg.Geometry)
	if err != nil {
		return nil, err
	}
	ss := int64(layout.SectorSize)
	diskSectors := cfg.DiskSectors
	if diskSectors == 0 {
		diskSectors = cfg.VolumeStart + layout.TotalSectors
	}
	p := &plan{
		layout: layout,
		base:   int64(cfg.VolumeStart) * ss,
		size:   int64(diskSectors) * ss,
	}

	// Names and directory entries, in allocation order.
	dir, err := direntry.NewBuilder(int(layout.RootEntries), direntry.Label(cfg.Label))
	if err != nil {
		return nil, err
	}
	p.dir = dir
	alloc := fat.NewAllocator(layout.ClusterSize(), layout.Capacity())
	seen := make(map[[11]byte]string)
	for _, f := range cfg.Files {
		short, err := cfg.shortName(f.Name)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[short]; ok {
			return nil, &direntry.NameError{Name: f.Name, Reason: fmt.Sprintf("short name %q already used by %q", direntry.DisplayName(short), prev)}
		}
		seen[short] = f.Name
		if int64(len(f.Data)) > math.MaxUint32 {
			return nil, &LayoutError{Region: f.Name, Reason: fmt.Sprintf("%d bytes exceed the 32-bit file size", len(f.Data))}
		}
		chain, err := alloc.Allocate(f.Name, int64(len(f.Data)))
		if err != nil {
			return nil, err
		}
		if err := dir.Add(direntry.Entry{
			Name:         short,
			Attr:         direntry.AttrArchive,
			FirstCluster: uint16(chain.First),
			Size:         uint32(len(f.Data)),
			ModTime:      f.ModTime,
		}); err != nil {
			return nil, err
		}
		p.files = append(p.files, Placement{
			Name:      f.Name,
			ShortName: short,
			Chain:     chain,
			Size:      int64(len(f.Data)),
			Offset:    p.base + int64(layout.DataStart)*ss + layout.ClusterOffset(chain.First),
		})
	}
	p.free = alloc.Free()

	// Regions.
	if cfg.Partitioned {
		if cfg.VolumeStart == 0 {
			return nil, &LayoutError{Region: "mbr", Reason: "partitioned image needs the volume to start after sector 0"}
		}
		if err := mbr.CheckGeometry(uint32(layout.Heads), uint32(layout.SectorsPerTrack)); err != nil {
			return nil, &LayoutError{Region: "mbr", Reason: err.Error()}
		}
		if len(cfg.MBRCode) > mbr.BootCodeSize {
			return nil, &LayoutError{Region: "mbr", Reason: fmt.Sprintf("boot code is %d bytes, at most %d fit", len(cfg.MBRCode), mbr.BootCodeSize)}
		}
		p.regions = append(p.regions, geometry.Region{Name: "mbr", Offset: 0, Length: mbr.SectorSize})
	}
	if len(cfg.BootTemplate) > bootrecord.SectorSize {
		return nil, &LayoutError{Region: "boot", Reason: fmt.Sprintf("template is %d bytes, at most %d fit", len(cfg.BootTemplate), bootrecord.SectorSize)}
	}
	names := map[string]bool{"mbr": true, "boot": true, "reserved": true, "root": true, "data": true, "stage2": true}
	for i := 1; i <= int(layout.FATCopies); i++ {
		names[fmt.Sprintf("fat%d", i)] = true
	}
	for _, b := range cfg.Blobs {
		if names[b.Name] {
			return nil, &LayoutError{Region: b.Name, Reason: "blob name already names another region"}
		}
		names[b.Name] = true
		if b.Data == nil {
			continue
		}
		if b.Offset < 0 {
			return nil, &LayoutError{Region: b.Name, Reason: fmt.Sprintf("negative offset %d", b.Offset)}
		}
		if b.MaxLength > 0 && int64(len(b.Data)) > b.MaxLength {
			return nil, &LayoutError{Region: b.Name, Reason: fmt.Sprintf("%d bytes exceed the %d byte slot", len(b.Data), b.MaxLength)}
		}
		p.regions = append(p.regions, geometry.Region{Name: b.Name, Offset: b.Offset, Length: int64(len(b.Data))})
	}
	p.regions = append(p.regions, layout.Regions(p.base)...)

	reserved, _ := geometry.Find(p.regions, "reserved")
	p.stage2 = geometry.Region{Name: "stage2", Offset: reserved.Offset, Length: int64(len(cfg.Stage2))}
	if p.stage2.Length > reserved.Length {
		return nil, &LayoutError{Region: "stage2", Reason: fmt.Sprintf(
			"%d bytes do not fit the %d reserved sectors after the boot sector", p.stage2.Length, layout.ReservedSectors-1)}
	}

	for _, r := range p.regions {
		if r.Offset < 0 || r.End() > p.size {
			return nil, &LayoutError{Region: r.Name, Reason: fmt.Sprintf("%v extends past the %d byte image", r, p.size)}
		}
	}
	if a, b, ok := geometry.FirstOverlap(p.regions); ok {
		return nil, &LayoutError{Region: b.Name, Reason: fmt.Sprintf("%v overlaps %v", b, a)}
	}
	data, _ := geometry.Find(p.regions, "data")
	for _, f := range p.files {
		end := f.Offset + int64(f.Chain.Count)*int64(layout.ClusterSize())
		if end > data.End() {
			return nil, &LayoutError{Region: f.Name, Reason: fmt.Sprintf("clusters end at %#x, past the data area end %#x", end, data.End())}
		}
	}
	return p, nil
}

func (cfg *Config) bootSector(layout geometry.Layout) ([bootrecord.SectorSize]byte, error) {
	bpb := bootrecord.BPB{
		BytesPerSector:    layout.SectorSize,
		SectorsPerCluster: layout.SectorsPerCluster,
		ReservedSectors:   layout.ReservedSectors,
		NumFATs:           layout.FATCopies,
		RootEntries:       layout.RootEntries,
		Media:             layout.Media,
		SectorsPerFAT:     uint16(layout.FATSectors),
		SectorsPerTrack:   layout.SectorsPerTrack,
		Heads:             layout.Heads,
		DriveNumber:       cfg.DriveNumber,
		BootSignature:     bootrecord.ExtendedBootSignature,
		VolumeID:          cfg.Serial,
		VolumeLabel:       direntry.Label(cfg.Label),
	}
	if cfg.Partitioned {
		bpb.HiddenSectors = cfg.VolumeStart
	}
	bpb.SetTotalSectors(layout.TotalSectors)
	oem := cfg.OEM
	if oem == "" {
		oem = DefaultOEM
	}
	copy(bpb.OEMName[:], fmt.Sprintf("%-8.8s", oem))
	copy(bpb.FileSystemType[:], fmt.Sprintf("%-8s", layout.Variant.String()))
	return bootrecord.Build(bpb, cfg.BootTemplate)
}

func (cfg *Config) partitionType() uint8 {
	if cfg.PartitionType != 0 {
		return cfg.PartitionType
	}
	return mbr.TypeFAT16
}

// Build assembles the image described by cfg. On error, no image is
// returned.
func Build(cfg Config) ([]byte, *Report, error) {
	log := cfg.logger()
	p, err := cfg.plan()
	if err != nil {
		return nil, nil, err
	}
	layout := p.layout

	// Encode every region before allocating the image.
	var mbrSector [mbr.SectorSize]byte
	if cfg.Partitioned {
		mbrSector, err = mbr.Build(cfg.MBRCode, mbr.Partition{
			Bootable: true,
			Type:     cfg.partitionType(),
			StartLBA: cfg.VolumeStart,
			Sectors:  layout.TotalSectors,
		}, uint32(layout.Heads), uint32(layout.SectorsPerTrack))
		if err != nil {
			return nil, nil, err
		}
	}
	boot, err := cfg.bootSector(layout)
	if err != nil {
		return nil, nil, err
	}
	table, err := fat.NewTable(layout.Variant, layout.Media, layout.FATBytes())
	if err != nil {
		return nil, nil, err
	}
	for _, f := range p.files {
		if err := table.Link(f.Chain); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	root, _ := geometry.Find(p.regions, "root")
	dirBytes, err := p.dir.Bytes(int(root.Length))
	if err != nil {
		return nil, nil, err
	}

	img := make([]byte, p.size)
	// region returns the capacity-limited slice of r.
	region := func(r geometry.Region) []byte {
		return img[r.Offset:r.End():r.End()]
	}
	find := func(name string) []byte {
		r, _ := geometry.Find(p.regions, name)
		return region(r)
	}

	if cfg.Partitioned {
		copy(find("mbr"), mbrSector[:])
	}
	for _, b := range cfg.Blobs {
		if b.Data == nil {
			continue
		}
		copy(find(b.Name), b.Data)
		log.Debug("placed blob", zap.String("name", b.Name), zap.Int64("offset", b.Offset), zap.Int("size", len(b.Data)))
	}
	copy(find("boot"), boot[:])
	copy(region(p.stage2), cfg.Stage2)
	for i := 0; i < int(layout.FATCopies); i++ {
		copy(find(fmt.Sprintf("fat%d", i+1)), table.Bytes())
	}
	copy(find("root"), dirBytes)
	data := find("data")
	for i, f := range p.files {
		off := layout.ClusterOffset(f.Chain.First)
		copy(data[off:off+int64(f.Chain.Count)*int64(layout.ClusterSize())], cfg.Files[i].Data)
		log.Info("placed file",
			zap.String("name", direntry.DisplayName(f.ShortName)),
			zap.Uint32("cluster", f.Chain.First),
			zap.Uint32("clusters", f.Chain.Count),
			zap.Int64("size", f.Size))
	}

	return img, &Report{
		Layout:       layout,
		Regions:      p.regions,
		Files:        p.files,
		FreeClusters: p.free,
		Size:         p.size,
	}, nil
}
