package image

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"github.com/unodos/unoimg/direntry"
	"github.com/unodos/unoimg/fat"
	"github.com/unodos/unoimg/geometry"
)

var floppy144 = geometry.Params{
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
}

var hd64 = geometry.Params{
	Variant:           fat.FAT16,
	SectorSize:        512,
	SectorsPerCluster: 4,
	ReservedSectors:   5,
	FATCopies:         2,
	RootEntries:       512,
	TotalSectors:      131040 - 63,
	Media:             fat.MediaFixed,
	SectorsPerTrack:   63,
	Heads:             16,
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i) ^ seed
	}
	return b
}

func TestTwoFiles(t *testing.T) {
	t.Parallel()

	img, report, err := Build(Config{
		Geometry: floppy144,
		Label:    "UNODOS",
		Files: []File{
			{Name: "A.BIN", Data: pattern(10, 'a')},
			{Name: "B.BIN", Data: pattern(1000, 'b')},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(img), 2880*512; got != want {
		t.Fatalf("len(img) = %d, want %d", got, want)
	}

	var chains []fat.Chain
	for _, f := range report.Files {
		chains = append(chains, f.Chain)
	}
	if diff := cmp.Diff([]fat.Chain{{First: 2, Count: 1}, {First: 3, Count: 2}}, chains); diff != "" {
		t.Fatalf("unexpected chains: diff (-want +got):\n%s", diff)
	}

	fat1 := img[1*512 : 10*512]
	fat2 := img[10*512 : 19*512]
	if !bytes.Equal(fat1, fat2) {
		t.Fatal("FAT copies differ")
	}
	want := []byte{0xF0, 0xFF, 0xFF, 0xFF, 0x4F, 0x00, 0xFF, 0x0F, 0x00}
	if diff := cmp.Diff(want, fat1[:len(want)]); diff != "" {
		t.Fatalf("unexpected FAT: diff (-want +got):\n%s", diff)
	}
	tbl, err := fat.LoadTable(fat.FAT12, fat1)
	if err != nil {
		t.Fatal(err)
	}
	for cluster, want := range map[uint32]uint16{2: 0xFFF, 3: 4, 4: 0xFFF, 5: 0} {
		got, err := tbl.Get(cluster)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("FAT[%d] = %#x, want %#x", cluster, got, want)
		}
	}

	root := img[19*512 : 33*512]
	entries := direntry.Parse(root)
	if got, want := len(entries), 3; got != want {
		t.Fatalf("len(entries) = %d, want %d", got, want)
	}
	if !entries[0].IsVolumeLabel() || string(entries[0].Name[:]) != "UNODOS     " {
		t.Errorf("entry 0 = %+v, want volume label UNODOS", entries[0])
	}
	for i, want := range []struct {
		name    string
		cluster uint16
		size    uint32
	}{
		{"A       BIN", 2, 10},
		{"B       BIN", 3, 1000},
	} {
		e := entries[i+1]
		if string(e.Name[:]) != want.name || e.Attr != direntry.AttrArchive || e.FirstCluster != want.cluster || e.Size != want.size {
			t.Errorf("entry %d = %q attr %#x cluster %d size %d, want %q attr 0x20 cluster %d size %d",
				i+1, e.Name[:], e.Attr, e.FirstCluster, e.Size, want.name, want.cluster, want.size)
		}
	}

	if got, want := img[33*512:33*512+10], pattern(10, 'a'); !bytes.Equal(got, want) {
		t.Errorf("A.BIN data = %x, want %x", got, want)
	}
	if got, want := img[34*512:34*512+1000], pattern(1000, 'b'); !bytes.Equal(got, want) {
		t.Errorf("B.BIN data mismatch")
	}
	if img[510] != 0x55 || img[511] != 0xAA {
		t.Errorf("boot signature = %x, want 55aa", img[510:512])
	}
	if got, want := report.FreeClusters, uint32(2847-3); got != want {
		t.Errorf("FreeClusters = %d, want %d", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, params := range []geometry.Params{floppy144, func() geometry.Params {
		p := floppy144
		p.SectorsPerCluster = 2
		p.SectorsPerFAT = 0
		return p
	}()} {
		cs := int(params.SectorSize) * int(params.SectorsPerCluster)
		var files []File
		for i, size := range []int{0, 1, cs - 1, cs, cs + 1, 2 * cs, 3*cs + 7, 10 * cs} {
			files = append(files, File{
				Name: fmt.Sprintf("F%d.BIN", i),
				Data: pattern(size, byte(i)),
			})
		}
		img, _, err := Build(Config{Geometry: params, Label: "ROUNDTRIP", Files: files})
		if err != nil {
			t.Fatal(err)
		}
		v, err := Open(bytes.NewReader(img))
		if err != nil {
			t.Fatal(err)
		}
		if got, want := v.Label(), "ROUNDTRIP"; got != want {
			t.Errorf("Label() = %q, want %q", got, want)
		}
		if err := v.CheckFATCopies(); err != nil {
			t.Error(err)
		}
		for _, f := range files {
			got, err := v.ReadFile(f.Name)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, f.Data) {
				t.Errorf("ReadFile(%s): got %d bytes, want %d bytes %x…", f.Name, len(got), len(f.Data), f.Data[:min(len(f.Data), 8)])
			}
			clusters, err := v.Table().Chain(uint32(mustLookup(t, v, f.Name).FirstCluster))
			if err != nil {
				t.Fatal(err)
			}
			if got, want := uint32(len(clusters)), fat.ClustersFor(int64(len(f.Data)), cs); got != want {
				t.Errorf("%s: chain of %d clusters, want %d", f.Name, got, want)
			}
		}
	}
}

func mustLookup(t *testing.T, v *Volume, name string) direntry.Entry {
	t.Helper()
	e, err := v.Lookup(name)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestDirectoryFull(t *testing.T) {
	t.Parallel()

	p := floppy144
	p.RootEntries = 3
	img, _, err := Build(Config{
		Geometry: p,
		Files: []File{
			{Name: "ONE.BIN", Data: []byte("1")},
			{Name: "TWO.BIN", Data: []byte("2")},
			{Name: "THREE.BIN", Data: []byte("3")},
		},
	})
	if !errors.Is(err, direntry.ErrDirectoryFull) {
		t.Fatalf("Build = %v, want ErrDirectoryFull", err)
	}
	if img != nil {
		t.Error("Build returned an image despite failing")
	}
}

func TestCapacityExceeded(t *testing.T) {
	t.Parallel()

	_, _, err := Build(Config{
		Geometry: floppy144,
		Files: []File{
			{Name: "KERNEL.BIN", Data: make([]byte, 1024*1024)},
			{Name: "HUGE.BIN", Data: make([]byte, 512*1024)},
		},
	})
	if !errors.Is(err, fat.ErrCapacityExceeded) {
		t.Fatalf("Build = %v, want ErrCapacityExceeded", err)
	}
	var ce *fat.CapacityError
	if !errors.As(err, &ce) || ce.Name != "HUGE.BIN" {
		t.Fatalf("Build = %v, want CapacityError naming HUGE.BIN", err)
	}
}

func TestInvalidNames(t *testing.T) {
	t.Parallel()

	_, _, err := Build(Config{
		Geometry:    floppy144,
		StrictNames: true,
		Files:       []File{{Name: "settings1.bin"}},
	})
	if !errors.Is(err, direntry.ErrInvalidName) {
		t.Errorf("strict Build = %v, want ErrInvalidName", err)
	}

	_, _, err = Build(Config{
		Geometry: floppy144,
		Files: []File{
			{Name: "settings1.bin"},
			{Name: "SETTINGS2.BIN"},
		},
	})
	if !errors.Is(err, direntry.ErrInvalidName) {
		t.Errorf("Build with colliding short names = %v, want ErrInvalidName", err)
	}
}

func TestMissingInput(t *testing.T) {
	t.Parallel()

	_, _, err := Build(Config{
		Geometry:        hd64,
		VolumeStart:     63,
		Partitioned:     true,
		RequireBootCode: true,
		Blobs:           []Blob{{Name: "kernel", Offset: 0, Required: true}},
	})
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("Build = %v, want ErrMissingInput", err)
	}
	var names []string
	for _, err := range multierr.Errors(err) {
		var mi *MissingInputError
		if errors.As(err, &mi) {
			names = append(names, mi.Name)
		}
	}
	want := []string{"MBR boot code", "volume boot record", "second stage loader", "kernel"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("unexpected missing inputs: diff (-want +got):\n%s", diff)
	}
}

func withCHS(p geometry.Params, heads, sectorsPerTrack uint16) geometry.Params {
	p.Heads = heads
	p.SectorsPerTrack = sectorsPerTrack
	return p
}

func TestLayoutOverflow(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		cfg  Config
	}{
		{
			name: "stage2 without reserved sectors",
			cfg:  Config{Geometry: floppy144, Stage2: []byte{1}},
		},
		{
			name: "blob overlapping the volume",
			cfg: Config{
				Geometry:    floppy144,
				VolumeStart: 78,
				Blobs:       []Blob{{Name: "kernel", Offset: 512, Data: make([]byte, 78*512)}},
			},
		},
		{
			name: "blob exceeding its slot",
			cfg: Config{
				Geometry:    floppy144,
				VolumeStart: 78,
				Blobs:       []Blob{{Name: "kernel", Offset: 512, MaxLength: 1024, Data: make([]byte, 1025)}},
			},
		},
		{
			name: "volume past the image end",
			cfg:  Config{Geometry: floppy144, VolumeStart: 78, DiskSectors: 2880},
		},
		{
			name: "MBR without room",
			cfg:  Config{Geometry: floppy144, Partitioned: true},
		},
		{
			name: "MBR without CHS geometry",
			cfg: Config{
				Geometry:    withCHS(hd64, 0, 0),
				VolumeStart: 63,
				Partitioned: true,
			},
		},
		{
			name: "more heads than CHS can address",
			cfg: Config{
				Geometry:    withCHS(hd64, 256, 63),
				VolumeStart: 63,
				Partitioned: true,
			},
		},
		{
			name: "more sectors per track than CHS can address",
			cfg: Config{
				Geometry:    withCHS(hd64, 16, 64),
				VolumeStart: 63,
				Partitioned: true,
			},
		},
		{
			name: "blob named like a region",
			cfg:  Config{Geometry: floppy144, Blobs: []Blob{{Name: "root", Data: []byte{1}}}},
		},
	} {
		tt := tt // copy
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			img, _, err := Build(tt.cfg)
			if !errors.Is(err, ErrLayoutOverflow) {
				t.Fatalf("Build = %v, want ErrLayoutOverflow", err)
			}
			if img != nil {
				t.Error("Build returned an image despite failing")
			}
		})
	}
}

func TestHardDisk(t *testing.T) {
	t.Parallel()

	mbrCode := append([]byte{0xFA, 0x31, 0xC0}, pattern(400, 'm')...)
	template := make([]byte, 512)
	copy(template, []byte{0xEB, 0x3C, 0x90})
	copy(template[3:], "UNODOS  ")
	copy(template[0x3E:], pattern(100, 'v'))
	stage2 := pattern(2048, 's')
	kernel := pattern(28*1024+3, 'k')

	img, report, err := Build(Config{
		Geometry:        hd64,
		VolumeStart:     63,
		DiskSectors:     131040,
		Partitioned:     true,
		MBRCode:         mbrCode,
		BootTemplate:    template,
		Stage2:          stage2,
		RequireBootCode: true,
		Label:           "UNODOS",
		Serial:          0x12345678,
		DriveNumber:     0x80,
		Files: []File{
			{Name: "KERNEL.BIN", Data: kernel},
			{Name: "CLOCK.BIN", Data: pattern(3000, 'c')},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(img), 131040*512; got != want {
		t.Fatalf("len(img) = %d, want %d", got, want)
	}
	if got, want := report.Layout.FATSectors, uint32(128); got != want {
		t.Errorf("FATSectors = %d, want %d", got, want)
	}

	if !bytes.Equal(img[:len(mbrCode)], mbrCode) {
		t.Error("MBR boot code not copied verbatim")
	}
	if img[0x1BE] != 0x80 || img[0x1C2] != 0x06 {
		t.Errorf("partition entry status %#x type %#x, want 0x80 0x06", img[0x1BE], img[0x1C2])
	}
	if got, want := binary.LittleEndian.Uint32(img[0x1C6:]), uint32(63); got != want {
		t.Errorf("partition start = %d, want %d", got, want)
	}

	vbr := img[63*512 : 64*512]
	if got, want := vbr[:11], template[:11]; !bytes.Equal(got, want) {
		t.Errorf("VBR jump and OEM = %x, want %x", got, want)
	}
	if got, want := vbr[0x3E:0x3E+100], template[0x3E:0x3E+100]; !bytes.Equal(got, want) {
		t.Error("VBR boot code not taken from the template")
	}
	for _, tt := range []struct {
		field     string
		got, want uint32
	}{
		{"hidden sectors", binary.LittleEndian.Uint32(vbr[0x1C:]), 63},
		{"total sectors 16", uint32(binary.LittleEndian.Uint16(vbr[0x13:])), 0},
		{"total sectors 32", binary.LittleEndian.Uint32(vbr[0x20:]), 130977},
		{"drive number", uint32(vbr[0x24]), 0x80},
		{"serial", binary.LittleEndian.Uint32(vbr[0x27:]), 0x12345678},
	} {
		if tt.got != tt.want {
			t.Errorf("%s = %#x, want %#x", tt.field, tt.got, tt.want)
		}
	}
	if got, want := string(vbr[0x36:0x3E]), "FAT16   "; got != want {
		t.Errorf("file system type = %q, want %q", got, want)
	}
	if got := img[64*512 : 64*512+len(stage2)]; !bytes.Equal(got, stage2) {
		t.Error("stage2 not placed after the VBR")
	}
	fat1 := (63 + 5) * 512
	if got, want := img[fat1:fat1+4], []byte{0xF8, 0xFF, 0xFF, 0xFF}; !bytes.Equal(got, want) {
		t.Errorf("FAT16 reserved entries = %x, want %x", got, want)
	}

	v, err := Open(bytes.NewReader(img))
	if err != nil {
		t.Fatal(err)
	}
	if v.Partition == nil || v.Partition.StartLBA != 63 {
		t.Fatalf("Partition = %+v, want start LBA 63", v.Partition)
	}
	if got, want := v.Layout().Variant, fat.FAT16; got != want {
		t.Errorf("Variant = %v, want %v", got, want)
	}
	got, err := v.ReadFile("kernel.bin")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, kernel) {
		t.Error("KERNEL.BIN does not round-trip")
	}
	offset, length, err := v.Extents("CLOCK.BIN")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(pattern(3000, 'c'), img[offset:offset+length]); diff != "" {
		t.Fatalf("unexpected CLOCK.BIN contents: diff (-want +got):\n%s", diff)
	}
}

func TestFloppyWithOS(t *testing.T) {
	t.Parallel()

	p := floppy144
	p.TotalSectors = 2880 - 78
	bootSector := pattern(512, 'o')
	bootSector[0] = 0xFA
	kernel := pattern(28*1024, 'k')
	img, report, err := Build(Config{
		Geometry:    p,
		VolumeStart: 78,
		DiskSectors: 2880,
		Label:       "UNODOS",
		Blobs: []Blob{
			{Name: "os boot", Offset: 0, MaxLength: 512, Data: bootSector, Required: true},
			{Name: "kernel", Offset: 6 * 512, MaxLength: 72 * 512, Data: kernel},
		},
		Files: []File{{Name: "CLOCK.BIN", Data: []byte("tick")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(img), 2880*512; got != want {
		t.Fatalf("len(img) = %d, want %d", got, want)
	}
	if !bytes.Equal(img[:512], bootSector) {
		t.Error("OS boot sector not at sector 0")
	}
	if !bytes.Equal(img[6*512:6*512+len(kernel)], kernel) {
		t.Error("kernel not at sector 6")
	}
	boot, ok := geometry.Find(report.Regions, "boot")
	if !ok || boot.Offset != 78*512 {
		t.Fatalf("boot region = %v, want offset %#x", boot, 78*512)
	}
	if got, want := binary.LittleEndian.Uint16(img[78*512+0x13:]), uint16(2802); got != want {
		t.Errorf("BPB total sectors = %d, want %d", got, want)
	}
	if got, want := binary.LittleEndian.Uint32(img[78*512+0x1C:]), uint32(0); got != want {
		t.Errorf("BPB hidden sectors = %d, want %d", got, want)
	}

	v, err := OpenAt(bytes.NewReader(img), 78*512)
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.ReadFile("CLOCK.BIN")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "tick" {
		t.Errorf("CLOCK.BIN = %q, want %q", got, "tick")
	}
}

func TestDeterministic(t *testing.T) {
	t.Parallel()

	files := []File{{Name: "A.BIN", Data: []byte("a")}, {Name: "B.BIN", Data: []byte("b")}}
	cfg := Config{Geometry: floppy144, Label: "SAME", Files: files, Serial: DeriveSerial("SAME", files)}
	first, _, err := Build(cfg)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := Build(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if Digest(first) != Digest(second) {
		t.Error("building the same configuration twice yields different images")
	}

	changed := []File{{Name: "A.BIN", Data: []byte("a")}, {Name: "B.BIN", Data: []byte("c")}}
	if DeriveSerial("SAME", files) == DeriveSerial("SAME", changed) {
		t.Error("DeriveSerial ignores file contents")
	}
}

func TestSectorSmallerThanBootSector(t *testing.T) {
	t.Parallel()

	p := floppy144
	p.SectorSize = 256
	p.TotalSectors = 400
	p.SectorsPerFAT = 0
	img, _, err := Build(Config{Geometry: p, Files: []File{{Name: "A.BIN", Data: []byte("a")}}})
	if !errors.Is(err, geometry.ErrInvalid) {
		t.Fatalf("Build = %v, want geometry.ErrInvalid", err)
	}
	if img != nil {
		t.Error("Build returned an image despite failing")
	}
}
