package mbr

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestToCHS(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		lba  uint32
		want CHS
	}{
		{lba: 0, want: CHS{Cylinder: 0, Head: 0, Sector: 1}},
		{lba: 63, want: CHS{Cylinder: 0, Head: 1, Sector: 1}},
		{lba: 131039, want: CHS{Cylinder: 129, Head: 15, Sector: 63}},
		{lba: 2000000, want: CHS{Cylinder: MaxCylinder, Head: 2, Sector: 3}},
	} {
		if got := ToCHS(tt.lba, 16, 63); got != tt.want {
			t.Errorf("ToCHS(%d, 16, 63) = %+v, want %+v", tt.lba, got, tt.want)
		}
	}
}

func TestCHSBytes(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		chs  CHS
		want [3]byte
	}{
		{CHS{Cylinder: 0, Head: 1, Sector: 1}, [3]byte{0x01, 0x01, 0x00}},
		{CHS{Cylinder: 129, Head: 15, Sector: 63}, [3]byte{0x0F, 0x3F, 0x81}},
		{CHS{Cylinder: 1023, Head: 2, Sector: 3}, [3]byte{0x02, 0xC3, 0xFF}},
		{CHS{Cylinder: 0x2AB, Head: 0, Sector: 5}, [3]byte{0x00, 0x85, 0xAB}},
	} {
		got := tt.chs.Bytes()
		if got != tt.want {
			t.Errorf("%+v.Bytes() = %x, want %x", tt.chs, got, tt.want)
		}
		if back := chsFromBytes(got); back != tt.chs {
			t.Errorf("chsFromBytes(%x) = %+v, want %+v", got, back, tt.chs)
		}
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	code := bytes.Repeat([]byte{0x90}, BootCodeSize)
	p := Partition{Bootable: true, Type: TypeFAT16, StartLBA: 63, Sectors: 130977}
	sector, err := Build(code, p, 16, 63)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(sector[:BootCodeSize], code) {
		t.Error("boot code not copied verbatim")
	}
	want := []byte{
		0x80,             // active
		0x01, 0x01, 0x00, // first CHS
		0x06,             // type
		0x0F, 0x3F, 0x81, // last CHS
		0x3F, 0x00, 0x00, 0x00, // start LBA
		0xA1, 0xFF, 0x01, 0x00, // sectors
	}
	if diff := cmp.Diff(want, sector[TableOffset:TableOffset+16]); diff != "" {
		t.Fatalf("unexpected partition entry: diff (-want +got):\n%s", diff)
	}
	if !bytes.Equal(sector[TableOffset+16:510], make([]byte, 48)) {
		t.Error("unused partition entries not zero")
	}
	if sector[510] != 0x55 || sector[511] != 0xAA {
		t.Errorf("signature = %x, want 55aa", sector[510:])
	}

	first, last := EntryCHS(sector[:], 0)
	if first != (CHS{Cylinder: 0, Head: 1, Sector: 1}) || last != (CHS{Cylinder: 129, Head: 15, Sector: 63}) {
		t.Errorf("EntryCHS = %+v, %+v", first, last)
	}

	got, err := Parse(sector[:])
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Partition{p}, got); diff != "" {
		t.Fatalf("Parse(Build()): diff (-want +got):\n%s", diff)
	}
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()

	p := Partition{Type: TypeFAT16, StartLBA: 63, Sectors: 100}
	if _, err := Build(make([]byte, BootCodeSize+1), p, 16, 63); !errors.Is(err, ErrBootCodeTooLarge) {
		t.Errorf("Build(447 bytes) = %v, want ErrBootCodeTooLarge", err)
	}
	p.Sectors = 0
	if _, err := Build(nil, p, 16, 63); err == nil {
		t.Error("Build accepted an empty partition")
	}
	p.Sectors = 100
	for _, g := range []struct{ heads, spt uint32 }{
		{0, 63},
		{16, 0},
		{256, 63},
		{16, 64},
	} {
		if _, err := Build(nil, p, g.heads, g.spt); !errors.Is(err, ErrGeometry) {
			t.Errorf("Build(%d heads, %d sectors per track) = %v, want ErrGeometry", g.heads, g.spt, err)
		}
	}
	if _, err := Build(nil, p, MaxHeads, MaxSectorsPerTrack); err != nil {
		t.Errorf("Build(%d heads, %d sectors per track) = %v", MaxHeads, MaxSectorsPerTrack, err)
	}
}

func TestParseNoSignature(t *testing.T) {
	t.Parallel()

	if _, err := Parse(make([]byte, SectorSize)); !errors.Is(err, ErrNoSignature) {
		t.Errorf("Parse(zero sector) = %v, want ErrNoSignature", err)
	}
}
