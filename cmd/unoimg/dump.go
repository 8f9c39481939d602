package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/unodos/unoimg/direntry"
	"github.com/unodos/unoimg/image"
	"github.com/unodos/unoimg/output"
)

// freeClusters counts the unallocated clusters of v.
func freeClusters(v *image.Volume) uint32 {
	var free uint32
	last := v.Layout().Clusters + 1
	for c := uint32(2); c <= last; c++ {
		if value, err := v.Table().Get(c); err == nil && value == 0 {
			free++
		}
	}
	return free
}

func dumpVolume(w io.Writer, v *image.Volume) error {
	b := v.BPB()
	l := v.Layout()
	clusterSize := uint64(l.SectorsPerCluster) * uint64(l.SectorSize)
	fmt.Fprintf(w, "Volume label:  %s\n", v.Label())
	fmt.Fprintf(w, "OEM name:      %s\n", bytes.TrimRight(b.OEMName[:], " "))
	fmt.Fprintf(w, "Serial:        %04X-%04X\n", b.VolumeID>>16, b.VolumeID&0xFFFF)
	fmt.Fprintf(w, "File system:   %v, %d clusters of %s, %s free\n",
		l.Variant, l.Clusters, humanize.IBytes(clusterSize),
		humanize.IBytes(uint64(freeClusters(v))*clusterSize))
	fmt.Fprintf(w, "Layout:        %d reserved, %d FATs of %d sectors, %d root entries, data from sector %d\n",
		l.ReservedSectors, l.FATCopies, l.FATSectors, l.RootEntries, l.DataStart)
	if v.Partition != nil {
		fmt.Fprintf(w, "Partition:     type 0x%02X, sectors %d-%d\n",
			v.Partition.Type, v.Partition.StartLBA, v.Partition.End())
	}
	if err := v.CheckFATCopies(); err != nil {
		fmt.Fprintf(w, "Warning:       %v\n", err)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tATTR\tCLUSTER\tSIZE")
	for _, e := range v.Entries() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", e, direntry.AttrString(e.Attr), e.FirstCluster, e.Size)
	}
	return tw.Flush()
}

func dumpCmd() *cobra.Command {
	var (
		offset int64
		digest bool
	)
	cmd := &cobra.Command{
		Use:   "dump [--offset SECTORS] [--digest] IMAGE",
		Short: "Print the boot parameters and root directory of an image",
		Long: `Print the boot parameters and root directory of an image.

Without --offset, the volume is found at sector 0 or through the first
bootable partition of the MBR. Compressed images are decompressed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := output.Read(fsys, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if digest {
				sum := image.Digest(img)
				fmt.Fprintf(w, "BLAKE2b-256:   %s\n", hex.EncodeToString(sum[:]))
			}
			var v *image.Volume
			if offset >= 0 {
				v, err = image.OpenAt(bytes.NewReader(img), offset*512)
			} else {
				v, err = image.Open(bytes.NewReader(img))
			}
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return dumpVolume(w, v)
		},
	}
	cmd.Flags().Int64Var(&offset, "offset", -1, "sector at which the FAT volume starts (default: detect)")
	cmd.Flags().BoolVar(&digest, "digest", false, "print the BLAKE2b-256 digest of the whole image")
	return cmd
}
