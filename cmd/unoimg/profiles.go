package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/unodos/unoimg/deviceconfig"
)

func errUnknownProfile(slug string) error {
	return fmt.Errorf("unknown profile %q (known: %v)", slug, deviceconfig.Slugs())
}

func profilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the image profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			descs := make([]string, 0, len(deviceconfig.Profiles))
			for desc := range deviceconfig.Profiles {
				descs = append(descs, desc)
			}
			sort.Slice(descs, func(i, j int) bool {
				return deviceconfig.Profiles[descs[i]].Slug < deviceconfig.Profiles[descs[j]].Slug
			})
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "SLUG\tFS\tSIZE\tDESCRIPTION")
			for _, desc := range descs {
				p := deviceconfig.Profiles[desc]
				sectors := p.DiskSectors
				if sectors == 0 {
					sectors = p.VolumeStart + p.Geometry.TotalSectors
				}
				size := uint64(sectors) * uint64(p.Geometry.SectorSize)
				fmt.Fprintf(tw, "%s\t%v\t%s\t%s\n", p.Slug, p.Geometry.Variant, humanize.IBytes(size), desc)
			}
			return tw.Flush()
		},
	}
}
