package main

import (
	"github.com/spf13/cobra"

	"github.com/unodos/unoimg/buildflag"
	"github.com/unodos/unoimg/deviceconfig"
	"github.com/unodos/unoimg/manifest"
)

func hdCmd() *cobra.Command {
	var (
		profile string
		apps    []string
		serial  string
		o       outputFlags
	)
	cmd := &cobra.Command{
		Use:   "hd -o hd.img [--build_dir build] [--app SRC=NAME]",
		Short: "Assemble a partitioned hard disk image from the build outputs",
		Long: `Assemble a partitioned hard disk image from the build outputs.

The build directory must contain mbr.bin, vbr.bin, stage2_hd.bin and the
kernel. The profile's applications are added when present.`,
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			p, ok := deviceconfig.GetProfileBySlug(profile)
			if !ok {
				return errUnknownProfile(profile)
			}
			m := manifest.FromProfile(p, buildflag.BuildDir())
			extra, err := fileArgs(nil, apps)
			if err != nil {
				return err
			}
			m.Files = append(m.Files, extra...)
			m.Serial = serial
			m.Label = buildflag.Label()
			if m.Label == "" {
				m.Label = defaultLabel(profile)
			}
			return build(m, &o)
		},
	}
	buildflag.RegisterPflags(cmd.Flags())
	cmd.Flags().StringVarP(&profile, "profile", "p", "hd64", "image profile, see unoimg profiles")
	cmd.Flags().StringArrayVar(&apps, "app", nil, "additional optional file, as SRC[=NAME] relative to the build directory (repeatable)")
	cmd.Flags().StringVar(&serial, "serial", manifest.SerialAuto, `volume serial number, or "auto" to derive it from the contents`)
	o.register(cmd, "hd.img")
	return cmd
}
