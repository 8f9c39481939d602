package main

import (
	"github.com/spf13/cobra"

	"github.com/unodos/unoimg/buildflag"
	"github.com/unodos/unoimg/manifest"
)

func floppyCmd() *cobra.Command {
	var (
		profile     string
		files       []string
		apps        []string
		serial      string
		strictNames bool
		timestamps  bool
		o           outputFlags
	)
	cmd := &cobra.Command{
		Use:   "floppy -o floppy.img --file SRC[=NAME] [--app SRC[=NAME]]",
		Short: "Assemble a floppy image from a list of files",
		Long: `Assemble a floppy image from a list of files.

Every --file must exist. An --app which does not exist is skipped with a
warning. Without =NAME, the file is stored under the base name of SRC.`,
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			list, err := fileArgs(files, apps)
			if err != nil {
				return err
			}
			m := &manifest.Manifest{
				Profile:     profile,
				Label:       buildflag.Label(),
				Serial:      serial,
				StrictNames: strictNames,
				Timestamps:  timestamps,
				Files:       list,
			}
			if m.Label == "" {
				m.Label = defaultLabel(profile)
			}
			return build(m, &o)
		},
	}
	buildflag.RegisterPflags(cmd.Flags())
	cmd.Flags().StringVarP(&profile, "profile", "p", "floppy144", "image profile, see unoimg profiles")
	cmd.Flags().StringArrayVar(&files, "file", nil, "file to store, as SRC[=NAME] (repeatable)")
	cmd.Flags().StringArrayVar(&apps, "app", nil, "optional file to store, as SRC[=NAME] (repeatable)")
	cmd.Flags().StringVar(&serial, "serial", manifest.SerialAuto, `volume serial number, or "auto" to derive it from the contents`)
	cmd.Flags().BoolVar(&strictNames, "strict_names", false, "reject file names which do not fit 8.3")
	cmd.Flags().BoolVar(&timestamps, "timestamps", false, "store the modification time of every file")
	o.register(cmd, "floppy.img")
	return cmd
}
