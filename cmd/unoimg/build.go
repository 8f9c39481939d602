package main

import (
	"github.com/spf13/cobra"

	"github.com/unodos/unoimg/config"
	"github.com/unodos/unoimg/manifest"
)

func buildCmd() *cobra.Command {
	var (
		manifestPath string
		o            outputFlags
	)
	cmd := &cobra.Command{
		Use:   "build [-m image.yaml] [-o out.img]",
		Short: "Assemble an image described by a YAML manifest",
		Long: `Assemble an image described by a YAML manifest.

The manifest is looked up in the current directory, then in the unoimg
configuration directory. Relative paths in the manifest are resolved against
the directory containing it.`,
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			path, err := config.Locate(fsys, manifestPath)
			if err != nil {
				return err
			}
			m, err := manifest.Load(fsys, path)
			if err != nil {
				return err
			}
			if o.out == "" {
				o.out = defaultOutput(path)
			}
			return build(m, &o)
		},
	}
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "image.yaml", "manifest describing the image")
	o.register(cmd, "")
	return cmd
}
