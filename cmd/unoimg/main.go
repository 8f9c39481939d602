// unoimg assembles bootable FAT12/FAT16 disk images: floppies with an OS
// in their first sectors and hard disks with an MBR and one FAT16
// partition.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unodos/unoimg/config"
	"github.com/unodos/unoimg/image"
	"github.com/unodos/unoimg/manifest"
	"github.com/unodos/unoimg/output"
)

var (
	fsys   = afero.NewOsFs()
	logger = zap.NewNop()

	verbose bool
)

func newLogger() (*zap.Logger, error) {
	lc := zap.NewDevelopmentConfig()
	lc.EncoderConfig.TimeKey = ""
	if !verbose {
		lc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return lc.Build()
}

// outputFlags are shared by every command producing an image.
type outputFlags struct {
	out   string
	force bool
}

func (o *outputFlags) register(cmd *cobra.Command, def string) {
	cmd.Flags().StringVarP(&o.out, "out", "o", def, "output image; a .zst suffix compresses it")
	cmd.Flags().BoolVar(&o.force, "force", false, "allow overwriting a block device")
}

func (o *outputFlags) write(img []byte, report *image.Report) error {
	if err := output.Write(fsys, o.out, img, output.Options{
		AllowDevice: o.force,
		Logger:      logger,
	}); err != nil {
		return err
	}
	fields := []zap.Field{
		zap.String("path", o.out),
		zap.String("size", humanize.IBytes(uint64(len(img)))),
	}
	if report != nil {
		free := uint64(report.FreeClusters) * uint64(report.Layout.SectorsPerCluster) * uint64(report.Layout.SectorSize)
		fields = append(fields,
			zap.Stringer("variant", report.Layout.Variant),
			zap.Int("files", len(report.Files)),
			zap.String("free", humanize.IBytes(free)))
	}
	logger.Info("image written", fields...)
	return nil
}

// parseFileArg splits SRC[=NAME].
func parseFileArg(arg string, optional bool) (manifest.File, error) {
	source, name, _ := strings.Cut(arg, "=")
	if source == "" {
		return manifest.File{}, fmt.Errorf("%q: empty source path", arg)
	}
	return manifest.File{Source: source, Name: name, Optional: optional}, nil
}

func fileArgs(required, optional []string) ([]manifest.File, error) {
	var files []manifest.File
	for _, args := range []struct {
		list     []string
		optional bool
	}{
		{required, false},
		{optional, true},
	} {
		for _, arg := range args.list {
			f, err := parseFileArg(arg, args.optional)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
	}
	return files, nil
}

// defaultLabel reads the label configured for the profile, if any.
func defaultLabel(slug string) string {
	label, err := config.ProfileSpecific(slug).ReadFile(fsys, "label")
	if err != nil {
		return ""
	}
	return label
}

func build(m *manifest.Manifest, o *outputFlags) error {
	cfg, err := manifest.Resolve(fsys, m, manifest.Options{Logger: logger})
	if err != nil {
		return err
	}
	img, report, err := image.Build(cfg)
	if err != nil {
		return err
	}
	return o.write(img, report)
}

func defaultOutput(manifestPath string) string {
	base := filepath.Base(manifestPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".img"
}

func main() {
	root := &cobra.Command{
		Use:           "unoimg",
		Short:         "Assemble bootable FAT12/FAT16 disk images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			l, err := newLogger()
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every region written")
	root.AddCommand(
		buildCmd(),
		floppyCmd(),
		hdCmd(),
		graftCmd(),
		dumpCmd(),
		profilesCmd(),
	)
	if err := root.Execute(); err != nil {
		logger.Sync()
		log.SetFlags(0)
		log.Fatalf("%s: %v", filepath.Base(os.Args[0]), err)
	}
	logger.Sync()
}
