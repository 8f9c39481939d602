// Package buildflag holds the flags shared by the unoimg commands which
// assemble images from build outputs.
package buildflag

import (
	"os"

	"github.com/spf13/pflag"
)

var (
	buildDir = func() string {
		def := os.Getenv("UNOIMG_BUILD_DIR")
		if def == "" {
			def = "build"
		}
		return def
	}()

	label = os.Getenv("UNOIMG_LABEL")
)

func RegisterPflags(fs *pflag.FlagSet) {
	fs.StringVar(&buildDir,
		"build_dir",
		buildDir,
		`directory containing the build outputs (mbr.bin, vbr.bin, kernel.bin, …)`)

	fs.StringVarP(&label,
		"label",
		"l",
		label,
		`volume label, at most 11 characters (default: none, or the profile's label file)`)
}

func SetBuildDir(d string) {
	buildDir = d
}

func SetLabel(l string) {
	label = l
}

func BuildDir() string {
	return buildDir
}

func Label() string {
	return label
}
