// Package config locates unoimg configuration: manifests and per-profile
// settings such as the default volume label.
package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

func userConfigDir() string {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatalf("os.UserConfigDir failed: %v", err)
	}
	return userConfigDir
}

// Typically ~/.config/unoimg on Linux
// Typically ~/Library/Application\ Support/unoimg on macOS/Darwin
func unoimgConfigDir() string {
	return filepath.Join(userConfigDir(), "unoimg")
}

func Dir() string { return unoimgConfigDir() }

type ProfileDir string

// ReadFile returns the trimmed contents of configBaseName in the profile
// directory, falling back to the global configuration directory.
func (p ProfileDir) ReadFile(fsys afero.Fs, configBaseName string) (string, error) {
	b, err := afero.ReadFile(fsys, filepath.Join(string(p), configBaseName))
	if err != nil {
		// fall back to global path
		b, err = afero.ReadFile(fsys, filepath.Join(unoimgConfigDir(), configBaseName))
		if err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(string(b)), nil
}

func ProfileSpecific(slug string) ProfileDir {
	return ProfileDir(filepath.Join(unoimgConfigDir(), "profiles", slug))
}

// Locate returns name if it exists, or else its path in the configuration
// directory. Absolute names are never looked up elsewhere.
func Locate(fsys afero.Fs, name string) (string, error) {
	_, err := fsys.Stat(name)
	if err == nil || filepath.IsAbs(name) || !errors.Is(err, fs.ErrNotExist) {
		return name, err
	}
	configured := filepath.Join(unoimgConfigDir(), name)
	if _, err := fsys.Stat(configured); err != nil {
		return "", err
	}
	return configured, nil
}
