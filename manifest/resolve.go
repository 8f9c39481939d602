package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/unodos/unoimg/deviceconfig"
	"github.com/unodos/unoimg/geometry"
	"github.com/unodos/unoimg/image"
	"github.com/unodos/unoimg/mbr"
)

// Options control Resolve.
type Options struct {
	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

type loader struct {
	fs   afero.Fs
	dir  string
	log  *zap.Logger
	errs error
}

func (l *loader) path(source string) string {
	if filepath.IsAbs(source) || l.dir == "" {
		return source
	}
	return filepath.Join(l.dir, source)
}

// load returns the contents of source and whether it exists. A missing
// required input is recorded; a missing optional one is logged.
func (l *loader) load(what, source string, optional bool) ([]byte, bool) {
	if source == "" {
		if !optional {
			l.errs = multierr.Append(l.errs, &image.MissingInputError{Name: what})
		}
		return nil, false
	}
	b, err := afero.ReadFile(l.fs, l.path(source))
	if err == nil {
		if b == nil {
			b = []byte{}
		}
		return b, true
	}
	if !errors.Is(err, fs.ErrNotExist) {
		l.errs = multierr.Append(l.errs, fmt.Errorf("%s: %w", what, err))
		return nil, false
	}
	if optional {
		l.log.Warn("optional input not found, skipping",
			zap.String("input", what),
			zap.String("path", l.path(source)))
		return nil, false
	}
	l.errs = multierr.Append(l.errs, &image.MissingInputError{Name: fmt.Sprintf("%s (%s)", what, l.path(source))})
	return nil, false
}

// Resolve loads every input m references from fsys and returns the image
// configuration. All missing required inputs are reported together.
func Resolve(fsys afero.Fs, m *Manifest, opts Options) (image.Config, error) {
	log := opts.logger()
	var cfg image.Config
	var profile deviceconfig.Profile
	if m.Profile != "" {
		var ok bool
		profile, ok = deviceconfig.GetProfileBySlug(m.Profile)
		if !ok {
			return cfg, fmt.Errorf("unknown profile %q (known: %v)", m.Profile, deviceconfig.Slugs())
		}
		cfg = profile.Config()
	}
	if m.VolumeStart != nil {
		cfg.VolumeStart = *m.VolumeStart
	}
	if m.DiskSectors != 0 {
		cfg.DiskSectors = m.DiskSectors
	}
	if g := m.Geometry; g != nil {
		if err := g.apply(&cfg.Geometry); err != nil {
			return cfg, err
		}
		if g.Cylinders != 0 {
			cfg.DiskSectors = geometry.Disk{
				Cylinders:       g.Cylinders,
				Heads:           uint32(cfg.Geometry.Heads),
				SectorsPerTrack: uint32(cfg.Geometry.SectorsPerTrack),
			}.Sectors()
			if cfg.DiskSectors <= cfg.VolumeStart {
				return cfg, &geometry.Error{Field: "cylinders", Reason: fmt.Sprintf("%d sectors leave no room after sector %d", cfg.DiskSectors, cfg.VolumeStart)}
			}
			cfg.Geometry.TotalSectors = cfg.DiskSectors - cfg.VolumeStart
		}
	}
	if m.Label != "" {
		cfg.Label = m.Label
	}
	if m.OEM != "" {
		cfg.OEM = m.OEM
	}
	cfg.StrictNames = m.StrictNames
	cfg.Logger = log
	serial, autoSerial, err := parseSerial(m.Serial)
	if err != nil {
		return cfg, err
	}
	cfg.Serial = serial

	l := &loader{fs: fsys, dir: m.dir, log: log}
	bootOptional := !cfg.RequireBootCode
	if m.MBR != "" || (cfg.Partitioned && !bootOptional) {
		cfg.MBRCode, _ = l.load("MBR boot code", m.MBR, bootOptional)
		if len(cfg.MBRCode) > mbr.BootCodeSize {
			// Assembled MBRs are a full sector; the table and signature are
			// rebuilt.
			cfg.MBRCode = cfg.MBRCode[:mbr.BootCodeSize]
		}
	}
	if m.VBR != "" || !bootOptional {
		cfg.BootTemplate, _ = l.load("volume boot record", m.VBR, bootOptional)
	}
	if m.Stage2 != "" || !bootOptional {
		cfg.Stage2, _ = l.load("second stage loader", m.Stage2, bootOptional)
	}

	for _, b := range m.Blobs {
		idx := -1
		for i, slot := range cfg.Blobs {
			if slot.Name == b.Name {
				idx = i
				break
			}
		}
		if idx == -1 {
			if b.Offset == nil {
				l.errs = multierr.Append(l.errs, fmt.Errorf("blob %q: no such slot in profile %q and no offset given", b.Name, m.Profile))
				continue
			}
			ss := int64(cfg.Geometry.SectorSize)
			cfg.Blobs = append(cfg.Blobs, image.Blob{
				Name:      b.Name,
				Offset:    *b.Offset * ss,
				MaxLength: b.MaxSectors * ss,
			})
			idx = len(cfg.Blobs) - 1
		}
		slot := &cfg.Blobs[idx]
		slot.Data, _ = l.load(b.Name, b.Source, b.Optional && !slot.Required)
	}
	for i := range cfg.Blobs {
		slot := &cfg.Blobs[i]
		if slot.Required && slot.Data == nil && !hasBlob(m.Blobs, slot.Name) {
			l.errs = multierr.Append(l.errs, &image.MissingInputError{Name: slot.Name})
		}
		// Every missing required blob has been reported by now.
		slot.Required = false
	}

	for _, f := range m.Files {
		name := f.Name
		if name == "" {
			name = filepath.Base(f.Source)
		}
		data, ok := l.load(name, f.Source, f.Optional)
		if !ok {
			continue
		}
		file := image.File{Name: name, Data: data}
		if m.Timestamps {
			if fi, err := l.fs.Stat(l.path(f.Source)); err == nil {
				file.ModTime = fi.ModTime()
			}
		}
		cfg.Files = append(cfg.Files, file)
	}

	if l.errs != nil {
		return cfg, l.errs
	}
	if autoSerial {
		cfg.Serial = image.DeriveSerial(cfg.Label, cfg.Files)
	}
	return cfg, nil
}

func hasBlob(blobs []Blob, name string) bool {
	for _, b := range blobs {
		if b.Name == name {
			return true
		}
	}
	return false
}
