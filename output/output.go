// Package output stores finished images: atomically into regular files,
// optionally zstd-compressed, or in place onto block devices.
package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/unodos/unoimg/progress"
)

// CompressedSuffix selects zstd compression for the written image.
const CompressedSuffix = ".zst"

var (
	// ErrDevice is returned when the destination is a block device and
	// Options.AllowDevice is not set.
	ErrDevice = errors.New("destination is a block device")

	ErrDeviceTooSmall = errors.New("image does not fit on the device")
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

type Options struct {
	// AllowDevice permits overwriting a block device.
	AllowDevice bool
	Logger      *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Compress returns img as a zstd frame.
func Compress(img []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(img, make([]byte, 0, len(img)/4)), nil
}

// Decompress returns b unchanged unless it starts with a zstd frame.
func Decompress(b []byte) ([]byte, error) {
	if !bytes.HasPrefix(b, zstdMagic) {
		return b, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(b, nil)
}

// Read returns the image stored at path, decompressing it if necessary.
func Read(fsys afero.Fs, path string) ([]byte, error) {
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	img, err := Decompress(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Write stores img at path. Regular files are replaced atomically: a
// failed Write leaves any previous file at path untouched and no temporary
// file behind. Paths ending in CompressedSuffix are compressed.
func Write(fsys afero.Fs, path string, img []byte, opts Options) error {
	log := opts.logger()
	if _, ok := fsys.(*afero.OsFs); ok && isBlockDevice(path) {
		if !opts.AllowDevice {
			return fmt.Errorf("%s: %w", path, ErrDevice)
		}
		return writeDevice(path, img, log)
	}

	data := img
	if strings.HasSuffix(path, CompressedSuffix) {
		var err error
		if data, err = Compress(img); err != nil {
			return err
		}
	}
	if err := writeAtomically(fsys, path, data); err != nil {
		return err
	}
	log.Debug("wrote image",
		zap.String("path", path),
		zap.Int("size", len(img)),
		zap.Int("stored", len(data)))
	return nil
}

func writeAtomically(fsys afero.Fs, path string, data []byte) (err error) {
	f, err := afero.TempFile(fsys, filepath.Dir(path), "."+filepath.Base(path)+".")
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			f.Close()
		}
		fsys.Remove(f.Name())
	}()
	if _, err = f.Write(data); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	closed = true
	if err = f.Close(); err != nil {
		return err
	}
	if err = fsys.Chmod(f.Name(), 0644); err != nil {
		return err
	}
	return fsys.Rename(f.Name(), path)
}

func writeDevice(path string, img []byte, log *zap.Logger) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if size < int64(len(img)) {
		return fmt.Errorf("%s: %w (%d bytes, device has %d)", path, ErrDeviceTooSmall, len(img), size)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	var pw progress.Writer
	r := progress.NewReporter(&pw, log)
	r.SetStatus(path)
	r.SetTotal(uint64(len(img)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Report(ctx)

	if _, err := io.Copy(f, io.TeeReader(bytes.NewReader(img), &pw)); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	log.Info("wrote image to device", zap.String("device", path), zap.Int("size", len(img)))
	return f.Close()
}
