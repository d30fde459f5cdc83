// Package archive writes release archives. The format is chosen from the
// archive file name: zip, tar.gz, tar.zst or tar.lz4.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/fs"
)

// Format is an archive container and compression pair.
type Format string

const (
	Zip    Format = "zip"
	TarGz  Format = "tar.gz"
	TarZst Format = "tar.zst"
	TarLz4 Format = "tar.lz4"
)

// DefaultFormat is used when an archive name carries no known suffix.
const DefaultFormat = Zip

var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", TarGz},
	{".tgz", TarGz},
	{".tar.zst", TarZst},
	{".tar.lz4", TarLz4},
	{".zip", Zip},
}

// FormatOf returns the format selected by name's suffix.
func FormatOf(name string) (Format, bool) {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format, true
		}
	}
	return "", false
}

// Normalize returns name with the default suffix appended when it has no
// known one, along with the format it selects.
func Normalize(name string) (string, Format) {
	if f, ok := FormatOf(name); ok {
		return name, f
	}
	return name + "." + string(DefaultFormat), DefaultFormat
}

// TrimFormat returns name without its archive suffix, if it has one.
func TrimFormat(name string) string {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return name[:len(name)-len(s.suffix)]
		}
	}
	return name
}

// Entry is one file placed into an archive.
type Entry struct {
	// Source is the path of the file on the source filesystem.
	Source string

	// Name is the path of the file inside the archive.
	Name string
}

// Create writes entries read from src into a new archive at dest on dst.
// dest must carry a known suffix.
func Create(src fs.Filesystem, dst fs.Filesystem, dest string, entries []Entry) error {
	format, ok := FormatOf(dest)
	if !ok {
		return errors.Newf(errors.CodeInvalidInput, "archive %q has no known format suffix", dest)
	}

	out, err := dst.Create(dest)
	if err != nil {
		return errors.WrapWithContext(err, errors.CodePackagingFailed, "failed to create archive",
			map[string]interface{}{"archive": dest})
	}

	if err := Write(out, format, src, entries); err != nil {
		_ = out.Close()
		return errors.WrapWithContext(err, errors.CodePackagingFailed, "failed to write archive",
			map[string]interface{}{"archive": dest, "format": string(format)})
	}
	if err := out.Close(); err != nil {
		return errors.WrapWithContext(err, errors.CodePackagingFailed, "failed to close archive",
			map[string]interface{}{"archive": dest})
	}
	return nil
}

// Write streams an archive in format to w.
func Write(w io.Writer, format Format, src fs.Filesystem, entries []Entry) error {
	switch format {
	case Zip:
		return writeZip(w, src, entries)
	case TarGz:
		gz := gzip.NewWriter(w)
		if err := writeTar(gz, src, entries); err != nil {
			return err
		}
		return gz.Close()
	case TarZst:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
		if err := writeTar(zw, src, entries); err != nil {
			_ = zw.Close()
			return err
		}
		return zw.Close()
	case TarLz4:
		lw := lz4.NewWriter(w)
		if err := writeTar(lw, src, entries); err != nil {
			return err
		}
		return lw.Close()
	default:
		return fmt.Errorf("unsupported archive format %q", format)
	}
}

func writeZip(w io.Writer, src fs.Filesystem, entries []Entry) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		info, err := src.Stat(e.Source)
		if err != nil {
			return fmt.Errorf("stat %q: %w", e.Source, err)
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("zip header for %q: %w", e.Source, err)
		}
		hdr.Name = e.Name
		hdr.Method = zip.Deflate

		dst, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("zip entry %q: %w", e.Name, err)
		}
		if err := copyFrom(dst, src, e.Source); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeTar(w io.Writer, src fs.Filesystem, entries []Entry) error {
	tw := tar.NewWriter(w)
	for _, e := range entries {
		info, err := src.Stat(e.Source)
		if err != nil {
			return fmt.Errorf("stat %q: %w", e.Source, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%q is not a regular file", e.Source)
		}

		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     e.Name,
			Size:     info.Size(),
			Mode:     int64(modeOf(info)),
			ModTime:  info.ModTime(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("tar header %q: %w", e.Name, err)
		}
		if err := copyFrom(tw, src, e.Source); err != nil {
			return err
		}
	}
	return tw.Close()
}

func copyFrom(w io.Writer, src fs.Filesystem, name string) error {
	f, err := src.Open(name)
	if err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy %q: %w", name, err)
	}
	return nil
}

func modeOf(info os.FileInfo) os.FileMode {
	if perm := info.Mode().Perm(); perm != 0 {
		return perm
	}
	return 0o644
}
