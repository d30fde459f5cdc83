// Package fs defines the filesystem abstraction rlsr stages release
// artifacts through. Implementations live in sub-packages; fs/billy backs it
// with go-billy for both the host OS and in-memory test filesystems.
package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// File is an open file. Release files are staged, archived and uploaded
// through it, so it supports random access reads for zip and seeking for
// size probes.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.Seeker
	Name() string
	Stat() (fs.FileInfo, error)
}

// Filesystem is the set of operations the build, packaging and changelog
// stages need from a filesystem.
type Filesystem interface {
	Create(name string) (File, error)
	Open(name string) (File, error)
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(filename string, data []byte, perm os.FileMode) error
	Stat(name string) (os.FileInfo, error)
	Exists(path string) (bool, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
	RemoveAll(path string) error
	ReadDir(dirname string) ([]os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
	Walk(root string, walkFn filepath.WalkFunc) error
	TempDir(dir, prefix string) (string, error)
}

// GetAbs returns the absolute form of path on the host filesystem.
func GetAbs(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %q: %w", path, err)
	}
	return abs, nil
}

// Exists reports whether path exists on the host filesystem.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat %q: %w", path, err)
	}
}

// CopyFile copies src from one filesystem to dst on another (or the same)
// filesystem, creating dst's parent directory and preserving the mode bits.
func CopyFile(srcFS Filesystem, src string, dstFS Filesystem, dst string) error {
	info, err := srcFS.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %q: %w", src, err)
	}
	if info.IsDir() {
		return fmt.Errorf("cannot copy %q: is a directory", src)
	}

	in, err := srcFS.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if dir := filepath.Dir(dst); dir != "." && dir != "/" {
		if err := dstFS.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	out, err := dstFS.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %q to %q: %w", src, dst, err)
	}
	return out.Close()
}

// Mode returns the permission bits of name, defaulting to 0o644 when the
// filesystem does not report any.
func Mode(fsys Filesystem, name string) fs.FileMode {
	info, err := fsys.Stat(name)
	if err != nil || info.Mode().Perm() == 0 {
		return 0o644
	}
	return info.Mode().Perm()
}
