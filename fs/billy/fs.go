// Package billy implements fs.Filesystem on top of go-billy, covering the
// host OS (osfs) and in-memory (memfs) backends.
package billy

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	parentfs "github.com/iamd3vil/rlsr/fs"
)

// FS implements fs.Filesystem over a go-billy filesystem. Errors keep the
// underlying error in their chain, so os.IsNotExist and errors.Is work.
type FS struct {
	fs billy.Filesystem
}

var _ parentfs.Filesystem = (*FS)(nil)

// NewFS wraps fsys.
func NewFS(fsys billy.Filesystem) *FS {
	return &FS{fs: fsys}
}

// NewInMemoryFS returns an empty in-memory filesystem.
func NewInMemoryFS() *FS {
	return NewFS(memfs.New())
}

// NewOSFS returns a host filesystem rooted at path.
func NewOSFS(path string) *FS {
	return NewFS(osfs.New(path))
}

// NewBaseOSFS returns the host filesystem with paths resolved like the os
// package does: absolute as given, relative to the working directory.
func NewBaseOSFS() *FS {
	return NewFS(&hostFS{})
}

// hostFS completes osfs.ChrootOS into a billy.Filesystem rooted at /.
type hostFS struct {
	osfs.ChrootOS
}

//nolint:ireturn // signature is dictated by billy.Chroot.
func (h *hostFS) Chroot(path string) (billy.Filesystem, error) {
	return osfs.New(path), nil
}

func (h *hostFS) Root() string {
	return "/"
}

// Raw returns the underlying go-billy filesystem.
//
//nolint:ireturn // go-git consumes the billy interface directly.
func (b *FS) Raw() billy.Filesystem {
	return b.fs
}

func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("billy: %s %q: %w", op, path, err)
}

func (b *FS) file(f billy.File, err error) (parentfs.File, error) {
	if err != nil {
		return nil, err
	}
	return &File{File: f, owner: b.fs}, nil
}

// Create implements fs.Filesystem.
//
//nolint:ireturn // fs.Filesystem returns the File interface.
func (b *FS) Create(name string) (parentfs.File, error) {
	f, err := b.fs.Create(name)
	return b.file(f, wrap("create", name, err))
}

// Open implements fs.Filesystem.
//
//nolint:ireturn // fs.Filesystem returns the File interface.
func (b *FS) Open(name string) (parentfs.File, error) {
	f, err := b.fs.Open(name)
	return b.file(f, wrap("open", name, err))
}

// OpenFile implements fs.Filesystem.
//
//nolint:ireturn // fs.Filesystem returns the File interface.
func (b *FS) OpenFile(name string, flag int, perm os.FileMode) (parentfs.File, error) {
	f, err := b.fs.OpenFile(name, flag, perm)
	return b.file(f, wrap("openfile", name, err))
}

// Exists implements fs.Filesystem.
func (b *FS) Exists(path string) (bool, error) {
	_, err := b.fs.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, wrap("stat", path, err)
	}
}

// Stat implements fs.Filesystem.
func (b *FS) Stat(name string) (os.FileInfo, error) {
	info, err := b.fs.Stat(name)
	return info, wrap("stat", name, err)
}

// ReadDir implements fs.Filesystem.
func (b *FS) ReadDir(dirname string) ([]os.FileInfo, error) {
	list, err := b.fs.ReadDir(dirname)
	return list, wrap("readdir", dirname, err)
}

// ReadFile implements fs.Filesystem.
func (b *FS) ReadFile(path string) ([]byte, error) {
	data, err := util.ReadFile(b.fs, path)
	return data, wrap("readfile", path, err)
}

// WriteFile implements fs.Filesystem. Missing parent directories are created.
func (b *FS) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return wrap("writefile", filename, util.WriteFile(b.fs, filename, data, perm))
}

// MkdirAll implements fs.Filesystem.
func (b *FS) MkdirAll(path string, perm os.FileMode) error {
	return wrap("mkdirall", path, b.fs.MkdirAll(path, perm))
}

// Rename implements fs.Filesystem.
func (b *FS) Rename(oldpath, newpath string) error {
	return wrap("rename", oldpath+" -> "+newpath, b.fs.Rename(oldpath, newpath))
}

// Remove implements fs.Filesystem.
func (b *FS) Remove(name string) error {
	return wrap("remove", name, b.fs.Remove(name))
}

// RemoveAll implements fs.Filesystem. A missing path is not an error.
func (b *FS) RemoveAll(path string) error {
	if err := util.RemoveAll(b.fs, path); err != nil && !os.IsNotExist(err) {
		return wrap("removeall", path, err)
	}
	return nil
}

// TempDir implements fs.Filesystem.
func (b *FS) TempDir(dir, prefix string) (string, error) {
	name, err := util.TempDir(b.fs, dir, prefix)
	return name, wrap("tempdir", dir, err)
}

// Walk implements fs.Filesystem.
func (b *FS) Walk(root string, walkFn filepath.WalkFunc) error {
	return wrap("walk", root, util.Walk(b.fs, root, walkFn))
}
