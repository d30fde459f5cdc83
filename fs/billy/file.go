package billy

import (
	"errors"
	"io"
	"io/fs"

	"github.com/go-git/go-billy/v5"
)

// File adapts a go-billy file to fs.File. go-billy files have no Stat, so
// it asks the owning filesystem.
type File struct {
	billy.File
	owner billy.Filesystem
}

// Stat implements fs.File.
func (f *File) Stat() (fs.FileInfo, error) {
	info, err := f.owner.Stat(f.Name())
	return info, wrap("stat", f.Name(), err)
}

// Read implements fs.File. io.EOF is returned unwrapped.
func (f *File) Read(p []byte) (int, error) {
	n, err := f.File.Read(p)
	return n, wrapIO("read", f.Name(), err)
}

// ReadAt implements fs.File. io.EOF is returned unwrapped.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.File.ReadAt(p, off)
	return n, wrapIO("readat", f.Name(), err)
}

// Write implements fs.File.
func (f *File) Write(p []byte) (int, error) {
	n, err := f.File.Write(p)
	return n, wrap("write", f.Name(), err)
}

// Close implements fs.File.
func (f *File) Close() error {
	return wrap("close", f.Name(), f.File.Close())
}

func wrapIO(op, name string, err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	return wrap(op, name, err)
}
