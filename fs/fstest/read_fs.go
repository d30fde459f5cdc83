package fstest

import (
	"bytes"
	"errors"
	"io"
	iofs "io/fs"
	"path"
	"testing"

	"github.com/iamd3vil/rlsr/fs"
)

// TestReadFS covers Open, Stat, ReadDir, ReadFile and Exists.
func TestReadFS(t *testing.T, fsys fs.Filesystem, root string) {
	content := []byte("test file content")
	dir := path.Join(root, "testdir")
	file := path.Join(dir, "testfile.txt")

	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll(%q): setup failed: %v", dir, err)
	}
	if err := fsys.WriteFile(file, content, 0o644); err != nil {
		t.Fatalf("WriteFile(%q): setup failed: %v", file, err)
	}

	t.Run("Open", func(t *testing.T) {
		f, err := fsys.Open(file)
		if err != nil {
			t.Fatalf("Open(%q): got error %v, want nil", file, err)
		}
		defer func() { _ = f.Close() }()

		data, err := io.ReadAll(f)
		if err != nil {
			t.Fatalf("Read(): got error %v", err)
		}
		if !bytes.Equal(data, content) {
			t.Errorf("Read(): got %q, want %q", data, content)
		}
	})

	t.Run("Stat", func(t *testing.T) {
		info, err := fsys.Stat(file)
		if err != nil {
			t.Fatalf("Stat(%q): got error %v, want nil", file, err)
		}
		if info.IsDir() {
			t.Errorf("Stat(%q): IsDir() = true, want false", file)
		}
		if info.Size() != int64(len(content)) {
			t.Errorf("Stat(%q): Size() = %d, want %d", file, info.Size(), len(content))
		}

		info, err = fsys.Stat(dir)
		if err != nil {
			t.Fatalf("Stat(%q): got error %v, want nil", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("Stat(%q): IsDir() = false, want true", dir)
		}
	})

	t.Run("ReadDir", func(t *testing.T) {
		entries, err := fsys.ReadDir(dir)
		if err != nil {
			t.Fatalf("ReadDir(%q): got error %v, want nil", dir, err)
		}
		if len(entries) != 1 || entries[0].Name() != "testfile.txt" {
			t.Errorf("ReadDir(%q): got %d entries, want only testfile.txt", dir, len(entries))
		}
	})

	t.Run("ReadFile", func(t *testing.T) {
		data, err := fsys.ReadFile(file)
		if err != nil {
			t.Fatalf("ReadFile(%q): got error %v, want nil", file, err)
		}
		if !bytes.Equal(data, content) {
			t.Errorf("ReadFile(%q): got %q, want %q", file, data, content)
		}
	})

	t.Run("OpenNotExist", func(t *testing.T) {
		missing := path.Join(root, "nonexistent")
		if _, err := fsys.Open(missing); !errors.Is(err, iofs.ErrNotExist) {
			t.Errorf("Open(%q): got error %v, want fs.ErrNotExist", missing, err)
		}
	})

	t.Run("Exists", func(t *testing.T) {
		for p, want := range map[string]bool{
			file:                           true,
			dir:                            true,
			path.Join(root, "nonexistent"): false,
		} {
			got, err := fsys.Exists(p)
			if err != nil {
				t.Errorf("Exists(%q): got error %v, want nil", p, err)
				continue
			}
			if got != want {
				t.Errorf("Exists(%q): got %v, want %v", p, got, want)
			}
		}
	})
}
