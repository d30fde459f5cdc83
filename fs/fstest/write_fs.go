package fstest

import (
	"bytes"
	"os"
	"path"
	"testing"

	"github.com/iamd3vil/rlsr/fs"
)

// TestWriteFS covers Create, OpenFile, WriteFile and MkdirAll.
func TestWriteFS(t *testing.T, fsys fs.Filesystem, root string) {
	t.Run("CreateAndWrite", func(t *testing.T) {
		p := path.Join(root, "created.txt")
		data := []byte("test data for Create")

		f, err := fsys.Create(p)
		if err != nil {
			t.Fatalf("Create(%q): got error %v, want nil", p, err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			t.Fatalf("Write(): got error %v, want nil", err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("Close(): got error %v, want nil", err)
		}

		assertContent(t, fsys, p, data)
	})

	t.Run("WriteFileOverwrites", func(t *testing.T) {
		p := path.Join(root, "overwrite.txt")
		if err := fsys.WriteFile(p, []byte("first version"), 0o644); err != nil {
			t.Fatalf("WriteFile(%q): got error %v", p, err)
		}
		if err := fsys.WriteFile(p, []byte("second"), 0o644); err != nil {
			t.Fatalf("WriteFile(%q): got error %v", p, err)
		}
		assertContent(t, fsys, p, []byte("second"))
	})

	t.Run("OpenFileAppend", func(t *testing.T) {
		p := path.Join(root, "append.txt")
		if err := fsys.WriteFile(p, []byte("a"), 0o644); err != nil {
			t.Fatalf("WriteFile(%q): got error %v", p, err)
		}
		f, err := fsys.OpenFile(p, os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			t.Fatalf("OpenFile(%q, O_APPEND): got error %v", p, err)
		}
		if _, err := f.Write([]byte("b")); err != nil {
			_ = f.Close()
			t.Fatalf("Write(): got error %v", err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("Close(): got error %v", err)
		}
		assertContent(t, fsys, p, []byte("ab"))
	})

	t.Run("MkdirAll", func(t *testing.T) {
		p := path.Join(root, "a", "b", "c")
		if err := fsys.MkdirAll(p, 0o755); err != nil {
			t.Fatalf("MkdirAll(%q): got error %v", p, err)
		}
		if err := fsys.MkdirAll(p, 0o755); err != nil {
			t.Errorf("MkdirAll(%q) twice: got error %v, want nil", p, err)
		}
		info, err := fsys.Stat(path.Join(root, "a", "b"))
		if err != nil || !info.IsDir() {
			t.Errorf("Stat(a/b): got %v, %v, want a directory", info, err)
		}
	})

	t.Run("WriteFileCreatesParents", func(t *testing.T) {
		p := path.Join(root, "dist", "nested", "file.txt")
		if err := fsys.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile(%q): got error %v, want nil", p, err)
		}
		assertContent(t, fsys, p, []byte("x"))
	})
}

func assertContent(t *testing.T, fsys fs.Filesystem, p string, want []byte) {
	t.Helper()
	got, err := fsys.ReadFile(p)
	if err != nil {
		t.Fatalf("ReadFile(%q): got error %v, want nil", p, err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("ReadFile(%q): got %q, want %q", p, got, want)
	}
}
