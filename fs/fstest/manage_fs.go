package fstest

import (
	"os"
	"path"
	"sort"
	"strings"
	"testing"

	"github.com/iamd3vil/rlsr/fs"
)

// TestManageFS covers Remove, RemoveAll, Rename and TempDir.
func TestManageFS(t *testing.T, fsys fs.Filesystem, root string) {
	t.Run("Remove", func(t *testing.T) {
		p := path.Join(root, "remove.txt")
		if err := fsys.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile(%q): setup failed: %v", p, err)
		}
		if err := fsys.Remove(p); err != nil {
			t.Fatalf("Remove(%q): got error %v", p, err)
		}
		if ok, _ := fsys.Exists(p); ok {
			t.Errorf("Remove(%q): file still exists", p)
		}
	})

	t.Run("Rename", func(t *testing.T) {
		from := path.Join(root, "stage", "a.txt")
		to := path.Join(root, "stage", "nested", "b.txt")
		if err := fsys.WriteFile(from, []byte("a"), 0o644); err != nil {
			t.Fatalf("WriteFile(%q): setup failed: %v", from, err)
		}
		if err := fsys.MkdirAll(path.Dir(to), 0o755); err != nil {
			t.Fatalf("MkdirAll(%q): setup failed: %v", path.Dir(to), err)
		}
		if err := fsys.Rename(from, to); err != nil {
			t.Fatalf("Rename(%q, %q): got error %v", from, to, err)
		}
		if ok, _ := fsys.Exists(from); ok {
			t.Errorf("Rename: source %q still exists", from)
		}
		assertContent(t, fsys, to, []byte("a"))
	})

	t.Run("RemoveAll", func(t *testing.T) {
		dir := path.Join(root, "dist")
		if err := fsys.WriteFile(path.Join(dir, "nested", "f.txt"), []byte("f"), 0o644); err != nil {
			t.Fatalf("WriteFile: setup failed: %v", err)
		}
		if err := fsys.RemoveAll(dir); err != nil {
			t.Fatalf("RemoveAll(%q): got error %v", dir, err)
		}
		if ok, _ := fsys.Exists(dir); ok {
			t.Errorf("RemoveAll(%q) left the directory behind", dir)
		}
		if err := fsys.RemoveAll(dir); err != nil {
			t.Errorf("RemoveAll(%q) on missing path: got error %v, want nil", dir, err)
		}
	})

	t.Run("TempDir", func(t *testing.T) {
		a, err := fsys.TempDir(root, "rlsr-")
		if err != nil {
			t.Fatalf("TempDir(): got error %v", err)
		}
		b, err := fsys.TempDir(root, "rlsr-")
		if err != nil {
			t.Fatalf("TempDir(): got error %v", err)
		}
		if a == b {
			t.Errorf("TempDir(): returned %q twice", a)
		}
		if !strings.HasPrefix(path.Base(a), "rlsr-") {
			t.Errorf("TempDir(): %q does not carry the prefix", a)
		}
	})
}

// TestWalkFS covers Walk over a small tree.
func TestWalkFS(t *testing.T, fsys fs.Filesystem, root string) {
	base := path.Join(root, "walk")
	for _, p := range []string{"a.txt", "sub/b.txt", "sub/deep/c.txt"} {
		if err := fsys.WriteFile(path.Join(base, p), []byte(p), 0o644); err != nil {
			t.Fatalf("WriteFile(%q): setup failed: %v", p, err)
		}
	}

	var files []string
	err := fsys.Walk(base, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, strings.TrimPrefix(p, base+"/"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk(%q): got error %v", base, err)
	}

	sort.Strings(files)
	want := []string{"a.txt", "sub/b.txt", "sub/deep/c.txt"}
	if strings.Join(files, ",") != strings.Join(want, ",") {
		t.Errorf("Walk(%q): got files %v, want %v", base, files, want)
	}
}
