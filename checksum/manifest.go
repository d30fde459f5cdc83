package checksum

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/fs"
)

// ManifestName is the file name of the checksum manifest in the dist folder.
const ManifestName = "checksums.txt"

// Entry is one manifest line.
type Entry struct {
	Digest   string
	Filename string
}

// Manifest accumulates digests for one release. Entries may be added from
// several goroutines; output is always sorted by file name.
type Manifest struct {
	alg     Algorithm
	mu      sync.Mutex
	entries map[string]string
}

// NewManifest returns an empty manifest using alg for every entry.
func NewManifest(alg Algorithm) *Manifest {
	return &Manifest{alg: alg, entries: make(map[string]string)}
}

// Algorithm returns the manifest's digest algorithm.
func (m *Manifest) Algorithm() Algorithm { return m.alg }

// Add records a precomputed digest. Adding the same file name twice is an
// error.
func (m *Manifest) Add(digest, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.entries[filename]; dup {
		return errors.WrapWithContext(
			fmt.Errorf("duplicate manifest entry"),
			errors.CodeInvalidConfig,
			"file name appears twice in the checksum manifest",
			map[string]interface{}{"file": filename},
		)
	}
	m.entries[filename] = digest
	return nil
}

// AddFile digests p on fsys and records it under its base name.
func (m *Manifest) AddFile(fsys fs.Filesystem, p string) (Entry, error) {
	digest, err := m.alg.SumFile(fsys, p)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Digest: digest, Filename: path.Base(strings.ReplaceAll(p, "\\", "/"))}
	return e, m.Add(e.Digest, e.Filename)
}

// Entries returns the recorded entries sorted by file name.
func (m *Manifest) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, len(m.entries))
	for name, digest := range m.entries {
		out = append(out, Entry{Digest: digest, Filename: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// WriteTo writes `<hex>  <filename>` lines sorted by file name.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, e := range m.Entries() {
		fmt.Fprintf(&buf, "%s  %s\n", e.Digest, e.Filename)
	}
	return buf.WriteTo(w)
}

// Write replaces dir/checksums.txt on fsys with the manifest and returns
// its path.
func (m *Manifest) Write(fsys fs.Filesystem, dir string) (string, error) {
	target := path.Join(dir, ManifestName)

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "failed to render checksum manifest")
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return "", errors.WrapWithContext(err, errors.CodePackagingFailed, "failed to create dist folder",
			map[string]interface{}{"path": dir})
	}
	if err := fsys.WriteFile(target, buf.Bytes(), 0o644); err != nil {
		return "", errors.WrapWithContext(err, errors.CodePackagingFailed, "failed to write checksum manifest",
			map[string]interface{}{"path": target})
	}
	return target, nil
}

// ParseManifest reads a manifest in the format written by WriteTo.
func ParseManifest(r io.Reader) ([]Entry, error) {
	var out []Entry
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		digest, name, ok := strings.Cut(text, "  ")
		if !ok || digest == "" || name == "" {
			return nil, fmt.Errorf("line %d: malformed manifest entry %q", line, text)
		}
		out = append(out, Entry{Digest: digest, Filename: name})
	}
	return out, sc.Err()
}
