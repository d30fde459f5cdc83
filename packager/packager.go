// Package packager turns staged build artifacts into the release's
// distributable files: archives (or renamed artifacts), a checksum
// manifest and the rendered changelog.
package packager

import (
	"context"
	"log/slog"
	"path"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/iamd3vil/rlsr/archive"
	"github.com/iamd3vil/rlsr/build"
	"github.com/iamd3vil/rlsr/checksum"
	"github.com/iamd3vil/rlsr/config"
	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/fs"
)

// ChangelogName is the file the changelog is written to inside the dist folder.
const ChangelogName = "CHANGELOG.md"

// Asset is a file to publish.
type Asset struct {
	// Path is the file's location on the packager's filesystem.
	Path string

	// Name is the file name published to targets.
	Name string

	// Build is the label of the build that produced it.
	Build string
}

// Output lists what Package produced.
type Output struct {
	Assets    []Asset
	Manifest  string
	Checksums []checksum.Entry

	// Changelog is set once WriteChangelog succeeds.
	Changelog string
}

// Files returns every asset path followed by the manifest.
func (o *Output) Files() []string {
	out := make([]string, 0, len(o.Assets)+1)
	for _, a := range o.Assets {
		out = append(out, a.Path)
	}
	if o.Manifest != "" {
		out = append(out, o.Manifest)
	}
	return out
}

// Packager packages one release's build results into its dist folder.
type Packager struct {
	fs      fs.Filesystem
	release *config.Release
	logger  *slog.Logger
	workers int
}

// Option configures a Packager.
type Option func(*Packager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Packager) {
		p.logger = logger
	}
}

// WithWorkers bounds how many archives are written at once.
func WithWorkers(n int) Option {
	return func(p *Packager) {
		if n > 0 {
			p.workers = n
		}
	}
}

// New creates a Packager for rel.
func New(fsys fs.Filesystem, rel *config.Release, opts ...Option) *Packager {
	p := &Packager{
		fs:      fsys,
		release: rel,
		logger:  slog.Default(),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type job struct {
	result  build.Result
	name    string
	entries []archive.Entry
}

// Package archives every successful, non-pushed result and writes the
// checksum manifest over the produced files. Archive names must be unique
// within the release.
func (p *Packager) Package(ctx context.Context, results []build.Result) (*Output, error) {
	alg, err := checksum.Lookup(p.release.Checksum.Algorithm)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInvalidConfig, "invalid checksum algorithm",
			map[string]interface{}{"release": p.release.Name, "algorithm": p.release.Checksum.Algorithm})
	}

	jobs, err := p.plan(results)
	if err != nil {
		return nil, err
	}

	if err := p.fs.MkdirAll(p.release.DistFolder, 0o755); err != nil {
		return nil, p.fail(err, "failed to create dist folder", nil)
	}

	assets := make([]Asset, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dest := path.Join(p.release.DistFolder, j.name)
			if err := p.produce(j, dest); err != nil {
				return err
			}
			assets[i] = Asset{Path: dest, Name: j.name, Build: j.result.Label()}
			p.logger.Info("packaged", "build", j.result.Label(), "file", dest)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	manifest := checksum.NewManifest(alg)
	for _, a := range assets {
		if _, err := manifest.AddFile(p.fs, a.Path); err != nil {
			return nil, err
		}
	}
	manifestPath, err := manifest.Write(p.fs, p.release.DistFolder)
	if err != nil {
		return nil, err
	}
	p.logger.Info("wrote checksums", "file", manifestPath, "algorithm", alg.Name(), "entries", manifest.Len())

	return &Output{
		Assets:    assets,
		Manifest:  manifestPath,
		Checksums: manifest.Entries(),
	}, nil
}

// WriteChangelog writes body to the dist folder and records it on out.
func (p *Packager) WriteChangelog(out *Output, body string) error {
	dest := path.Join(p.release.DistFolder, ChangelogName)
	if err := p.fs.MkdirAll(p.release.DistFolder, 0o755); err != nil {
		return p.fail(err, "failed to create dist folder", nil)
	}
	if err := p.fs.WriteFile(dest, []byte(body), 0o644); err != nil {
		return p.fail(err, "failed to write changelog", map[string]interface{}{"file": dest})
	}
	if out != nil {
		out.Changelog = dest
	}
	return nil
}

// plan selects the results to package, resolves their final names and
// rejects duplicates.
func (p *Packager) plan(results []build.Result) ([]job, error) {
	sorted := append([]build.Result(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	var (
		jobs  []job
		owner = make(map[string]string)
		dups  []string
	)
	for _, r := range sorted {
		if r.Err != nil || r.Pushed || r.Artifact == "" {
			continue
		}

		name := r.ArchiveName
		if !r.NoArchive {
			name, _ = archive.Normalize(name)
		}
		if prev, dup := owner[name]; dup {
			dups = append(dups, name+" ("+prev+", "+r.Label()+")")
			continue
		}
		owner[name] = r.Label()

		jobs = append(jobs, job{result: r, name: name, entries: entries(r)})
	}

	if len(dups) > 0 {
		return nil, errors.WithContext(
			errors.Newf(errors.CodeInvalidConfig, "duplicate archive names: %s", strings.Join(dups, "; ")),
			map[string]interface{}{"release": p.release.Name},
		)
	}
	return jobs, nil
}

// entries lists the artifact under its bin name followed by the extra
// files under their base names. Later files whose name is already taken
// are dropped.
func entries(r build.Result) []archive.Entry {
	out := []archive.Entry{{Source: r.Artifact, Name: r.BinName}}
	seen := map[string]struct{}{r.BinName: {}}
	for _, f := range r.Files {
		name := path.Base(f)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, archive.Entry{Source: f, Name: name})
	}
	return out
}

func (p *Packager) produce(j job, dest string) error {
	if !j.result.NoArchive {
		return archive.Create(p.fs, p.fs, dest, j.entries)
	}
	if path.Clean(j.result.Artifact) == path.Clean(dest) {
		return nil
	}
	if err := fs.CopyFile(p.fs, j.result.Artifact, p.fs, dest); err != nil {
		return p.fail(err, "failed to copy artifact", map[string]interface{}{
			"build": j.result.Label(),
			"file":  dest,
		})
	}
	return nil
}

func (p *Packager) fail(err error, msg string, ctx map[string]interface{}) error {
	c := map[string]interface{}{"release": p.release.Name}
	for k, v := range ctx {
		c[k] = v
	}
	return errors.WrapWithContext(err, errors.CodePackagingFailed, msg, c)
}
