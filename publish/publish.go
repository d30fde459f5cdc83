// Package publish sends a packaged release to its configured targets.
//
// Publishing happens only when HEAD carries a release tag, the working tree
// is clean and publishing was not skipped. Targets run concurrently; one
// target failing never cancels another, and every failure is reported.
package publish

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/iamd3vil/rlsr/build"
	"github.com/iamd3vil/rlsr/config"
	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/executor"
	"github.com/iamd3vil/rlsr/fs"
	"github.com/iamd3vil/rlsr/packager"
	"github.com/iamd3vil/rlsr/secrets"
	"github.com/iamd3vil/rlsr/secrets/providers/env"
	"github.com/iamd3vil/rlsr/templating"
)

// DefaultUploadWorkers bounds concurrent uploads within one target.
const DefaultUploadWorkers = 4

// Input is everything a release hands to its targets.
type Input struct {
	Release *config.Release
	Run     *templating.RunContext
	Output  *packager.Output
	Results []build.Result

	// Changelog is the rendered changelog body.
	Changelog string

	SkipPublish bool
}

// Publisher publishes a release to one target.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, in *Input) error
}

// Dispatcher fans a release out to its targets.
type Dispatcher struct {
	fs            fs.Filesystem
	runner        executor.Runner
	secrets       *secrets.Manager
	renderer      templating.Renderer
	httpClient    *http.Client
	blobStore     BlobStoreFactory
	ociPusher     OCIPusherFactory
	uploadWorkers int
	logger        *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithRunner sets the process runner used for docker.
func WithRunner(r executor.Runner) Option {
	return func(d *Dispatcher) {
		d.runner = r
	}
}

// WithSecrets sets where tokens and keys are resolved. Defaults to the
// process environment.
func WithSecrets(m *secrets.Manager) Option {
	return func(d *Dispatcher) {
		d.secrets = m
	}
}

// WithRenderer sets the template renderer for target fields.
func WithRenderer(r templating.Renderer) Option {
	return func(d *Dispatcher) {
		d.renderer = r
	}
}

// WithHTTPClient sets the client the GitHub and GitLab transports wrap.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		d.httpClient = c
	}
}

// WithBlobStore replaces the S3 client constructor.
func WithBlobStore(f BlobStoreFactory) Option {
	return func(d *Dispatcher) {
		d.blobStore = f
	}
}

// WithOCIPusher replaces the registry client constructor.
func WithOCIPusher(f OCIPusherFactory) Option {
	return func(d *Dispatcher) {
		d.ociPusher = f
	}
}

// WithUploadWorkers bounds concurrent uploads within one target.
func WithUploadWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.uploadWorkers = n
		}
	}
}

// New creates a Dispatcher reading release files from fsys.
func New(fsys fs.Filesystem, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		fs:            fsys,
		uploadWorkers: DefaultUploadWorkers,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.runner == nil {
		d.runner = executor.NewLocal()
	}
	if d.secrets == nil {
		d.secrets = secrets.NewManager(env.New())
	}
	if d.renderer == nil {
		d.renderer = templating.Default()
	}
	if d.blobStore == nil {
		d.blobStore = newMinioStore
	}
	if d.ociPusher == nil {
		d.ociPusher = newOCIPusher
	}
	return d
}

// Eligible reports whether a run may publish and, if not, why.
func Eligible(run *templating.RunContext, skip bool) (bool, string) {
	switch {
	case skip:
		return false, "publishing skipped"
	case !run.HasTag():
		return false, "HEAD is not tagged"
	case run.Meta().IsDirty:
		return false, "working tree is dirty"
	}
	return true, ""
}

// Publishers returns a publisher for every target configured on rel.
func (d *Dispatcher) Publishers(rel *config.Release) []Publisher {
	var pubs []Publisher
	t := rel.Targets
	if t.GitHub != nil {
		pubs = append(pubs, &gitHubPublisher{d: d, target: t.GitHub})
	}
	if t.GitLab != nil {
		pubs = append(pubs, &gitLabPublisher{d: d, target: t.GitLab})
	}
	if t.Docker != nil {
		pubs = append(pubs, &dockerPublisher{d: d, target: t.Docker})
	}
	if t.Blob != nil {
		pubs = append(pubs, &blobPublisher{d: d, target: t.Blob})
	}
	if t.OCI != nil {
		pubs = append(pubs, &ociPublisher{d: d, target: t.OCI})
	}
	return pubs
}

// Publish publishes in to every configured target. An ineligible run makes
// no calls and returns nil.
func (d *Dispatcher) Publish(ctx context.Context, in Input) error {
	if ok, reason := Eligible(in.Run, in.SkipPublish); !ok {
		d.logger.Info("not publishing", "release", in.Release.Name, "reason", reason)
		return nil
	}

	pubs := d.Publishers(in.Release)
	if len(pubs) == 0 {
		return nil
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, p := range pubs {
		g.Go(func() error {
			d.logger.Info("publishing", "release", in.Release.Name, "target", p.Name())
			if err := p.Publish(ctx, &in); err != nil {
				mu.Lock()
				errs = append(errs, errors.WrapWithContext(err, errors.CodePublishFailed, "failed to publish",
					map[string]interface{}{"release": in.Release.Name, "target": p.Name()}))
				mu.Unlock()
				return nil
			}
			d.logger.Info("published", "release", in.Release.Name, "target", p.Name())
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// upload is one file sent to a target.
type upload struct {
	Path string
	Name string
}

// uploads lists the release's assets followed by the checksum manifest.
func uploads(out *packager.Output, withChangelog bool) []upload {
	if out == nil {
		return nil
	}
	list := make([]upload, 0, len(out.Assets)+2)
	for _, a := range out.Assets {
		list = append(list, upload{Path: a.Path, Name: a.Name})
	}
	if out.Manifest != "" {
		list = append(list, upload{Path: out.Manifest, Name: path.Base(out.Manifest)})
	}
	if withChangelog && out.Changelog != "" {
		list = append(list, upload{Path: out.Changelog, Name: path.Base(out.Changelog)})
	}
	return list
}

// open returns a reader for u and its size.
func (d *Dispatcher) open(u upload) (fs.File, int64, error) {
	f, err := d.fs.Open(u.Path)
	if err != nil {
		return nil, 0, errors.WrapWithContext(err, errors.CodeNotFound, "failed to open release file",
			map[string]interface{}{"path": u.Path})
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, errors.WrapWithContext(err, errors.CodeInternal, "failed to stat release file",
			map[string]interface{}{"path": u.Path})
	}
	return f, info.Size(), nil
}

// token resolves the first set secret among names.
func (d *Dispatcher) token(ctx context.Context, names ...string) (string, error) {
	s, err := d.secrets.ResolveAny(ctx, names...)
	if err != nil {
		if errors.Is(err, secrets.ErrSecretNotFound) {
			return "", errors.Wrap(err, errors.CodeUnauthorized, "missing credentials")
		}
		return "", errors.Wrap(err, errors.CodeInternal, "failed to resolve credentials")
	}
	return s.String(), nil
}

func (d *Dispatcher) render(in *Input, text string) (string, error) {
	return in.Run.Release().Render(d.renderer, text)
}
