// Package build runs the expanded builds of a release: hooks, the build
// command or docker buildx invocation, and staging of the produced
// artifact into the dist folder.
package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iamd3vil/rlsr/archive"
	"github.com/iamd3vil/rlsr/config"
	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/executor"
	"github.com/iamd3vil/rlsr/fs"
	"github.com/iamd3vil/rlsr/matrix"
	"github.com/iamd3vil/rlsr/templating"
)

// Result is the outcome of one resolved build.
type Result struct {
	Name   string
	Index  int
	Matrix []matrix.Binding

	// Artifact is the staged path inside the dist folder, empty when the
	// build produced nothing to package.
	Artifact string

	// BinName is the artifact's file name inside the archive. Without an
	// explicit bin_name it is the artifact's base name, and the artifact is
	// staged under the archive name minus its suffix.
	BinName string

	// ArchiveName is the rendered archive (or renamed artifact) name.
	ArchiveName string
	NoArchive   bool

	// Files are rendered extra files to archive next to the artifact:
	// build additional_files first, then release additional_files.
	Files []string

	// Tags are the rendered buildx image tags.
	Tags []string

	// Pushed is true when buildx exported the image straight to a registry.
	Pushed bool

	ExitCode int
	Err      error
	Duration time.Duration
}

// Label identifies the build in logs and errors.
func (r *Result) Label() string {
	if len(r.Matrix) == 0 {
		return r.Name
	}
	parts := make([]string, len(r.Matrix))
	for i, b := range r.Matrix {
		parts[i] = b.Key + "=" + b.Value
	}
	return fmt.Sprintf("%s[%s]", r.Name, strings.Join(parts, ","))
}

// Executor runs builds. It is safe for concurrent use by one release at a
// time; buildx builders are prepared at most once per name.
type Executor struct {
	runner   executor.Runner
	fs       fs.Filesystem
	renderer templating.Renderer
	logger   *slog.Logger
	output   io.Writer

	mu       sync.Mutex
	builders map[string]*builderSetup
}

type builderSetup struct {
	once sync.Once
	err  error
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithRunner sets the process runner.
func WithRunner(r executor.Runner) Option {
	return func(e *Executor) {
		e.runner = r
	}
}

// WithRenderer sets the template renderer.
func WithRenderer(r templating.Renderer) Option {
	return func(e *Executor) {
		e.renderer = r
	}
}

// WithOutput streams the stdout and stderr of every command to w.
func WithOutput(w io.Writer) Option {
	return func(e *Executor) {
		e.output = w
	}
}

// New creates an Executor staging artifacts on fsys.
func New(fsys fs.Filesystem, opts ...Option) *Executor {
	e := &Executor{
		runner:   executor.NewLocal(),
		fs:       fsys,
		renderer: templating.Default(),
		logger:   slog.Default(),
		builders: make(map[string]*builderSetup),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// plan is everything about a build that can be rendered before it runs.
type plan struct {
	build   matrix.ResolvedBuild
	environ []string

	prehook  string
	command  string
	posthook string
	buildx   *BuildxCommand

	artifact string
	dest     string
	result   Result
	err      error
}

// Run executes builds for rel. Builds run concurrently unless the release
// asks for sequential builds; a failing build never stops its siblings.
// The returned results are ordered by index and the error joins every
// build failure.
func (e *Executor) Run(
	ctx context.Context,
	rel *config.Release,
	builds []matrix.ResolvedBuild,
	run *templating.RunContext,
) ([]Result, error) {
	plans := make([]*plan, len(builds))
	owners := make(map[string]string, len(builds))
	for i, b := range builds {
		p := e.plan(rel, b, run)
		plans[i] = p
		if p.dest == "" {
			continue
		}
		if other, dup := owners[p.dest]; dup {
			return nil, errors.WithContext(
				errors.Newf(errors.CodeInvalidConfig, "builds %s and %s both stage %s", other, p.result.Label(), p.dest),
				map[string]interface{}{"release": rel.Name},
			)
		}
		owners[p.dest] = p.result.Label()
	}

	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(plans))
	)
	collect := func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	}

	if rel.BuildsSequential {
		for _, p := range plans {
			collect(e.execute(ctx, rel, p))
		}
	} else {
		var wg sync.WaitGroup
		for _, p := range plans {
			wg.Add(1)
			go func(p *plan) {
				defer wg.Done()
				collect(e.execute(ctx, rel, p))
			}(p)
		}
		wg.Wait()
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

func (e *Executor) plan(rel *config.Release, b matrix.ResolvedBuild, run *templating.RunContext) *plan {
	p := &plan{
		build: b,
		result: Result{
			Name:      b.Name,
			Index:     b.Index,
			Matrix:    b.Matrix,
			NoArchive: b.NoArchive,
		},
	}

	scope, err := ScopeEnv(e.renderer, run.Build(buildMeta(b)), rel.Env, b.Env)
	if err != nil {
		p.err = err
		return p
	}
	p.environ = Environ(scope.Env())

	render := func(s string) string {
		if p.err != nil || s == "" {
			return ""
		}
		out, err := scope.Render(e.renderer, s)
		if err != nil {
			p.err = err
		}
		return out
	}

	p.prehook = render(b.Prehook)
	p.posthook = render(b.Posthook)
	p.artifact = render(b.Artifact)
	p.result.BinName = render(b.BinName)
	p.result.ArchiveName = render(b.ArchiveName)
	if p.err != nil {
		return p
	}
	staged := p.result.BinName
	if staged == "" {
		staged = archive.TrimFormat(p.result.ArchiveName)
	}
	if p.result.BinName == "" && p.artifact != "" {
		p.result.BinName = path.Base(p.artifact)
	}
	if staged == "" {
		staged = p.result.BinName
	}

	files, err := scope.RenderAll(e.renderer, append(append([]string(nil), b.AdditionalFiles...), rel.AdditionalFiles...))
	if err != nil {
		p.err = err
		return p
	}
	p.result.Files = files

	switch b.Type {
	case config.BuildTypeBuildx:
		p.buildx, p.err = NewBuildxCommand(e.renderer, scope, b.Buildx)
		if p.err != nil {
			p.err = errors.Wrap(p.err, errors.CodeInvalidConfig, "invalid buildx parameters")
			return p
		}
		p.result.Tags = p.buildx.Tags
		p.result.Pushed = p.buildx.Pushes
	default:
		p.command = render(b.Command)
	}

	if p.err == nil && p.artifact != "" && !p.result.Pushed {
		p.dest = path.Join(rel.DistFolder, staged)
	}
	return p
}

func (e *Executor) execute(ctx context.Context, rel *config.Release, p *plan) Result {
	start := time.Now()
	res := p.result

	logger := e.logger.With("build", res.Label(), "index", res.Index)
	fail := func(err error, exitCode int) Result {
		res.ExitCode = exitCode
		res.Err = errors.WrapWithContext(err, errors.CodeBuildFailed, "build failed", map[string]interface{}{
			"release":   rel.Name,
			"build":     res.Label(),
			"exit_code": exitCode,
		})
		res.Duration = time.Since(start)
		logger.Error("build failed", "error", err, "exit_code", exitCode)
		return res
	}

	if p.err != nil {
		return fail(p.err, -1)
	}
	if err := ctx.Err(); err != nil {
		return fail(err, -1)
	}

	opts := []executor.Option{executor.WithEnviron(p.environ)}
	if e.output != nil {
		opts = append(opts, executor.WithStdoutWriter(e.output), executor.WithStderrWriter(e.output))
	}

	if p.prehook != "" {
		logger.Info("running prehook", "command", p.prehook)
		if r, err := executor.RunShell(ctx, e.runner, p.prehook, opts...); err != nil {
			return fail(fmt.Errorf("prehook failed: %w", withStderr(err, r)), exitCode(r, err))
		}
	}

	if p.buildx != nil {
		if p.buildx.Builder != "" {
			if err := e.builder(ctx, p.buildx.Builder, opts...); err != nil {
				return fail(err, -1)
			}
		}
		logger.Info("running buildx", "command", p.buildx.String())
		if r, err := e.runner.Run(ctx, "docker", p.buildx.Args, opts...); err != nil {
			return fail(withStderr(err, r), exitCode(r, err))
		}
	} else {
		logger.Info("running build command", "command", p.command)
		if r, err := executor.RunShell(ctx, e.runner, p.command, opts...); err != nil {
			return fail(withStderr(err, r), exitCode(r, err))
		}
	}

	if p.posthook != "" {
		logger.Info("running posthook", "command", p.posthook)
		if r, err := executor.RunShell(ctx, e.runner, p.posthook, opts...); err != nil {
			return fail(fmt.Errorf("posthook failed: %w", withStderr(err, r)), exitCode(r, err))
		}
	}

	if p.dest != "" {
		if err := fs.CopyFile(e.fs, p.artifact, e.fs, p.dest); err != nil {
			return fail(fmt.Errorf("failed to stage artifact %s: %w", p.artifact, err), 0)
		}
		res.Artifact = p.dest
	}

	res.Duration = time.Since(start)
	logger.Info("build finished", "artifact", res.Artifact, "pushed", res.Pushed, "duration", res.Duration)
	return res
}

// builder prepares a buildx builder once per name for the executor's
// lifetime. Concurrent callers for the same name wait for the first.
func (e *Executor) builder(ctx context.Context, name string, opts ...executor.Option) error {
	e.mu.Lock()
	setup, ok := e.builders[name]
	if !ok {
		setup = &builderSetup{}
		e.builders[name] = setup
	}
	e.mu.Unlock()

	setup.once.Do(func() {
		setup.err = e.ensureBuilder(ctx, name, opts...)
	})
	return setup.err
}

func buildMeta(b matrix.ResolvedBuild) templating.BuildMeta {
	bindings := make([]templating.Binding, len(b.Matrix))
	for i, m := range b.Matrix {
		bindings[i] = templating.Binding{Key: m.Key, Value: m.Value}
	}
	return templating.BuildMeta{
		Name:   b.Name,
		OS:     b.OS,
		Arch:   b.Arch,
		Arm:    b.Arm,
		Target: b.Target,
		Matrix: bindings,
	}
}

func exitCode(r *executor.Result, err error) int {
	if r != nil && r.ExitCode != 0 {
		return r.ExitCode
	}
	return executor.ExitCode(err)
}

const maxStderr = 512

func withStderr(err error, r *executor.Result) error {
	if r == nil {
		return err
	}
	out := strings.TrimSpace(r.Stderr)
	if out == "" {
		return err
	}
	if len(out) > maxStderr {
		out = "..." + out[len(out)-maxStderr:]
	}
	return fmt.Errorf("%w: %s", err, out)
}
