// Package release sequences the stages of a release run: hooks, matrix
// expansion, builds, packaging, changelog and publishing.
package release

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iamd3vil/rlsr/build"
	"github.com/iamd3vil/rlsr/changelog"
	"github.com/iamd3vil/rlsr/config"
	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/executor"
	"github.com/iamd3vil/rlsr/fs"
	"github.com/iamd3vil/rlsr/matrix"
	"github.com/iamd3vil/rlsr/packager"
	"github.com/iamd3vil/rlsr/publish"
	"github.com/iamd3vil/rlsr/templating"
)

// Options are the per-run switches from the command line.
type Options struct {
	// SkipPublish builds and packages without publishing.
	SkipPublish bool

	// RmDist removes each release's dist folder before building.
	RmDist bool

	// ProjectDir names the project when the config has no project_name.
	ProjectDir string
}

// Summary is the outcome of one run.
type Summary struct {
	RunID    string
	Meta     templating.Meta
	Releases []ReleaseSummary
	Duration time.Duration
}

// Failed reports whether any release failed.
func (s *Summary) Failed() bool {
	for _, r := range s.Releases {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// ReleaseSummary is the outcome of one release.
type ReleaseSummary struct {
	Name      string
	Builds    []build.Result
	Output    *packager.Output
	Changelog string

	// Published is true when the release was handed to its targets.
	// SkipReason says why it was not.
	Published  bool
	SkipReason string

	Err      error
	Duration time.Duration
}

// Orchestrator runs releases.
type Orchestrator struct {
	fs         fs.Filesystem
	repo       Repository
	runner     executor.Runner
	renderer   templating.Renderer
	resolver   changelog.HandleResolver
	dispatcher *publish.Dispatcher
	environ    map[string]string
	clock      func() time.Time
	output     io.Writer
	logger     *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithRunner sets the process runner for hooks and builds.
func WithRunner(r executor.Runner) Option {
	return func(o *Orchestrator) {
		o.runner = r
	}
}

// WithRenderer sets the template renderer.
func WithRenderer(r templating.Renderer) Option {
	return func(o *Orchestrator) {
		o.renderer = r
	}
}

// WithResolver sets the handle resolver used by github-format changelogs.
func WithResolver(r changelog.HandleResolver) Option {
	return func(o *Orchestrator) {
		o.resolver = r
	}
}

// WithDispatcher sets the publish dispatcher.
func WithDispatcher(d *publish.Dispatcher) Option {
	return func(o *Orchestrator) {
		o.dispatcher = d
	}
}

// WithEnviron replaces the process environment seen by templates and commands.
func WithEnviron(env map[string]string) Option {
	return func(o *Orchestrator) {
		o.environ = env
	}
}

// WithClock sets the time source for the run's date and timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.clock = now
	}
}

// WithOutput streams hook and build output to w.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) {
		o.output = w
	}
}

// New creates an Orchestrator working on fsys and reading history from repo.
func New(fsys fs.Filesystem, repo Repository, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fs:       fsys,
		repo:     repo,
		runner:   executor.NewLocal(),
		renderer: templating.Default(),
		clock:    time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.environ == nil {
		o.environ = processEnv()
	}
	if o.dispatcher == nil {
		o.dispatcher = publish.New(fsys,
			publish.WithRunner(o.runner),
			publish.WithRenderer(o.renderer),
			publish.WithLogger(o.logger),
		)
	}
	return o
}

// Run executes every release in cfg in declared order. A failing release
// does not stop the ones after it; the returned error joins all failures.
func (o *Orchestrator) Run(ctx context.Context, cfg *config.Config, opts Options) (*Summary, error) {
	start := o.clock()
	runID := uuid.NewString()
	logger := o.logger.With("run_id", runID)

	meta, err := ReadMeta(ctx, o.repo, cfg, opts.ProjectDir)
	if err != nil {
		return nil, err
	}
	run := templating.NewRunContext(meta, o.environ, start)
	logger.Info("starting run",
		"tag", meta.Tag,
		"commit", meta.ShortCommit,
		"snapshot", meta.IsSnapshot,
		"dirty", meta.IsDirty,
		"releases", len(cfg.Releases),
	)

	summary := &Summary{RunID: runID, Meta: meta}
	var errs []error
	for i := range cfg.Releases {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rel := &cfg.Releases[i]
		rs := o.release(ctx, logger.With("release", rel.Name), cfg, rel, run, opts)
		summary.Releases = append(summary.Releases, rs)
		if rs.Err != nil {
			errs = append(errs, rs.Err)
		}
	}
	summary.Duration = o.clock().Sub(start)
	return summary, errors.Join(errs...)
}

func (o *Orchestrator) release(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.Config,
	rel *config.Release,
	run *templating.RunContext,
	opts Options,
) ReleaseSummary {
	start := o.clock()
	rs := ReleaseSummary{Name: rel.Name}
	finish := func(err error) ReleaseSummary {
		rs.Err = err
		rs.Duration = o.clock().Sub(start)
		if err != nil {
			logger.Error("release failed", "error", err)
		} else {
			logger.Info("release finished", "duration", rs.Duration)
		}
		return rs
	}

	if opts.RmDist {
		logger.Info("removing dist folder", "path", rel.DistFolder)
		if err := o.fs.RemoveAll(rel.DistFolder); err != nil {
			return finish(errors.WrapWithContext(err, errors.CodePackagingFailed, "failed to remove dist folder",
				map[string]interface{}{"release": rel.Name, "path": rel.DistFolder}))
		}
	}

	if err := o.hooks(ctx, logger, rel, run, "before", rel.Hooks.Before); err != nil {
		return finish(err)
	}

	builds, err := matrix.ExpandAll(rel.Builds)
	if err != nil {
		return finish(errors.WithContext(err, map[string]interface{}{"release": rel.Name}))
	}

	results, err := build.New(o.fs,
		build.WithRunner(o.runner),
		build.WithRenderer(o.renderer),
		build.WithLogger(logger),
		build.WithOutput(o.output),
	).Run(ctx, rel, builds, run)
	rs.Builds = results
	if err != nil {
		return finish(err)
	}

	pkg := packager.New(o.fs, rel, packager.WithLogger(logger))
	out, err := pkg.Package(ctx, results)
	if err != nil {
		return finish(errors.WithContext(err, map[string]interface{}{"release": rel.Name}))
	}
	rs.Output = out

	body, err := o.changelog(ctx, logger, cfg, rel, run)
	if err != nil {
		return finish(err)
	}
	if err := pkg.WriteChangelog(out, body); err != nil {
		return finish(err)
	}
	rs.Changelog = body

	rs.Published, rs.SkipReason = publish.Eligible(run, opts.SkipPublish)
	publishErr := o.dispatcher.Publish(ctx, publish.Input{
		Release:     rel,
		Run:         run,
		Output:      out,
		Results:     results,
		Changelog:   body,
		SkipPublish: opts.SkipPublish,
	})
	if publishErr != nil {
		rs.Published = false
	}

	// After hooks run even when a target failed.
	afterErr := o.hooks(ctx, logger, rel, run, "after", rel.Hooks.After)
	return finish(errors.Join(publishErr, afterErr))
}

func (o *Orchestrator) changelog(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.Config,
	rel *config.Release,
	run *templating.RunContext,
) (string, error) {
	opts := []changelog.Option{changelog.WithLogger(logger)}
	if o.resolver != nil {
		opts = append(opts, changelog.WithResolver(o.resolver))
	}
	gen, err := changelog.New(o.repo, cfg.ChangelogFor(rel), o.fs, opts...)
	if err != nil {
		return "", errors.WithContext(err, map[string]interface{}{"release": rel.Name})
	}
	body, err := gen.Generate(ctx, run)
	if err != nil {
		return "", errors.WithContext(err, map[string]interface{}{"release": rel.Name})
	}
	return body, nil
}

// hooks runs commands in order through the shell, stopping at the first
// failure. Commands see the release env layered over the process env.
func (o *Orchestrator) hooks(
	ctx context.Context,
	logger *slog.Logger,
	rel *config.Release,
	run *templating.RunContext,
	stage string,
	commands []string,
) error {
	if len(commands) == 0 {
		return nil
	}
	scope, err := build.ScopeEnv(o.renderer, run.Release(), rel.Env)
	if err != nil {
		return errors.WithContext(err, map[string]interface{}{"release": rel.Name})
	}
	environ := build.Environ(scope.Env())

	for _, raw := range commands {
		command, err := scope.Render(o.renderer, raw)
		if err != nil {
			return errors.WithContext(err, map[string]interface{}{"release": rel.Name, "hook": stage})
		}
		logger.Info("running hook", "stage", stage, "command", command)
		execOpts := []executor.Option{executor.WithEnviron(environ)}
		if o.output != nil {
			execOpts = append(execOpts, executor.WithStdoutWriter(o.output), executor.WithStderrWriter(o.output))
		}
		res, err := executor.RunShell(ctx, o.runner, command, execOpts...)
		if err != nil {
			ctxMap := map[string]interface{}{
				"release":   rel.Name,
				"hook":      stage,
				"command":   command,
				"exit_code": executor.ExitCode(err),
			}
			if res != nil {
				ctxMap["exit_code"] = res.ExitCode
				if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
					ctxMap["stderr"] = stderr
				}
			}
			return errors.WrapWithContext(err, errors.CodeExecutionFailed, "hook failed", ctxMap)
		}
	}
	return nil
}

func processEnv() map[string]string {
	environ := os.Environ()
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
