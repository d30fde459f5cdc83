// rlsr builds, packages and publishes releases described by a config file.
//
// Usage:
//
//	rlsr [--config rlsr.yml] [--skip-publish] [--rm-dist]
//
// Publishing happens only when HEAD is tagged and the worktree is clean.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/iamd3vil/rlsr/changelog"
	"github.com/iamd3vil/rlsr/config"
	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/fs/billy"
	"github.com/iamd3vil/rlsr/git"
	"github.com/iamd3vil/rlsr/release"
	"github.com/iamd3vil/rlsr/scm"
	"github.com/iamd3vil/rlsr/secrets"
	"github.com/iamd3vil/rlsr/secrets/providers/env"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type flags struct {
	config      string
	skipPublish bool
	rmDist      bool
	version     bool
	logLevel    string
	logFormat   string
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	var f flags
	fset := pflag.NewFlagSet("rlsr", pflag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.StringVarP(&f.config, "config", "c", config.DefaultPath, "path to the release config")
	fset.BoolVar(&f.skipPublish, "skip-publish", false, "build and package without publishing")
	fset.BoolVar(&f.rmDist, "rm-dist", false, "remove each release's dist folder first")
	fset.BoolVarP(&f.version, "version", "v", false, "print the version and exit")
	fset.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	fset.StringVar(&f.logFormat, "log-format", "text", "log format: text or json")
	fset.Usage = func() {
		fmt.Fprintf(stderr, "Usage: rlsr [flags]\n\nFlags:\n%s", fset.FlagUsages())
	}

	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	if fset.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fset.Arg(0))
	}
	return &f, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	if f.version {
		fmt.Fprintf(stdout, "rlsr %s\n", version)
		return exitOK
	}

	logger, err := newLogger(stderr, f.logLevel, f.logFormat)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	fsys := billy.NewBaseOSFS()
	cfg, err := config.Load(ctx, fsys, f.config)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return exitFailure
	}

	cwd, err := os.Getwd()
	if err != nil {
		logger.Error("failed to get working directory", "error", err)
		return exitFailure
	}
	repo, err := git.Discover(ctx, cwd)
	if err != nil {
		logger.Error("failed to open repository", "error", err)
		return exitFailure
	}

	opts := []release.Option{
		release.WithLogger(logger),
		release.WithOutput(stderr),
	}
	handles := handleCache(ctx, cfg, logger)
	if handles != nil {
		opts = append(opts, release.WithResolver(handles))
	}

	summary, runErr := release.New(fsys, repo, opts...).Run(ctx, cfg, release.Options{
		SkipPublish: f.skipPublish,
		RmDist:      f.rmDist,
		ProjectDir:  cwd,
	})

	if handles != nil {
		if err := handles.Save(); err != nil {
			logger.Warn("failed to save handle cache", "error", err)
		}
	}

	if summary != nil {
		fmt.Fprintln(stdout, renderSummary(summary))
	}
	if runErr != nil {
		logger.Error("release run failed", "error", runErr)
		return exitFailure
	}
	return exitOK
}

// handleCache returns a GitHub-backed handle cache when any release uses
// the github changelog format, or nil.
func handleCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) *changelog.HandleCache {
	needed := false
	baseURL := ""
	for i := range cfg.Releases {
		rel := &cfg.Releases[i]
		if cfg.ChangelogFor(rel).Format == config.ChangelogFormatGitHub {
			needed = true
		}
		if gh := rel.Targets.GitHub; gh != nil && baseURL == "" {
			baseURL = gh.URL
		}
	}
	if !needed {
		return nil
	}

	s, err := secrets.NewManager(env.New()).ResolveAny(ctx, "GITHUB_TOKEN", "GH_TOKEN")
	if err != nil {
		logger.Warn("no GitHub token, changelog authors fall back to emails")
		return changelog.NewHandleCache(noUsers{}, changelog.WithCacheLogger(logger))
	}

	gh, err := scm.NewGitHub(scm.Config{BaseURL: baseURL, Token: s.String(), Logger: logger}, "", "")
	if err != nil {
		logger.Warn("handle lookups disabled", "error", err)
		return changelog.NewHandleCache(noUsers{}, changelog.WithCacheLogger(logger))
	}

	cacheOpts := []changelog.HandleCacheOption{changelog.WithCacheLogger(logger)}
	if p, err := changelog.DefaultHandleCachePath(); err == nil {
		cacheOpts = append(cacheOpts, changelog.WithCacheFile(billy.NewBaseOSFS(), p))
	} else {
		logger.Warn("handle cache not persisted", "error", err)
	}
	return changelog.NewHandleCache(gh, cacheOpts...)
}

// noUsers matches no one, so every author resolves to their email.
type noUsers struct{}

func (noUsers) SearchUserByEmail(context.Context, string) (string, error) { return "", nil }
