// Package changelog builds release notes from the commits since the
// previous tag. Commits are filtered by exclusion patterns, classified as
// conventional commits and rendered through a template, either the
// built-in grouped one or a user supplied file.
package changelog

import (
	"context"
	_ "embed"
	"log/slog"
	"regexp"
	"strings"

	"github.com/iamd3vil/rlsr/config"
	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/fs"
	"github.com/iamd3vil/rlsr/git"
	"github.com/iamd3vil/rlsr/templating"
)

//go:embed templates/default.md.tmpl
var defaultTemplate string

// Group titles in rendering order.
const (
	GroupBreaking = "Breaking Changes"
	GroupFeatures = "Features"
	GroupFixes    = "Bug Fixes"
	GroupOther    = "Other"
)

// History is the part of a repository the generator reads.
type History interface {
	PreviousTag(ctx context.Context) (string, error)
	CommitsSince(ctx context.Context, since string) ([]git.Commit, error)
}

// HandleResolver maps an author email to a display handle.
type HandleResolver interface {
	Resolve(ctx context.Context, email string) (string, error)
}

// Generator renders changelogs for one changelog configuration.
type Generator struct {
	history  History
	format   string
	exclude  []*regexp.Regexp
	template string
	renderer templating.Renderer
	resolver HandleResolver
	logger   *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// WithResolver sets the handle resolver used by the github format.
func WithResolver(r HandleResolver) Option {
	return func(g *Generator) {
		g.resolver = r
	}
}

// WithRenderer replaces the template renderer. It must provide the
// changelog filters.
func WithRenderer(r templating.Renderer) Option {
	return func(g *Generator) {
		g.renderer = r
	}
}

// New creates a Generator. A template path in cfg is read from fsys.
func New(history History, cfg *config.Changelog, fsys fs.Filesystem, opts ...Option) (*Generator, error) {
	if cfg == nil {
		cfg = &config.Changelog{Format: config.ChangelogFormatDefault}
	}

	g := &Generator{
		history:  history,
		format:   cfg.Format,
		template: defaultTemplate,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.renderer == nil {
		g.renderer = templating.NewEngine(templating.WithChangelogFilters())
	}
	if g.format == "" {
		g.format = config.ChangelogFormatDefault
	}

	for _, pattern := range cfg.Exclude {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.WrapWithContext(err, errors.CodeInvalidConfig, "invalid changelog exclude pattern",
				map[string]interface{}{"pattern": pattern})
		}
		g.exclude = append(g.exclude, re)
	}

	if cfg.Template != "" {
		data, err := fsys.ReadFile(cfg.Template)
		if err != nil {
			return nil, errors.WrapWithContext(err, errors.CodeChangelogFailed, "failed to read changelog template",
				map[string]interface{}{"path": cfg.Template})
		}
		g.template = string(data)
	}

	if g.format == config.ChangelogFormatGitHub && g.resolver == nil {
		return nil, errors.New(errors.CodeInvalidConfig, "github changelog format requires a handle resolver")
	}
	return g, nil
}

// Commits returns the classified commits since the previous tag, newest
// first, with excluded subjects removed, and the previous tag itself.
func (g *Generator) Commits(ctx context.Context) ([]Commit, string, error) {
	prev, err := g.history.PreviousTag(ctx)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.CodeChangelogFailed, "failed to find previous tag")
	}
	raw, err := g.history.CommitsSince(ctx, prev)
	if err != nil {
		return nil, "", errors.WrapWithContext(err, errors.CodeChangelogFailed, "failed to read commit history",
			map[string]interface{}{"since": prev})
	}

	commits := make([]Commit, 0, len(raw))
	for _, rc := range raw {
		if g.excluded(rc.Subject) {
			continue
		}
		c := Classify(rc)
		if g.format == config.ChangelogFormatGitHub {
			handle, err := g.resolver.Resolve(ctx, c.Email)
			if err != nil {
				return nil, "", err
			}
			c.Handle = handle
		}
		commits = append(commits, c)
	}
	return commits, prev, nil
}

// Generate renders the changelog for run.
func (g *Generator) Generate(ctx context.Context, run *templating.RunContext) (string, error) {
	commits, prev, err := g.Commits(ctx)
	if err != nil {
		return "", err
	}
	g.logger.Debug("collected commits", "previous_tag", prev, "count", len(commits))

	list := make([]interface{}, len(commits))
	for i, c := range commits {
		list[i] = c.data()
	}
	data := run.Release().WithData(map[string]interface{}{
		"commits": list,
		"groups":  groups(commits),
	})

	out, err := g.renderer.Render(g.template, data)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeChangelogFailed, "failed to render changelog")
	}
	return tidy(out), nil
}

func (g *Generator) excluded(subject string) bool {
	for _, re := range g.exclude {
		if re.MatchString(subject) {
			return true
		}
	}
	return false
}

// groups buckets commits for the built-in template, dropping empty groups.
// Breaking commits are listed only under breaking changes.
func groups(commits []Commit) []interface{} {
	titles := []string{GroupBreaking, GroupFeatures, GroupFixes, GroupOther}
	buckets := make(map[string][]interface{}, len(titles))
	for _, c := range commits {
		var title string
		switch {
		case c.Breaking:
			title = GroupBreaking
		case c.Type == "feat":
			title = GroupFeatures
		case c.Type == "fix":
			title = GroupFixes
		default:
			title = GroupOther
		}
		buckets[title] = append(buckets[title], c.data())
	}

	var out []interface{}
	for _, title := range titles {
		if len(buckets[title]) == 0 {
			continue
		}
		out = append(out, map[string]interface{}{"title": title, "commits": buckets[title]})
	}
	return out
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// tidy collapses runs of blank lines and ends non-empty output with one
// newline.
func tidy(s string) string {
	s = strings.TrimSpace(blankRuns.ReplaceAllString(s, "\n\n"))
	if s == "" {
		return ""
	}
	return s + "\n"
}
