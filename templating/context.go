// Package templating owns the run context every templated field is rendered
// against, and the Jinja-compatible renderer with rlsr's filter set.
//
// The run context is built once per invocation. Its time values are frozen
// at construction so every render in a run agrees on date, timestamp and now.
package templating

import (
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Layouts used for the frozen time values.
const (
	DateLayout = "2006-01-02"
	NowLayout  = time.RFC3339
)

// Meta is the release-scoped metadata exposed as meta.* in templates.
type Meta struct {
	Tag         string
	Version     string
	Major       uint64
	Minor       uint64
	Patch       uint64
	Prerelease  string
	Commit      string
	ShortCommit string
	Branch      string
	PreviousTag string
	ProjectName string
	ReleaseURL  string
	IsSnapshot  bool
	IsDirty     bool
}

// Binding is one matrix axis value bound to a resolved build.
type Binding struct {
	Key   string
	Value string
}

// BuildMeta is the build-scoped metadata layered over Meta.
type BuildMeta struct {
	Name   string
	OS     string
	Arch   string
	Arm    string
	Target string
	Matrix []Binding
}

// RunContext is the immutable snapshot shared by all renders in one run.
// It is safe for concurrent use.
type RunContext struct {
	meta Meta
	env  map[string]string
	now  time.Time
}

// NewRunContext freezes meta, a copy of env and now (converted to UTC).
func NewRunContext(meta Meta, env map[string]string, now time.Time) *RunContext {
	return &RunContext{
		meta: meta,
		env:  maps.Clone(env),
		now:  now.UTC().Truncate(time.Second),
	}
}

// Meta returns the release metadata.
func (r *RunContext) Meta() Meta { return r.meta }

// Now returns the frozen run time.
func (r *RunContext) Now() time.Time { return r.now }

// Date returns the run date as YYYY-MM-DD.
func (r *RunContext) Date() string { return r.now.Format(DateLayout) }

// Timestamp returns the run time as unix seconds.
func (r *RunContext) Timestamp() string { return strconv.FormatInt(r.now.Unix(), 10) }

// HasTag reports whether HEAD sits exactly on a release tag.
func (r *RunContext) HasTag() bool { return r.meta.Tag != "" && !r.meta.IsSnapshot }

// Release returns the release-scoped view of the context.
func (r *RunContext) Release() Scope {
	return Scope{run: r}
}

// Build returns a view of the context scoped to one resolved build.
func (r *RunContext) Build(b BuildMeta) Scope {
	b.Matrix = append([]Binding(nil), b.Matrix...)
	return Scope{run: r, build: &b}
}

// Scope is a read-only view of a RunContext for one render site, optionally
// carrying build metadata and an environment overlay.
type Scope struct {
	run     *RunContext
	build   *BuildMeta
	overlay map[string]string
}

// WithEnv returns a copy of s whose environment is overlaid by env.
func (s Scope) WithEnv(env map[string]string) Scope {
	merged := make(map[string]string, len(s.overlay)+len(env))
	maps.Copy(merged, s.overlay)
	maps.Copy(merged, env)
	s.overlay = merged
	return s
}

// WithData returns a render data map for s with extra top-level keys added.
// Extra keys never replace meta, env or the time values.
func (s Scope) WithData(extra map[string]interface{}) map[string]interface{} {
	data := s.Data()
	for k, v := range extra {
		if _, reserved := data[k]; !reserved {
			data[k] = v
		}
	}
	return data
}

// Env returns the effective environment: the run environment overlaid by
// the scope's overlay.
func (s Scope) Env() map[string]string {
	env := make(map[string]string, len(s.run.env)+len(s.overlay))
	maps.Copy(env, s.run.env)
	maps.Copy(env, s.overlay)
	return env
}

// Build returns the build metadata, if the scope is build-scoped.
func (s Scope) Build() (BuildMeta, bool) {
	if s.build == nil {
		return BuildMeta{}, false
	}
	return *s.build, true
}

// Run returns the underlying run context.
func (s Scope) Run() *RunContext { return s.run }

// Data returns a fresh map of template variables.
func (s Scope) Data() map[string]interface{} {
	m := s.run.meta
	meta := map[string]interface{}{
		"tag":          m.Tag,
		"version":      m.Version,
		"major":        m.Major,
		"minor":        m.Minor,
		"patch":        m.Patch,
		"prerelease":   m.Prerelease,
		"commit":       m.Commit,
		"short_commit": m.ShortCommit,
		"branch":       m.Branch,
		"previous_tag": m.PreviousTag,
		"project_name": m.ProjectName,
		"release_url":  m.ReleaseURL,
		"is_snapshot":  m.IsSnapshot,
		"is_dirty":     m.IsDirty,
	}

	if b := s.build; b != nil {
		matrix := make(map[string]interface{}, len(b.Matrix))
		for _, kv := range b.Matrix {
			matrix[kv.Key] = kv.Value
		}
		meta["build_name"] = b.Name
		meta["os"] = b.OS
		meta["arch"] = b.Arch
		meta["arm"] = b.Arm
		meta["target"] = b.Target
		meta["matrix"] = matrix
	}

	return map[string]interface{}{
		"meta":      meta,
		"env":       s.Env(),
		"date":      s.run.Date(),
		"timestamp": s.run.Timestamp(),
		"now":       s.run.now.Format(NowLayout),
	}
}

// MetaForTag fills the version fields of m from tag. A tag that is not a
// semantic version leaves Version equal to the tag without its v prefix
// and the numeric parts zero.
func MetaForTag(m Meta, tag string) Meta {
	m.Tag = tag
	m.Version = strings.TrimPrefix(strings.TrimPrefix(tag, "v"), "V")
	m.Major, m.Minor, m.Patch, m.Prerelease = 0, 0, 0, ""
	if sv, err := semver.NewVersion(m.Version); err == nil {
		m.Major, m.Minor, m.Patch = sv.Major(), sv.Minor(), sv.Patch()
		m.Prerelease = sv.Prerelease()
	}
	return m
}
