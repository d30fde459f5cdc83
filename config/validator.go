package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/iamd3vil/rlsr/checksum"
	"github.com/iamd3vil/rlsr/errors"
)

// NestedAxisPrefixes are the dotted matrix key prefixes that address a
// nested buildx map entry instead of a plain matrix value.
var NestedAxisPrefixes = []string{"build_args.", "labels.", "annotations."}

// Validate checks the whole configuration and reports every problem found
// as a single CodeInvalidConfig error.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New(errors.CodeInvalidInput, "configuration is nil")
	}

	var problems []string
	if len(c.Releases) == 0 {
		problems = append(problems, "at least one release is required")
	}
	if c.Changelog != nil {
		problems = append(problems, validateChangelog("changelog", c.Changelog)...)
	}

	names := make(map[string]struct{}, len(c.Releases))
	for i := range c.Releases {
		r := &c.Releases[i]
		field := fmt.Sprintf("releases[%d]", i)
		if r.Name != "" {
			if _, dup := names[r.Name]; dup {
				problems = append(problems, fmt.Sprintf("%s: duplicate release name %q", field, r.Name))
			}
			names[r.Name] = struct{}{}
			field = fmt.Sprintf("release %q", r.Name)
		}
		problems = append(problems, validateRelease(field, r)...)
	}

	if len(problems) > 0 {
		return errors.New(
			errors.CodeInvalidConfig,
			fmt.Sprintf("configuration validation failed: %s", strings.Join(problems, "; ")),
		)
	}
	return nil
}

func validateRelease(field string, r *Release) []string {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, field+": "+fmt.Sprintf(format, args...))
	}

	if r.Name == "" {
		add("name is required")
	}
	if len(r.Builds) == 0 {
		add("at least one build is required")
	}
	if _, err := checksum.Lookup(r.Checksum.Algorithm); err != nil {
		add("%v", err)
	}
	for _, e := range validateEnv(r.Env) {
		add("env: %s", e)
	}
	if r.Changelog != nil {
		for _, p := range validateChangelog("changelog", r.Changelog) {
			add("%s", p)
		}
	}
	for _, p := range validateTargets(r.Targets) {
		add("targets.%s", p)
	}

	buildNames := make(map[string]struct{}, len(r.Builds))
	for i := range r.Builds {
		b := &r.Builds[i]
		bfield := fmt.Sprintf("builds[%d]", i)
		if b.Name != "" {
			if _, dup := buildNames[b.Name]; dup {
				add("%s: duplicate build name %q", bfield, b.Name)
			}
			buildNames[b.Name] = struct{}{}
			bfield = fmt.Sprintf("build %q", b.Name)
		}
		for _, p := range validateBuild(b) {
			add("%s: %s", bfield, p)
		}
	}
	return problems
}

func validateBuild(b *Build) []string {
	var problems []string
	if b.Name == "" {
		problems = append(problems, "name is required")
	}

	switch b.Type {
	case BuildTypeCustom:
		if strings.TrimSpace(b.Command) == "" {
			problems = append(problems, "command is required for custom builds")
		}
		if b.Artifact == "" {
			problems = append(problems, "artifact is required for custom builds")
		}
		if b.Buildx != nil {
			problems = append(problems, "buildx parameters are only valid for buildx builds")
		}
	case BuildTypeBuildx:
		if b.Buildx == nil {
			problems = append(problems, "buildx parameters are required for buildx builds")
		} else if err := b.Buildx.Check(); err != nil {
			problems = append(problems, err.Error())
		}
		if b.Command != "" {
			problems = append(problems, "command is not used by buildx builds")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown build type %q (want %q or %q)",
			b.Type, BuildTypeCustom, BuildTypeBuildx))
	}

	for _, e := range validateEnv(b.Env) {
		problems = append(problems, "env: "+e)
	}

	for i, block := range b.Matrix {
		if len(block) == 0 {
			problems = append(problems, fmt.Sprintf("matrix block %d has no axes", i))
		}
		for _, axis := range block {
			if len(axis.Values) == 0 {
				problems = append(problems, fmt.Sprintf("matrix axis %q has no values", axis.Key))
			}
			if IsNestedAxis(axis.Key) && b.Type != BuildTypeBuildx {
				problems = append(problems, fmt.Sprintf("matrix axis %q only applies to buildx builds", axis.Key))
			}
		}
	}
	return problems
}

// Check reports contradictory buildx parameters.
func (bx *Buildx) Check() error {
	if bx.Load && len(bx.Outputs) > 0 {
		return fmt.Errorf("cannot set both load and outputs")
	}
	if bx.Load && len(bx.Tags) == 0 {
		return fmt.Errorf("must set tags when load is true")
	}
	return nil
}

// IsNestedAxis reports whether key addresses a nested buildx map entry.
func IsNestedAxis(key string) bool {
	for _, p := range NestedAxisPrefixes {
		if strings.HasPrefix(key, p) && len(key) > len(p) {
			return true
		}
	}
	return false
}

func validateTargets(t Targets) []string {
	var problems []string
	if gh := t.GitHub; gh != nil && (gh.Owner == "" || gh.Repo == "") {
		problems = append(problems, "github: owner and repo are required")
	}
	if gl := t.GitLab; gl != nil && (gl.Owner == "" || gl.Repo == "") {
		problems = append(problems, "gitlab: owner and repo are required")
	}
	if b := t.Blob; b != nil && (b.Endpoint == "" || b.Bucket == "") {
		problems = append(problems, "blob: endpoint and bucket are required")
	}
	if o := t.OCI; o != nil && o.Repository == "" {
		problems = append(problems, "oci: repository is required")
	}
	return problems
}

func validateChangelog(field string, c *Changelog) []string {
	var problems []string
	if c.Template == "" && c.Format != ChangelogFormatDefault && c.Format != ChangelogFormatGitHub {
		problems = append(problems, fmt.Sprintf("%s: unknown format %q", field, c.Format))
	}
	for _, pattern := range c.Exclude {
		if _, err := regexp.Compile(pattern); err != nil {
			problems = append(problems, fmt.Sprintf("%s: invalid exclude pattern %q: %v", field, pattern, err))
		}
	}
	return problems
}

func validateEnv(entries []string) []string {
	var problems []string
	for _, e := range entries {
		if k, _, ok := strings.Cut(e, "="); !ok || strings.TrimSpace(k) == "" {
			problems = append(problems, fmt.Sprintf("entry %q must be KEY=VALUE", e))
		}
	}
	return problems
}
