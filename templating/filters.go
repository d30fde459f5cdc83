package templating

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Masterminds/semver/v3"
	"github.com/ncruces/go-strftime"
	"github.com/nikolalohinski/gonja/exec"
)

func stringFilters() exec.FilterSet {
	return exec.FilterSet{
		"tolower":    unary(strings.ToLower),
		"toupper":    unary(strings.ToUpper),
		"title":      unary(Title),
		"replace":    filterReplace,
		"trimprefix": binary("trimprefix", strings.TrimPrefix),
		"trimsuffix": binary("trimsuffix", strings.TrimSuffix),
		"split":      filterSplit,
		"default":    filterDefault,
		"time":       filterTime,
		"incmajor":   unary(IncMajor),
		"incminor":   unary(IncMinor),
		"incpatch":   unary(IncPatch),
	}
}

func changelogFilters() exec.FilterSet {
	return exec.FilterSet{
		"starts_with": predicate("starts_with", strings.HasPrefix),
		"ends_with":   predicate("ends_with", strings.HasSuffix),
		"contains":    predicate("contains", strings.Contains),
		"trim":        unary(strings.TrimSpace),
		"match":       filterMatch,
	}
}

func unary(fn func(string) string) exec.FilterFunction {
	return func(_ *exec.Evaluator, in *exec.Value, _ *exec.VarArgs) *exec.Value {
		if in.IsError() {
			return in
		}
		return exec.AsValue(fn(in.String()))
	}
}

func binary(name string, fn func(string, string) string) exec.FilterFunction {
	return func(_ *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
		if in.IsError() {
			return in
		}
		p := params.ExpectArgs(1)
		if p.IsError() {
			return exec.AsValue(fmt.Errorf("wrong signature for '%s': %s", name, p.Error()))
		}
		return exec.AsValue(fn(in.String(), p.Args[0].String()))
	}
}

func predicate(name string, fn func(string, string) bool) exec.FilterFunction {
	return func(_ *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
		if in.IsError() {
			return in
		}
		p := params.ExpectArgs(1)
		if p.IsError() {
			return exec.AsValue(fmt.Errorf("wrong signature for '%s': %s", name, p.Error()))
		}
		return exec.AsValue(fn(in.String(), p.Args[0].String()))
	}
}

func filterReplace(_ *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	if in.IsError() {
		return in
	}
	p := params.ExpectArgs(2)
	if p.IsError() {
		return exec.AsValue(fmt.Errorf("wrong signature for 'replace': %s", p.Error()))
	}
	return exec.AsValue(strings.ReplaceAll(in.String(), p.Args[0].String(), p.Args[1].String()))
}

func filterSplit(_ *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	if in.IsError() {
		return in
	}
	p := params.ExpectArgs(1)
	if p.IsError() {
		return exec.AsValue(fmt.Errorf("wrong signature for 'split': %s", p.Error()))
	}
	sep := p.Args[0].String()
	if sep == "" {
		return exec.AsValue([]string{in.String()})
	}
	return exec.AsValue(strings.Split(in.String(), sep))
}

// filterDefault substitutes the fallback for empty, missing or nil input.
func filterDefault(_ *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	p := params.ExpectArgs(1)
	if p.IsError() {
		return exec.AsValue(fmt.Errorf("wrong signature for 'default': %s", p.Error()))
	}
	if in.IsError() || in.IsNil() || in.String() == "" {
		return p.Args[0]
	}
	return in
}

func filterTime(_ *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	if in.IsError() {
		return in
	}
	p := params.ExpectArgs(1)
	if p.IsError() {
		return exec.AsValue(fmt.Errorf("wrong signature for 'time': %s", p.Error()))
	}
	return exec.AsValue(FormatTime(in.String(), p.Args[0].String()))
}

func filterMatch(_ *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
	if in.IsError() {
		return in
	}
	p := params.ExpectArgs(1)
	if p.IsError() {
		return exec.AsValue(fmt.Errorf("wrong signature for 'match': %s", p.Error()))
	}
	re, err := regexp.Compile(p.Args[0].String())
	if err != nil {
		return exec.AsValue(fmt.Errorf("invalid pattern for 'match': %w", err))
	}
	return exec.AsValue(re.MatchString(in.String()))
}

// Title upper-cases the first letter of each whitespace separated word and
// lower-cases the rest. Runs of whitespace collapse to one space.
func Title(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// FormatTime formats an RFC 3339 time or a unix-seconds value with an
// strftime layout, in UTC. Anything else is returned unchanged.
func FormatTime(value, layout string) string {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return strftime.Format(layout, t.UTC())
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return strftime.Format(layout, time.Unix(secs, 0).UTC())
	}
	return value
}

// IncMajor bumps the major version of a semver string, keeping a v/V
// prefix and dropping prerelease and build metadata. Non-versions are
// returned unchanged.
func IncMajor(v string) string {
	return bump(v, func(sv *semver.Version) *semver.Version {
		return semver.New(sv.Major()+1, 0, 0, "", "")
	})
}

// IncMinor bumps the minor version; see IncMajor.
func IncMinor(v string) string {
	return bump(v, func(sv *semver.Version) *semver.Version {
		return semver.New(sv.Major(), sv.Minor()+1, 0, "", "")
	})
}

// IncPatch bumps the patch version; see IncMajor.
func IncPatch(v string) string {
	return bump(v, func(sv *semver.Version) *semver.Version {
		return semver.New(sv.Major(), sv.Minor(), sv.Patch()+1, "", "")
	})
}

func bump(v string, next func(*semver.Version) *semver.Version) string {
	prefix, raw := "", v
	if strings.HasPrefix(v, "v") || strings.HasPrefix(v, "V") {
		prefix, raw = v[:1], v[1:]
	}
	sv, err := semver.StrictNewVersion(raw)
	if err != nil {
		return v
	}
	return prefix + next(sv).String()
}
