// Package matrix expands a build declaration into the concrete builds its
// matrix describes.
//
// Axes inside one block combine as a cartesian product in declared order
// with the first axis varying slowest. Several blocks are expanded on
// their own and then zipped index-wise, so every block must yield the same
// number of combinations.
package matrix

import (
	"maps"
	"strings"

	"github.com/iamd3vil/rlsr/config"
	"github.com/iamd3vil/rlsr/errors"
)

// Binding is one axis value applied to a resolved build.
type Binding struct {
	Key   string
	Value string
}

// ResolvedBuild is a build declaration with one matrix combination applied.
// The embedded Build is a private deep copy and may be read freely.
type ResolvedBuild struct {
	config.Build

	// Index is the position of this combination in the expansion.
	Index int

	// Matrix holds the applied bindings in axis order.
	Matrix []Binding
}

// Value returns the bound value of key.
func (r ResolvedBuild) Value(key string) (string, bool) {
	for _, b := range r.Matrix {
		if b.Key == key {
			return b.Value, true
		}
	}
	return "", false
}

// Expand resolves decl into one build per matrix combination. A build
// without a matrix yields exactly one result.
func Expand(decl config.Build) ([]ResolvedBuild, error) {
	if len(decl.Matrix) == 0 {
		return []ResolvedBuild{{Build: cloneBuild(decl)}}, nil
	}

	var rows [][]Binding
	seen := make(map[string]int)
	for bi, block := range decl.Matrix {
		if len(block) == 0 {
			return nil, invalid(decl.Name, "matrix block %d has no axes", bi)
		}
		for _, axis := range block {
			if prev, dup := seen[axis.Key]; dup {
				return nil, invalid(decl.Name, "matrix axis %q appears in blocks %d and %d", axis.Key, prev, bi)
			}
			seen[axis.Key] = bi
			if len(axis.Values) == 0 {
				return nil, invalid(decl.Name, "matrix axis %q has no values", axis.Key)
			}
		}

		combos := product(block)
		switch {
		case bi == 0:
			rows = combos
		case len(combos) != len(rows):
			return nil, invalid(decl.Name,
				"matrix block %d yields %d combinations but block 0 yields %d", bi, len(combos), len(rows))
		default:
			for i := range rows {
				rows[i] = append(rows[i], combos[i]...)
			}
		}
	}

	out := make([]ResolvedBuild, 0, len(rows))
	for i, row := range rows {
		rb, err := apply(decl, row)
		if err != nil {
			return nil, err
		}
		rb.Index = i
		out = append(out, rb)
	}
	return out, nil
}

// ExpandAll expands every build of a release in declared order and
// renumbers the results so indices are unique across the release.
func ExpandAll(builds []config.Build) ([]ResolvedBuild, error) {
	var out []ResolvedBuild
	var errs []error
	for _, b := range builds {
		rbs, err := Expand(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, rbs...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	for i := range out {
		out[i].Index = i
	}
	return out, nil
}

// product returns the cartesian product of block's axes, last axis
// varying fastest.
func product(block config.MatrixBlock) [][]Binding {
	rows := [][]Binding{{}}
	for _, axis := range block {
		next := make([][]Binding, 0, len(rows)*len(axis.Values))
		for _, row := range rows {
			for _, v := range axis.Values {
				r := make([]Binding, len(row), len(row)+1)
				copy(r, row)
				next = append(next, append(r, Binding{Key: axis.Key, Value: v}))
			}
		}
		rows = next
	}
	return rows
}

func apply(decl config.Build, row []Binding) (ResolvedBuild, error) {
	rb := ResolvedBuild{Build: cloneBuild(decl), Matrix: row}
	rb.Build.Matrix = nil

	for _, b := range row {
		if !config.IsNestedAxis(b.Key) {
			switch b.Key {
			case "os":
				rb.OS = b.Value
			case "arch":
				rb.Arch = b.Value
			case "arm":
				rb.Arm = b.Value
			case "target":
				rb.Target = b.Value
			}
			continue
		}

		if rb.Buildx == nil {
			return ResolvedBuild{}, invalid(decl.Name, "matrix axis %q only applies to buildx builds", b.Key)
		}
		field, key, _ := strings.Cut(b.Key, ".")
		var target *map[string]string
		switch field {
		case "build_args":
			target = &rb.Buildx.BuildArgs
		case "labels":
			target = &rb.Buildx.Labels
		case "annotations":
			target = &rb.Buildx.Annotations
		}
		if *target == nil {
			*target = make(map[string]string)
		}
		(*target)[key] = b.Value
	}
	return rb, nil
}

func cloneBuild(b config.Build) config.Build {
	out := b
	out.Env = cloneStrings(b.Env)
	out.AdditionalFiles = cloneStrings(b.AdditionalFiles)
	if b.Buildx != nil {
		bx := *b.Buildx
		bx.Tags = cloneStrings(bx.Tags)
		bx.Platforms = cloneStrings(bx.Platforms)
		bx.CacheFrom = cloneStrings(bx.CacheFrom)
		bx.CacheTo = cloneStrings(bx.CacheTo)
		bx.Outputs = cloneStrings(bx.Outputs)
		bx.Secrets = cloneStrings(bx.Secrets)
		bx.SSH = cloneStrings(bx.SSH)
		bx.BuildArgs = maps.Clone(bx.BuildArgs)
		bx.Labels = maps.Clone(bx.Labels)
		bx.Annotations = maps.Clone(bx.Annotations)
		if bx.Provenance != nil {
			v := *bx.Provenance
			bx.Provenance = &v
		}
		if bx.SBOM != nil {
			v := *bx.SBOM
			bx.SBOM = &v
		}
		out.Buildx = &bx
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func invalid(build, format string, args ...interface{}) error {
	return errors.WithContext(errors.Newf(errors.CodeInvalidConfig, format, args...),
		map[string]interface{}{"build": build})
}
