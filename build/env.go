package build

import (
	"sort"
	"strings"

	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/templating"
)

// RenderEnv renders the values of KEY=VALUE entries against scope. Later
// entries override earlier ones with the same key.
func RenderEnv(r templating.Renderer, scope templating.Scope, entries []string) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, errors.Newf(errors.CodeInvalidConfig, "env entry %q must be KEY=VALUE", entry)
		}
		rendered, err := scope.Render(r, value)
		if err != nil {
			return nil, errors.WithContext(err, map[string]interface{}{"env": key})
		}
		out[key] = rendered
	}
	return out, nil
}

// ScopeEnv layers release and then build env entries over scope's
// environment and returns the resulting scope. Build entries are rendered
// with the release entries already visible.
func ScopeEnv(r templating.Renderer, scope templating.Scope, layers ...[]string) (templating.Scope, error) {
	for _, entries := range layers {
		env, err := RenderEnv(r, scope, entries)
		if err != nil {
			return templating.Scope{}, err
		}
		scope = scope.WithEnv(env)
	}
	return scope, nil
}

// Environ flattens env into sorted KEY=VALUE entries for a child process.
func Environ(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
