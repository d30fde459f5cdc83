package build

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/iamd3vil/rlsr/config"
	"github.com/iamd3vil/rlsr/executor"
	"github.com/iamd3vil/rlsr/templating"
)

// BuildxCommand is a rendered `docker buildx build` invocation.
type BuildxCommand struct {
	// Args are the arguments after the `docker` program name.
	Args []string

	// Tags are the rendered image tags.
	Tags []string

	// Builder is the rendered builder name, empty for the default builder.
	Builder string

	// Pushes is true when an output exports to a registry.
	Pushes bool
}

// String renders the command line for logs.
func (c *BuildxCommand) String() string {
	return "docker " + strings.Join(c.Args, " ")
}

// NewBuildxCommand renders bx against scope and assembles the argv in a
// fixed order: builder, file, platform, tags, load, build args, labels,
// cache sources, cache destinations, target, outputs, provenance, sbom,
// secrets, ssh, annotations and finally the context.
func NewBuildxCommand(r templating.Renderer, scope templating.Scope, bx *config.Buildx) (*BuildxCommand, error) {
	if bx == nil {
		return nil, fmt.Errorf("missing buildx parameters")
	}

	var err error
	one := func(s string) string {
		if err != nil {
			return ""
		}
		var out string
		out, err = scope.Render(r, s)
		return out
	}
	list := func(in []string) []string {
		if err != nil {
			return nil
		}
		var out []string
		out, err = scope.RenderAll(r, in)
		return out
	}
	pairs := func(in map[string]string) []string {
		if err != nil || len(in) == 0 {
			return nil
		}
		var m map[string]string
		m, err = scope.RenderMap(r, in)
		out := make([]string, 0, len(m))
		for k, v := range m {
			out = append(out, k+"="+v)
		}
		sort.Strings(out)
		return out
	}

	buildCtx := one(orDefault(bx.Context, "."))
	dockerfile := one(orDefault(bx.Dockerfile, "Dockerfile"))
	builder := one(bx.Builder)
	tags := list(bx.Tags)
	platforms := list(bx.Platforms)
	buildArgs := pairs(bx.BuildArgs)
	labels := pairs(bx.Labels)
	cacheFrom := list(bx.CacheFrom)
	cacheTo := list(bx.CacheTo)
	target := one(bx.Target)
	outputs := list(bx.Outputs)
	secrets := list(bx.Secrets)
	ssh := list(bx.SSH)
	annotations := pairs(bx.Annotations)
	if err != nil {
		return nil, err
	}

	rendered := config.Buildx{Load: bx.Load, Tags: tags, Outputs: outputs}
	if err := rendered.Check(); err != nil {
		return nil, err
	}

	args := []string{"buildx", "build"}
	if builder != "" {
		args = append(args, "--builder", builder)
	}
	args = append(args, "--file", dockerfile)
	if len(platforms) > 0 {
		args = append(args, "--platform", strings.Join(platforms, ","))
	}
	args = appendEach(args, "--tag", tags)
	if bx.Load {
		args = append(args, "--load")
	}
	args = appendEach(args, "--build-arg", buildArgs)
	args = appendEach(args, "--label", labels)
	args = appendEach(args, "--cache-from", cacheFrom)
	args = appendEach(args, "--cache-to", cacheTo)
	if target != "" {
		args = append(args, "--target", target)
	}
	args = appendEach(args, "--output", outputs)
	if bx.Provenance != nil {
		args = append(args, fmt.Sprintf("--provenance=%t", *bx.Provenance))
	}
	if bx.SBOM != nil {
		args = append(args, fmt.Sprintf("--sbom=%t", *bx.SBOM))
	}
	args = appendEach(args, "--secret", secrets)
	args = appendEach(args, "--ssh", ssh)
	args = appendEach(args, "--annotation", annotations)
	args = append(args, buildCtx)

	return &BuildxCommand{
		Args:    args,
		Tags:    tags,
		Builder: builder,
		Pushes:  pushesToRegistry(outputs),
	}, nil
}

// pushesToRegistry reports whether any --output exports to a registry,
// either as type=registry or as an image output with push=true.
func pushesToRegistry(outputs []string) bool {
	for _, out := range outputs {
		for _, field := range strings.Split(out, ",") {
			k, v, _ := strings.Cut(strings.TrimSpace(field), "=")
			switch {
			case k == "type" && v == "registry":
				return true
			case k == "push" && v == "true":
				return true
			}
		}
	}
	return false
}

// ensureBuilder creates builder and selects it, switching to the existing
// one when docker reports it already exists.
func (e *Executor) ensureBuilder(ctx context.Context, builder string, opts ...executor.Option) error {
	res, err := e.runner.Run(ctx, "docker", []string{"buildx", "create", "--name", builder, "--use"}, opts...)
	if err == nil {
		return nil
	}
	if res == nil || !builderExists(res.Stdout, res.Stderr) {
		return fmt.Errorf("buildx builder %q failed to create: %w", builder, err)
	}

	e.logger.Debug("buildx builder exists, switching to it", "builder", builder)
	if _, err := e.runner.Run(ctx, "docker", []string{"buildx", "use", builder}, opts...); err != nil {
		return fmt.Errorf("buildx builder %q failed to activate: %w", builder, err)
	}
	return nil
}

func builderExists(stdout, stderr string) bool {
	out := strings.ToLower(stdout + " " + stderr)
	return strings.Contains(out, "already exists") ||
		strings.Contains(out, "existing builder") ||
		strings.Contains(out, "existing instance") ||
		(strings.Contains(out, "exists") && strings.Contains(out, "builder"))
}

func appendEach(args []string, flag string, values []string) []string {
	for _, v := range values {
		args = append(args, flag, v)
	}
	return args
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
