package publish

import (
	"context"
	"strings"

	"github.com/iamd3vil/rlsr/config"
	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/executor"
)

type dockerPublisher struct {
	d      *Dispatcher
	target *config.DockerTarget
}

func (p *dockerPublisher) Name() string { return "docker" }

// Publish builds and pushes the configured images, or, with no images
// configured, pushes the tags captured from buildx builds.
func (p *dockerPublisher) Publish(ctx context.Context, in *Input) error {
	refs, err := p.refs(in)
	if err != nil {
		return err
	}

	if len(refs) > 0 {
		for _, ref := range refs {
			args := []string{"build", p.target.Context, "-t", ref, "-f", p.target.Dockerfile}
			if err := p.docker(ctx, args...); err != nil {
				return err
			}
		}
	} else {
		refs = capturedTags(in)
	}

	if !p.target.ShouldPush() {
		p.d.logger.Info("docker push disabled", "images", len(refs))
		return nil
	}
	for _, ref := range refs {
		if err := p.docker(ctx, "push", ref); err != nil {
			return err
		}
	}
	return nil
}

// refs renders image and images, appending the release tag to references
// without one.
func (p *dockerPublisher) refs(in *Input) ([]string, error) {
	raw := make([]string, 0, len(p.target.Images)+1)
	if p.target.Image != "" {
		raw = append(raw, p.target.Image)
	}
	raw = append(raw, p.target.Images...)

	tag := in.Run.Meta().Tag
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		ref, err := p.d.render(in, r)
		if err != nil {
			return nil, err
		}
		out = append(out, WithTag(ref, tag))
	}
	return out, nil
}

// capturedTags returns buildx tags of successful builds, including those
// exported to a registry. Set push: false to avoid pushing those twice.
func capturedTags(in *Input) []string {
	seen := map[string]struct{}{}
	var tags []string
	for _, r := range in.Results {
		if r.Err != nil {
			continue
		}
		for _, t := range r.Tags {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
		}
	}
	return tags
}

func (p *dockerPublisher) docker(ctx context.Context, args ...string) error {
	p.d.logger.Info("running docker", "args", strings.Join(args, " "))
	res, err := p.d.runner.Run(ctx, "docker", args)
	if err != nil {
		detail := map[string]interface{}{"command": "docker " + strings.Join(args, " ")}
		if res != nil {
			detail["exit_code"] = res.ExitCode
			if s := strings.TrimSpace(res.Stderr); s != "" {
				detail["stderr"] = s
			}
		} else {
			detail["exit_code"] = executor.ExitCode(err)
		}
		return errors.WrapWithContext(err, errors.CodeExecutionFailed, "docker command failed", detail)
	}
	return nil
}

// WithTag appends :tag to an image reference that has neither a tag nor a
// digest.
func WithTag(ref, tag string) string {
	if strings.Contains(ref, "@") {
		return ref
	}
	tail := ref[strings.LastIndex(ref, "/")+1:]
	if strings.Contains(tail, ":") {
		return ref
	}
	return ref + ":" + tag
}
