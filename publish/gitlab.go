package publish

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/iamd3vil/rlsr/config"
	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/scm"
)

const gitLabTokenVar = "GITLAB_TOKEN"

// GitLab release link types.
const (
	linkTypePackage = "package"
	linkTypeOther   = "other"
)

type gitLabPublisher struct {
	d      *Dispatcher
	target *config.GitLabTarget
}

func (p *gitLabPublisher) Name() string { return "gitlab" }

// Publish uploads every file to the generic package registry, then creates
// or updates the release with a link per file.
func (p *gitLabPublisher) Publish(ctx context.Context, in *Input) error {
	token, err := p.d.token(ctx, gitLabTokenVar)
	if err != nil {
		return err
	}
	gl, err := scm.NewGitLab(scm.Config{
		BaseURL:    p.target.URL,
		Token:      token,
		HTTPClient: p.d.httpClient,
		Logger:     p.d.logger,
	}, p.target.Owner, p.target.Repo)
	if err != nil {
		return err
	}

	tag := in.Run.Meta().Tag
	files := uploads(in.Output, false)
	links := make([]scm.GitLabLink, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.d.uploadWorkers)
	for i, u := range files {
		g.Go(func() error {
			f, size, err := p.d.open(u)
			if err != nil {
				return err
			}
			defer f.Close()

			url, err := gl.UploadPackage(gctx, tag, u.Name, f, size)
			if err != nil {
				return errors.WithContext(err, map[string]interface{}{"asset": u.Name})
			}
			linkType := linkTypePackage
			if in.Output != nil && u.Path == in.Output.Manifest {
				linkType = linkTypeOther
			}
			links[i] = scm.GitLabLink{Name: u.Name, URL: url, LinkType: linkType}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	created, err := gl.EnsureRelease(ctx, scm.GitLabReleaseInput{
		TagName:     tag,
		Name:        tag,
		Description: in.Changelog,
		Links:       links,
	})
	if err != nil {
		return err
	}
	p.d.logger.Info("gitlab release ready", "tag", tag, "created", created, "links", len(links))
	return nil
}
