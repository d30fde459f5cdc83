package publish

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/iamd3vil/rlsr/config"
	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/scm"
)

// GitHub token variables, in lookup order.
var gitHubTokenVars = []string{"GITHUB_TOKEN", "GH_TOKEN"}

type gitHubPublisher struct {
	d      *Dispatcher
	target *config.GitHubTarget
}

func (p *gitHubPublisher) Name() string { return "github" }

// Publish gets or creates the release for the tag, then uploads every
// asset and the manifest, replacing same-named assets left by earlier runs.
func (p *gitHubPublisher) Publish(ctx context.Context, in *Input) error {
	token, err := p.d.token(ctx, gitHubTokenVars...)
	if err != nil {
		return err
	}
	gh, err := scm.NewGitHub(scm.Config{
		BaseURL:    p.target.URL,
		Token:      token,
		HTTPClient: p.d.httpClient,
		Logger:     p.d.logger,
	}, p.target.Owner, p.target.Repo)
	if err != nil {
		return err
	}

	meta := in.Run.Meta()
	rel, created, err := gh.EnsureRelease(ctx, scm.GitHubReleaseInput{
		TagName:    meta.Tag,
		Name:       meta.Tag,
		Body:       in.Changelog,
		Prerelease: meta.Prerelease != "",
	})
	if err != nil {
		return err
	}
	p.d.logger.Info("github release ready", "tag", meta.Tag, "created", created, "url", rel.HTMLURL)

	existing := map[string]int64{}
	if !created {
		assets, err := gh.ListAssets(ctx, rel.ID)
		if err != nil {
			return err
		}
		for _, a := range assets {
			existing[a.Name] = a.ID
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.d.uploadWorkers)
	for _, u := range uploads(in.Output, false) {
		g.Go(func() error {
			if id, ok := existing[u.Name]; ok {
				if err := gh.DeleteAsset(gctx, id); err != nil && !scm.IsNotFound(err) {
					return errors.WithContext(err, map[string]interface{}{"asset": u.Name})
				}
			}
			f, size, err := p.d.open(u)
			if err != nil {
				return err
			}
			defer f.Close()

			if _, err := gh.UploadAsset(gctx, rel, u.Name, f, size); err != nil {
				return errors.WithContext(err, map[string]interface{}{"asset": u.Name})
			}
			p.d.logger.Debug("uploaded asset", "target", "github", "asset", u.Name, "size", size)
			return nil
		})
	}
	return g.Wait()
}
