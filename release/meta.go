package release

import (
	"context"
	"path"
	"strings"

	"github.com/iamd3vil/rlsr/changelog"
	"github.com/iamd3vil/rlsr/config"
	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/git"
	"github.com/iamd3vil/rlsr/templating"
)

// Repository is what the orchestrator reads from version control.
// *git.Repo implements it.
type Repository interface {
	changelog.History
	HeadTag(ctx context.Context) (string, error)
	HeadCommit(ctx context.Context) (git.Commit, error)
	CurrentBranch(ctx context.Context) (string, error)
	IsDirty(ctx context.Context) (bool, error)
}

// ReadMeta collects the release metadata for the repository's HEAD.
//
// When HEAD carries a tag, that tag is the release tag. Otherwise the run
// is a snapshot: the most recent reachable tag supplies the version and
// is_snapshot is set.
func ReadMeta(ctx context.Context, repo Repository, cfg *config.Config, projectDir string) (templating.Meta, error) {
	fail := func(err error, what string) (templating.Meta, error) {
		return templating.Meta{}, errors.Wrapf(err, errors.CodeInternal, "failed to read %s", what)
	}

	head, err := repo.HeadCommit(ctx)
	if err != nil {
		return fail(err, "HEAD commit")
	}
	headTag, err := repo.HeadTag(ctx)
	if err != nil {
		return fail(err, "HEAD tag")
	}
	previous, err := repo.PreviousTag(ctx)
	if err != nil {
		return fail(err, "previous tag")
	}
	branch, err := repo.CurrentBranch(ctx)
	if err != nil {
		return fail(err, "current branch")
	}
	dirty, err := repo.IsDirty(ctx)
	if err != nil {
		return fail(err, "worktree status")
	}

	tag := headTag
	if tag == "" {
		tag = previous
	}

	meta := templating.MetaForTag(templating.Meta{
		Commit:      head.Hash,
		ShortCommit: head.ShortHash,
		Branch:      branch,
		PreviousTag: previous,
		ProjectName: projectName(cfg, projectDir),
		IsSnapshot:  headTag == "",
		IsDirty:     dirty,
	}, tag)
	meta.ReleaseURL = releaseURL(cfg, tag)
	return meta, nil
}

func projectName(cfg *config.Config, projectDir string) string {
	if cfg.ProjectName != "" {
		return cfg.ProjectName
	}
	dir := path.Base(strings.ReplaceAll(projectDir, "\\", "/"))
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// releaseURL is the web page of tag on the first release's forge target.
func releaseURL(cfg *config.Config, tag string) string {
	if tag == "" {
		return ""
	}
	for _, rel := range cfg.Releases {
		if gh := rel.Targets.GitHub; gh != nil {
			return gitHubWebURL(gh.URL) + "/" + gh.Owner + "/" + gh.Repo + "/releases/tag/" + tag
		}
		if gl := rel.Targets.GitLab; gl != nil {
			base := strings.TrimRight(gl.URL, "/")
			if base == "" {
				base = config.DefaultGitLabURL
			}
			return base + "/" + gl.Owner + "/" + gl.Repo + "/-/releases/" + tag
		}
	}
	return ""
}

// gitHubWebURL maps an API root to the web root: api.github.com to
// github.com, and an Enterprise /api/v3 root to its host.
func gitHubWebURL(api string) string {
	api = strings.TrimRight(api, "/")
	if api == "" || api == config.DefaultGitHubURL {
		return "https://github.com"
	}
	return strings.TrimSuffix(api, "/api/v3")
}
