package scm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	// DefaultGitHubURL is the public GitHub API.
	DefaultGitHubURL = "https://api.github.com"

	githubAPIVersion = "2022-11-28"
)

// GitHubRelease is the subset of a GitHub release rlsr reads.
type GitHubRelease struct {
	ID         int64  `json:"id"`
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Body       string `json:"body"`
	HTMLURL    string `json:"html_url"`
	UploadURL  string `json:"upload_url"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// GitHubAsset is a file attached to a release.
type GitHubAsset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// GitHubReleaseInput creates or edits a release.
type GitHubReleaseInput struct {
	TagName    string `json:"tag_name"`
	Name       string `json:"name,omitempty"`
	Body       string `json:"body"`
	Prerelease bool   `json:"prerelease"`
}

// GitHub talks to one repository's release API.
type GitHub struct {
	c     *client
	owner string
	repo  string
}

// NewGitHub creates a client for owner/repo.
func NewGitHub(cfg Config, owner, repo string) (*GitHub, error) {
	c, err := newClient("github", cfg, DefaultGitHubURL, http.Header{
		"Accept":               {"application/vnd.github+json"},
		"X-Github-Api-Version": {githubAPIVersion},
	})
	if err != nil {
		return nil, err
	}
	return &GitHub{c: c, owner: owner, repo: repo}, nil
}

func (g *GitHub) path(format string, args ...any) string {
	return fmt.Sprintf("/repos/%s/%s", url.PathEscape(g.owner), url.PathEscape(g.repo)) + fmt.Sprintf(format, args...)
}

// ReleaseByTag returns the release for tag. A missing release is an
// *APIError for which IsNotFound is true.
func (g *GitHub) ReleaseByTag(ctx context.Context, tag string) (*GitHubRelease, error) {
	var rel GitHubRelease
	if _, err := g.c.do(ctx, request{method: http.MethodGet, path: g.path("/releases/tags/%s", url.PathEscape(tag))}, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// CreateRelease creates a published release.
func (g *GitHub) CreateRelease(ctx context.Context, in GitHubReleaseInput) (*GitHubRelease, error) {
	var rel GitHubRelease
	if _, err := g.c.do(ctx, request{method: http.MethodPost, path: g.path("/releases"), json: in}, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// UpdateRelease edits release id.
func (g *GitHub) UpdateRelease(ctx context.Context, id int64, in GitHubReleaseInput) (*GitHubRelease, error) {
	var rel GitHubRelease
	if _, err := g.c.do(ctx, request{method: http.MethodPatch, path: g.path("/releases/%d", id), json: in}, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// EnsureRelease returns the release for in.TagName, creating it when it
// does not exist and refreshing its name and body when it does.
func (g *GitHub) EnsureRelease(ctx context.Context, in GitHubReleaseInput) (*GitHubRelease, bool, error) {
	existing, err := g.ReleaseByTag(ctx, in.TagName)
	switch {
	case err == nil:
		rel, err := g.UpdateRelease(ctx, existing.ID, in)
		return rel, false, err
	case IsNotFound(err):
		rel, err := g.CreateRelease(ctx, in)
		return rel, true, err
	default:
		return nil, false, err
	}
}

// ListAssets returns every asset of release id.
func (g *GitHub) ListAssets(ctx context.Context, id int64) ([]GitHubAsset, error) {
	return collect[GitHubAsset](ctx, g.c, g.path("/releases/%d/assets?per_page=100", id))
}

// DeleteAsset removes asset id.
func (g *GitHub) DeleteAsset(ctx context.Context, id int64) error {
	_, err := g.c.do(ctx, request{method: http.MethodDelete, path: g.path("/releases/assets/%d", id)}, nil)
	return err
}

// UploadAsset streams size bytes from r as asset name of rel.
func (g *GitHub) UploadAsset(ctx context.Context, rel *GitHubRelease, name string, r io.Reader, size int64) (*GitHubAsset, error) {
	if rel.UploadURL == "" {
		return nil, fmt.Errorf("github: release %q has no upload URL", rel.TagName)
	}
	target, _, _ := strings.Cut(rel.UploadURL, "{")
	target += "?name=" + url.QueryEscape(name)

	var asset GitHubAsset
	if _, err := g.c.do(ctx, request{
		method:      http.MethodPost,
		path:        target,
		body:        r,
		size:        size,
		contentType: "application/octet-stream",
	}, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// SearchUserByEmail returns the login of the first user whose public
// email matches, or "" when nobody does.
func (g *GitHub) SearchUserByEmail(ctx context.Context, email string) (string, error) {
	var result struct {
		Items []struct {
			Login string `json:"login"`
		} `json:"items"`
	}
	q := url.QueryEscape(email + " in:email")
	if _, err := g.c.do(ctx, request{method: http.MethodGet, path: "/search/users?q=" + q}, &result); err != nil {
		return "", err
	}
	if len(result.Items) == 0 {
		return "", nil
	}
	return result.Items[0].Login, nil
}
