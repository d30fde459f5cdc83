package scm

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultGitLabURL is gitlab.com.
const DefaultGitLabURL = "https://gitlab.com"

// GitLabLink is a release asset link.
type GitLabLink struct {
	ID       int64  `json:"id,omitempty"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	LinkType string `json:"link_type,omitempty"`
}

// GitLabRelease is the subset of a GitLab release rlsr reads.
type GitLabRelease struct {
	TagName     string `json:"tag_name"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Assets      struct {
		Links []GitLabLink `json:"links"`
	} `json:"assets"`
}

// GitLabReleaseInput creates or edits a release.
type GitLabReleaseInput struct {
	TagName     string       `json:"tag_name"`
	Name        string       `json:"name,omitempty"`
	Description string       `json:"description"`
	Links       []GitLabLink `json:"-"`
}

// GitLab talks to one project's release and generic package APIs.
type GitLab struct {
	c       *client
	project string
}

// NewGitLab creates a client for the owner/repo project. BaseURL is the
// instance root, not the API root.
func NewGitLab(cfg Config, owner, repo string) (*GitLab, error) {
	c, err := newClient("gitlab", cfg, DefaultGitLabURL, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, err
	}
	return &GitLab{c: c, project: url.PathEscape(owner + "/" + repo)}, nil
}

func (g *GitLab) path(suffix string) string {
	return "/api/v4/projects/" + g.project + suffix
}

// PackageVersion is the generic package version used for tag: the tag
// without its leading v.
func PackageVersion(tag string) string {
	return strings.TrimPrefix(tag, "v")
}

// PackageURL is the download URL of filename in the release package for tag.
func (g *GitLab) PackageURL(tag, filename string) string {
	return g.c.baseURL + g.path("/packages/generic/release/"+url.PathEscape(PackageVersion(tag))+"/"+url.PathEscape(filename))
}

// UploadPackage stores size bytes from r as filename in the generic
// package "release" at the tag's version and returns its download URL.
func (g *GitLab) UploadPackage(ctx context.Context, tag, filename string, r io.Reader, size int64) (string, error) {
	target := g.PackageURL(tag, filename)
	if _, err := g.c.do(ctx, request{
		method:      http.MethodPut,
		path:        target,
		body:        r,
		size:        size,
		contentType: "application/octet-stream",
	}, nil); err != nil {
		return "", err
	}
	return target, nil
}

// ReleaseByTag returns the release for tag.
func (g *GitLab) ReleaseByTag(ctx context.Context, tag string) (*GitLabRelease, error) {
	var rel GitLabRelease
	if _, err := g.c.do(ctx, request{method: http.MethodGet, path: g.path("/releases/" + url.PathEscape(tag))}, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// CreateRelease creates a release with in.Links attached.
func (g *GitLab) CreateRelease(ctx context.Context, in GitLabReleaseInput) (*GitLabRelease, error) {
	body := map[string]any{
		"tag_name":    in.TagName,
		"description": in.Description,
		"assets":      map[string]any{"links": nonNil(in.Links)},
	}
	if in.Name != "" {
		body["name"] = in.Name
	}
	var rel GitLabRelease
	if _, err := g.c.do(ctx, request{method: http.MethodPost, path: g.path("/releases"), json: body}, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// UpdateRelease edits the name and description of the release for tag.
func (g *GitLab) UpdateRelease(ctx context.Context, tag string, in GitLabReleaseInput) (*GitLabRelease, error) {
	body := map[string]any{"description": in.Description}
	if in.Name != "" {
		body["name"] = in.Name
	}
	var rel GitLabRelease
	if _, err := g.c.do(ctx, request{method: http.MethodPut, path: g.path("/releases/" + url.PathEscape(tag)), json: body}, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// CreateLink attaches link to the release for tag.
func (g *GitLab) CreateLink(ctx context.Context, tag string, link GitLabLink) error {
	_, err := g.c.do(ctx, request{
		method: http.MethodPost,
		path:   g.path("/releases/" + url.PathEscape(tag) + "/assets/links"),
		json:   link,
	}, nil)
	return err
}

// UpdateLink replaces the URL and type of an existing link.
func (g *GitLab) UpdateLink(ctx context.Context, tag string, link GitLabLink) error {
	_, err := g.c.do(ctx, request{
		method: http.MethodPut,
		path:   g.path("/releases/" + url.PathEscape(tag) + "/assets/links/" + strconv.FormatInt(link.ID, 10)),
		json:   link,
	}, nil)
	return err
}

// EnsureRelease creates the release for in.TagName with its links, or
// updates the existing release and upserts its links by name.
func (g *GitLab) EnsureRelease(ctx context.Context, in GitLabReleaseInput) (bool, error) {
	existing, err := g.ReleaseByTag(ctx, in.TagName)
	if IsNotFound(err) {
		_, err = g.CreateRelease(ctx, in)
		return true, err
	}
	if err != nil {
		return false, err
	}

	if _, err := g.UpdateRelease(ctx, in.TagName, in); err != nil {
		return false, err
	}
	current := make(map[string]GitLabLink, len(existing.Assets.Links))
	for _, l := range existing.Assets.Links {
		current[l.Name] = l
	}
	for _, l := range in.Links {
		if old, ok := current[l.Name]; ok {
			if old.URL == l.URL {
				continue
			}
			l.ID = old.ID
			if err := g.UpdateLink(ctx, in.TagName, l); err != nil {
				return false, err
			}
			continue
		}
		if err := g.CreateLink(ctx, in.TagName, l); err != nil {
			return false, err
		}
	}
	return false, nil
}

func nonNil(links []GitLabLink) []GitLabLink {
	if links == nil {
		return []GitLabLink{}
	}
	return links
}
