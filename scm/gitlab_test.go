package scm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGitLab(t *testing.T, handler http.HandlerFunc) *GitLab {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gl, err := NewGitLab(Config{BaseURL: server.URL + "/", Token: "glpat", HTTPClient: server.Client()}, "acme", "cli")
	require.NoError(t, err)
	return gl
}

func TestGitLab_UploadPackage(t *testing.T) {
	var path, body string
	gl := newTestGitLab(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "Bearer glpat", r.Header.Get("Authorization"))
		path = r.URL.EscapedPath()
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"message":"201 Created"}`))
	})

	link, err := gl.UploadPackage(context.Background(), "v1.2.3", "cli.tar.gz", strings.NewReader("archive"), 7)
	require.NoError(t, err)
	assert.Equal(t, "/api/v4/projects/acme%2Fcli/packages/generic/release/1.2.3/cli.tar.gz", path)
	assert.Equal(t, "archive", body)
	assert.True(t, strings.HasSuffix(link, "/api/v4/projects/acme%2Fcli/packages/generic/release/1.2.3/cli.tar.gz"))
}

func TestPackageVersion(t *testing.T) {
	assert.Equal(t, "1.2.3", PackageVersion("v1.2.3"))
	assert.Equal(t, "1.2.3", PackageVersion("1.2.3"))
}

func TestGitLab_EnsureReleaseCreates(t *testing.T) {
	var payload map[string]any
	gl := newTestGitLab(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "/api/v4/projects/acme%2Fcli/releases/v1.2.3", r.URL.EscapedPath())
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"404 Not Found"}`))
		case http.MethodPost:
			assert.Equal(t, "/api/v4/projects/acme%2Fcli/releases", r.URL.EscapedPath())
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"tag_name":"v1.2.3"}`))
		default:
			t.Errorf("unexpected %s", r.Method)
		}
	})

	created, err := gl.EnsureRelease(context.Background(), GitLabReleaseInput{
		TagName:     "v1.2.3",
		Description: "notes",
		Links:       []GitLabLink{{Name: "cli.tar.gz", URL: "https://x/cli.tar.gz", LinkType: "package"}},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "v1.2.3", payload["tag_name"])
	assert.Equal(t, "notes", payload["description"])

	links := payload["assets"].(map[string]any)["links"].([]any)
	require.Len(t, links, 1)
	assert.Equal(t, "package", links[0].(map[string]any)["link_type"])
}

func TestGitLab_EnsureReleaseUpserts(t *testing.T) {
	var calls []string
	gl := newTestGitLab(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.EscapedPath())
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"tag_name":"v1.0.0","assets":{"links":[
				{"id":1,"name":"same","url":"https://x/same"},
				{"id":2,"name":"moved","url":"https://x/old"}
			]}}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})

	created, err := gl.EnsureRelease(context.Background(), GitLabReleaseInput{
		TagName:     "v1.0.0",
		Description: "notes",
		Links: []GitLabLink{
			{Name: "same", URL: "https://x/same"},
			{Name: "moved", URL: "https://x/new"},
			{Name: "added", URL: "https://x/added"},
		},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, []string{
		"GET /api/v4/projects/acme%2Fcli/releases/v1.0.0",
		"PUT /api/v4/projects/acme%2Fcli/releases/v1.0.0",
		"PUT /api/v4/projects/acme%2Fcli/releases/v1.0.0/assets/links/2",
		"POST /api/v4/projects/acme%2Fcli/releases/v1.0.0/assets/links",
	}, calls)
}

func TestGitLab_ErrorBody(t *testing.T) {
	gl := newTestGitLab(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"insufficient_scope"}`))
	})

	_, err := gl.ReleaseByTag(context.Background(), "v1")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), "insufficient_scope")
}
