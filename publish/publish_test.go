package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamd3vil/rlsr/build"
	"github.com/iamd3vil/rlsr/config"
	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/executor/executortest"
	"github.com/iamd3vil/rlsr/fs"
	"github.com/iamd3vil/rlsr/fs/billy"
	"github.com/iamd3vil/rlsr/oci"
	"github.com/iamd3vil/rlsr/packager"
	"github.com/iamd3vil/rlsr/secrets"
	"github.com/iamd3vil/rlsr/secrets/providers/memory"
	"github.com/iamd3vil/rlsr/templating"
)

func runFor(tag string, dirty bool) *templating.RunContext {
	meta := templating.MetaForTag(templating.Meta{ProjectName: "app", Commit: "abc123", IsDirty: dirty}, tag)
	return templating.NewRunContext(meta, nil, time.Date(2025, 1, 25, 10, 30, 0, 0, time.UTC))
}

func fixture(t *testing.T) (*billy.FS, *packager.Output) {
	t.Helper()
	fsys := billy.NewInMemoryFS()
	files := map[string]string{
		"dist/app_linux.tar.gz": "linux",
		"dist/app_darwin.zip":   "darwin",
		"dist/checksums.txt":    "sums",
		"dist/CHANGELOG.md":     "notes",
	}
	for p, body := range files {
		require.NoError(t, fsys.WriteFile(p, []byte(body), 0o644))
	}
	return fsys, &packager.Output{
		Assets: []packager.Asset{
			{Path: "dist/app_linux.tar.gz", Name: "app_linux.tar.gz", Build: "cli[os=linux]"},
			{Path: "dist/app_darwin.zip", Name: "app_darwin.zip", Build: "cli[os=darwin]"},
		},
		Manifest:  "dist/checksums.txt",
		Changelog: "dist/CHANGELOG.md",
	}
}

func tokens(values map[string]string) *secrets.Manager {
	return secrets.NewManager(memory.New(values))
}

func TestEligible(t *testing.T) {
	tests := []struct {
		name   string
		run    *templating.RunContext
		skip   bool
		ok     bool
		reason string
	}{
		{"tagged and clean", runFor("v1.0.0", false), false, true, ""},
		{"skipped", runFor("v1.0.0", false), true, false, "publishing skipped"},
		{"untagged", runFor("", false), false, false, "HEAD is not tagged"},
		{"dirty", runFor("v1.0.0", true), false, false, "working tree is dirty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := Eligible(tt.run, tt.skip)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestPublish_IneligibleMakesNoCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL)
	}))
	defer server.Close()

	fsys, out := fixture(t)
	rec := executortest.NewRecorder()
	d := New(fsys, WithRunner(rec), WithSecrets(tokens(map[string]string{"GITHUB_TOKEN": "tok"})),
		WithHTTPClient(server.Client()))

	rel := &config.Release{Name: "cli", Targets: config.Targets{
		GitHub: &config.GitHubTarget{Owner: "acme", Repo: "app", URL: server.URL},
		Docker: &config.DockerTarget{Image: "acme/app", Context: ".", Dockerfile: "Dockerfile"},
	}}
	for _, run := range []*templating.RunContext{runFor("", false), runFor("v1.0.0", true)} {
		require.NoError(t, d.Publish(context.Background(), Input{Release: rel, Run: run, Output: out}))
	}
	require.NoError(t, d.Publish(context.Background(),
		Input{Release: rel, Run: runFor("v1.0.0", false), Output: out, SkipPublish: true}))
	assert.Empty(t, rec.Calls())
}

type fakeGitHub struct {
	t        *testing.T
	mu       sync.Mutex
	existing bool
	assets   []map[string]interface{}
	uploads  map[string]string
	deleted  []string
	release  map[string]interface{}
	auth     string
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = r.Header.Get("Authorization")
	serverURL := "http://" + r.Host

	write := func(status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	rel := map[string]interface{}{"id": 7, "tag_name": "v1.0.0", "upload_url": serverURL + "/upload/7{?name,label}"}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/repos/acme/app/releases/tags/v1.0.0":
		if !f.existing {
			write(http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		write(http.StatusOK, rel)
	case r.Method == http.MethodPost && r.URL.Path == "/repos/acme/app/releases",
		r.Method == http.MethodPatch && r.URL.Path == "/repos/acme/app/releases/7":
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.release))
		write(http.StatusOK, rel)
	case r.Method == http.MethodGet && r.URL.Path == "/repos/acme/app/releases/7/assets":
		write(http.StatusOK, f.assets)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/repos/acme/app/releases/assets/"):
		f.deleted = append(f.deleted, strings.TrimPrefix(r.URL.Path, "/repos/acme/app/releases/assets/"))
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && r.URL.Path == "/upload/7":
		body, _ := io.ReadAll(r.Body)
		f.uploads[r.URL.Query().Get("name")] = string(body)
		write(http.StatusCreated, map[string]interface{}{"id": 100, "name": r.URL.Query().Get("name")})
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL)
		w.WriteHeader(http.StatusTeapot)
	}
}

func gitHubRelease(url string) *config.Release {
	return &config.Release{Name: "cli", Targets: config.Targets{
		GitHub: &config.GitHubTarget{Owner: "acme", Repo: "app", URL: url},
	}}
}

func TestPublish_GitHubCreatesReleaseAndUploads(t *testing.T) {
	fake := &fakeGitHub{t: t, uploads: map[string]string{}}
	server := httptest.NewServer(fake)
	defer server.Close()

	fsys, out := fixture(t)
	d := New(fsys, WithSecrets(tokens(map[string]string{"GH_TOKEN": "tok"})), WithHTTPClient(server.Client()))

	err := d.Publish(context.Background(), Input{
		Release:   gitHubRelease(server.URL),
		Run:       runFor("v1.0.0", false),
		Output:    out,
		Changelog: "### Features\n",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", fake.auth)
	assert.Equal(t, "v1.0.0", fake.release["tag_name"])
	assert.Equal(t, "### Features\n", fake.release["body"])
	assert.Equal(t, false, fake.release["prerelease"])
	assert.Equal(t, map[string]string{
		"app_linux.tar.gz": "linux",
		"app_darwin.zip":   "darwin",
		"checksums.txt":    "sums",
	}, fake.uploads)
	assert.Empty(t, fake.deleted)
}

func TestPublish_GitHubReplacesExistingAssets(t *testing.T) {
	fake := &fakeGitHub{
		t:        t,
		existing: true,
		uploads:  map[string]string{},
		assets: []map[string]interface{}{
			{"id": 11, "name": "checksums.txt"},
			{"id": 12, "name": "unrelated.txt"},
		},
	}
	server := httptest.NewServer(fake)
	defer server.Close()

	fsys, out := fixture(t)
	d := New(fsys, WithSecrets(tokens(map[string]string{"GITHUB_TOKEN": "tok"})), WithHTTPClient(server.Client()))

	require.NoError(t, d.Publish(context.Background(), Input{
		Release: gitHubRelease(server.URL), Run: runFor("v1.0.0", false), Output: out,
	}))
	assert.Equal(t, []string{"11"}, fake.deleted)
	assert.Len(t, fake.uploads, 3)
}

func TestPublish_MissingTokenFailsOnlyThatTarget(t *testing.T) {
	fsys, out := fixture(t)
	rec := executortest.NewRecorder()
	d := New(fsys, WithRunner(rec), WithSecrets(tokens(nil)))

	rel := gitHubRelease("http://127.0.0.1:1")
	rel.Targets.Docker = &config.DockerTarget{Image: "acme/app", Context: ".", Dockerfile: "Dockerfile"}

	err := d.Publish(context.Background(), Input{Release: rel, Run: runFor("v1.0.0", false), Output: out})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodePublishFailed))
	assert.True(t, errors.HasCode(err, errors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "target=github")
	assert.NotContains(t, err.Error(), "target=docker")

	assert.Equal(t, []string{
		"docker build . -t acme/app:v1.0.0 -f Dockerfile",
		"docker push acme/app:v1.0.0",
	}, rec.Lines())
}

func TestPublish_GitLab(t *testing.T) {
	var mu sync.Mutex
	var payload map[string]interface{}
	packages := map[string]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "Bearer glpat", r.Header.Get("Authorization"))
		p := r.URL.EscapedPath()
		switch {
		case r.Method == http.MethodPut && strings.HasPrefix(p, "/api/v4/projects/acme%2Fapp/packages/generic/release/1.0.0/"):
			body, _ := io.ReadAll(r.Body)
			packages[p[strings.LastIndex(p, "/")+1:]] = string(body)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodGet && p == "/api/v4/projects/acme%2Fapp/releases/v1.0.0":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"404 Not Found"}`))
		case r.Method == http.MethodPost && p == "/api/v4/projects/acme%2Fapp/releases":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"tag_name":"v1.0.0"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, p)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer server.Close()

	fsys, out := fixture(t)
	d := New(fsys, WithSecrets(tokens(map[string]string{"GITLAB_TOKEN": "glpat"})), WithHTTPClient(server.Client()))
	rel := &config.Release{Name: "cli", Targets: config.Targets{
		GitLab: &config.GitLabTarget{Owner: "acme", Repo: "app", URL: server.URL},
	}}

	require.NoError(t, d.Publish(context.Background(), Input{
		Release: rel, Run: runFor("v1.0.0", false), Output: out, Changelog: "notes",
	}))

	assert.Equal(t, map[string]string{
		"app_linux.tar.gz": "linux",
		"app_darwin.zip":   "darwin",
		"checksums.txt":    "sums",
	}, packages)
	assert.Equal(t, "notes", payload["description"])

	links := payload["assets"].(map[string]interface{})["links"].([]interface{})
	require.Len(t, links, 3)
	types := map[string]string{}
	for _, l := range links {
		m := l.(map[string]interface{})
		types[m["name"].(string)] = m["link_type"].(string)
		assert.True(t, strings.HasPrefix(m["url"].(string), server.URL+"/api/v4/projects/acme%2Fapp/packages/generic/release/1.0.0/"))
	}
	assert.Equal(t, map[string]string{
		"app_linux.tar.gz": "package",
		"app_darwin.zip":   "package",
		"checksums.txt":    "other",
	}, types)
}

func TestPublish_DockerImages(t *testing.T) {
	fsys, out := fixture(t)
	rec := executortest.NewRecorder()
	d := New(fsys, WithRunner(rec))

	rel := &config.Release{Name: "cli", Targets: config.Targets{Docker: &config.DockerTarget{
		Image:      "ghcr.io/acme/{{ meta.project_name }}",
		Images:     []string{"localhost:5000/acme/app", "docker.io/acme/app:latest"},
		Context:    "docker",
		Dockerfile: "docker/Dockerfile",
	}}}
	require.NoError(t, d.Publish(context.Background(), Input{Release: rel, Run: runFor("v1.0.0", false), Output: out}))

	assert.Equal(t, []string{
		"docker build docker -t ghcr.io/acme/app:v1.0.0 -f docker/Dockerfile",
		"docker build docker -t localhost:5000/acme/app:v1.0.0 -f docker/Dockerfile",
		"docker build docker -t docker.io/acme/app:latest -f docker/Dockerfile",
		"docker push ghcr.io/acme/app:v1.0.0",
		"docker push localhost:5000/acme/app:v1.0.0",
		"docker push docker.io/acme/app:latest",
	}, rec.Lines())
}

func TestPublish_DockerPushDisabled(t *testing.T) {
	fsys, out := fixture(t)
	rec := executortest.NewRecorder()
	d := New(fsys, WithRunner(rec))

	push := false
	rel := &config.Release{Name: "cli", Targets: config.Targets{Docker: &config.DockerTarget{
		Image: "acme/app", Context: ".", Dockerfile: "Dockerfile", Push: &push,
	}}}
	require.NoError(t, d.Publish(context.Background(), Input{Release: rel, Run: runFor("v1.0.0", false), Output: out}))
	assert.Equal(t, []string{"docker build . -t acme/app:v1.0.0 -f Dockerfile"}, rec.Lines())
}

func TestPublish_DockerPushesCapturedBuildxTags(t *testing.T) {
	fsys, out := fixture(t)
	rec := executortest.NewRecorder()
	d := New(fsys, WithRunner(rec))

	results := []build.Result{
		{Name: "img", Index: 0, Tags: []string{"acme/app:v1.0.0", "acme/app:latest"}},
		{Name: "img", Index: 1, Tags: []string{"acme/app:v1.0.0"}},
		{Name: "pushed", Index: 2, Tags: []string{"acme/pushed:v1.0.0"}, Pushed: true},
		{Name: "failed", Index: 3, Tags: []string{"acme/failed:v1.0.0"}, Err: fmt.Errorf("boom")},
	}
	rel := &config.Release{Name: "cli", Targets: config.Targets{Docker: &config.DockerTarget{}}}
	require.NoError(t, d.Publish(context.Background(), Input{
		Release: rel, Run: runFor("v1.0.0", false), Output: out, Results: results,
	}))
	assert.Equal(t, []string{
		"docker push acme/app:v1.0.0",
		"docker push acme/app:latest",
		"docker push acme/pushed:v1.0.0",
	}, rec.Lines())
}

func TestPublish_DockerPushDisabledAfterRegistryBuild(t *testing.T) {
	fsys, out := fixture(t)
	rec := executortest.NewRecorder()
	d := New(fsys, WithRunner(rec))

	push := false
	results := []build.Result{{Name: "img", Tags: []string{"acme/app:v1.0.0"}, Pushed: true}}
	rel := &config.Release{Name: "cli", Targets: config.Targets{Docker: &config.DockerTarget{Push: &push}}}
	require.NoError(t, d.Publish(context.Background(), Input{
		Release: rel, Run: runFor("v1.0.0", false), Output: out, Results: results,
	}))
	assert.Empty(t, rec.Calls())
}

func TestPublish_DockerFailure(t *testing.T) {
	fsys, out := fixture(t)
	rec := executortest.NewRecorder()
	rec.FailWithOutput(executortest.LineContains("docker push"), 1, "denied: requested access")
	d := New(fsys, WithRunner(rec))

	rel := &config.Release{Name: "cli", Targets: config.Targets{Docker: &config.DockerTarget{
		Image: "acme/app", Context: ".", Dockerfile: "Dockerfile",
	}}}
	err := d.Publish(context.Background(), Input{Release: rel, Run: runFor("v1.0.0", false), Output: out})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodePublishFailed))
	assert.True(t, errors.HasCode(err, errors.CodeExecutionFailed))
	assert.Contains(t, err.Error(), "denied: requested access")
}

type fakeStore struct {
	mu      sync.Mutex
	missing bool
	objects map[string]string
	types   map[string]string
}

func (f *fakeStore) BucketExists(context.Context, string) (bool, error) { return !f.missing, nil }

func (f *fakeStore) PutObject(_ context.Context, bucket, object string, r io.Reader, size int64,
	opts minio.PutObjectOptions,
) (minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(data)) != size {
		return minio.UploadInfo{}, fmt.Errorf("size mismatch for %s", object)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+object] = string(data)
	f.types[object] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func TestPublish_Blob(t *testing.T) {
	fsys, out := fixture(t)
	store := &fakeStore{objects: map[string]string{}, types: map[string]string{}}
	var gotAccess, gotSecret string
	d := New(fsys,
		WithSecrets(tokens(map[string]string{"RLSR_BLOB_ACCESS_KEY": "ak", "RLSR_BLOB_SECRET_KEY": "sk"})),
		WithBlobStore(func(_ *config.BlobTarget, access, secret string) (ObjectStore, error) {
			gotAccess, gotSecret = access, secret
			return store, nil
		}))

	rel := &config.Release{Name: "cli", Targets: config.Targets{Blob: &config.BlobTarget{
		Endpoint: "s3.example.com", Bucket: "releases", Prefix: "/{{ meta.project_name }}/",
	}}}
	require.NoError(t, d.Publish(context.Background(), Input{Release: rel, Run: runFor("v1.0.0", false), Output: out}))

	assert.Equal(t, "ak", gotAccess)
	assert.Equal(t, "sk", gotSecret)
	assert.Equal(t, map[string]string{
		"releases/app/v1.0.0/app_linux.tar.gz": "linux",
		"releases/app/v1.0.0/app_darwin.zip":   "darwin",
		"releases/app/v1.0.0/checksums.txt":    "sums",
		"releases/app/v1.0.0/CHANGELOG.md":     "notes",
	}, store.objects)
	assert.Equal(t, "application/gzip", store.types["app/v1.0.0/app_linux.tar.gz"])
	assert.Equal(t, "application/zip", store.types["app/v1.0.0/app_darwin.zip"])
}

func TestPublish_BlobMissingBucket(t *testing.T) {
	fsys, out := fixture(t)
	d := New(fsys,
		WithSecrets(tokens(map[string]string{"RLSR_BLOB_ACCESS_KEY": "ak", "RLSR_BLOB_SECRET_KEY": "sk"})),
		WithBlobStore(func(*config.BlobTarget, string, string) (ObjectStore, error) {
			return &fakeStore{missing: true}, nil
		}))
	rel := &config.Release{Name: "cli", Targets: config.Targets{Blob: &config.BlobTarget{Endpoint: "e", Bucket: "b"}}}

	err := d.Publish(context.Background(), Input{Release: rel, Run: runFor("v1.0.0", false), Output: out})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
	assert.Contains(t, err.Error(), "target=blob")
}

func TestObjectDir(t *testing.T) {
	assert.Equal(t, "v1.0.0", ObjectDir("", "v1.0.0"))
	assert.Equal(t, "a/b/v1.0.0", ObjectDir("/a/b/", "v1.0.0"))
}

type fakePusher struct {
	ref   string
	files []string
	opts  *oci.PushOptions
}

func (f *fakePusher) PushFiles(_ context.Context, _ fs.Filesystem, reference string, files []string,
	opts ...oci.PushOption,
) (string, error) {
	f.ref, f.files = reference, files
	f.opts = oci.DefaultPushOptions()
	for _, o := range opts {
		o(f.opts)
	}
	return "sha256:abc", nil
}

func TestPublish_OCI(t *testing.T) {
	fsys, out := fixture(t)
	pusher := &fakePusher{}
	d := New(fsys, WithOCIPusher(func(*config.OCITarget, *Dispatcher) (OCIPusher, error) { return pusher, nil }))

	rel := &config.Release{Name: "cli", Targets: config.Targets{OCI: &config.OCITarget{
		Repository: "ghcr.io/acme/{{ meta.project_name }}-bundle",
		Tag:        config.DefaultOCITag,
	}}}
	require.NoError(t, d.Publish(context.Background(), Input{Release: rel, Run: runFor("v1.0.0", false), Output: out}))

	assert.Equal(t, "ghcr.io/acme/app-bundle:v1.0.0", pusher.ref)
	files := append([]string(nil), pusher.files...)
	sort.Strings(files)
	assert.Equal(t, []string{"dist/app_darwin.zip", "dist/app_linux.tar.gz", "dist/checksums.txt"}, files)
	assert.Equal(t, "v1.0.0", pusher.opts.Annotations["org.opencontainers.image.version"])
	assert.Equal(t, "abc123", pusher.opts.Annotations["org.opencontainers.image.revision"])
	assert.Equal(t, "2025-01-25T10:30:00Z", pusher.opts.Annotations["org.opencontainers.image.created"])
}

func TestWithTag(t *testing.T) {
	tests := map[string]string{
		"acme/app":                 "acme/app:v1",
		"acme/app:latest":          "acme/app:latest",
		"localhost:5000/app":       "localhost:5000/app:v1",
		"localhost:5000/app:edge":  "localhost:5000/app:edge",
		"acme/app@sha256:deadbeef": "acme/app@sha256:deadbeef",
		"app":                      "app:v1",
	}
	for in, want := range tests {
		assert.Equal(t, want, WithTag(in, "v1"), in)
	}
}
