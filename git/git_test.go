package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamd3vil/rlsr/fs"
	fsb "github.com/iamd3vil/rlsr/fs/billy"
)

// foreignFS is a Filesystem that is not backed by go-billy.
type foreignFS struct{ fs.Filesystem }

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "missing fs", opts: Options{}, wantErr: true},
		{name: "negative cache", opts: Options{FS: fsb.NewInMemoryFS(), StorerCacheSize: -1}, wantErr: true},
		{name: "valid", opts: Options{FS: fsb.NewInMemoryFS()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRef)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestInitRejectsForeignFilesystem(t *testing.T) {
	_, err := Init(context.Background(), &Options{FS: foreignFS{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRef)
	assert.Contains(t, err.Error(), "git.foreignFS")
}

func TestOpenAfterInit(t *testing.T) {
	tr := setupTestRepo(t)
	tr.commit(t, "feat: first")

	reopened, err := Open(context.Background(), &Options{FS: tr.fs})
	require.NoError(t, err)

	head, err := reopened.HeadCommit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "feat: first", head.Subject)
	assert.Len(t, head.ShortHash, ShortHashLen)
}

func TestDiscoverWalksUp(t *testing.T) {
	root := t.TempDir()
	repo, err := Init(context.Background(), &Options{FS: fsb.NewOSFS(root)})
	require.NoError(t, err)
	require.NotNil(t, repo)

	nested := filepath.Join(root, "cmd", "app")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := Discover(context.Background(), nested)
	require.NoError(t, err)
	assert.NotNil(t, found)
}

func TestDiscoverOutsideRepository(t *testing.T) {
	_, err := Discover(context.Background(), t.TempDir())
	if err == nil {
		t.Skip("temporary directory is inside a git repository")
	}
	assert.ErrorIs(t, err, ErrNotARepository)
}

func TestHeadTag(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, tr *testRepo)
		want  string
	}{
		{
			name:  "untagged head",
			setup: func(t *testing.T, tr *testRepo) { tr.commit(t, "feat: a") },
			want:  "",
		},
		{
			name: "lightweight tag",
			setup: func(t *testing.T, tr *testRepo) {
				tr.commit(t, "feat: a")
				tr.tag(t, "v1.0.0", false)
			},
			want: "v1.0.0",
		},
		{
			name: "annotated tag is peeled",
			setup: func(t *testing.T, tr *testRepo) {
				tr.commit(t, "feat: a")
				tr.tag(t, "v2.0.0", true)
			},
			want: "v2.0.0",
		},
		{
			name: "highest version wins",
			setup: func(t *testing.T, tr *testRepo) {
				tr.commit(t, "feat: a")
				tr.tag(t, "v1.9.0", false)
				tr.tag(t, "v1.10.0", false)
				tr.tag(t, "nightly", false)
			},
			want: "v1.10.0",
		},
		{
			name: "tag on older commit",
			setup: func(t *testing.T, tr *testRepo) {
				tr.commit(t, "feat: a")
				tr.tag(t, "v1.0.0", false)
				tr.commit(t, "fix: b")
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := setupTestRepo(t)
			tt.setup(t, tr)

			got, err := tr.repo.HeadTag(tr.ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPreviousTag(t *testing.T) {
	tr := setupTestRepo(t)
	tr.commit(t, "feat: a")

	prev, err := tr.repo.PreviousTag(tr.ctx)
	require.NoError(t, err)
	assert.Empty(t, prev, "no tags yet")

	tr.tag(t, "v0.1.0", false)
	prev, err = tr.repo.PreviousTag(tr.ctx)
	require.NoError(t, err)
	assert.Empty(t, prev, "HEAD's own tag is not the previous tag")

	tr.commit(t, "fix: b")
	tr.commit(t, "feat: c")
	tr.tag(t, "v0.2.0", true)

	prev, err = tr.repo.PreviousTag(tr.ctx)
	require.NoError(t, err)
	assert.Equal(t, "v0.1.0", prev)
}

func TestCommitsSince(t *testing.T) {
	tr := setupTestRepo(t)
	tr.commit(t, "chore: init")
	tr.tag(t, "v1.0.0", false)
	tr.commit(t, "feat(api): add X\n\nLonger body.")
	tr.commit(t, "fix: Y")

	commits, err := tr.repo.CommitsSince(tr.ctx, "v1.0.0")
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "fix: Y", commits[0].Subject)
	assert.Equal(t, "feat(api): add X", commits[1].Subject)
	assert.Equal(t, "Longer body.", commits[1].Body)
	assert.Equal(t, "bot@example.com", commits[1].AuthorEmail)

	all, err := tr.repo.CommitsSince(tr.ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = tr.repo.CommitsSince(tr.ctx, "v9.9.9")
	assert.ErrorIs(t, err, ErrResolveFailed)
}

func TestEmptyRepository(t *testing.T) {
	tr := setupTestRepo(t)

	_, err := tr.repo.HeadCommit(tr.ctx)
	assert.ErrorIs(t, err, ErrNoCommits)

	_, err = tr.repo.CommitsSince(tr.ctx, "")
	assert.ErrorIs(t, err, ErrNoCommits)
}

func TestTagsFilters(t *testing.T) {
	tr := setupTestRepo(t)
	tr.commit(t, "feat: a")
	tr.tag(t, "v1.0.0", false)
	tr.tag(t, "app/v1.0.0", false)
	tr.tag(t, "latest", false)

	all, err := tr.repo.Tags(tr.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"app/v1.0.0", "latest", "v1.0.0"}, all)

	versions, err := tr.repo.Tags(tr.ctx, SemverFilter())
	require.NoError(t, err)
	assert.Equal(t, []string{"v1.0.0"}, versions)

	prefixed, err := tr.repo.Tags(tr.ctx, PrefixFilter("app/"))
	require.NoError(t, err)
	assert.Equal(t, []string{"app/v1.0.0"}, prefixed)

	err = tr.repo.CreateTag(tr.ctx, "v1.0.0", "HEAD", "", false, Signature{})
	assert.ErrorIs(t, err, ErrTagExists)
}

func TestIsDirty(t *testing.T) {
	tr := setupTestRepo(t)
	tr.commit(t, "feat: a")

	dirty, err := tr.repo.IsDirty(tr.ctx)
	require.NoError(t, err)
	assert.False(t, dirty)

	require.NoError(t, tr.fs.WriteFile("file-1.txt", []byte("changed"), 0o644))
	dirty, err = tr.repo.IsDirty(tr.ctx)
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestCurrentBranch(t *testing.T) {
	tr := setupTestRepo(t)
	_, err := tr.repo.CurrentBranch(tr.ctx)
	assert.ErrorIs(t, err, ErrNoCommits)

	tr.commit(t, "feat: a")
	branch, err := tr.repo.CurrentBranch(tr.ctx)
	require.NoError(t, err)
	assert.Equal(t, "master", branch)
}

func TestCommitRequiresChanges(t *testing.T) {
	tr := setupTestRepo(t)
	tr.commit(t, "feat: a")

	_, err := tr.repo.Commit(tr.ctx, "empty", Signature{Name: "a", Email: "a@b"}, CommitOpts{})
	assert.ErrorIs(t, err, ErrEmptyCommit)

	_, err = tr.repo.Commit(tr.ctx, "empty", Signature{Name: "a", Email: "a@b"}, CommitOpts{AllowEmpty: true})
	assert.NoError(t, err)
}

func TestSortTags(t *testing.T) {
	tags := []string{"alpha", "v1.2.0", "v1.10.0-rc.1", "v1.10.0", "beta"}
	sortTags(tags)
	assert.Equal(t, []string{"v1.10.0", "v1.10.0-rc.1", "v1.2.0", "beta", "alpha"}, tags)
}
