package git

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iamd3vil/rlsr/fs"
	fsb "github.com/iamd3vil/rlsr/fs/billy"
)

// testRepo is a helper struct that contains a test repository and its filesystem
type testRepo struct {
	repo  *Repo
	fs    fs.Filesystem
	ctx   context.Context
	clock time.Time
	n     int
}

// setupTestRepo creates a new test repository with an in-memory filesystem
func setupTestRepo(t *testing.T) *testRepo {
	t.Helper()

	ctx := context.Background()
	memFS := fsb.NewInMemoryFS()

	repo, err := Init(ctx, &Options{FS: memFS, Workdir: "."})
	require.NoError(t, err, "failed to initialize test repository")

	return &testRepo{
		repo:  repo,
		fs:    memFS,
		ctx:   ctx,
		clock: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// commit writes a unique file and commits it with msg, one minute after the
// previous commit so committer-time ordering is deterministic.
func (tr *testRepo) commit(t *testing.T, msg string) string {
	t.Helper()

	tr.n++
	name := fmt.Sprintf("file-%d.txt", tr.n)
	require.NoError(t, tr.fs.WriteFile(name, []byte(msg), 0o644))
	require.NoError(t, tr.repo.Add(tr.ctx, name))

	tr.clock = tr.clock.Add(time.Minute)
	hash, err := tr.repo.Commit(tr.ctx, msg, Signature{
		Name:  "Release Bot",
		Email: "bot@example.com",
		When:  tr.clock,
	}, CommitOpts{})
	require.NoError(t, err, "failed to commit %q", msg)
	return hash
}

// tag creates a lightweight or annotated tag at HEAD.
func (tr *testRepo) tag(t *testing.T, name string, annotated bool) {
	t.Helper()

	msg := ""
	if annotated {
		msg = "release " + name
	}
	require.NoError(t, tr.repo.CreateTag(tr.ctx, name, "HEAD", msg, annotated, Signature{
		Name:  "Release Bot",
		Email: "bot@example.com",
		When:  tr.clock,
	}))
}
