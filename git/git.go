package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gobilly "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/iamd3vil/rlsr/fs"
	fsb "github.com/iamd3vil/rlsr/fs/billy"
)

const (
	// DefaultStorerCacheSize is the default size for the LRU object cache.
	DefaultStorerCacheSize = 1000

	// DefaultWorkdir is the default worktree directory name.
	DefaultWorkdir = "."
)

// Options configures repository discovery/creation.
type Options struct {
	// FS is the REQUIRED native filesystem root (OS or in-memory).
	FS fs.Filesystem

	// Workdir is the path within FS for the worktree root.
	// Defaults to ".".
	Workdir string

	// Bare opens or creates a repository without a worktree.
	Bare bool

	// StorerCacheSize sets the LRU objects cache entries.
	// Defaults to DefaultStorerCacheSize.
	StorerCacheSize int
}

// Validate checks that the Options are properly configured.
func (o *Options) Validate() error {
	if o.FS == nil {
		return WrapError(ErrInvalidRef, "FS is required")
	}

	if o.StorerCacheSize < 0 {
		return WrapError(ErrInvalidRef, "StorerCacheSize cannot be negative")
	}

	return nil
}

func (o *Options) applyDefaults() {
	if o.Workdir == "" {
		o.Workdir = DefaultWorkdir
	}

	if o.StorerCacheSize == 0 {
		o.StorerCacheSize = DefaultStorerCacheSize
	}
}

// Signature identifies the author/committer of commits and annotated tags.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// CommitOpts configures commit creation behavior.
type CommitOpts struct {
	// AllowEmpty allows creating commits with no changes.
	AllowEmpty bool
}

// Repo is an opened repository.
type Repo struct {
	repo     *git.Repository
	worktree *git.Worktree
	fs       fs.Filesystem
	options  Options
}

// storage resolves the object storage and worktree filesystem for opts.
// Only filesystems from fs/billy can back a repository.
func storage(opts *Options) (*filesystem.Storage, gobilly.Filesystem, error) {
	bfs, ok := opts.FS.(*fsb.FS)
	if !ok {
		return nil, nil, WrapErrorf(ErrInvalidRef, "unsupported filesystem %T", opts.FS)
	}

	scopedFS, err := bfs.Raw().Chroot(opts.Workdir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to chroot to workdir %q: %w", opts.Workdir, err)
	}

	objects := cache.NewObjectLRU(cache.FileSize(opts.StorerCacheSize))
	if opts.Bare {
		return filesystem.NewStorage(scopedFS, objects), nil, nil
	}

	dotGitFS, err := scopedFS.Chroot(git.GitDirName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to access %s directory: %w", git.GitDirName, err)
	}
	return filesystem.NewStorage(dotGitFS, objects), scopedFS, nil
}

func newRepo(repo *git.Repository, opts *Options) (*Repo, error) {
	r := &Repo{
		repo:    repo,
		fs:      opts.FS,
		options: *opts,
	}

	if !opts.Bare {
		worktree, err := repo.Worktree()
		if err != nil {
			return nil, WrapError(err, "failed to get worktree")
		}
		r.worktree = worktree
	}

	return r, nil
}

// Init creates a new git repository at the specified location.
func Init(ctx context.Context, opts *Options) (*Repo, error) {
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}
	opts.applyDefaults()

	st, worktreeFS, err := storage(opts)
	if err != nil {
		return nil, err
	}

	repo, err := git.Init(st, worktreeFS)
	if err != nil {
		return nil, WrapError(err, "failed to initialize repository")
	}

	return newRepo(repo, opts)
}

// Open opens an existing git repository at opts.Workdir within opts.FS.
func Open(ctx context.Context, opts *Options) (*Repo, error) {
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}
	opts.applyDefaults()

	st, worktreeFS, err := storage(opts)
	if err != nil {
		return nil, err
	}

	repo, err := git.Open(st, worktreeFS)
	if err != nil {
		return nil, WrapError(err, "failed to open repository")
	}

	return newRepo(repo, opts)
}

// Discover opens the repository enclosing dir on the host filesystem,
// walking up parent directories until a .git directory is found.
func Discover(ctx context.Context, dir string) (*Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, WrapErrorf(err, "failed to resolve %q", dir)
	}

	for current := abs; ; {
		info, statErr := os.Stat(filepath.Join(current, git.GitDirName))
		if statErr == nil && info.IsDir() {
			return Open(ctx, &Options{FS: fsb.NewOSFS(current)})
		}

		parent := filepath.Dir(current)
		if parent == current {
			return nil, WrapErrorf(ErrNotARepository, "no repository found from %q", abs)
		}
		current = parent
	}
}
