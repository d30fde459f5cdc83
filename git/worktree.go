package git

import (
	"context"
	"errors"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// IsDirty reports whether the worktree has staged, modified or untracked
// files. Bare repositories are never dirty.
func (r *Repo) IsDirty(ctx context.Context) (bool, error) {
	if r.worktree == nil {
		return false, nil
	}

	status, err := r.worktree.Status()
	if err != nil {
		return false, WrapError(err, "failed to get worktree status")
	}
	return !status.IsClean(), nil
}

// Add stages paths in the worktree. Missing paths are ignored.
func (r *Repo) Add(ctx context.Context, paths ...string) error {
	if r.worktree == nil {
		return WrapError(ErrInvalidRef, "cannot add files in bare repository")
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := r.worktree.Filesystem.Stat(path); err != nil {
			continue
		}
		if _, err := r.worktree.Add(path); err != nil {
			return WrapErrorf(err, "failed to add path %q", path)
		}
	}
	return nil
}

// Commit creates a commit of the staged changes and returns its hash.
func (r *Repo) Commit(ctx context.Context, msg string, who Signature, opts CommitOpts) (string, error) {
	if r.worktree == nil {
		return "", WrapError(ErrInvalidRef, "cannot commit in bare repository")
	}

	if msg == "" {
		return "", WrapError(ErrInvalidRef, "commit message cannot be empty")
	}

	if who.Name == "" || who.Email == "" {
		return "", WrapError(ErrInvalidRef, "committer name and email are required")
	}

	sig := &object.Signature{Name: who.Name, Email: who.Email, When: who.When}
	hash, err := r.worktree.Commit(msg, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: opts.AllowEmpty,
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return "", ErrEmptyCommit
		}
		return "", WrapError(err, "failed to create commit")
	}

	return hash.String(), nil
}
