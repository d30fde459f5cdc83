package git

import (
	"context"
	"errors"

	"github.com/go-git/go-git/v5/plumbing"
)

// Resolve resolves a revision specification to a full commit hash.
func (r *Repo) Resolve(ctx context.Context, rev string) (string, error) {
	if rev == "" {
		return "", WrapError(ErrInvalidRef, "revision cannot be empty")
	}

	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", WrapErrorf(ErrResolveFailed, "failed to resolve %q", rev)
	}
	return hash.String(), nil
}

// HeadCommit returns the commit HEAD points at.
func (r *Repo) HeadCommit(ctx context.Context) (Commit, error) {
	hash, err := r.headHash()
	if err != nil {
		return Commit{}, err
	}
	c, err := r.repo.CommitObject(hash)
	if err != nil {
		return Commit{}, WrapError(err, "failed to read HEAD commit")
	}
	return newCommit(c), nil
}

// CurrentBranch returns the checked out branch name, or "" when HEAD is
// detached (the usual state of a CI tag build).
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", ErrNoCommits
		}
		return "", WrapError(err, "failed to get HEAD reference")
	}

	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

func (r *Repo) headHash() (plumbing.Hash, error) {
	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, ErrNoCommits
		}
		return plumbing.ZeroHash, WrapError(err, "failed to get HEAD reference")
	}
	return head.Hash(), nil
}
