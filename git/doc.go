// Package git answers the questions a release run asks of its repository:
// which tag HEAD sits on, which tag came before it, which commits lie in
// between, which branch is checked out, and whether the worktree is dirty.
//
// It wraps go-git and operates exclusively through the rlsr filesystem
// abstraction, so the same code runs against an on-disk checkout or an
// in-memory repository in tests:
//
//	repo, err := git.Discover(ctx, ".")
//	if err != nil {
//	    return err
//	}
//	tag, err := repo.HeadTag(ctx)
//	prev, err := repo.PreviousTag(ctx)
//	commits, err := repo.CommitsSince(ctx, prev)
//
// Errors wrap the sentinels in errors.go and can be checked with errors.Is.
package git
