package git

import (
	"context"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Commit is a flattened view of a commit for changelog generation.
type Commit struct {
	Hash        string
	ShortHash   string
	Subject     string
	Body        string
	Message     string
	AuthorName  string
	AuthorEmail string
	When        time.Time
}

// ShortHashLen is the number of hex characters in Commit.ShortHash.
const ShortHashLen = 7

func newCommit(c *object.Commit) Commit {
	subject, body, _ := strings.Cut(strings.TrimRight(c.Message, "\n"), "\n")
	hash := c.Hash.String()
	return Commit{
		Hash:        hash,
		ShortHash:   hash[:ShortHashLen],
		Subject:     strings.TrimSpace(subject),
		Body:        strings.TrimSpace(body),
		Message:     c.Message,
		AuthorName:  c.Author.Name,
		AuthorEmail: c.Author.Email,
		When:        c.Author.When,
	}
}

// CommitsSince returns the commits reachable from HEAD but not from since,
// newest first. An empty since returns the full history of HEAD.
func (r *Repo) CommitsSince(ctx context.Context, since string) ([]Commit, error) {
	head, err := r.headHash()
	if err != nil {
		return nil, err
	}

	exclude := map[plumbing.Hash]struct{}{}
	if since != "" {
		base, resolveErr := r.repo.ResolveRevision(plumbing.Revision(since))
		if resolveErr != nil {
			return nil, WrapErrorf(ErrResolveFailed, "failed to resolve %q", since)
		}
		if err := r.walk(ctx, *base, func(c *object.Commit) error {
			exclude[c.Hash] = struct{}{}
			return nil
		}); err != nil {
			return nil, err
		}
	}

	var commits []Commit
	err = r.walk(ctx, head, func(c *object.Commit) error {
		if _, skip := exclude[c.Hash]; !skip {
			commits = append(commits, newCommit(c))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return commits, nil
}

func (r *Repo) walk(ctx context.Context, from plumbing.Hash, fn func(*object.Commit) error) error {
	iter, err := r.repo.Log(&git.LogOptions{From: from, Order: git.LogOrderCommitterTime})
	if err != nil {
		return WrapError(err, "failed to create commit iterator")
	}
	defer iter.Close()

	return WrapError(iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(c)
	}), "failed to iterate commits")
}
