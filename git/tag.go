package git

import (
	"context"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// TagFilter is a predicate function for filtering tags.
// Filters are applied progressively - if any filter returns false, the tag is excluded.
type TagFilter func(name string, ref *plumbing.Reference) bool

// PrefixFilter keeps tags starting with prefix.
func PrefixFilter(prefix string) TagFilter {
	return func(name string, _ *plumbing.Reference) bool {
		return strings.HasPrefix(name, prefix)
	}
}

// SemverFilter keeps tags that parse as semantic versions (a leading v is allowed).
func SemverFilter() TagFilter {
	return func(name string, _ *plumbing.Reference) bool {
		_, err := semver.NewVersion(name)
		return err == nil
	}
}

// CreateTag creates a tag at target. An annotated tag is created when
// annotated is true and message is non-empty; otherwise a lightweight tag.
func (r *Repo) CreateTag(ctx context.Context, name, target, message string, annotated bool, tagger Signature) error {
	if name == "" {
		return WrapError(ErrInvalidRef, "tag name cannot be empty")
	}

	if target == "" {
		return WrapError(ErrInvalidRef, "target revision cannot be empty")
	}

	hash, err := r.repo.ResolveRevision(plumbing.Revision(target))
	if err != nil {
		return WrapError(ErrResolveFailed, "failed to resolve target revision")
	}

	tagRefName := plumbing.NewTagReferenceName(name)
	if _, err = r.repo.Reference(tagRefName, true); err == nil {
		return WrapErrorf(ErrTagExists, "tag %q", name)
	}

	if annotated && message != "" {
		_, err = r.repo.CreateTag(name, *hash, &git.CreateTagOptions{
			Tagger: &object.Signature{
				Name:  tagger.Name,
				Email: tagger.Email,
				When:  tagger.When,
			},
			Message: message,
		})
		return WrapError(err, "failed to create annotated tag")
	}

	tagRef := plumbing.NewHashReference(tagRefName, *hash)
	return WrapError(r.repo.Storer.SetReference(tagRef), "failed to create lightweight tag")
}

// Tags returns the names of tags that pass all the provided filters,
// sorted alphabetically.
func (r *Repo) Tags(ctx context.Context, filters ...TagFilter) ([]string, error) {
	refs, err := r.repo.Tags()
	if err != nil {
		return nil, WrapError(err, "failed to get tag references")
	}

	var tags []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if shouldIncludeTag(name, ref, filters) {
			tags = append(tags, name)
		}
		return nil
	})
	if err != nil {
		return nil, WrapError(err, "failed to iterate tags")
	}

	sort.Strings(tags)
	return tags, nil
}

// TagsAt returns the tags whose target commit is rev, best version first.
// Annotated tags are peeled to the commit they point at.
func (r *Repo) TagsAt(ctx context.Context, rev string) ([]string, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, WrapErrorf(ErrResolveFailed, "failed to resolve %q", rev)
	}

	byCommit, err := r.tagsByCommit()
	if err != nil {
		return nil, err
	}
	return byCommit[*hash], nil
}

// HeadTag returns the best tag pointing exactly at HEAD, or "" if HEAD is untagged.
func (r *Repo) HeadTag(ctx context.Context) (string, error) {
	tags, err := r.TagsAt(ctx, "HEAD")
	if err != nil || len(tags) == 0 {
		return "", err
	}
	return tags[0], nil
}

// PreviousTag returns the most recent tag reachable from HEAD that does not
// point at HEAD itself, or "" when there is none.
func (r *Repo) PreviousTag(ctx context.Context) (string, error) {
	head, err := r.headHash()
	if err != nil {
		return "", err
	}

	byCommit, err := r.tagsByCommit()
	if err != nil {
		return "", err
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head, Order: git.LogOrderCommitterTime})
	if err != nil {
		return "", WrapError(err, "failed to walk history")
	}
	defer iter.Close()

	var found string
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Hash == head {
			return nil
		}
		if tags := byCommit[c.Hash]; len(tags) > 0 {
			found = tags[0]
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return "", WrapError(err, "failed to walk history")
	}
	return found, nil
}

// tagsByCommit maps commit hashes to the tags pointing at them, each list
// ordered by sortTags.
func (r *Repo) tagsByCommit() (map[plumbing.Hash][]string, error) {
	refs, err := r.repo.Tags()
	if err != nil {
		return nil, WrapError(err, "failed to get tag references")
	}

	out := make(map[plumbing.Hash][]string)
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		if tagObj, tagErr := r.repo.TagObject(target); tagErr == nil {
			commit, commitErr := tagObj.Commit()
			if commitErr != nil {
				// Tags on trees or blobs cannot be release tags.
				return nil
			}
			target = commit.Hash
		}
		out[target] = append(out[target], ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, WrapError(err, "failed to iterate tags")
	}

	for h := range out {
		sortTags(out[h])
	}
	return out, nil
}

// sortTags orders semantic versions highest first, followed by any other
// tags in reverse alphabetical order.
func sortTags(tags []string) {
	sort.SliceStable(tags, func(i, j int) bool {
		vi, errI := semver.NewVersion(tags[i])
		vj, errJ := semver.NewVersion(tags[j])
		switch {
		case errI == nil && errJ == nil:
			if !vi.Equal(vj) {
				return vi.GreaterThan(vj)
			}
			return tags[i] > tags[j]
		case errI == nil:
			return true
		case errJ == nil:
			return false
		default:
			return tags[i] > tags[j]
		}
	})
}

func shouldIncludeTag(name string, ref *plumbing.Reference, filters []TagFilter) bool {
	for _, filter := range filters {
		if filter != nil && !filter(name, ref) {
			return false
		}
	}
	return true
}
