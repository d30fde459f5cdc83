package git

import (
	"errors"
	"fmt"
)

// ErrTagExists is returned when creating a tag that already exists.
var ErrTagExists = errors.New("tag already exists")

// ErrTagMissing is returned when a named tag does not exist.
var ErrTagMissing = errors.New("tag does not exist")

// ErrInvalidRef is returned for malformed arguments and reference names.
var ErrInvalidRef = errors.New("invalid reference")

// ErrResolveFailed is returned when a revision cannot be resolved to a commit.
var ErrResolveFailed = errors.New("cannot resolve revision")

// ErrEmptyCommit is returned when committing with nothing staged.
var ErrEmptyCommit = errors.New("empty commit")

// ErrNoCommits is returned when HEAD does not point at any commit yet.
var ErrNoCommits = errors.New("repository has no commits")

// ErrNotARepository is returned by Discover when no enclosing repository exists.
var ErrNotARepository = errors.New("not a git repository")

// WrapError wraps an error with additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf wraps an error with formatted additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
