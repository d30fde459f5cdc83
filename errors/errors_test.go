package errors_test

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamd3vil/rlsr/errors"
)

func TestNew(t *testing.T) {
	err := errors.New(errors.CodeInvalidConfig, "releases must not be empty")

	assert.Equal(t, errors.CodeInvalidConfig, err.Code())
	assert.Equal(t, "releases must not be empty", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrapWithContext(t *testing.T) {
	err := errors.WrapWithContext(io.ErrUnexpectedEOF, errors.CodeBuildFailed, "build failed",
		map[string]interface{}{"build": "linux-amd64", "exit_code": 2})

	var platformErr errors.PlatformError
	require.True(t, errors.As(err, &platformErr))
	assert.Equal(t, errors.CodeBuildFailed, platformErr.Code())
	assert.Equal(t, 2, platformErr.Context()["exit_code"])
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, "build failed [build=linux-amd64 exit_code=2]: unexpected EOF", err.Error())
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, errors.Wrap(nil, errors.CodeInternal, "x"))
	assert.NoError(t, errors.WrapWithContext(nil, errors.CodeInternal, "x", nil))
	assert.NoError(t, errors.WithContext(nil, map[string]interface{}{"a": 1}))
}

func TestWithContext(t *testing.T) {
	base := errors.Wrap(io.EOF, errors.CodePublishFailed, "upload failed")
	err := errors.WithContext(base, map[string]interface{}{"target": "github"})

	var platformErr errors.PlatformError
	require.True(t, errors.As(err, &platformErr))
	assert.Equal(t, "github", platformErr.Context()["target"])
	assert.Empty(t, base.(errors.PlatformError).Context(), "original must not be mutated")
}

func TestHasCode(t *testing.T) {
	build := errors.New(errors.CodeBuildFailed, "boom")
	publish := errors.New(errors.CodePublishFailed, "nope")
	joined := errors.Join(fmt.Errorf("release app: %w", build), publish)

	tests := []struct {
		name string
		err  error
		code errors.ErrorCode
		want bool
	}{
		{name: "direct", err: build, code: errors.CodeBuildFailed, want: true},
		{name: "joined first", err: joined, code: errors.CodeBuildFailed, want: true},
		{name: "joined second", err: joined, code: errors.CodePublishFailed, want: true},
		{name: "absent", err: joined, code: errors.CodeChangelogFailed, want: false},
		{name: "plain error", err: io.EOF, code: errors.CodeUnknown, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.HasCode(tt.err, tt.code))
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, errors.CodeUnknown, errors.CodeOf(io.EOF))
	assert.Equal(t, errors.CodeTemplateFailed,
		errors.CodeOf(fmt.Errorf("render: %w", errors.New(errors.CodeTemplateFailed, "bad filter"))))
}
