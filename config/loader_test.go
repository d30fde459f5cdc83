package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/fs/billy"
)

// setupTestFS creates a memory filesystem and loads test fixtures.
func setupTestFS(t *testing.T, fixtures ...string) *billy.FS {
	t.Helper()
	fs := billy.NewInMemoryFS()

	for _, fixture := range fixtures {
		data, err := os.ReadFile(filepath.Join("testdata", fixture))
		require.NoError(t, err, "read fixture %s", fixture)
		require.NoError(t, fs.WriteFile(fixture, data, 0o644))
	}

	return fs
}

func axisKeys(block MatrixBlock) []string {
	keys := make([]string, 0, len(block))
	for _, a := range block {
		keys = append(keys, a.Key)
	}
	return keys
}

func TestLoad_YAML(t *testing.T) {
	fs := setupTestFS(t, "valid.yml")

	cfg, err := Load(context.Background(), fs, "valid.yml")
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.ProjectName)
	require.NotNil(t, cfg.Changelog)
	assert.Equal(t, ChangelogFormatGitHub, cfg.Changelog.Format)
	assert.Equal(t, []string{"^chore:"}, cfg.Changelog.Exclude)

	require.Len(t, cfg.Releases, 1)
	rel := cfg.Releases[0]
	assert.Equal(t, "out", rel.DistFolder)
	assert.Equal(t, "sha512", rel.Checksum.Algorithm)
	assert.Equal(t, []string{"CGO_ENABLED=0"}, rel.Env)
	assert.Equal(t, []string{"go mod tidy"}, rel.Hooks.Before)

	require.NotNil(t, rel.Targets.GitHub)
	assert.Equal(t, DefaultGitHubURL, rel.Targets.GitHub.URL)
	require.NotNil(t, rel.Targets.Docker)
	assert.True(t, rel.Targets.Docker.ShouldPush())
	assert.Equal(t, "Dockerfile", rel.Targets.Docker.Dockerfile)

	require.Len(t, rel.Builds, 2)
	cli := rel.Builds[0]
	assert.Equal(t, BuildTypeCustom, cli.Type)
	require.Len(t, cli.Matrix, 1)
	assert.Equal(t, []string{"os", "arch"}, axisKeys(cli.Matrix[0]))
	assert.Equal(t, []string{"linux", "darwin"}, cli.Matrix[0][0].Values)

	img := rel.Builds[1]
	assert.Equal(t, BuildTypeBuildx, img.Type)
	require.NotNil(t, img.Buildx)
	assert.Equal(t, ".", img.Buildx.Context)
	assert.Equal(t, "Dockerfile", img.Buildx.Dockerfile)
	assert.Equal(t, []string{"type=registry"}, img.Buildx.Outputs)
	assert.Equal(t, "image", img.ArchiveName)
}

func TestLoad_TOMLKeepsAxisOrder(t *testing.T) {
	fs := setupTestFS(t, "valid.toml")

	cfg, err := Load(context.Background(), fs, "valid.toml")
	require.NoError(t, err)

	require.Len(t, cfg.Releases, 1)
	rel := cfg.Releases[0]
	require.Len(t, rel.Builds, 2)

	assert.Equal(t, []string{"os", "arch"}, axisKeys(rel.Builds[0].Matrix[0]))
	assert.Equal(t, []string{"linux", "windows", "darwin"}, rel.Builds[0].Matrix[0][0].Values)

	image := rel.Builds[1]
	assert.Equal(t, []string{"build_args.VERSION"}, axisKeys(image.Matrix[0]))
	assert.Equal(t, map[string]string{"VERSION": "0"}, image.Buildx.BuildArgs)
	assert.True(t, image.Buildx.Load)

	require.NotNil(t, rel.Targets.GitLab)
	assert.Equal(t, DefaultGitLabURL, rel.Targets.GitLab.URL)
}

func TestLoad_JSONMatrixBlocks(t *testing.T) {
	fs := setupTestFS(t, "valid.json")

	cfg, err := Load(context.Background(), fs, "valid.json")
	require.NoError(t, err)

	m := cfg.Releases[0].Builds[0].Matrix
	require.Len(t, m, 2)
	assert.Equal(t, []string{"os"}, axisKeys(m[0]))
	assert.Equal(t, []string{"arch"}, axisKeys(m[1]))
	assert.Equal(t, DefaultDistFolder, cfg.Releases[0].DistFolder)
	assert.Equal(t, DefaultChecksumAlgorithm, cfg.Releases[0].Checksum.Algorithm)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		fixture  string
		path     string
		contains []string
	}{
		{
			name:     "missing file",
			path:     "nope.yml",
			contains: []string{"failed to read configuration"},
		},
		{
			name:     "unknown field",
			fixture:  "unknown-field.yml",
			path:     "unknown-field.yml",
			contains: []string{"biulds"},
		},
		{
			name:    "every validation problem is reported",
			fixture: "invalid.yml",
			path:    "invalid.yml",
			contains: []string{
				`entry "NOEQUALS" must be KEY=VALUE`,
				`crc32`,
				"github: owner and repo are required",
				"command is required for custom builds",
				"artifact is required for custom builds",
				"cannot set both load and outputs",
				`duplicate release name "cli"`,
				"at least one build is required",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fs *billy.FS
			if tt.fixture != "" {
				fs = setupTestFS(t, tt.fixture)
			} else {
				fs = setupTestFS(t)
			}

			_, err := Load(context.Background(), fs, tt.path)
			require.Error(t, err)

			var platformErr errors.PlatformError
			require.True(t, errors.As(err, &platformErr))
			assert.Equal(t, errors.CodeInvalidConfig, platformErr.Code())
			assert.Equal(t, tt.path, platformErr.Context()["path"])

			for _, s := range tt.contains {
				assert.Contains(t, err.Error(), s)
			}
		})
	}
}

func TestLoadWithOptions_SkipValidation(t *testing.T) {
	fs := setupTestFS(t, "invalid.yml")

	cfg, err := LoadWithOptions(context.Background(), fs, "invalid.yml", LoadOptions{SkipValidation: true})
	require.NoError(t, err)
	assert.Len(t, cfg.Releases, 2)
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]Format{
		"rlsr.yml":       FormatYAML,
		"rlsr.yaml":      FormatYAML,
		"rlsr.JSON":      FormatJSON,
		"conf/rlsr.toml": FormatTOML,
		"rlsr":           FormatYAML,
	}
	for path, want := range tests {
		assert.Equal(t, want, DetectFormat(path), path)
	}
}
