package config

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/fs"
)

// Format identifies a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// DetectFormat picks the format from path's extension, defaulting to YAML.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

// LoadOptions configures loading behavior.
type LoadOptions struct {
	// SkipValidation returns the decoded config without calling Validate.
	SkipValidation bool
}

// Load reads, decodes, defaults and validates the config at path.
func Load(ctx context.Context, fsys fs.Filesystem, path string) (*Config, error) {
	return LoadWithOptions(ctx, fsys, path, LoadOptions{})
}

// LoadWithOptions is Load with explicit options.
func LoadWithOptions(ctx context.Context, fsys fs.Filesystem, path string, opts LoadOptions) (*Config, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithContext(
			err,
			errors.CodeInvalidConfig,
			"failed to read configuration",
			map[string]interface{}{"path": path},
		)
	}

	cfg, err := Parse(data, DetectFormat(path))
	if err != nil {
		return nil, errors.WithContext(err, map[string]interface{}{"path": path})
	}

	if opts.SkipValidation {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithContext(err, map[string]interface{}{"path": path})
	}
	return cfg, nil
}

// Parse decodes data in the given format and applies defaults. Unknown keys
// are rejected so typos surface as configuration errors.
func Parse(data []byte, format Format) (*Config, error) {
	if format == FormatTOML {
		node, err := tomlToNode(data)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to parse TOML configuration")
		}
		if data, err = yaml.Marshal(node); err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to normalize TOML configuration")
		}
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.WrapWithContext(
			err,
			errors.CodeInvalidConfig,
			"failed to decode configuration",
			map[string]interface{}{"format": string(format)},
		)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}
