// Package config defines the strongly typed release configuration and
// normalizes YAML, JSON and TOML input into it.
//
// Every string field that ends up in a command, a path or a tag is a
// template; this package only carries the raw text. Rendering happens in
// the build, packaging and publish stages against one frozen run context.
//
//	cfg, err := config.Load(ctx, billy.NewBaseOSFS(), "rlsr.yml")
//	if err != nil {
//	    return err
//	}
//	for _, rel := range cfg.Releases {
//	    fmt.Println(rel.Name, len(rel.Builds))
//	}
package config

// DefaultPath is the config file used when none is given on the command line.
const DefaultPath = "rlsr.yml"

// Config is the root of a release configuration.
type Config struct {
	// ProjectName overrides the project name exposed as meta.project_name.
	// Defaults to the repository directory name.
	ProjectName string `yaml:"project_name,omitempty"`

	// Releases are processed in declared order.
	Releases []Release `yaml:"releases"`

	// Changelog is the default changelog configuration for releases that
	// do not declare their own.
	Changelog *Changelog `yaml:"changelog,omitempty"`
}

// Release declares one releasable unit: its builds, packaging and targets.
type Release struct {
	Name             string     `yaml:"name"`
	DistFolder       string     `yaml:"dist_folder,omitempty"`
	BuildsSequential bool       `yaml:"builds_sequential,omitempty"`
	Targets          Targets    `yaml:"targets,omitempty"`
	Checksum         Checksum   `yaml:"checksum,omitempty"`
	AdditionalFiles  []string   `yaml:"additional_files,omitempty"`
	Env              []string   `yaml:"env,omitempty"`
	Hooks            Hooks      `yaml:"hooks,omitempty"`
	Builds           []Build    `yaml:"builds"`
	Changelog        *Changelog `yaml:"changelog,omitempty"`
}

// Hooks are shell commands run around a release.
type Hooks struct {
	// Before runs to completion before any build starts.
	Before []string `yaml:"before,omitempty"`

	// After runs once builds, packaging and publishing have finished.
	After []string `yaml:"after,omitempty"`
}

// Checksum selects the digest algorithm for the release manifest.
type Checksum struct {
	Algorithm string `yaml:"algorithm,omitempty"`
}

// Changelog configures changelog generation.
type Changelog struct {
	// Format is "default" or "github". The github format resolves author
	// handles through the GitHub API.
	Format string `yaml:"format,omitempty"`

	// Template is a path to a user template replacing the built-in one.
	Template string `yaml:"template,omitempty"`

	// Exclude holds regular expressions matched against raw commit subjects.
	Exclude []string `yaml:"exclude,omitempty"`
}

// BuildType discriminates build declarations.
type BuildType string

const (
	// BuildTypeCustom runs an opaque shell command.
	BuildTypeCustom BuildType = "custom"

	// BuildTypeBuildx invokes docker buildx with structured parameters.
	BuildTypeBuildx BuildType = "buildx"
)

// Build declares one build, possibly expanded into many by its matrix.
type Build struct {
	Name    string    `yaml:"name"`
	Type    BuildType `yaml:"type,omitempty"`
	Command string    `yaml:"command,omitempty"`
	Buildx  *Buildx   `yaml:"buildx,omitempty"`
	Matrix  Matrix    `yaml:"matrix,omitempty"`

	// Artifact is the path the command produces.
	Artifact string `yaml:"artifact,omitempty"`

	// BinName is the file name the artifact gets inside the dist folder and
	// archive. When unset the artifact is staged under the archive name and
	// keeps its own base name inside the archive.
	BinName string `yaml:"bin_name,omitempty"`

	// ArchiveName is the archive file name; a known suffix (.zip, .tar.gz,
	// .tgz, .tar.zst, .tar.lz4) selects the format, otherwise .zip is appended.
	ArchiveName string `yaml:"archive_name,omitempty"`

	// NoArchive ships the artifact itself, renamed to ArchiveName.
	NoArchive bool `yaml:"no_archive,omitempty"`

	Env             []string `yaml:"env,omitempty"`
	Prehook         string   `yaml:"prehook,omitempty"`
	Posthook        string   `yaml:"posthook,omitempty"`
	AdditionalFiles []string `yaml:"additional_files,omitempty"`

	OS     string `yaml:"os,omitempty"`
	Arch   string `yaml:"arch,omitempty"`
	Arm    string `yaml:"arm,omitempty"`
	Target string `yaml:"target,omitempty"`
}

// Buildx holds docker buildx parameters. All strings are templates.
type Buildx struct {
	Context     string            `yaml:"context,omitempty"`
	Dockerfile  string            `yaml:"dockerfile,omitempty"`
	Tags        []string          `yaml:"tags,omitempty"`
	Platforms   []string          `yaml:"platforms,omitempty"`
	Builder     string            `yaml:"builder,omitempty"`
	Load        bool              `yaml:"load,omitempty"`
	BuildArgs   map[string]string `yaml:"build_args,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty"`
	CacheFrom   []string          `yaml:"cache_from,omitempty"`
	CacheTo     []string          `yaml:"cache_to,omitempty"`
	Target      string            `yaml:"target,omitempty"`
	Outputs     []string          `yaml:"outputs,omitempty"`
	Provenance  *bool             `yaml:"provenance,omitempty"`
	SBOM        *bool             `yaml:"sbom,omitempty"`
	Secrets     []string          `yaml:"secrets,omitempty"`
	SSH         []string          `yaml:"ssh,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty"`
}

// Targets lists where a release is published. Each non-nil variant is one target.
type Targets struct {
	GitHub *GitHubTarget `yaml:"github,omitempty"`
	GitLab *GitLabTarget `yaml:"gitlab,omitempty"`
	Docker *DockerTarget `yaml:"docker,omitempty"`
	Blob   *BlobTarget   `yaml:"blob,omitempty"`
	OCI    *OCITarget    `yaml:"oci,omitempty"`
}

// Any reports whether at least one target is configured.
func (t Targets) Any() bool {
	return t.GitHub != nil || t.GitLab != nil || t.Docker != nil || t.Blob != nil || t.OCI != nil
}

// GitHubTarget publishes a GitHub release.
type GitHubTarget struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	// URL is the API base, for GitHub Enterprise.
	URL string `yaml:"url,omitempty"`
}

// GitLabTarget publishes a GitLab release backed by generic packages.
type GitLabTarget struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	URL   string `yaml:"url,omitempty"`
}

// DockerTarget pushes container images.
type DockerTarget struct {
	Image      string   `yaml:"image,omitempty"`
	Images     []string `yaml:"images,omitempty"`
	Dockerfile string   `yaml:"dockerfile,omitempty"`
	Context    string   `yaml:"context,omitempty"`
	// Push defaults to true; false suppresses every push call.
	Push *bool `yaml:"push,omitempty"`
}

// ShouldPush reports whether images are pushed.
func (d *DockerTarget) ShouldPush() bool {
	return d.Push == nil || *d.Push
}

// BlobTarget uploads release files to an S3-compatible bucket.
type BlobTarget struct {
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`
}

// OCITarget pushes release files as a single OCI artifact.
type OCITarget struct {
	Repository string `yaml:"repository"`
	Tag        string `yaml:"tag,omitempty"`
	PlainHTTP  bool   `yaml:"plain_http,omitempty"`
}

// ChangelogFor returns the release's changelog configuration, falling back
// to the top-level one.
func (c *Config) ChangelogFor(r *Release) *Changelog {
	if r.Changelog != nil {
		return r.Changelog
	}
	if c.Changelog != nil {
		return c.Changelog
	}
	return &Changelog{Format: ChangelogFormatDefault}
}
