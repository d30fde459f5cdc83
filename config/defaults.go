package config

const (
	// DefaultDistFolder holds build outputs, archives and the manifest.
	DefaultDistFolder = "dist"

	// DefaultChecksumAlgorithm is used when a release names none.
	DefaultChecksumAlgorithm = "sha256"

	// ChangelogFormatDefault renders the built-in grouped template.
	ChangelogFormatDefault = "default"

	// ChangelogFormatGitHub additionally resolves GitHub handles.
	ChangelogFormatGitHub = "github"

	// DefaultGitHubURL is the public GitHub API.
	DefaultGitHubURL = "https://api.github.com"

	// DefaultGitLabURL is gitlab.com.
	DefaultGitLabURL = "https://gitlab.com"

	// DefaultOCITag tags OCI artifacts with the release tag.
	DefaultOCITag = "{{ meta.tag }}"
)

// ApplyDefaults fills unset optional fields in place.
func (c *Config) ApplyDefaults() {
	if c.Changelog != nil {
		c.Changelog.applyDefaults()
	}
	for i := range c.Releases {
		c.Releases[i].applyDefaults()
	}
}

func (r *Release) applyDefaults() {
	if r.DistFolder == "" {
		r.DistFolder = DefaultDistFolder
	}
	if r.Checksum.Algorithm == "" {
		r.Checksum.Algorithm = DefaultChecksumAlgorithm
	}
	if r.Changelog != nil {
		r.Changelog.applyDefaults()
	}

	if gh := r.Targets.GitHub; gh != nil && gh.URL == "" {
		gh.URL = DefaultGitHubURL
	}
	if gl := r.Targets.GitLab; gl != nil && gl.URL == "" {
		gl.URL = DefaultGitLabURL
	}
	if d := r.Targets.Docker; d != nil {
		if d.Context == "" {
			d.Context = "."
		}
		if d.Dockerfile == "" {
			d.Dockerfile = "Dockerfile"
		}
	}
	if o := r.Targets.OCI; o != nil && o.Tag == "" {
		o.Tag = DefaultOCITag
	}

	for i := range r.Builds {
		b := &r.Builds[i]
		if b.Type == "" {
			b.Type = BuildTypeCustom
		}
		if b.ArchiveName == "" {
			b.ArchiveName = b.Name
		}
		if b.Buildx != nil {
			if b.Buildx.Context == "" {
				b.Buildx.Context = "."
			}
			if b.Buildx.Dockerfile == "" {
				b.Buildx.Dockerfile = "Dockerfile"
			}
		}
	}
}

func (c *Changelog) applyDefaults() {
	if c.Format == "" {
		c.Format = ChangelogFormatDefault
	}
}
