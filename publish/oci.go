package publish

import (
	"context"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/iamd3vil/rlsr/config"
	"github.com/iamd3vil/rlsr/fs"
	"github.com/iamd3vil/rlsr/oci"
)

// OCIPusher pushes files as one artifact. *oci.Client implements it.
type OCIPusher interface {
	PushFiles(ctx context.Context, fsys fs.Filesystem, reference string, files []string,
		opts ...oci.PushOption) (string, error)
}

// OCIPusherFactory builds an OCIPusher for a target.
type OCIPusherFactory func(t *config.OCITarget, d *Dispatcher) (OCIPusher, error)

func newOCIPusher(t *config.OCITarget, d *Dispatcher) (OCIPusher, error) {
	return oci.New(oci.WithPlainHTTP(t.PlainHTTP), oci.WithLogger(d.logger))
}

type ociPublisher struct {
	d      *Dispatcher
	target *config.OCITarget
}

func (p *ociPublisher) Name() string { return "oci" }

// Publish pushes the assets and manifest to <repository>:<tag>.
func (p *ociPublisher) Publish(ctx context.Context, in *Input) error {
	repo, err := p.d.render(in, p.target.Repository)
	if err != nil {
		return err
	}
	tag, err := p.d.render(in, p.target.Tag)
	if err != nil {
		return err
	}

	var files []string
	for _, u := range uploads(in.Output, false) {
		files = append(files, u.Path)
	}

	pusher, err := p.d.ociPusher(p.target, p.d)
	if err != nil {
		return err
	}

	meta := in.Run.Meta()
	annotations := map[string]string{
		ocispec.AnnotationVersion: meta.Tag,
		ocispec.AnnotationCreated: in.Run.Now().Format(time.RFC3339),
	}
	if meta.Commit != "" {
		annotations[ocispec.AnnotationRevision] = meta.Commit
	}
	if meta.ProjectName != "" {
		annotations[ocispec.AnnotationTitle] = meta.ProjectName
	}

	ref := oci.Reference(repo, tag)
	digest, err := pusher.PushFiles(ctx, p.d.fs, ref, files, oci.WithAnnotations(annotations))
	if err != nil {
		return err
	}
	p.d.logger.Info("oci artifact pushed", "reference", ref, "digest", digest)
	return nil
}
