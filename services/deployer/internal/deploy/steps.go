package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"lmb/pkg/lambda"
	"lmb/services/deployer/internal/manifest"
)

func (o *Orchestrator) load(_ context.Context, r *run) error {
	d, err := o.cfg.Manifest.Load()
	if err != nil {
		return err
	}
	r.desc = d
	return nil
}

func (o *Orchestrator) verify(_ context.Context, r *run) error {
	d, err := o.cfg.Manifest.Verify(r.desc)
	if err != nil {
		return err
	}
	if r.req.Env != "" {
		d.Lambda.Env = r.req.Env
	}
	r.desc = d
	r.result.Name = d.Name
	r.result.Env = d.Lambda.Env
	return nil
}

// patchVersion bumps before the remote state is known, so a failed deploy still
// consumes a version number.
func (o *Orchestrator) patchVersion(_ context.Context, r *run) error {
	d, err := manifest.Patch(r.desc, r.req.Bump)
	if err != nil {
		return err
	}
	r.desc = d
	r.result.Version = d.Version
	return nil
}

func (o *Orchestrator) persist(_ context.Context, r *run) error {
	return o.cfg.Manifest.Save(r.desc)
}

// clean removes the artifact from storage and from the working directory.
// A missing remote object counts as removed.
func (o *Orchestrator) clean(ctx context.Context, r *run) error {
	if err := o.cfg.Storage.DeleteObject(ctx, r.desc.Lambda.Bucket, o.cfg.ArtifactKey); err != nil {
		return fmt.Errorf("%w: remote %s/%s: %w", ErrClean, r.desc.Lambda.Bucket, o.cfg.ArtifactKey, err)
	}
	if err := o.cfg.Manifest.CleanLocal(); err != nil {
		return fmt.Errorf("%w: %w", ErrClean, err)
	}
	return nil
}

func (o *Orchestrator) build(ctx context.Context, r *run) error {
	art, err := o.cfg.Manifest.Archive(ctx)
	if err != nil {
		return err
	}
	r.artifact = art
	o.cfg.Logger.Debug("artifact built",
		zap.String("path", art.Path),
		zap.Int64("size", art.Size),
		zap.String("sha256", art.SHA256),
	)
	return nil
}

func (o *Orchestrator) upload(ctx context.Context, r *run) error {
	if r.artifact.Path == "" {
		return fmt.Errorf("%w: no artifact was built", ErrUpload)
	}
	f, err := os.Open(r.artifact.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpload, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if err := o.cfg.Storage.PutObject(ctx, r.desc.Lambda.Bucket, o.cfg.ArtifactKey, f, info.Size(), r.artifact.SHA256, o.cfg.ArtifactACL); err != nil {
		return fmt.Errorf("%w: %w", ErrUpload, err)
	}
	return nil
}

// probe refreshes RemoteExists; a missing function is not an error.
func (o *Orchestrator) probe(ctx context.Context, r *run) error {
	_, err := o.cfg.Functions.GetFunction(ctx, r.desc.Name)
	switch {
	case err == nil:
		r.desc.RemoteExists = true
	case errors.Is(err, lambda.ErrNotFound):
		r.desc.RemoteExists = false
	default:
		return fmt.Errorf("%w: %w", ErrRemoteProbe, err)
	}
	return nil
}

// reconcile creates the function or updates its configuration and then its code.
// The code update is skipped when the configuration update fails; a failure of the
// code update leaves the new configuration in place.
func (o *Orchestrator) reconcile(ctx context.Context, r *run) error {
	spec := functionSpec(r.desc, o.cfg.ArtifactKey)

	if !r.desc.RemoteExists {
		o.cfg.Logger.Info("creating lambda function", zap.String("function", spec.Name))
		fn, err := o.cfg.Functions.CreateFunction(ctx, spec)
		if err != nil {
			return fmt.Errorf("%w: create: %w", ErrRemoteReconcile, err)
		}
		r.result.Created = true
		if fn != nil {
			r.result.PublishedVersion = fn.Version
		}
		return nil
	}

	if err := o.cfg.Functions.UpdateFunctionConfiguration(ctx, spec); err != nil {
		return fmt.Errorf("%w: update configuration: %w", ErrRemoteReconcile, err)
	}
	fn, err := o.cfg.Functions.UpdateFunctionCode(ctx, spec)
	if err != nil {
		return fmt.Errorf("%w: update code: %w", ErrRemoteReconcile, err)
	}
	if fn != nil {
		r.result.PublishedVersion = fn.Version
	}
	return nil
}

func functionSpec(d manifest.Descriptor, key string) lambda.FunctionSpec {
	return lambda.FunctionSpec{
		Name:        d.Name,
		Description: d.Description,
		Runtime:     d.Lambda.Runtime,
		Role:        d.Lambda.Role,
		Handler:     d.Lambda.Handler,
		Timeout:     d.Lambda.Timeout,
		MemoryMB:    d.Lambda.Memory,
		Bucket:      d.Lambda.Bucket,
		Key:         key,
		Publish:     true,
	}
}
