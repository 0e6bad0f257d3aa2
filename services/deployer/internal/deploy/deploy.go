package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"lmb/pkg/lambda"
	"lmb/pkg/telemetry"
	"lmb/services/deployer/internal/config"
	"lmb/services/deployer/internal/manifest"
)

var (
	ErrUpload          = errors.New("upload artifact")
	ErrRemoteProbe     = errors.New("probe remote function")
	ErrRemoteReconcile = errors.New("reconcile remote function")
	ErrClean           = errors.New("clean artifacts")
)

// Step names, in pipeline order.
const (
	StepLoad      = "load"
	StepVerify    = "verify"
	StepPatch     = "patch-version"
	StepPersist   = "persist"
	StepPreclean  = "preclean"
	StepBuild     = "build-artifact"
	StepUpload    = "upload-artifact"
	StepProbe     = "probe-existence"
	StepReconcile = "reconcile"
	StepPostclean = "postclean"
)

const deploysFinishedSubject = "lmb.deploys.finished"

// StepError names the pipeline step that aborted a deploy.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Manifest is the package descriptor capability the pipeline needs.
type Manifest interface {
	Load() (manifest.Descriptor, error)
	Verify(manifest.Descriptor) (manifest.Descriptor, error)
	Save(manifest.Descriptor) error
	Archive(ctx context.Context) (manifest.Artifact, error)
	CleanLocal() error
}

// Storage is the object storage the artifact travels through.
type Storage interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, sha256, acl string) error
	DeleteObject(ctx context.Context, bucket, key string) error
}

// Functions is the remote function-hosting capability.
type Functions interface {
	GetFunction(ctx context.Context, name string) (*lambda.Function, error)
	CreateFunction(ctx context.Context, spec lambda.FunctionSpec) (*lambda.Function, error)
	UpdateFunctionConfiguration(ctx context.Context, spec lambda.FunctionSpec) error
	UpdateFunctionCode(ctx context.Context, spec lambda.FunctionSpec) (*lambda.Function, error)
}

// Publisher announces finished deploys.
type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// Recorder receives pipeline metrics.
type Recorder interface {
	ObserveStep(step, outcome string, d time.Duration)
	CountDeploy(outcome string)
}

// Config wires the orchestrator. Manifest, Storage and Functions are required.
type Config struct {
	Manifest    Manifest
	Storage     Storage
	Functions   Functions
	ArtifactKey string
	ArtifactACL string

	Logger    *zap.Logger
	Tracer    trace.Tracer
	Metrics   Recorder
	Publisher Publisher
	Now       func() time.Time
}

// Orchestrator runs the deploy pipeline.
type Orchestrator struct {
	cfg Config
}

// New validates cfg and fills optional collaborators.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Manifest == nil {
		return nil, errors.New("manifest is required")
	}
	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}
	if cfg.Functions == nil {
		return nil, errors.New("functions client is required")
	}
	if strings.TrimSpace(cfg.ArtifactKey) == "" {
		cfg.ArtifactKey = config.DefaultArtifactKey
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.Tracer("lmb/deploy")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{cfg: cfg}, nil
}

// Request selects the version bump and, optionally, the target environment.
type Request struct {
	Bump manifest.BumpKind
	Env  config.Environment
}

// Result summarizes a successful deploy.
type Result struct {
	RunID            uuid.UUID
	Name             string
	Version          string
	Env              config.Environment
	Created          bool
	PublishedVersion string
}

// Event is published on lmb.deploys.finished after every run.
type Event struct {
	RunID            uuid.UUID `json:"run_id"`
	Function         string    `json:"function,omitempty"`
	Version          string    `json:"version,omitempty"`
	Env              string    `json:"env,omitempty"`
	Created          bool      `json:"created"`
	PublishedVersion string    `json:"published_version,omitempty"`
	Outcome          string    `json:"outcome"`
	FailedStep       string    `json:"failed_step,omitempty"`
	Error            string    `json:"error,omitempty"`
	FinishedAt       time.Time `json:"finished_at"`
}

// run is the state carried from one step to the next.
type run struct {
	id       uuid.UUID
	req      Request
	desc     manifest.Descriptor
	artifact manifest.Artifact
	result   Result
}

type step struct {
	name    string
	message string
	fn      func(context.Context, *run) error
}

func (o *Orchestrator) steps() []step {
	return []step{
		{StepLoad, "loading package configuration", o.load},
		{StepVerify, "verifying package configuration", o.verify},
		{StepPatch, "patching version", o.patchVersion},
		{StepPersist, "saving package configuration", o.persist},
		{StepPreclean, "cleaning old files", o.clean},
		{StepBuild, "archiving lambda function", o.build},
		{StepUpload, "uploading zip archive to s3", o.upload},
		{StepProbe, "verifying remote lambda function", o.probe},
		{StepReconcile, "updating lambda code from s3 archive", o.reconcile},
		{StepPostclean, "cleaning old files", o.clean},
	}
}

// Run executes every step in order and stops at the first failure. Completed steps
// are not rolled back: a persisted version bump survives a later failure.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if o == nil {
		return nil, errors.New("nil orchestrator")
	}
	if req.Env != "" && !req.Env.Valid() {
		return nil, fmt.Errorf("unknown environment %q", req.Env)
	}
	if req.Bump == "" {
		req.Bump = manifest.BumpPatch
	}

	r := &run{id: uuid.New(), req: req}
	r.result.RunID = r.id
	logger := o.cfg.Logger.With(zap.String("run_id", r.id.String()))

	ctx, span := o.cfg.Tracer.Start(ctx, "deploy", trace.WithAttributes(
		attribute.String("lmb.run_id", r.id.String()),
		attribute.String("lmb.bump", string(req.Bump)),
	))
	defer span.End()

	for _, s := range o.steps() {
		if err := ctx.Err(); err != nil {
			return nil, o.fail(ctx, logger, span, r, s.name, err)
		}
		logger.Info(s.message, zap.String("step", s.name))

		stepCtx, stepSpan := o.cfg.Tracer.Start(ctx, "deploy."+s.name)
		started := o.cfg.Now()
		err := s.fn(stepCtx, r)
		elapsed := o.cfg.Now().Sub(started)
		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
			stepSpan.End()
			o.observe(s.name, "failure", elapsed)
			return nil, o.fail(ctx, logger, span, r, s.name, err)
		}
		stepSpan.End()
		o.observe(s.name, "success", elapsed)
	}

	span.SetAttributes(
		attribute.String("lmb.function", r.result.Name),
		attribute.String("lmb.version", r.result.Version),
		attribute.Bool("lmb.created", r.result.Created),
	)
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.CountDeploy("success")
	}
	logger.Info("deploy finished",
		zap.String("function", r.result.Name),
		zap.String("version", r.result.Version),
		zap.String("published_version", r.result.PublishedVersion),
		zap.Bool("created", r.result.Created),
	)
	o.publish(ctx, logger, r, "success", "", nil)

	result := r.result
	return &result, nil
}

func (o *Orchestrator) fail(ctx context.Context, logger *zap.Logger, span trace.Span, r *run, stepName string, err error) error {
	stepErr := &StepError{Step: stepName, Err: err}
	logger.Error("deploy step failed", zap.String("step", stepName), zap.Error(err))
	span.RecordError(stepErr)
	span.SetStatus(codes.Error, stepErr.Error())
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.CountDeploy("failure")
	}
	o.publish(ctx, logger, r, "failure", stepName, err)
	return stepErr
}

func (o *Orchestrator) observe(stepName, outcome string, d time.Duration) {
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ObserveStep(stepName, outcome, d)
	}
}

// publish never changes the outcome of a run; delivery problems are only logged.
func (o *Orchestrator) publish(ctx context.Context, logger *zap.Logger, r *run, outcome, failedStep string, cause error) {
	if o.cfg.Publisher == nil {
		return
	}
	evt := Event{
		RunID:            r.id,
		Function:         r.desc.Name,
		Version:          r.desc.Version,
		Created:          r.result.Created,
		PublishedVersion: r.result.PublishedVersion,
		Outcome:          outcome,
		FailedStep:       failedStep,
		FinishedAt:       o.cfg.Now().UTC(),
	}
	if r.desc.Lambda != nil {
		evt.Env = string(r.desc.Lambda.Env)
	}
	if cause != nil {
		evt.Error = cause.Error()
	}
	if err := o.cfg.Publisher.Publish(context.WithoutCancel(ctx), deploysFinishedSubject, evt); err != nil {
		logger.Warn("publish deploy event failed", zap.Error(err))
	}
}
