package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lmb/pkg/awsconf"
	"lmb/pkg/lambda"
	"lmb/pkg/s3"
	"lmb/pkg/telemetry"
	"lmb/services/deployer/internal/config"
	"lmb/services/deployer/internal/invoke"
	"lmb/services/deployer/internal/manifest"
	"lmb/services/deployer/internal/prompt"
)

const serviceName = "lmb"

// app holds what every command shares: flags, the loaded global settings and the
// logger. setup fills it before a command runs.
type app struct {
	dir        string
	configPath string
	logLevel   string
	logFormat  string

	store    config.Store
	global   config.Global
	logger   *zap.Logger
	shutdown func(context.Context) error

	prompter prompt.Prompter
	// handlers are in-process handlers tried before the runtime interpreter.
	handlers *invoke.Registry
}

func newApp() *app {
	return &app{logger: zap.NewNop(), handlers: invoke.NewRegistry()}
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := loadDotEnv(filepath.Join(a.dir, ".env")); err != nil {
		return err
	}

	path := a.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	a.store = config.Store{Path: path}
	global, err := a.store.Load()
	if err != nil {
		return err
	}
	a.global = global

	level := firstNonEmpty(a.logLevel, global.Log.Level)
	format := firstNonEmpty(a.logFormat, global.Log.Format)
	logger, err := telemetry.NewLogger(serviceName, level, format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.logger = logger

	shutdown, err := telemetry.InitTracing(cmd.Context(), serviceName, global.OTelEndpoint)
	if err != nil {
		return err
	}
	a.shutdown = shutdown

	if a.prompter == nil {
		a.prompter = prompt.NewSurvey(os.Stdin, os.Stdout, cmd.ErrOrStderr())
	}
	return nil
}

func (a *app) close() {
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		cancel()
	}
	_ = a.logger.Sync()
}

func (a *app) manager() *manifest.Manager {
	return manifest.NewManager(manifest.Layout{Root: a.dir}, a.global.FunctionDefaults())
}

// configured loads and verifies the project manifest.
func (a *app) configured() (*manifest.Manager, manifest.Descriptor, error) {
	m := a.manager()
	d, err := m.Load()
	if err != nil {
		return nil, manifest.Descriptor{}, err
	}
	resolved, err := m.Verify(d)
	if err != nil {
		return nil, manifest.Descriptor{}, err
	}
	return m, resolved, nil
}

type awsClients struct {
	storage   *s3.Client
	functions *lambda.Client
}

func (a *app) aws(ctx context.Context, region string) (awsClients, error) {
	cfg, err := awsconf.Load(ctx, awsconf.OptionsFromEnv(region))
	if err != nil {
		return awsClients{}, fmt.Errorf("aws config: %w", err)
	}
	return awsClients{
		storage:   s3.New(cfg, a.global.S3Endpoint),
		functions: lambda.New(cfg, a.global.LambdaEndpoint),
	}, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
