package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lmb/pkg/bus"
	"lmb/pkg/metrics"
	"lmb/pkg/telemetry"
	"lmb/services/deployer/internal/alias"
	"lmb/services/deployer/internal/config"
	"lmb/services/deployer/internal/deploy"
	"lmb/services/deployer/internal/manifest"
)

const metricsJob = "lmb_deploy"

func newDeployCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy [major|minor|patch] [dev|stage|prod]",
		Short: "Create or update the function code and configuration",
		Args:  cobra.MaximumNArgs(2),
		Example: `  lmb deploy
  lmb deploy patch
  lmb deploy minor stage
  lmb deploy major prod`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var bumpArg string
			if len(args) > 0 {
				bumpArg = args[0]
			}
			bump, err := manifest.ParseBumpKind(bumpArg)
			if err != nil {
				return err
			}
			var env config.Environment
			if len(args) > 1 {
				if env, err = config.ParseEnvironment(args[1]); err != nil {
					return err
				}
			}

			m, d, err := a.configured()
			if err != nil {
				return err
			}
			clients, err := a.aws(ctx, d.Lambda.Region)
			if err != nil {
				return err
			}

			recorder := metrics.NewRecorder()
			cfg := deploy.Config{
				Manifest:    m,
				Storage:     clients.storage,
				Functions:   clients.functions,
				ArtifactKey: a.global.ArtifactKey,
				ArtifactACL: a.global.ArtifactACL,
				Logger:      a.logger,
				Tracer:      telemetry.Tracer("lmb/deploy"),
				Metrics:     recorder,
			}
			if a.global.NATSURL != "" {
				b, err := bus.New(a.global.NATSURL)
				if err != nil {
					a.logger.Warn("event bus unavailable, deploy events will not be published", zap.Error(err))
				} else {
					defer b.Close()
					cfg.Publisher = b
				}
			}

			orchestrator, err := deploy.New(cfg)
			if err != nil {
				return err
			}
			res, runErr := orchestrator.Run(ctx, deploy.Request{Bump: bump, Env: env})
			a.pushMetrics(ctx, recorder, d.Name)
			if runErr != nil {
				return runErr
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s@%s deployed to %s (version %s)\n", res.Name, res.Version, res.Env, res.PublishedVersion)

			if env == "" || res.PublishedVersion == "" {
				return nil
			}
			svc, err := alias.NewService(clients.functions, a.logger)
			if err != nil {
				return err
			}
			rec, err := svc.Tag(ctx, alias.Record{
				FunctionName:  res.Name,
				AliasName:     string(env),
				TargetVersion: res.PublishedVersion,
				Description:   res.Version,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, rec.String())
			return nil
		},
	}
}

func (a *app) pushMetrics(ctx context.Context, recorder *metrics.Recorder, function string) {
	if a.global.PushgatewayURL == "" {
		return
	}
	if err := recorder.Push(context.WithoutCancel(ctx), a.global.PushgatewayURL, metricsJob, function); err != nil {
		a.logger.Warn("push deploy metrics failed", zap.Error(err))
	}
}
