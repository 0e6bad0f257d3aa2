package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lmb/services/deployer/internal/invoke"
)

func payloadArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func newInvokeCommand(a *app) *cobra.Command {
	var qualifier string

	cmd := &cobra.Command{
		Use:   "invoke [payload]",
		Short: "Invoke the deployed function and print its log and result",
		Args:  cobra.MaximumNArgs(1),
		Example: `  lmb invoke
  lmb invoke '{"name":"world"}'
  lmb invoke tests/event.json --qualifier prod`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, d, err := a.configured()
			if err != nil {
				return err
			}
			payload, err := invoke.NormalizePayload(payloadArg(args), nil)
			if err != nil {
				return err
			}
			clients, err := a.aws(ctx, d.Lambda.Region)
			if err != nil {
				return err
			}
			remote, err := invoke.NewRemote(clients.functions, firstNonEmpty(qualifier, a.global.Qualifier))
			if err != nil {
				return err
			}
			remote.SetFunctionTimeout(time.Duration(d.Lambda.Timeout) * time.Second)

			raw, err := remote.Invoke(ctx, d.Name, payload)
			if err != nil {
				return err
			}
			res, err := invoke.ParseResult(raw)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, line := range res.Log {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, string(res.Payload))
			if res.Failed() {
				a.logger.Warn("function returned an error",
					zap.String("function", d.Name),
					zap.String("qualifier", remote.Qualifier()),
					zap.String("function_error", res.FunctionError),
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&qualifier, "qualifier", "", "Alias or version to invoke (default from settings, then stage)")
	return cmd
}

func newTestCommand(a *app) *cobra.Command {
	var docker bool

	cmd := &cobra.Command{
		Use:   "test [payload]",
		Short: "Run the handler locally and print its result",
		Args:  cobra.MaximumNArgs(1),
		Example: `  lmb test
  lmb test '{"name":"world"}'
  lmb test tests/event.json --docker`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, d, err := a.configured()
			if err != nil {
				return err
			}
			payload, err := invoke.NormalizePayload(payloadArg(args), nil)
			if err != nil {
				return err
			}
			s := d.Lambda
			out := cmd.OutOrStdout()

			if docker {
				runner, err := invoke.NewDockerRunner(a.global.DockerImage)
				if err != nil {
					return err
				}
				defer runner.Close()

				a.logger.Info("running handler in container",
					zap.String("image", runner.ImageRef(s.Runtime)),
					zap.String("handler", s.Handler),
				)
				res, err := runner.Run(ctx, s.Runtime, s.Handler, m.Layout().Source(), payload)
				for _, line := range res.Log {
					fmt.Fprintln(out, line)
				}
				if len(res.Payload) > 0 {
					fmt.Fprintln(out, string(res.Payload))
				}
				return err
			}

			resolver := invoke.Chain{
				a.handlers,
				&invoke.ProcessResolver{
					SourceDir: m.Layout().Source(),
					Runtime:   s.Runtime,
					Stderr:    cmd.ErrOrStderr(),
				},
			}
			result, err := invoke.NewLocal(resolver).Run(ctx, s.Handler, payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(result))
			return nil
		},
	}

	cmd.Flags().BoolVar(&docker, "docker", false, "Run the handler inside the runtime's container image")
	return cmd
}
