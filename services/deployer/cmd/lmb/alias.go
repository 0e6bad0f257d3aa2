package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"lmb/services/deployer/internal/alias"
)

func newAliasCommand(a *app) *cobra.Command {
	var (
		target   string
		aliases  bool
		versions bool
		remove   bool
	)

	cmd := &cobra.Command{
		Use:   "alias [name] [description]",
		Short: "Point an alias at a function version, or list and remove aliases",
		Args:  cobra.MaximumNArgs(2),
		Example: `  lmb alias --aliases
  lmb alias --versions
  lmb alias stage "release candidate" --target 4
  lmb alias stage --remove`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if aliases && versions {
				return errors.New("--aliases and --versions cannot be combined")
			}
			ctx := cmd.Context()
			_, d, err := a.configured()
			if err != nil {
				return err
			}
			clients, err := a.aws(ctx, d.Lambda.Region)
			if err != nil {
				return err
			}
			svc, err := alias.NewService(clients.functions, a.logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case aliases:
				for rec, err := range svc.List(ctx, d.Name) {
					if err != nil {
						return err
					}
					fmt.Fprintln(out, rec.String())
				}
				return nil
			case versions:
				for v, err := range svc.Versions(ctx, d.Name) {
					if err != nil {
						return err
					}
					fmt.Fprintln(out, v)
				}
				return nil
			}

			rec := alias.Record{FunctionName: d.Name, TargetVersion: target}
			if len(args) > 0 {
				rec.AliasName = args[0]
			}
			if len(args) > 1 {
				rec.Description = args[1]
			}

			if remove {
				return svc.Remove(ctx, rec)
			}
			tagged, err := svc.Tag(ctx, rec)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, tagged.String())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&target, "target", "", "Version the alias points to (default $LATEST)")
	flags.BoolVar(&aliases, "aliases", false, "List the function's aliases")
	flags.BoolVar(&versions, "versions", false, "List the function's versions")
	flags.BoolVar(&remove, "remove", false, "Delete the alias")
	return cmd
}
