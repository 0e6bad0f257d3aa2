package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lmb/services/deployer/internal/config"
	"lmb/services/deployer/internal/prompt"
)

const initialVersion = "0.0.1"

func newConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Set the global defaults for function settings",
		Args:  cobra.NoArgs,
		Example: `  lmb config
  lmb config --config ./team.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := a.prompter.AskSettings(a.global.FunctionDefaults())
			if err != nil {
				return err
			}
			a.global.Settings = settings
			if err := a.store.Save(a.global); err != nil {
				return err
			}
			a.logger.Info("global settings saved", zap.String("path", a.store.Path))
			return nil
		},
	}
}

func newInitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the function configuration of the project",
		Args:  cobra.NoArgs,
		Example: `  lmb init
  lmb init --dir ./functions/greeter`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := a.manager()
			d, err := m.Read()
			if err != nil {
				return err
			}

			if d.Name == "" || d.Version == "" {
				abs, err := filepath.Abs(a.dir)
				if err != nil {
					return err
				}
				id, err := a.prompter.AskIdentity(prompt.Identity{
					Name:        firstNonEmpty(d.Name, filepath.Base(abs)),
					Version:     firstNonEmpty(d.Version, initialVersion),
					Description: d.Description,
				})
				if err != nil {
					return err
				}
				d.Name, d.Version, d.Description = id.Name, id.Version, id.Description
			}

			defaults := a.global.FunctionDefaults()
			if d.Lambda != nil {
				defaults = config.Merge(*d.Lambda, defaults)
			}
			settings, err := a.prompter.AskSettings(defaults)
			if err != nil {
				return err
			}
			d.Lambda = &settings

			if err := m.Save(d); err != nil {
				return err
			}
			if err := m.EnsureLayout(); err != nil {
				return err
			}
			written, err := m.Scaffold(settings.Runtime, settings.Handler, d.Name)
			if err != nil {
				return err
			}
			if written != "" {
				a.logger.Info("handler scaffolded", zap.String("path", written))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s@%s configured for %s\n", d.Name, d.Version, settings.Env)
			return nil
		},
	}
}
