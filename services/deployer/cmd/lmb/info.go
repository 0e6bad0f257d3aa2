package main

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"lmb/services/deployer/internal/config"
	"lmb/services/deployer/internal/manifest"
)

type infoPackage struct {
	Name        string           `yaml:"name,omitempty"`
	Version     string           `yaml:"version,omitempty"`
	Description string           `yaml:"description,omitempty"`
	Lambda      *config.Settings `yaml:"lambda,omitempty"`
	Resolved    *config.Settings `yaml:"resolved,omitempty"`
	Problem     string           `yaml:"problem,omitempty"`
}

type infoView struct {
	ConfigFile string          `yaml:"config_file"`
	Global     config.Global   `yaml:"global"`
	Defaults   config.Settings `yaml:"defaults"`
	Project    string          `yaml:"project"`
	Package    *infoPackage    `yaml:"package,omitempty"`
}

func newInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the global settings and the project's function configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := a.manager()
			view := infoView{
				ConfigFile: a.store.Path,
				Global:     a.global,
				Defaults:   a.global.FunctionDefaults(),
				Project:    m.Layout().Root,
			}

			d, err := m.Load()
			switch {
			case errors.Is(err, manifest.ErrNotInitialized):
			case err != nil:
				return err
			default:
				pkg := &infoPackage{
					Name:        d.Name,
					Version:     d.Version,
					Description: d.Description,
					Lambda:      d.Lambda,
				}
				if resolved, err := m.Verify(d); err != nil {
					pkg.Problem = err.Error()
				} else {
					pkg.Resolved = resolved.Lambda
				}
				view.Package = pkg
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(view); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the lmb version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "lmb %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}
