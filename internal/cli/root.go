// Package cli implements the livebridge operator commands.
package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/drblury/livebridge/internal/runtime/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Driver     string
	Verbose    bool
	Format     string // "json" | "text"

	// Getenv resolves environment overrides. Tests replace it.
	Getenv func(string) string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the livebridge CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Getenv: os.Getenv}

	cmd := &cobra.Command{
		Use:   "livebridge",
		Short: "livebridge - live market data over a flat boundary",
		Long:  "Operator tooling for livebridge sessions: tap a transport, resolve symbols and list schemas.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file (defaults to $"+config.EnvConfigFile+")")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "transport driver override")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewTapCommand(opts))
	cmd.AddCommand(NewSymbolsCommand(opts))
	cmd.AddCommand(NewSchemasCommand(opts))

	return cmd
}

// loadConfig resolves the configuration from --config, then the
// environment, then --driver.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	getenv := o.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	var (
		cfg *config.Config
		err error
	)
	if o.ConfigPath != "" {
		cfg, err = config.Load(o.ConfigPath)
	} else {
		cfg, err = config.FromEnv(getenv)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if o.Driver != "" {
		cfg.Driver = o.Driver
	}
	return cfg, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
