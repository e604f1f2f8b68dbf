// Package app provides the entrypoint for dynpb.
package app

import (
	"fmt"
	"io"

	"github.com/ktr0731/dynpb/config"
	"github.com/ktr0731/dynpb/cui"
	"github.com/ktr0731/dynpb/meta"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// App is the root component for running the application.
type App struct {
	cui cui.UI
	cmd *command
}

// New instantiates a new App instance. ui must not be a nil.
func New(ui cui.UI) *App {
	var flags flags
	cmd := newCommand(&flags, ui)
	return &App{
		cui: ui,
		cmd: cmd,
	}
}

// Run starts the application. The return value means the exit code.
func (a *App) Run(args []string) int {
	a.cmd.SetArgs(args)
	if err := a.cmd.Execute(); err != nil {
		a.cui.Error(fmt.Sprintf("dynpb: %s", err))
		return 1
	}
	return 0
}

// printUsage shows the command usage text. Do not call it before flags are bound.
func printUsage(cmd interface{ Help() error }) {
	_ = cmd.Help() // Help never return errors.
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", meta.AppName, meta.Version.String())
}

// mergedConfig represents the conclusive config. Common config items are stored to *config.Config.
// Flags that can be specified by command line only are represented as fields.
type mergedConfig struct {
	*config.Config

	// Colored output of command results.
	colored bool
	// Verbose output.
	verbose bool
}

func mergeConfig(fs *pflag.FlagSet, flags *flags) (*mergedConfig, error) {
	cfg, err := config.Get(fs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &mergedConfig{
		Config:  cfg,
		colored: cfg.Meta.ColoredOutput && !flags.meta.noColor,
		verbose: flags.meta.verbose,
	}, nil
}
