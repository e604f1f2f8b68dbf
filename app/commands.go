package app

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ktr0731/dynpb/config"
	"github.com/ktr0731/dynpb/cui"
	"github.com/ktr0731/dynpb/logger"
	"github.com/ktr0731/dynpb/meta"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type command struct {
	*cobra.Command

	flags *flags
	ui    cui.UI
}

// runFunc is a common entrypoint for Run func.
func runFunc(
	flags *flags,
	f func(*cobra.Command, *mergedConfig) error,
) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := flags.validate(); err != nil {
			return errors.Wrap(err, "invalid flag condition")
		}

		switch {
		case flags.meta.version:
			printVersion(cmd.OutOrStdout())
			return nil
		case flags.meta.help:
			printUsage(cmd)
			return nil
		}

		// Pass Flags instead of LocalFlags because the config is merged with common and local flags.
		cfg, err := mergeConfig(cmd.Flags(), flags)
		if err != nil {
			if err, ok := err.(*config.ValidationError); ok {
				printUsage(cmd)
				return err
			}
			return errors.Wrap(err, "failed to merge command line flags and config files")
		}
		if cfg.verbose {
			logger.SetOutput(cmd.ErrOrStderr())
		}

		// The entrypoint for the command.
		err = f(cmd, cfg)
		if err == nil {
			return nil
		}
		if _, ok := err.(*config.ValidationError); ok {
			printUsage(cmd)
		}
		return err
	}
}

func newCommand(flags *flags, ui cui.UI) *command {
	cmd := &cobra.Command{
		Use: meta.AppName,
		RunE: runFunc(flags, func(cmd *cobra.Command, _ *mergedConfig) error {
			if args := cmd.Flags().Args(); len(args) > 0 {
				return errors.Errorf("unknown command %q", args[0])
			}
			printUsage(cmd)
			return nil
		}),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	fs := cmd.PersistentFlags()
	bindFlags(fs, flags, ui.Writer())
	cmd.AddCommand(
		newListCommand(flags, ui),
		newDescribeCommand(flags, ui),
		newEncodeCommand(flags, ui),
		newDecodeCommand(flags, ui),
	)
	fs.Usage = usageFunc(ui.Writer(), fs, cmd.Commands()...)
	cmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		cmd.PersistentFlags().Usage()
	})
	cmd.SetOut(ui.Writer())
	return &command{cmd, flags, ui}
}

func bindFlags(f *pflag.FlagSet, flags *flags, w io.Writer) {
	initFlagSet(f, w)

	f.StringSliceVar(&flags.schema.path, "path", nil, "import paths for resolving proto imports")
	f.StringSliceVar(&flags.schema.proto, "proto", nil, "proto file names to compile")
	f.StringVar(
		&flags.schema.descriptorSet,
		"descriptor-set", "", "a serialized FileDescriptorSet file, as written by protoc --descriptor_set_out")
	f.BoolVar(&flags.schema.cache, "cache", false, "reuse compiled schemas across invocations")

	f.StringVar(&flags.format.indent, "indent", "  ", "indentation of JSON output")
	f.BoolVar(&flags.format.emitDefaults, "emit-defaults", false, "render zero values of absent fields in JSON output")
	f.BoolVar(&flags.format.enumsAsInts, "enums-as-ints", false, "render enum values as numbers in JSON output")
	f.BoolVar(&flags.format.origNames, "orig-names", false, "key JSON output by the declared field names")

	f.BoolVar(&flags.meta.noColor, "no-color", false, "disable colored output")
	f.BoolVar(&flags.meta.verbose, "verbose", false, "verbose output")
	f.BoolVarP(&flags.meta.version, "version", "v", false, "display version and exit")
	f.BoolVarP(&flags.meta.help, "help", "h", false, "display help text and exit")
}

func initFlagSet(f *pflag.FlagSet, w io.Writer) {
	f.SortFlags = false
	f.SetOutput(w)
	f.Usage = usageFunc(w, f)
}

// usageFunc is the generator for usage output.
func usageFunc(out io.Writer, f *pflag.FlagSet, cmds ...*cobra.Command) func() {
	return func() {
		printVersion(out)
		var commands string
		if len(cmds) > 0 {
			commands = "\nCommands:\n" + commandRows(cmds)
		}
		fmt.Fprintf(out, usageFormat, meta.AppName, commands, flagRows(f))
	}
}

// helpFunc is the generator for the help output of each sub-command.
func helpFunc(out io.Writer) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(out, helpFormat, meta.AppName, cmd.Use, strings.TrimSpace(cmd.Long), cmd.Example, flagRows(cmd.LocalFlags()))
	}
}

const usageFormat = `
Usage: %s [options ...] <command> [arguments ...]
%s
Options:
%s`

const helpFormat = `Usage: %s %s

%s

Examples:
%s

Options:
%s`

func flagRows(f *pflag.FlagSet) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 8, 8, ' ', tabwriter.TabIndent)
	f.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		cmd := "--" + f.Name
		if f.Shorthand != "" {
			cmd += ", -" + f.Shorthand
		}
		name, _ := pflag.UnquoteUsage(f)
		if name != "" {
			cmd += " " + name
		}
		usage := f.Usage
		if f.DefValue != "" {
			usage += fmt.Sprintf(` (default "%s")`, f.DefValue)
		}
		fmt.Fprintf(w, "        %s\t%s\n", cmd, usage)
	})
	w.Flush()
	return buf.String()
}

func commandRows(cmds []*cobra.Command) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 8, 8, ' ', tabwriter.TabIndent)
	for _, cmd := range cmds {
		if cmd.Hidden {
			continue
		}
		fmt.Fprintf(w, "        %s\t%s\n", cmd.Name(), cmd.Short)
	}
	w.Flush()
	return buf.String()
}
