package app

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/ktr0731/dynpb/cui"
	"github.com/ktr0731/dynpb/dynamic"
	pjson "github.com/ktr0731/dynpb/present/json"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// readInput reads the payload from the file, or from stdin when no file
// is passed.
func readInput(cmd *cobra.Command, fname string) ([]byte, error) {
	if fname == "" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, errors.Wrap(err, "failed to read the input from stdin")
		}
		return b, nil
	}
	b, err := os.ReadFile(fname)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read the input file %s", fname)
	}
	return b, nil
}

func newEncodeCommand(flags *flags, ui cui.UI) *cobra.Command {
	var (
		file         string
		allowUnknown bool
	)
	cmd := &cobra.Command{
		Use:     "encode [options ...] <message type name>",
		Aliases: []string{"enc"},
		Short:   "encode a JSON message into the binary wire format",
		Long: `encode reads a JSON message from the input, interprets it as the named
message type and writes the binary wire-format encoding to stdout.`,
		Example: strings.Join([]string{
			`        $ echo '{"id": 1}' | dynpb --proto api.proto encode library.Book # encode stdin`,
			"        $ dynpb --proto api.proto encode -f book.json library.Book       # encode an input file",
		}, "\n"),
		RunE: runFunc(flags, func(cmd *cobra.Command, cfg *mergedConfig) error {
			args := cmd.Flags().Args()
			if len(args) == 0 {
				return errors.New("message type name is required")
			}
			files, err := loadFiles(cfg)
			if err != nil {
				return err
			}
			md, err := files.Message(args[0])
			if err != nil {
				return err
			}
			in, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			m := dynamic.New(md)
			u := &dynamic.JSONUnmarshaler{AllowUnknownFields: allowUnknown, Resolver: files}
			if err := u.Unmarshal(in, m); err != nil {
				return errors.Wrapf(err, "failed to interpret the input as %s", args[0])
			}
			b, err := m.Marshal()
			if err != nil {
				return errors.Wrap(err, "failed to encode the message into the wire format")
			}
			if _, err := ui.Writer().Write(b); err != nil {
				return errors.Wrap(err, "failed to write the encoded message")
			}
			return nil
		}),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	f := cmd.Flags()
	initFlagSet(f, ui.Writer())
	f.StringVarP(&file, "file", "f", "", "a JSON file to encode instead of stdin")
	f.BoolVar(&allowUnknown, "allow-unknown", false, "ignore JSON keys the message type does not declare")

	cmd.SetHelpFunc(helpFunc(ui.Writer()))
	return cmd
}

func newDecodeCommand(flags *flags, ui cui.UI) *cobra.Command {
	var (
		file           string
		discardUnknown bool
	)
	cmd := &cobra.Command{
		Use:     "decode [options ...] <message type name>",
		Aliases: []string{"dec"},
		Short:   "decode a binary wire-format message into JSON",
		Long: `decode reads a binary wire-format message from the input, interprets it
as the named message type and writes the canonical JSON form to stdout.`,
		Example: strings.Join([]string{
			"        $ dynpb --proto api.proto decode -f book.bin library.Book    # decode an input file",
			"        $ cat book.bin | dynpb --proto api.proto decode library.Book # decode stdin",
		}, "\n"),
		RunE: runFunc(flags, func(cmd *cobra.Command, cfg *mergedConfig) error {
			if cfg.colored {
				ui = cui.NewColored(ui)
			}
			args := cmd.Flags().Args()
			if len(args) == 0 {
				return errors.New("message type name is required")
			}
			files, err := loadFiles(cfg)
			if err != nil {
				return err
			}
			md, err := files.Message(args[0])
			if err != nil {
				return err
			}
			in, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			m := dynamic.New(md)
			opts := dynamic.UnmarshalOptions{DiscardUnknown: discardUnknown}
			if err := opts.Unmarshal(in, m); err != nil {
				return errors.Wrapf(err, "failed to decode the input as %s", args[0])
			}
			jm := &dynamic.JSONMarshaler{
				OrigName:     cfg.Format.OrigNames,
				EnumsAsInts:  cfg.Format.EnumsAsInts,
				EmitDefaults: cfg.Format.EmitDefaults,
				Resolver:     files,
			}
			b, err := jm.Marshal(m)
			if err != nil {
				return errors.Wrap(err, "failed to render the message as JSON")
			}
			s, err := pjson.NewPresenter(cfg.Format.Indent).Format(json.RawMessage(b))
			if err != nil {
				return errors.Wrap(err, "failed to format the JSON output")
			}
			ui.Output(s)
			return nil
		}),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	f := cmd.Flags()
	initFlagSet(f, ui.Writer())
	f.StringVarP(&file, "file", "f", "", "a wire-format file to decode instead of stdin")
	f.BoolVar(&discardUnknown, "discard-unknown", false, "drop fields the message type does not declare")

	cmd.SetHelpFunc(helpFunc(ui.Writer()))
	return cmd
}
