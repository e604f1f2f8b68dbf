package app

import (
	"strconv"
	"strings"

	"github.com/ktr0731/dynpb/cui"
	"github.com/ktr0731/dynpb/present"
	pjson "github.com/ktr0731/dynpb/present/json"
	"github.com/ktr0731/dynpb/present/name"
	"github.com/ktr0731/dynpb/present/table"
	"github.com/ktr0731/dynpb/schema"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type listedType struct {
	Name string `json:"name" table:"name"`
}

type typeList struct {
	Types []listedType `json:"types"`
}

func newListCommand(flags *flags, ui cui.UI) *cobra.Command {
	var (
		enums bool
		out   string
	)
	cmd := &cobra.Command{
		Use:     "ls [options ...]",
		Aliases: []string{"list"},
		Short:   "list message or enum types",
		Long: `ls lists the full names of all message types the loaded schema declares.
With --enums, enum types are listed instead.`,
		Example: strings.Join([]string{
			"        $ dynpb --proto api.proto ls           # list all message types",
			"        $ dynpb --proto api.proto ls --enums   # list all enum types",
			"        $ dynpb --proto api.proto ls -o json   # list with JSON format",
		}, "\n"),
		RunE: runFunc(flags, func(cmd *cobra.Command, cfg *mergedConfig) error {
			if cfg.colored {
				ui = cui.NewColored(ui)
			}
			files, err := loadFiles(cfg)
			if err != nil {
				return err
			}

			names := files.MessageNames()
			if enums {
				names = files.EnumNames()
			}
			v := typeList{Types: make([]listedType, 0, len(names))}
			for _, n := range names {
				v.Types = append(v.Types, listedType{Name: n})
			}

			p, err := newPresenter(out, cfg, "name", "json")
			if err != nil {
				return err
			}
			s, err := p.Format(v)
			if err != nil {
				return errors.Wrap(err, "failed to format the type list")
			}
			ui.Output(s)
			return nil
		}),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	f := cmd.Flags()
	initFlagSet(f, ui.Writer())
	f.BoolVar(&enums, "enums", false, "list enum types instead of message types")
	f.StringVarP(&out, "output", "o", "name", `output format. one of "name" or "json"`)

	cmd.SetHelpFunc(helpFunc(ui.Writer()))
	return cmd
}

type describedField struct {
	Number   int32  `json:"number" table:"number"`
	Name     string `json:"name" table:"name"`
	JSONName string `json:"jsonName" table:"json name"`
	Type     string `json:"type" table:"type"`
	Label    string `json:"label" table:"label"`
}

type describedMessage struct {
	Message string           `json:"message"`
	Fields  []describedField `json:"fields"`
}

type describedEnumValue struct {
	Number int32  `json:"number" table:"number"`
	Name   string `json:"name" table:"name"`
}

type describedEnum struct {
	Enum   string               `json:"enum"`
	Values []describedEnumValue `json:"values"`
}

func newDescribeCommand(flags *flags, ui cui.UI) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:     "describe [options ...] [type names ...]",
		Aliases: []string{"desc"},
		Short:   "describe message or enum types",
		Long: `describe shows the fields of the named message types, or the values of
the named enum types. The names should be fully-qualified. If no name is
passed, describe shows all message types of the loaded schema.`,
		Example: strings.Join([]string{
			"        $ dynpb --proto api.proto describe              # describe all message types",
			"        $ dynpb --proto api.proto describe library.Book # describe one type",
		}, "\n"),
		RunE: runFunc(flags, func(cmd *cobra.Command, cfg *mergedConfig) error {
			if cfg.colored {
				ui = cui.NewColored(ui)
			}
			files, err := loadFiles(cfg)
			if err != nil {
				return err
			}

			names := cmd.Flags().Args()
			if len(names) == 0 {
				names = files.MessageNames()
			}
			p, err := newPresenter(out, cfg, "table", "json")
			if err != nil {
				return err
			}
			for _, n := range names {
				v, err := describeType(files, n)
				if err != nil {
					return err
				}
				s, err := p.Format(v)
				if err != nil {
					return errors.Wrapf(err, "failed to format the description of %s", n)
				}
				if out == "table" {
					ui.Info(n)
				}
				ui.Output(s)
			}
			return nil
		}),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	f := cmd.Flags()
	initFlagSet(f, ui.Writer())
	f.StringVarP(&out, "output", "o", "table", `output format. one of "table" or "json"`)

	cmd.SetHelpFunc(helpFunc(ui.Writer()))
	return cmd
}

// describeType builds the presentable description of the named message
// or enum type.
func describeType(files *schema.Files, typeName string) (interface{}, error) {
	if md, err := files.Message(typeName); err == nil {
		d := describedMessage{Message: md.Name(), Fields: make([]describedField, 0, len(md.Fields()))}
		for _, f := range md.Fields() {
			d.Fields = append(d.Fields, describedField{
				Number:   f.Number,
				Name:     f.Name,
				JSONName: f.JSONName,
				Type:     f.TypeName(),
				Label:    fieldLabel(f),
			})
		}
		return d, nil
	}

	e, err := files.Enum(typeName)
	if err != nil {
		return nil, err
	}
	d := describedEnum{Enum: e.Name(), Values: make([]describedEnumValue, 0, len(e.Values()))}
	for _, v := range e.Values() {
		d.Values = append(d.Values, describedEnumValue{Number: v.Number, Name: v.Name})
	}
	return d, nil
}

// fieldLabel renders the field's cardinality and presence in proto terms.
func fieldLabel(f *schema.Field) string {
	switch {
	case f.IsMap():
		return "map"
	case f.Repeated:
		return "repeated"
	case f.Oneof != nil:
		return "oneof " + f.Oneof.Name
	case f.Required:
		return "required"
	case f.Optional:
		return "optional"
	default:
		return "implicit"
	}
}

// newPresenter maps the --output flag value to a presenter.
func newPresenter(out string, cfg *mergedConfig, allowed ...string) (present.Presenter, error) {
	for _, a := range allowed {
		if out != a {
			continue
		}
		switch a {
		case "name":
			return name.NewPresenter(), nil
		case "json":
			return pjson.NewPresenter(cfg.Format.Indent), nil
		case "table":
			return table.NewPresenter(), nil
		}
	}
	quoted := make([]string, len(allowed))
	for i, a := range allowed {
		quoted[i] = strconv.Quote(a)
	}
	return nil, errors.Errorf("--output must be one of %s, but got %q", strings.Join(quoted, " or "), out)
}
