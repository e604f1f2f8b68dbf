package app

import (
	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// flags defines available command line flags.
type flags struct {
	schema struct {
		path          []string
		proto         []string
		descriptorSet string
		cache         bool
	}

	format struct {
		indent       string
		emitDefaults bool
		enumsAsInts  bool
		origNames    bool
	}

	meta struct {
		noColor bool
		verbose bool
		version bool
		help    bool
	}
}

// validate defines invalid conditions and validates whether f has invalid conditions.
func (f *flags) validate() error {
	var result error
	invalidCases := []struct {
		name string
		cond bool
	}{
		{"cannot specify both of --proto and --descriptor-set", len(f.schema.proto) > 0 && f.schema.descriptorSet != ""},
		{"cannot specify --cache with --descriptor-set", f.schema.cache && f.schema.descriptorSet != ""},
	}
	for _, c := range invalidCases {
		if c.cond {
			result = multierror.Append(result, errors.New(c.name))
		}
	}
	return result
}
