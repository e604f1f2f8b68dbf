package schema

import (
	"github.com/pkg/errors"
)

// EnumValue is one declared value of an enum type.
type EnumValue struct {
	Name   string
	Number int32
}

// Enum describes an enum type: its declared values in order with lookup
// in both directions. An open enum (proto3, editions default) accepts
// numbers outside the declared set on the wire; a closed one diverts them
// to unknown fields.
type Enum struct {
	name     string
	values   []EnumValue
	byName   map[string]int32
	byNumber map[int32]string
	open     bool
}

// EnumOptions adjusts validation and runtime behavior of NewEnum.
type EnumOptions struct {
	// Open marks the enum as accepting undeclared numbers.
	Open bool

	// AllowAlias permits two names to share a number, mirroring the
	// allow_alias option. Lookup by number returns the first declared name.
	AllowAlias bool

	// RequireZeroFirst demands that the first declared value be zero, as
	// proto3 and editions do.
	RequireZeroFirst bool
}

// NewEnum builds an enum registry from its declared values. The first
// declared value is the zero value.
func NewEnum(name string, values []EnumValue, opts EnumOptions) (*Enum, error) {
	if len(values) == 0 {
		return nil, buildErrorf(name, "enum must declare at least one value")
	}
	if opts.RequireZeroFirst && values[0].Number != 0 {
		return nil, buildErrorf(name, "first value %s must be zero, but is %d", values[0].Name, values[0].Number)
	}
	e := &Enum{
		name:     name,
		values:   append([]EnumValue(nil), values...),
		byName:   make(map[string]int32, len(values)),
		byNumber: make(map[int32]string, len(values)),
		open:     opts.Open,
	}
	for _, v := range values {
		if _, found := e.byName[v.Name]; found {
			return nil, buildErrorf(name, "duplicate value name %s", v.Name)
		}
		e.byName[v.Name] = v.Number
		if _, found := e.byNumber[v.Number]; found {
			if !opts.AllowAlias {
				return nil, buildErrorf(name, "duplicate value number %d (%s)", v.Number, v.Name)
			}
			continue
		}
		e.byNumber[v.Number] = v.Name
	}
	return e, nil
}

// Name returns the full name of the enum type.
func (e *Enum) Name() string { return e.name }

// TypeName returns the full name of the enum type.
func (e *Enum) TypeName() string { return e.name }

// Values returns the declared values in declaration order.
func (e *Enum) Values() []EnumValue {
	return append([]EnumValue(nil), e.values...)
}

// Zero returns the enum's zero value, the first declared one.
func (e *Enum) Zero() EnumValue { return e.values[0] }

// Open reports whether undeclared numbers are legal values of the enum.
func (e *Enum) Open() bool { return e.open }

// NameByNumber resolves a declared number to its first declared name.
func (e *Enum) NameByNumber(n int32) (string, bool) {
	name, ok := e.byNumber[n]
	return name, ok
}

// NumberByName resolves a declared name to its number.
func (e *Enum) NumberByName(name string) (int32, bool) {
	n, ok := e.byName[name]
	return n, ok
}

// Normalize converts v to the enum's canonical int32 representation. A
// string is resolved as a declared name; numbers are range-checked to 32
// bits. Undeclared numbers are accepted here regardless of openness so
// decoded unknown values can be carried; codecs decide what to do with
// them.
func (e *Enum) Normalize(v interface{}) (interface{}, error) {
	if name, ok := v.(string); ok {
		n, found := e.NumberByName(name)
		if !found {
			return nil, errors.Errorf("unknown value %q for enum %s", name, e.name)
		}
		return n, nil
	}
	return Int32.Normalize(v)
}
