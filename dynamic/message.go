// Package dynamic implements messages whose schema is known only at
// runtime. A Message pairs a schema.Message with its field values and
// offers binary and canonical JSON codecs plus structural operations
// such as merge, clone and equality.
package dynamic

import (
	"github.com/ktr0731/dynpb/schema"
	"github.com/ktr0731/dynpb/wire"
	"github.com/pkg/errors"
)

// An UnknownField is one wire-format field the schema does not declare,
// kept verbatim so re-encoding preserves it. Raw holds exactly the bytes
// wire.EncodeValue needs: framed payloads for length-delimited values,
// inner content for groups.
type UnknownField struct {
	Number int32
	Type   wire.Type
	Raw    []byte
}

// Message is a single dynamically-typed message value. Values are held
// per field number in canonical Go form: scalars as their Go kind, enums
// as int32, nested messages as *Message, repeated fields as
// []interface{} and maps as map[interface{}]interface{}.
//
// A Message is not safe for concurrent mutation.
type Message struct {
	md      *schema.Message
	values  map[int32]interface{}
	unknown []UnknownField
}

// New returns an empty message of the given type.
func New(md *schema.Message) *Message {
	return &Message{
		md:     md,
		values: map[int32]interface{}{},
	}
}

// NewFromMap builds a message from a name-keyed value map, accepting both
// declared and JSON field names. It is MergeMap applied to an empty
// message.
func NewFromMap(md *schema.Message, values map[string]interface{}) (*Message, error) {
	m := New(md)
	if err := m.MergeMap(values); err != nil {
		return nil, err
	}
	return m, nil
}

// Descriptor returns the message's type.
func (m *Message) Descriptor() *schema.Message { return m.md }

// Has reports whether the field has a value recorded. For fields without
// explicit presence a recorded zero and an absent field are equivalent
// everywhere else; Has only distinguishes them in memory.
func (m *Message) Has(f *schema.Field) bool {
	_, ok := m.values[f.Number]
	return ok
}

// Get returns the field's value, or its default when absent. Absent
// message fields read as a nil *Message, absent repeated and map fields
// as fresh empty collections.
func (m *Message) Get(f *schema.Field) interface{} {
	if v, ok := m.values[f.Number]; ok {
		return v
	}
	return f.DefaultValue()
}

// GetName is Get keyed by declared field name. It returns nil for names
// the type does not declare.
func (m *Message) GetName(name string) interface{} {
	f := m.md.FindName(name)
	if f == nil {
		return nil
	}
	return m.Get(f)
}

// Set validates and normalizes v against the field's kind and records it.
// Setting a oneof member clears the group's other members. Nested message
// values may be given as *Message or as a name-keyed map; repeated fields
// take []interface{} and maps take map[interface{}]interface{} or a
// string-keyed map.
func (m *Message) Set(f *schema.Field, v interface{}) error {
	if m.md.Find(f.Number) != f {
		return errors.Errorf("field %s does not belong to message %s", f.Name, m.md.Name())
	}
	norm, err := m.normalizeValue(f, v)
	if err != nil {
		return errors.Wrapf(err, "invalid value for field %s.%s", m.md.Name(), f.Name)
	}
	m.setValue(f, norm)
	return nil
}

// SetName is Set keyed by declared field name.
func (m *Message) SetName(name string, v interface{}) error {
	f := m.md.FindName(name)
	if f == nil {
		return errors.Errorf("message %s has no field named %s", m.md.Name(), name)
	}
	return m.Set(f, v)
}

// Clear removes the field's value. Clearing an absent field is a no-op.
func (m *Message) Clear(f *schema.Field) {
	delete(m.values, f.Number)
}

// Reset clears every field and drops retained unknown fields.
func (m *Message) Reset() {
	m.values = map[int32]interface{}{}
	m.unknown = nil
}

// WhichOneof returns the member of o currently set, or nil.
func (m *Message) WhichOneof(o *schema.Oneof) *schema.Field {
	for _, f := range o.Fields {
		if _, ok := m.values[f.Number]; ok {
			return f
		}
	}
	return nil
}

// Range calls fn for each field with a recorded value, in ascending field
// number order, until fn returns false.
func (m *Message) Range(fn func(f *schema.Field, v interface{}) bool) {
	for _, f := range m.md.ByNumber() {
		if v, ok := m.values[f.Number]; ok {
			if !fn(f, v) {
				return
			}
		}
	}
}

// UnknownFields returns the retained unknown fields in arrival order. The
// slice is the message's own; callers must treat it as read-only.
func (m *Message) UnknownFields() []UnknownField { return m.unknown }

// ClearUnknown drops the retained unknown fields, leaving known fields
// untouched.
func (m *Message) ClearUnknown() {
	m.unknown = nil
}

// Clone returns a deep copy sharing no mutable state with m.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := New(m.md)
	for num, v := range m.values {
		c.values[num] = cloneValue(v)
	}
	if len(m.unknown) > 0 {
		c.unknown = make([]UnknownField, len(m.unknown))
		for i, u := range m.unknown {
			raw := make([]byte, len(u.Raw))
			copy(raw, u.Raw)
			c.unknown[i] = UnknownField{Number: u.Number, Type: u.Type, Raw: raw}
		}
	}
	return c
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case *Message:
		return t.Clone()
	case []byte:
		cp := make([]byte, len(t))
		copy(cp, t)
		return cp
	case []interface{}:
		cp := make([]interface{}, len(t))
		for i, e := range t {
			cp[i] = cloneValue(e)
		}
		return cp
	case map[interface{}]interface{}:
		cp := make(map[interface{}]interface{}, len(t))
		for k, e := range t {
			cp[k] = cloneValue(e)
		}
		return cp
	default:
		return v
	}
}

// setValue records a normalized value, displacing the other members of
// the field's oneof group.
func (m *Message) setValue(f *schema.Field, v interface{}) {
	if f.Oneof != nil {
		for _, sibling := range f.Oneof.Fields {
			if sibling != f {
				delete(m.values, sibling.Number)
			}
		}
	}
	m.values[f.Number] = v
}

// normalizeValue converts v into the field's canonical in-memory form.
func (m *Message) normalizeValue(f *schema.Field, v interface{}) (interface{}, error) {
	switch {
	case f.IsMap():
		return m.normalizeMap(f, v)
	case f.Repeated:
		elems, ok := v.([]interface{})
		if !ok {
			return nil, errors.Errorf("expected a slice for a repeated field, got %T", v)
		}
		out := make([]interface{}, len(elems))
		for i, e := range elems {
			norm, err := m.normalizeSingular(f.Type, e)
			if err != nil {
				return nil, errors.Wrapf(err, "element %d", i)
			}
			out[i] = norm
		}
		return out, nil
	default:
		return m.normalizeSingular(f.Type, v)
	}
}

func (m *Message) normalizeMap(f *schema.Field, v interface{}) (interface{}, error) {
	out := map[interface{}]interface{}{}
	add := func(key, val interface{}) error {
		k, err := f.MapKey.Normalize(key)
		if err != nil {
			return errors.Wrap(err, "map key")
		}
		e, err := m.normalizeSingular(f.MapValue, val)
		if err != nil {
			return errors.Wrapf(err, "map value for key %v", k)
		}
		out[k] = e
		return nil
	}
	switch t := v.(type) {
	case map[interface{}]interface{}:
		for key, val := range t {
			if err := add(key, val); err != nil {
				return nil, err
			}
		}
	case map[string]interface{}:
		for key, val := range t {
			if err := add(key, val); err != nil {
				return nil, err
			}
		}
	default:
		return nil, errors.Errorf("expected a map for a map field, got %T", v)
	}
	return out, nil
}

func (m *Message) normalizeSingular(t schema.Type, v interface{}) (interface{}, error) {
	switch typ := t.(type) {
	case schema.Scalar:
		return typ.Normalize(v)
	case *schema.Enum:
		return typ.Normalize(v)
	case *schema.MessageRef:
		md := typ.Message()
		switch sub := v.(type) {
		case *Message:
			if sub == nil {
				return nil, errors.New("nil message value")
			}
			if sub.md != md {
				return nil, errors.Errorf("expected a %s message, got %s", md.Name(), sub.md.Name())
			}
			return sub, nil
		case map[string]interface{}:
			return NewFromMap(md, sub)
		default:
			return nil, errors.Errorf("expected a %s message, got %T", md.Name(), v)
		}
	default:
		return nil, errors.Errorf("field has no value type")
	}
}
