package schema

import (
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/ktr0731/dynpb/wire"
	"github.com/pkg/errors"
)

// Type is the value type of a field or of a map value. It is a closed set:
// a Scalar kind, an *Enum, or a *MessageRef. Codecs switch over these
// three cases exhaustively.
type Type interface {
	// TypeName returns the proto-language name of the type.
	TypeName() string
}

// MessageRef is an indirection to a message type. Two message types may
// reference each other, so a field cannot always hold its target directly;
// the reference resolves on first use and caches the result. Resolution is
// safe for concurrent callers.
type MessageRef struct {
	once    sync.Once
	resolve func() *Message
	m       *Message
}

// NewMessageRef returns an already-resolved reference to m.
func NewMessageRef(m *Message) *MessageRef {
	return &MessageRef{m: m}
}

// LazyMessageRef returns a reference that calls resolve once, on first
// use. The resolver must return the same message for the life of the
// reference.
func LazyMessageRef(resolve func() *Message) *MessageRef {
	return &MessageRef{resolve: resolve}
}

// Message returns the referenced message type, resolving it if needed.
func (r *MessageRef) Message() *Message {
	r.once.Do(func() {
		if r.resolve != nil {
			r.m = r.resolve()
			r.resolve = nil
		}
	})
	return r.m
}

// TypeName returns the full name of the referenced message type.
func (r *MessageRef) TypeName() string {
	if m := r.Message(); m != nil {
		return m.Name()
	}
	return "<unresolved>"
}

// Field describes one field of a message type. A Field is built by the
// caller, then finalized and frozen by NewMessage; it must not be mutated
// afterwards.
type Field struct {
	// Number is the field's wire number, unique within the message.
	Number int32
	// Name is the declared (wire) name.
	Name string
	// JSONName is the canonical lowerCamelCase JSON name. NewMessage
	// derives it from Name when left empty.
	JSONName string
	// Type is the value type: Scalar, *Enum or *MessageRef. For map
	// fields it is nil and MapKey/MapValue apply instead.
	Type Type

	Repeated bool
	// Packed marks a repeated scalar or enum field as packed on the wire.
	// NewMessage turns it on for packable fields when the message defaults
	// to packed, unless Unpacked opts out.
	Packed bool
	// Unpacked records an explicit packed=false, overriding the default.
	Unpacked bool
	// Optional marks explicit presence: the field distinguishes unset
	// from zero.
	Optional bool
	// Required marks a field that must be present on encode and decode.
	Required bool
	// Delimited marks a message field using the legacy group encoding,
	// framed by start/end-group tags instead of a length prefix.
	Delimited bool

	// Default is the explicit default value, normalized by NewMessage.
	// When nil, the type's zero value applies.
	Default interface{}

	// MapKey and MapValue describe a map field's entry types. MapValue
	// non-nil marks the field as a map.
	MapKey   Scalar
	MapValue Type

	// Oneof points back to the group the field belongs to, if any.
	Oneof *Oneof
}

// IsMap reports whether the field is a map field.
func (f *Field) IsMap() bool { return f.MapValue != nil }

// WireType returns the wire type of one occurrence of the field on the
// wire. Packed repeated fields are framed as bytes by the codec and are
// not reflected here.
func (f *Field) WireType() wire.Type {
	if f.IsMap() {
		return wire.TypeBytes
	}
	if f.Delimited {
		return wire.TypeStartGroup
	}
	switch t := f.Type.(type) {
	case Scalar:
		return t.WireType()
	case *Enum:
		return wire.TypeVarint
	default:
		return wire.TypeBytes
	}
}

// ZeroValue returns the value an absent field reads as: the scalar or
// enum zero, an empty sequence or mapping, and nil for message fields,
// which stay absent until set.
func (f *Field) ZeroValue() interface{} {
	if f.IsMap() {
		return map[interface{}]interface{}{}
	}
	if f.Repeated {
		return []interface{}{}
	}
	switch t := f.Type.(type) {
	case Scalar:
		return t.Zero()
	case *Enum:
		return t.Zero().Number
	default:
		return nil
	}
}

// DefaultValue returns the explicit default if declared, the zero value
// otherwise.
func (f *Field) DefaultValue() interface{} {
	if f.Default != nil {
		return f.Default
	}
	return f.ZeroValue()
}

// TypeName returns the proto-language name of the field's value type,
// with map fields rendered as map<key, value>.
func (f *Field) TypeName() string {
	if f.IsMap() {
		return "map<" + f.MapKey.TypeName() + ", " + f.MapValue.TypeName() + ">"
	}
	if f.Type == nil {
		return "<invalid>"
	}
	return f.Type.TypeName()
}

// Oneof is a named group of fields of which at most one may be set at a
// time. Members keep their place in the parent's field list; the group
// only holds back-references.
type Oneof struct {
	Name   string
	Fields []*Field
}

// Member is one logical slot of a message: a field outside every oneof,
// or a whole oneof group. Structural operations and the JSON codec work
// per slot rather than per wire field.
type Member struct {
	Field *Field
	Oneof *Oneof
}

// Name returns the field or group name of the slot.
func (m Member) Name() string {
	if m.Oneof != nil {
		return m.Oneof.Name
	}
	return m.Field.Name
}

// Message is the complete reflective description of one message type: its
// fields in declaration order with lookup by number, wire name and JSON
// name, plus its oneof groups. Built once, immutable afterwards, and safe
// for unsynchronized concurrent readers.
type Message struct {
	name       string
	fields     []*Field
	oneofs     []*Oneof
	members    []Member
	sorted     []*Field
	features   Features
	byNumber   map[int32]*Field
	byName     map[string]*Field
	byJSONName map[string]*Field
}

// MessageOptions adjusts how NewMessage finalizes field declarations.
type MessageOptions struct {
	// PackedByDefault makes packable repeated fields packed unless a field
	// opts out, matching proto3 and editions defaults.
	PackedByDefault bool

	// Features records the resolved feature set the message was declared
	// under. Codecs consult it for UTF-8 validation. The zero value leaves
	// every feature unknown, which codecs treat like the proto3 defaults.
	Features Features
}

// NewMessage builds the field list for one message type. The given fields
// and oneofs are finalized in place and owned by the message afterwards.
// Declarations are checked as a whole and every problem found is reported
// in one BuildError.
func NewMessage(name string, fields []*Field, oneofs []*Oneof, opts MessageOptions) (*Message, error) {
	if name == "" {
		return nil, buildErrorf(name, "message name must not be empty")
	}

	m := &Message{
		name:       name,
		fields:     fields,
		oneofs:     oneofs,
		features:   opts.Features,
		byNumber:   make(map[int32]*Field, len(fields)),
		byName:     make(map[string]*Field, len(fields)),
		byJSONName: make(map[string]*Field, len(fields)),
	}

	var result error
	for _, f := range fields {
		if err := finalizeField(f, opts); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if _, found := m.byNumber[f.Number]; found {
			result = multierror.Append(result, errors.Errorf("duplicate field number %d (%s)", f.Number, f.Name))
			continue
		}
		m.byNumber[f.Number] = f
		if _, found := m.byName[f.Name]; found {
			result = multierror.Append(result, errors.Errorf("duplicate field name %s", f.Name))
			continue
		}
		m.byName[f.Name] = f
		if _, found := m.byJSONName[f.JSONName]; found {
			result = multierror.Append(result, errors.Errorf("duplicate JSON name %s", f.JSONName))
			continue
		}
		m.byJSONName[f.JSONName] = f
	}

	seen := make(map[string]*Oneof, len(oneofs))
	for _, o := range oneofs {
		if o.Name == "" {
			result = multierror.Append(result, errors.New("oneof name must not be empty"))
			continue
		}
		if _, found := seen[o.Name]; found {
			result = multierror.Append(result, errors.Errorf("duplicate oneof name %s", o.Name))
			continue
		}
		if _, found := m.byName[o.Name]; found {
			result = multierror.Append(result, errors.Errorf("oneof name %s collides with a field name", o.Name))
			continue
		}
		seen[o.Name] = o
		for _, f := range o.Fields {
			switch {
			case f.Oneof != o:
				result = multierror.Append(result, errors.Errorf("field %s is listed in oneof %s but does not reference it", f.Name, o.Name))
			case m.byNumber[f.Number] != f:
				result = multierror.Append(result, errors.Errorf("oneof %s member %s is not a field of the message", o.Name, f.Name))
			}
		}
	}
	for _, f := range fields {
		if f.Oneof == nil {
			continue
		}
		if _, found := seen[f.Oneof.Name]; !found || seen[f.Oneof.Name] != f.Oneof {
			result = multierror.Append(result, errors.Errorf("field %s references an undeclared oneof %s", f.Name, f.Oneof.Name))
		}
	}

	if result != nil {
		return nil, &BuildError{Name: name, Err: result}
	}

	for _, f := range fields {
		if f.Oneof != nil {
			if !memberSeen(m.members, f.Oneof) {
				m.members = append(m.members, Member{Oneof: f.Oneof})
			}
			continue
		}
		m.members = append(m.members, Member{Field: f})
	}

	m.sorted = append([]*Field(nil), fields...)
	sort.Slice(m.sorted, func(i, j int) bool { return m.sorted[i].Number < m.sorted[j].Number })

	return m, nil
}

func memberSeen(members []Member, o *Oneof) bool {
	for _, mem := range members {
		if mem.Oneof == o {
			return true
		}
	}
	return false
}

// finalizeField validates one declaration and fills in derived
// attributes: the JSON name, the effective packed flag and the normalized
// default value.
func finalizeField(f *Field, opts MessageOptions) error {
	if f.Name == "" {
		return errors.Errorf("field %d must have a name", f.Number)
	}
	if f.Number < wire.MinFieldNumber || f.Number > wire.MaxFieldNumber {
		return errors.Errorf("field %s has number %d out of range [%d, %d]", f.Name, f.Number, wire.MinFieldNumber, wire.MaxFieldNumber)
	}
	if f.Number >= 19000 && f.Number <= 19999 {
		return errors.Errorf("field %s uses reserved number %d", f.Name, f.Number)
	}
	if f.JSONName == "" {
		f.JSONName = jsonCamelCase(f.Name)
	}

	if f.IsMap() {
		if f.Type != nil {
			return errors.Errorf("map field %s must not declare a value type besides its entry types", f.Name)
		}
		if !f.MapKey.ValidMapKey() {
			return errors.Errorf("map field %s has invalid key kind %s", f.Name, f.MapKey)
		}
		if f.Repeated || f.Optional || f.Required || f.Packed || f.Delimited {
			return errors.Errorf("map field %s must not be repeated, optional, required, packed or delimited", f.Name)
		}
		if f.Oneof != nil {
			return errors.Errorf("map field %s must not belong to oneof %s", f.Name, f.Oneof.Name)
		}
		return nil
	}

	switch t := f.Type.(type) {
	case Scalar:
		if !t.Valid() {
			return errors.Errorf("field %s has invalid scalar kind %d", f.Name, t)
		}
	case *Enum, *MessageRef:
	case nil:
		return errors.Errorf("field %s has no type", f.Name)
	default:
		return errors.Errorf("field %s has unsupported type %T", f.Name, f.Type)
	}

	if f.Oneof != nil && (f.Repeated || f.Required) {
		return errors.Errorf("oneof member %s must be a singular optional field", f.Name)
	}
	if f.Optional && f.Required {
		return errors.Errorf("field %s cannot be both optional and required", f.Name)
	}
	if f.Repeated && (f.Optional || f.Required) {
		return errors.Errorf("repeated field %s cannot declare presence", f.Name)
	}

	if f.Delimited {
		if _, ok := f.Type.(*MessageRef); !ok {
			return errors.Errorf("field %s is group-delimited but not a message field", f.Name)
		}
	}

	packable := false
	switch t := f.Type.(type) {
	case Scalar:
		packable = t.Packable()
	case *Enum:
		packable = true
	}
	if f.Packed && (!f.Repeated || !packable) {
		return errors.Errorf("field %s cannot be packed", f.Name)
	}
	if f.Unpacked {
		f.Packed = false
	} else if opts.PackedByDefault && f.Repeated && packable {
		f.Packed = true
	}

	if f.Default != nil {
		if f.Repeated {
			return errors.Errorf("repeated field %s cannot declare a default value", f.Name)
		}
		switch t := f.Type.(type) {
		case Scalar:
			v, err := t.Normalize(f.Default)
			if err != nil {
				return errors.Wrapf(err, "invalid default value for field %s", f.Name)
			}
			f.Default = v
		case *Enum:
			v, err := t.Normalize(f.Default)
			if err != nil {
				return errors.Wrapf(err, "invalid default value for field %s", f.Name)
			}
			f.Default = v
		default:
			return errors.Errorf("message field %s cannot declare a default value", f.Name)
		}
	}
	return nil
}

// Name returns the full name of the message type.
func (m *Message) Name() string { return m.name }

// Features returns the resolved feature set the message was declared
// under, or the zero value for hand-built messages.
func (m *Message) Features() Features { return m.features }

// Fields returns the fields in declaration order. The returned slice is
// the message's own; callers must treat it as read-only.
func (m *Message) Fields() []*Field { return m.fields }

// Oneofs returns the oneof groups in declaration order, read-only.
func (m *Message) Oneofs() []*Oneof { return m.oneofs }

// Members returns one entry per oneof group plus one per field outside
// any oneof, in declaration order of the first occurrence. Read-only.
func (m *Message) Members() []Member { return m.members }

// ByNumber returns the fields in ascending field-number order, the order
// the binary codec emits them in. Read-only.
func (m *Message) ByNumber() []*Field { return m.sorted }

// Find returns the field with the given number, or nil.
func (m *Message) Find(number int32) *Field {
	return m.byNumber[number]
}

// FindName returns the field with the given declared name, or nil.
func (m *Message) FindName(name string) *Field {
	return m.byName[name]
}

// FindJSONName resolves a JSON object key to a field, accepting both the
// canonical JSON name and the declared wire name, or nil.
func (m *Message) FindJSONName(name string) *Field {
	if f, ok := m.byJSONName[name]; ok {
		return f
	}
	return m.byName[name]
}

// jsonCamelCase converts a declared field name to its canonical JSON
// form: underscores are dropped and the letter after each one is
// uppercased, so "foo_bar_1" becomes "fooBar1".
func jsonCamelCase(name string) string {
	b := make([]byte, 0, len(name))
	up := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '_' {
			up = true
			continue
		}
		if up && 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		up = false
		b = append(b, c)
	}
	return string(b)
}
