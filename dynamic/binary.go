package dynamic

import (
	"math"
	"sort"
	"unicode/utf8"

	"github.com/ktr0731/dynpb/schema"
	"github.com/ktr0731/dynpb/wire"
	"github.com/pkg/errors"
)

// Marshal serializes the message into the binary wire format. Declared
// fields are emitted in ascending field number order with map entries
// sorted by key, then retained unknown fields in arrival order, so equal
// messages always encode to the same bytes.
func (m *Message) Marshal() ([]byte, error) {
	var b wire.Buffer
	if err := marshalMessage(&b, m); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func marshalMessage(b *wire.Buffer, m *Message) error {
	for _, f := range m.md.ByNumber() {
		v, ok := m.values[f.Number]
		if !ok {
			if f.Required {
				return encodeErrorf(m.md.Name(), f.Name, "required field is not set")
			}
			continue
		}
		if err := marshalField(b, m, f, v); err != nil {
			return wrapEncodeError(m.md.Name(), f.Name, err)
		}
	}
	for _, u := range m.unknown {
		b.EncodeValue(u.Number, u.Type, u.Raw)
	}
	return nil
}

func marshalField(b *wire.Buffer, m *Message, f *schema.Field, v interface{}) error {
	verify := verifyUTF8(m.md)
	switch {
	case f.IsMap():
		return marshalMap(b, f, v.(map[interface{}]interface{}), verify)
	case f.Repeated:
		elems := v.([]interface{})
		if f.Packed {
			if len(elems) == 0 {
				return nil
			}
			var packed wire.Buffer
			for _, e := range elems {
				if err := marshalScalarValue(&packed, f.Type, e, verify); err != nil {
					return err
				}
			}
			b.EncodeTag(f.Number, wire.TypeBytes)
			b.EncodeRawBytes(packed.Bytes())
			return nil
		}
		for _, e := range elems {
			if err := marshalSingular(b, f.Number, f.Type, f.Delimited, e, verify); err != nil {
				return err
			}
		}
		return nil
	default:
		if skipImplicitZero(f, v) {
			return nil
		}
		return marshalSingular(b, f.Number, f.Type, f.Delimited, v, verify)
	}
}

// skipImplicitZero reports whether a recorded value is the kind's zero on
// a field without explicit presence, which the wire format never carries.
func skipImplicitZero(f *schema.Field, v interface{}) bool {
	if f.Optional || f.Required || f.Oneof != nil {
		return false
	}
	switch t := f.Type.(type) {
	case schema.Scalar:
		return t.Equal(v, t.Zero())
	case *schema.Enum:
		n, ok := v.(int32)
		return ok && n == 0
	default:
		return false
	}
}

func marshalMap(b *wire.Buffer, f *schema.Field, entries map[interface{}]interface{}, verify bool) error {
	for _, k := range sortedMapKeys(entries) {
		var entry wire.Buffer
		entry.EncodeTag(1, f.MapKey.WireType())
		if err := marshalScalarValue(&entry, f.MapKey, k, verify); err != nil {
			return errors.Wrap(err, "map key")
		}
		if err := marshalSingular(&entry, 2, f.MapValue, false, entries[k], verify); err != nil {
			return errors.Wrapf(err, "map value for key %v", k)
		}
		b.EncodeTag(f.Number, wire.TypeBytes)
		b.EncodeRawBytes(entry.Bytes())
	}
	return nil
}

// marshalSingular emits one tagged occurrence of a scalar, enum or
// message value.
func marshalSingular(b *wire.Buffer, number int32, t schema.Type, delimited bool, v interface{}, verify bool) error {
	if ref, ok := t.(*schema.MessageRef); ok {
		sub, ok := v.(*Message)
		if !ok || sub == nil {
			return errors.Errorf("expected a %s message value, got %T", ref.TypeName(), v)
		}
		if delimited {
			b.EncodeTag(number, wire.TypeStartGroup)
			if err := marshalMessage(b, sub); err != nil {
				return err
			}
			b.EncodeTag(number, wire.TypeEndGroup)
			return nil
		}
		var nested wire.Buffer
		if err := marshalMessage(&nested, sub); err != nil {
			return err
		}
		b.EncodeTag(number, wire.TypeBytes)
		b.EncodeRawBytes(nested.Bytes())
		return nil
	}
	b.EncodeTag(number, scalarWireType(t))
	return marshalScalarValue(b, t, v, verify)
}

// marshalScalarValue encodes a scalar or enum value without its tag, the
// form shared by tagged occurrences and packed runs.
func marshalScalarValue(b *wire.Buffer, t schema.Type, v interface{}, verify bool) error {
	if e, ok := t.(*schema.Enum); ok {
		n, err := e.Normalize(v)
		if err != nil {
			return err
		}
		b.EncodeVarint(uint64(int64(n.(int32))))
		return nil
	}
	s, ok := t.(schema.Scalar)
	if !ok {
		return errors.Errorf("value of type %T is not a scalar", v)
	}
	n, err := s.Normalize(v)
	if err != nil {
		return err
	}
	switch s {
	case schema.Double:
		b.EncodeFixed64(math.Float64bits(n.(float64)))
	case schema.Float:
		b.EncodeFixed32(math.Float32bits(n.(float32)))
	case schema.Int32:
		b.EncodeVarint(uint64(int64(n.(int32))))
	case schema.Int64:
		b.EncodeVarint(uint64(n.(int64)))
	case schema.UInt32:
		b.EncodeVarint(uint64(n.(uint32)))
	case schema.UInt64:
		b.EncodeVarint(n.(uint64))
	case schema.SInt32:
		b.EncodeVarint(wire.EncodeZigZag32(n.(int32)))
	case schema.SInt64:
		b.EncodeVarint(wire.EncodeZigZag64(n.(int64)))
	case schema.Fixed32:
		b.EncodeFixed32(n.(uint32))
	case schema.Fixed64:
		b.EncodeFixed64(n.(uint64))
	case schema.SFixed32:
		b.EncodeFixed32(uint32(n.(int32)))
	case schema.SFixed64:
		b.EncodeFixed64(uint64(n.(int64)))
	case schema.Bool:
		var bit uint64
		if n.(bool) {
			bit = 1
		}
		b.EncodeVarint(bit)
	case schema.String:
		str := n.(string)
		if verify && !utf8.ValidString(str) {
			return errors.New("string field contains invalid UTF-8")
		}
		b.EncodeRawBytes([]byte(str))
	case schema.Bytes:
		b.EncodeRawBytes(n.([]byte))
	}
	return nil
}

func scalarWireType(t schema.Type) wire.Type {
	if s, ok := t.(schema.Scalar); ok {
		return s.WireType()
	}
	return wire.TypeVarint
}

func sortedMapKeys(entries map[interface{}]interface{}) []interface{} {
	keys := make([]interface{}, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessMapKey(keys[i], keys[j]) })
	return keys
}

func lessMapKey(a, b interface{}) bool {
	switch x := a.(type) {
	case bool:
		return !x && b.(bool)
	case int32:
		return x < b.(int32)
	case int64:
		return x < b.(int64)
	case uint32:
		return x < b.(uint32)
	case uint64:
		return x < b.(uint64)
	case string:
		return x < b.(string)
	default:
		return false
	}
}

// verifyUTF8 reports whether string fields of the message must hold
// valid UTF-8. Unknown feature sets, as on hand-built messages, verify.
func verifyUTF8(md *schema.Message) bool {
	return md.Features().UTF8Validation != schema.UTF8ValidationNone
}

// UnmarshalOptions configures binary decoding.
type UnmarshalOptions struct {
	// Merge keeps the target's current values and folds decoded fields
	// into them instead of resetting first.
	Merge bool
	// DiscardUnknown drops fields the schema does not declare instead of
	// retaining them for re-encoding.
	DiscardUnknown bool
}

// Unmarshal decodes binary wire-format data into m. Decoding is a single
// forward pass: later occurrences of singular fields overwrite earlier
// ones, nested messages merge, repeated fields append and map entries
// overwrite per key. Fields the schema does not declare, including known
// fields arriving with the wrong wire type, are retained verbatim.
func (o UnmarshalOptions) Unmarshal(data []byte, m *Message) error {
	if !o.Merge {
		m.Reset()
	}
	if err := o.unmarshalMessage(wire.NewBuffer(data), m, -1); err != nil {
		return err
	}
	return checkRequired(m)
}

// Unmarshal decodes wire-format data into m, replacing its contents.
func (m *Message) Unmarshal(data []byte) error {
	return UnmarshalOptions{}.Unmarshal(data, m)
}

// UnmarshalMerge decodes wire-format data into m, folding decoded fields
// into its current contents.
func (m *Message) UnmarshalMerge(data []byte) error {
	return UnmarshalOptions{Merge: true}.Unmarshal(data, m)
}

// unmarshalMessage decodes fields until the buffer runs out, or, when
// group is a valid field number, until that group's end tag.
func (o UnmarshalOptions) unmarshalMessage(b *wire.Buffer, m *Message, group int32) error {
	for !b.EOF() {
		num, typ, err := b.DecodeTag()
		if err != nil {
			return wrapDecodeError(m.md.Name(), "", err)
		}
		if typ == wire.TypeEndGroup {
			if num != group {
				return decodeErrorf(m.md.Name(), "", "unexpected end-group tag for field %d", num)
			}
			return nil
		}
		f := m.md.Find(num)
		if f == nil || !fieldAcceptsWireType(f, typ) {
			if err := o.unknownField(b, m, num, typ); err != nil {
				return wrapDecodeError(m.md.Name(), "", err)
			}
			continue
		}
		if err := o.unmarshalField(b, m, f, typ); err != nil {
			return wrapDecodeError(m.md.Name(), f.Name, err)
		}
	}
	if group >= 0 {
		return decodeErrorf(m.md.Name(), "", "group field %d is missing its end tag", group)
	}
	return nil
}

// fieldAcceptsWireType reports whether an occurrence with the given wire
// type can decode into the field. Mismatches fall through to unknown
// field handling.
func fieldAcceptsWireType(f *schema.Field, typ wire.Type) bool {
	if typ == f.WireType() {
		return true
	}
	if typ == wire.TypeBytes && f.Repeated && !f.IsMap() {
		switch t := f.Type.(type) {
		case schema.Scalar:
			return t.Packable()
		case *schema.Enum:
			return true
		}
	}
	return false
}

func (o UnmarshalOptions) unknownField(b *wire.Buffer, m *Message, num int32, typ wire.Type) error {
	if o.DiscardUnknown {
		return b.SkipValue(num, typ)
	}
	raw, err := b.ReadValue(num, typ)
	if err != nil {
		return err
	}
	m.unknown = append(m.unknown, UnknownField{Number: num, Type: typ, Raw: raw})
	return nil
}

func (o UnmarshalOptions) unmarshalField(b *wire.Buffer, m *Message, f *schema.Field, typ wire.Type) error {
	switch {
	case f.IsMap():
		return o.unmarshalMapEntry(b, m, f)
	case f.Repeated:
		return o.unmarshalRepeated(b, m, f, typ)
	default:
		if ref, ok := f.Type.(*schema.MessageRef); ok {
			cur, _ := m.values[f.Number].(*Message)
			if cur == nil {
				cur = New(ref.Message())
			}
			if err := o.unmarshalNested(b, cur, f, typ); err != nil {
				return err
			}
			m.setValue(f, cur)
			return nil
		}
		if e, ok := f.Type.(*schema.Enum); ok {
			v, err := b.DecodeVarint()
			if err != nil {
				return err
			}
			n := int32(v)
			if !o.keepEnumNumber(m, e, f.Number, n) {
				return nil
			}
			m.setValue(f, n)
			return nil
		}
		v, err := readScalarValue(b, f.Type.(schema.Scalar), verifyUTF8(m.md))
		if err != nil {
			return err
		}
		m.setValue(f, v)
		return nil
	}
}

// unmarshalNested decodes one occurrence of a message value into sub,
// following either framing: a length prefix or group tags.
func (o UnmarshalOptions) unmarshalNested(b *wire.Buffer, sub *Message, f *schema.Field, typ wire.Type) error {
	if typ == wire.TypeStartGroup {
		return o.unmarshalMessage(b, sub, f.Number)
	}
	raw, err := b.DecodeRawBytes(false)
	if err != nil {
		return err
	}
	return o.unmarshalMessage(wire.NewBuffer(raw), sub, -1)
}

// keepEnumNumber decides what becomes of a decoded enum number. Open
// enums keep every number. A number a closed enum does not declare is
// moved to the unknown field set, matching the legacy behavior.
func (o UnmarshalOptions) keepEnumNumber(m *Message, e *schema.Enum, number, n int32) bool {
	if e.Open() {
		return true
	}
	if _, declared := e.NameByNumber(n); declared {
		return true
	}
	if !o.DiscardUnknown {
		var raw wire.Buffer
		raw.EncodeVarint(uint64(int64(n)))
		m.unknown = append(m.unknown, UnknownField{Number: number, Type: wire.TypeVarint, Raw: raw.Bytes()})
	}
	return false
}

func (o UnmarshalOptions) unmarshalRepeated(b *wire.Buffer, m *Message, f *schema.Field, typ wire.Type) error {
	elems, _ := m.values[f.Number].([]interface{})
	if ref, ok := f.Type.(*schema.MessageRef); ok {
		sub := New(ref.Message())
		if err := o.unmarshalNested(b, sub, f, typ); err != nil {
			return err
		}
		m.setValue(f, append(elems, sub))
		return nil
	}

	appendOne := func(b *wire.Buffer) error {
		if e, ok := f.Type.(*schema.Enum); ok {
			v, err := b.DecodeVarint()
			if err != nil {
				return err
			}
			if n := int32(v); o.keepEnumNumber(m, e, f.Number, n) {
				elems = append(elems, n)
			}
			return nil
		}
		v, err := readScalarValue(b, f.Type.(schema.Scalar), verifyUTF8(m.md))
		if err != nil {
			return err
		}
		elems = append(elems, v)
		return nil
	}

	if typ == wire.TypeBytes && scalarWireType(f.Type) != wire.TypeBytes {
		raw, err := b.DecodeRawBytes(false)
		if err != nil {
			return err
		}
		packed := wire.NewBuffer(raw)
		for !packed.EOF() {
			if err := appendOne(packed); err != nil {
				return err
			}
		}
	} else if err := appendOne(b); err != nil {
		return err
	}
	if elems == nil {
		elems = []interface{}{}
	}
	m.setValue(f, elems)
	return nil
}

func (o UnmarshalOptions) unmarshalMapEntry(b *wire.Buffer, m *Message, f *schema.Field) error {
	raw, err := b.DecodeRawBytes(false)
	if err != nil {
		return err
	}
	eb := wire.NewBuffer(raw)
	key := f.MapKey.Zero()
	var val interface{}
	for !eb.EOF() {
		num, typ, err := eb.DecodeTag()
		if err != nil {
			return err
		}
		switch {
		case num == 1 && typ == f.MapKey.WireType():
			key, err = readScalarValue(eb, f.MapKey, verifyUTF8(m.md))
			if err != nil {
				return errors.Wrap(err, "map key")
			}
		case num == 2:
			val, err = o.unmarshalMapValue(eb, m, f, typ)
			if err != nil {
				return errors.Wrapf(err, "map value for key %v", key)
			}
		default:
			if err := eb.SkipValue(num, typ); err != nil {
				return err
			}
		}
	}
	if val == nil {
		val = zeroSingular(f.MapValue)
	}
	// An entry whose value is an undeclared number of a closed enum is
	// kept whole as an unknown field instead of surfacing a bogus value.
	if e, ok := f.MapValue.(*schema.Enum); ok && !e.Open() {
		if n, ok := val.(int32); ok {
			if _, declared := e.NameByNumber(n); !declared {
				if !o.DiscardUnknown {
					var framed wire.Buffer
					framed.EncodeRawBytes(raw)
					m.unknown = append(m.unknown, UnknownField{Number: f.Number, Type: wire.TypeBytes, Raw: framed.Bytes()})
				}
				return nil
			}
		}
	}
	entries, _ := m.values[f.Number].(map[interface{}]interface{})
	if entries == nil {
		entries = map[interface{}]interface{}{}
	}
	entries[key] = val
	m.setValue(f, entries)
	return nil
}

func (o UnmarshalOptions) unmarshalMapValue(b *wire.Buffer, m *Message, f *schema.Field, typ wire.Type) (interface{}, error) {
	switch t := f.MapValue.(type) {
	case *schema.MessageRef:
		if typ != wire.TypeBytes {
			return nil, errors.Errorf("unexpected wire type %s for a message value", typ)
		}
		sub := New(t.Message())
		if err := o.unmarshalNested(b, sub, f, typ); err != nil {
			return nil, err
		}
		return sub, nil
	case *schema.Enum:
		if typ != wire.TypeVarint {
			return nil, errors.Errorf("unexpected wire type %s for an enum value", typ)
		}
		v, err := b.DecodeVarint()
		if err != nil {
			return nil, err
		}
		return int32(v), nil
	default:
		s := f.MapValue.(schema.Scalar)
		if typ != s.WireType() {
			return nil, errors.Errorf("unexpected wire type %s for a %s value", typ, s)
		}
		return readScalarValue(b, s, verifyUTF8(m.md))
	}
}

// readScalarValue decodes one scalar occurrence. Varint-backed 32-bit
// kinds truncate rather than range-check, matching the wire format's
// tolerance for oversized encodings.
func readScalarValue(b *wire.Buffer, s schema.Scalar, verify bool) (interface{}, error) {
	switch s {
	case schema.Double:
		v, err := b.DecodeFixed64()
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(v), nil
	case schema.Float:
		v, err := b.DecodeFixed32()
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(v), nil
	case schema.Int32:
		v, err := b.DecodeVarint()
		if err != nil {
			return nil, err
		}
		return int32(v), nil
	case schema.Int64:
		v, err := b.DecodeVarint()
		if err != nil {
			return nil, err
		}
		return int64(v), nil
	case schema.UInt32:
		v, err := b.DecodeVarint()
		if err != nil {
			return nil, err
		}
		return uint32(v), nil
	case schema.UInt64:
		return b.DecodeVarint()
	case schema.SInt32:
		v, err := b.DecodeVarint()
		if err != nil {
			return nil, err
		}
		return wire.DecodeZigZag32(v), nil
	case schema.SInt64:
		v, err := b.DecodeVarint()
		if err != nil {
			return nil, err
		}
		return wire.DecodeZigZag64(v), nil
	case schema.Fixed32:
		return b.DecodeFixed32()
	case schema.Fixed64:
		return b.DecodeFixed64()
	case schema.SFixed32:
		v, err := b.DecodeFixed32()
		if err != nil {
			return nil, err
		}
		return int32(v), nil
	case schema.SFixed64:
		v, err := b.DecodeFixed64()
		if err != nil {
			return nil, err
		}
		return int64(v), nil
	case schema.Bool:
		v, err := b.DecodeVarint()
		if err != nil {
			return nil, err
		}
		return v != 0, nil
	case schema.String:
		raw, err := b.DecodeRawBytes(false)
		if err != nil {
			return nil, err
		}
		if verify && !utf8.Valid(raw) {
			return nil, errors.New("string field contains invalid UTF-8")
		}
		return string(raw), nil
	case schema.Bytes:
		return b.DecodeRawBytes(true)
	default:
		return nil, errors.Errorf("invalid scalar kind %d", s)
	}
}

func zeroSingular(t schema.Type) interface{} {
	switch typ := t.(type) {
	case schema.Scalar:
		return typ.Zero()
	case *schema.Enum:
		return typ.Zero().Number
	default:
		return New(t.(*schema.MessageRef).Message())
	}
}

// checkRequired walks the decoded tree once, after merging completes, so
// a message split across occurrences only needs its required fields in
// the whole.
func checkRequired(m *Message) error {
	for _, f := range m.md.ByNumber() {
		v, ok := m.values[f.Number]
		if !ok {
			if f.Required {
				return decodeErrorf(m.md.Name(), f.Name, "required field is not set")
			}
			continue
		}
		switch {
		case f.IsMap():
			if _, isMsg := f.MapValue.(*schema.MessageRef); !isMsg {
				continue
			}
			for _, e := range v.(map[interface{}]interface{}) {
				if sub, ok := e.(*Message); ok {
					if err := checkRequired(sub); err != nil {
						return err
					}
				}
			}
		case f.Repeated:
			if _, isMsg := f.Type.(*schema.MessageRef); !isMsg {
				continue
			}
			for _, e := range v.([]interface{}) {
				if sub, ok := e.(*Message); ok {
					if err := checkRequired(sub); err != nil {
						return err
					}
				}
			}
		default:
			if sub, ok := v.(*Message); ok {
				if err := checkRequired(sub); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
