package dynamic

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/ktr0731/dynpb/schema"
	"github.com/pkg/errors"
)

// AnyResolver maps a google.protobuf.Any type URL to the message type it
// carries. schema.Files implements it.
type AnyResolver interface {
	FindMessageByURL(url string) (*schema.Message, error)
}

// JSONMarshaler serializes messages to the canonical JSON mapping:
// 64-bit integers as decimal strings, bytes as base64, enums by name,
// and the special forms of the well-known types.
type JSONMarshaler struct {
	// OrigName keys fields by their declared names instead of the
	// canonical lowerCamelCase JSON names.
	OrigName bool

	// EnumsAsInts renders enum values as numbers instead of names.
	EnumsAsInts bool

	// EmitDefaults writes zero-valued fields without explicit presence
	// instead of omitting them. Genuinely unset optional fields, oneof
	// members and message fields stay omitted.
	EmitDefaults bool

	// Indent pretty-prints with the given indentation when non-empty.
	Indent string

	// Resolver looks up the types carried by google.protobuf.Any values.
	Resolver AnyResolver
}

// Marshal renders m as JSON text.
func (jm *JSONMarshaler) Marshal(m *Message) ([]byte, error) {
	v, err := jm.marshalMessage(m)
	if err != nil {
		return nil, err
	}
	if jm.Indent != "" {
		return json.MarshalIndent(v, "", jm.Indent)
	}
	return json.Marshal(v)
}

// MarshalToMap renders m as a generic JSON object tree. Types that render
// as a non-object JSON value, such as google.protobuf.Timestamp, fail.
func (jm *JSONMarshaler) MarshalToMap(m *Message) (map[string]interface{}, error) {
	v, err := jm.marshalMessage(m)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, encodeErrorf(m.md.Name(), "", "type renders as a JSON %s, not an object", jsonTypeName(v))
	}
	return obj, nil
}

func (jm *JSONMarshaler) marshalMessage(m *Message) (interface{}, error) {
	if m == nil {
		return nil, errors.New("nil message")
	}
	if wk, ok := wellKnownTypes[m.md.Name()]; ok {
		v, err := wk.marshal(jm, m)
		if err != nil {
			return nil, wrapEncodeError(m.md.Name(), "", err)
		}
		return v, nil
	}
	return jm.marshalObject(m)
}

func (jm *JSONMarshaler) marshalObject(m *Message) (interface{}, error) {
	obj := map[string]interface{}{}
	for _, member := range m.md.Members() {
		if member.Oneof != nil {
			f := m.WhichOneof(member.Oneof)
			if f == nil {
				continue
			}
			v, err := jm.marshalValue(f, m.values[f.Number])
			if err != nil {
				return nil, wrapEncodeError(m.md.Name(), f.Name, err)
			}
			obj[jm.key(f)] = v
			continue
		}
		f := member.Field
		v, ok := m.values[f.Number]
		if !ok {
			if f.Required {
				return nil, encodeErrorf(m.md.Name(), f.Name, "required field is not set")
			}
			if f.Optional || isMessageField(f) {
				continue
			}
			v = f.ZeroValue()
		}
		if !jm.EmitDefaults && !f.Optional && !f.Required && jsonOmittable(f, v) {
			continue
		}
		rendered, err := jm.marshalValue(f, v)
		if err != nil {
			return nil, wrapEncodeError(m.md.Name(), f.Name, err)
		}
		obj[jm.key(f)] = rendered
	}
	return obj, nil
}

func (jm *JSONMarshaler) key(f *schema.Field) string {
	if jm.OrigName {
		return f.Name
	}
	return f.JSONName
}

func isMessageField(f *schema.Field) bool {
	if f.IsMap() || f.Repeated {
		return false
	}
	_, ok := f.Type.(*schema.MessageRef)
	return ok
}

// jsonOmittable reports whether the value is the field's zero form,
// omitted for fields without explicit presence.
func jsonOmittable(f *schema.Field, v interface{}) bool {
	switch {
	case f.IsMap():
		return len(v.(map[interface{}]interface{})) == 0
	case f.Repeated:
		return len(v.([]interface{})) == 0
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

func (jm *JSONMarshaler) marshalValue(f *schema.Field, v interface{}) (interface{}, error) {
	switch {
	case f.IsMap():
		entries := v.(map[interface{}]interface{})
		obj := make(map[string]interface{}, len(entries))
		for k, e := range entries {
			rendered, err := jm.marshalSingular(f.MapValue, e)
			if err != nil {
				return nil, errors.Wrapf(err, "map value for key %v", k)
			}
			obj[mapKeyString(k)] = rendered
		}
		return obj, nil
	case f.Repeated:
		elems := v.([]interface{})
		out := make([]interface{}, len(elems))
		for i, e := range elems {
			rendered, err := jm.marshalSingular(f.Type, e)
			if err != nil {
				return nil, errors.Wrapf(err, "element %d", i)
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return jm.marshalSingular(f.Type, v)
	}
}

func (jm *JSONMarshaler) marshalSingular(t schema.Type, v interface{}) (interface{}, error) {
	switch typ := t.(type) {
	case schema.Scalar:
		return marshalScalarJSON(typ, v)
	case *schema.Enum:
		norm, err := typ.Normalize(v)
		if err != nil {
			return nil, err
		}
		n := norm.(int32)
		if typ.Name() == nullValueName {
			return nil, nil
		}
		if jm.EnumsAsInts {
			return n, nil
		}
		if name, found := typ.NameByNumber(n); found {
			return name, nil
		}
		return n, nil
	default:
		sub, ok := v.(*Message)
		if !ok || sub == nil {
			return nil, errors.Errorf("expected a %s message value, got %T", t.TypeName(), v)
		}
		return jm.marshalMessage(sub)
	}
}

func marshalScalarJSON(s schema.Scalar, v interface{}) (interface{}, error) {
	n, err := s.Normalize(v)
	if err != nil {
		return nil, err
	}
	switch s {
	case schema.Int64, schema.SInt64, schema.SFixed64:
		return strconv.FormatInt(n.(int64), 10), nil
	case schema.UInt64, schema.Fixed64:
		return strconv.FormatUint(n.(uint64), 10), nil
	case schema.Double:
		return jsonFloat(n.(float64), 64), nil
	case schema.Float:
		return jsonFloat(float64(n.(float32)), 32), nil
	case schema.Bytes:
		return base64.StdEncoding.EncodeToString(n.([]byte)), nil
	default:
		return n, nil
	}
}

// jsonFloat renders a float as a JSON number, or as the literal strings
// for the three values JSON numbers cannot carry.
func jsonFloat(f float64, bits int) interface{} {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return json.Number(strconv.FormatFloat(f, 'g', -1, bits))
}

func mapKeyString(k interface{}) string {
	switch x := k.(type) {
	case bool:
		return strconv.FormatBool(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	default:
		return x.(string)
	}
}

// JSONUnmarshaler parses the canonical JSON mapping. Both the canonical
// JSON name and the declared name of each field are accepted.
type JSONUnmarshaler struct {
	// AllowUnknownFields ignores object keys the schema does not declare
	// instead of failing.
	AllowUnknownFields bool

	// Resolver looks up the types carried by google.protobuf.Any values.
	Resolver AnyResolver
}

// Unmarshal parses JSON text into m, replacing its contents.
func (ju *JSONUnmarshaler) Unmarshal(data []byte, m *Message) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return wrapDecodeError(m.md.Name(), "", err)
	}
	if dec.More() {
		return decodeErrorf(m.md.Name(), "", "unexpected data after the top-level value")
	}
	return ju.UnmarshalValue(v, m)
}

// UnmarshalValue applies an already-parsed JSON value, as produced by
// encoding/json into interface{}, to m, replacing its contents.
func (ju *JSONUnmarshaler) UnmarshalValue(v interface{}, m *Message) error {
	m.Reset()
	if err := ju.unmarshalMessage(v, m); err != nil {
		return err
	}
	return checkRequired(m)
}

func (ju *JSONUnmarshaler) unmarshalMessage(v interface{}, m *Message) error {
	if wk, ok := wellKnownTypes[m.md.Name()]; ok {
		if err := wk.unmarshal(ju, v, m); err != nil {
			return wrapDecodeError(m.md.Name(), "", err)
		}
		return nil
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return decodeErrorf(m.md.Name(), "", "expected a JSON object, got %s", jsonTypeName(v))
	}
	return ju.unmarshalObject(obj, m)
}

func (ju *JSONUnmarshaler) unmarshalObject(obj map[string]interface{}, m *Message) error {
	seen := map[*schema.Oneof]string{}
	for key, v := range obj {
		f := m.md.FindJSONName(key)
		if f == nil {
			if ju.AllowUnknownFields {
				continue
			}
			return decodeErrorf(m.md.Name(), "", "unknown field %q", key)
		}
		if f.Oneof != nil {
			if prev, dup := seen[f.Oneof]; dup {
				return decodeErrorf(m.md.Name(), f.Oneof.Name, "oneof keys %q and %q are mutually exclusive", prev, key)
			}
			seen[f.Oneof] = key
		}
		if v == nil && !takesJSONNull(f) {
			m.Clear(f)
			continue
		}
		if err := ju.unmarshalField(f, v, m); err != nil {
			return wrapDecodeError(m.md.Name(), f.Name, err)
		}
	}
	return nil
}

// takesJSONNull reports the two schema positions where a JSON null is a
// value rather than an absence: google.protobuf.Value messages and
// google.protobuf.NullValue enums.
func takesJSONNull(f *schema.Field) bool {
	if f.IsMap() || f.Repeated {
		return false
	}
	switch t := f.Type.(type) {
	case *schema.Enum:
		return t.Name() == nullValueName
	case *schema.MessageRef:
		return t.TypeName() == valueName
	default:
		return false
	}
}

func (ju *JSONUnmarshaler) unmarshalField(f *schema.Field, v interface{}, m *Message) error {
	switch {
	case f.IsMap():
		obj, ok := v.(map[string]interface{})
		if !ok {
			return errors.Errorf("expected a JSON object, got %s", jsonTypeName(v))
		}
		entries := map[interface{}]interface{}{}
		for ks, ev := range obj {
			k, err := unmarshalMapKey(f.MapKey, ks)
			if err != nil {
				return err
			}
			e, err := ju.unmarshalSingular(f.MapValue, ev)
			if err != nil {
				return errors.Wrapf(err, "map value for key %q", ks)
			}
			entries[k] = e
		}
		m.setValue(f, entries)
		return nil
	case f.Repeated:
		arr, ok := v.([]interface{})
		if !ok {
			return errors.Errorf("expected a JSON array, got %s", jsonTypeName(v))
		}
		elems := make([]interface{}, len(arr))
		for i, ev := range arr {
			e, err := ju.unmarshalSingular(f.Type, ev)
			if err != nil {
				return errors.Wrapf(err, "element %d", i)
			}
			elems[i] = e
		}
		m.setValue(f, elems)
		return nil
	default:
		e, err := ju.unmarshalSingular(f.Type, v)
		if err != nil {
			return err
		}
		m.setValue(f, e)
		return nil
	}
}

func (ju *JSONUnmarshaler) unmarshalSingular(t schema.Type, v interface{}) (interface{}, error) {
	switch typ := t.(type) {
	case schema.Scalar:
		return unmarshalScalarJSON(typ, v)
	case *schema.Enum:
		return ju.unmarshalEnum(typ, v)
	default:
		ref := t.(*schema.MessageRef)
		md := ref.Message()
		if v == nil && md.Name() != valueName {
			return nil, errors.New("unexpected JSON null")
		}
		sub := New(md)
		if err := ju.unmarshalMessage(v, sub); err != nil {
			return nil, err
		}
		return sub, nil
	}
}

func (ju *JSONUnmarshaler) unmarshalEnum(e *schema.Enum, v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case nil:
		if e.Name() == nullValueName {
			return int32(0), nil
		}
		return nil, errors.New("unexpected JSON null")
	case string:
		n, ok := e.NumberByName(x)
		if !ok {
			return nil, errors.Errorf("unknown value %q for enum %s", x, e.Name())
		}
		return n, nil
	case json.Number, float64:
		norm, err := schema.Int32.Normalize(v)
		if err != nil {
			return nil, err
		}
		n := norm.(int32)
		if !e.Open() {
			if _, declared := e.NameByNumber(n); !declared {
				return nil, errors.Errorf("unknown number %d for closed enum %s", n, e.Name())
			}
		}
		return n, nil
	default:
		return nil, errors.Errorf("expected an enum name or number, got %s", jsonTypeName(v))
	}
}

// unmarshalScalarJSON parses one scalar with the strict canonical typing
// rules: booleans and strings must use the matching JSON type, integers
// accept numbers or decimal strings, floats additionally accept the
// non-finite literals.
func unmarshalScalarJSON(s schema.Scalar, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, errors.New("unexpected JSON null")
	}
	switch s {
	case schema.Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, errors.Errorf("expected a boolean, got %s", jsonTypeName(v))
		}
		return b, nil
	case schema.String:
		str, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("expected a string, got %s", jsonTypeName(v))
		}
		return str, nil
	case schema.Bytes:
		str, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("expected a base64 string, got %s", jsonTypeName(v))
		}
		return decodeBase64(str)
	case schema.Double, schema.Float:
		f, err := parseJSONFloat(v)
		if err != nil {
			return nil, err
		}
		return s.Normalize(f)
	default:
		switch v.(type) {
		case json.Number, float64, string:
			return s.Normalize(v)
		default:
			return nil, errors.Errorf("expected a number or decimal string, got %s", jsonTypeName(v))
		}
	}
}

func parseJSONFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, errors.Errorf("cannot parse %q as a number", x.String())
		}
		return f, nil
	case float64:
		return x, nil
	case string:
		switch x {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
		// The string must itself be a JSON number; parsing it as one
		// rejects hex, inf and friends.
		var f float64
		if err := json.Unmarshal([]byte(x), &f); err != nil {
			return 0, errors.Errorf("cannot parse %q as a number", x)
		}
		return f, nil
	default:
		return 0, errors.Errorf("expected a number, got %s", jsonTypeName(v))
	}
}

func unmarshalMapKey(s schema.Scalar, key string) (interface{}, error) {
	switch s {
	case schema.Bool:
		switch key {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, errors.Errorf("invalid bool map key %q", key)
	case schema.String:
		return key, nil
	default:
		v, err := s.Normalize(key)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid map key %q", key)
		}
		return v, nil
	}
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		if raw, err := enc.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	return nil, errors.Errorf("invalid base64 string %q", s)
}

func jsonTypeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// MarshalJSON implements json.Marshaler with default options.
func (m *Message) MarshalJSON() ([]byte, error) {
	return (&JSONMarshaler{}).Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler with default options.
func (m *Message) UnmarshalJSON(data []byte) error {
	return (&JSONUnmarshaler{}).Unmarshal(data, m)
}
