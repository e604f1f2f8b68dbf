package dynamic

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Full names of the types with a special JSON mapping.
const (
	timestampName = "google.protobuf.Timestamp"
	durationName  = "google.protobuf.Duration"
	anyName       = "google.protobuf.Any"
	structName    = "google.protobuf.Struct"
	valueName     = "google.protobuf.Value"
	listValueName = "google.protobuf.ListValue"
	fieldMaskName = "google.protobuf.FieldMask"
	emptyName     = "google.protobuf.Empty"
	nullValueName = "google.protobuf.NullValue"
)

// A wellKnown pairs the JSON renderer and parser that replace the
// generic object mapping for one type, selected by full name.
type wellKnown struct {
	marshal   func(jm *JSONMarshaler, m *Message) (interface{}, error)
	unmarshal func(ju *JSONUnmarshaler, v interface{}, m *Message) error
}

var wrapperJSON = wellKnown{marshalWrapperJSON, unmarshalWrapperJSON}

var wellKnownTypes = map[string]wellKnown{
	timestampName:                 {marshalTimestampJSON, unmarshalTimestampJSON},
	durationName:                  {marshalDurationJSON, unmarshalDurationJSON},
	anyName:                       {marshalAnyJSON, unmarshalAnyJSON},
	structName:                    {marshalStructJSON, unmarshalStructJSON},
	valueName:                     {marshalValueJSON, unmarshalValueJSON},
	listValueName:                 {marshalListValueJSON, unmarshalListValueJSON},
	fieldMaskName:                 {marshalFieldMaskJSON, unmarshalFieldMaskJSON},
	emptyName:                     {marshalEmptyJSON, unmarshalEmptyJSON},
	"google.protobuf.DoubleValue": wrapperJSON,
	"google.protobuf.FloatValue":  wrapperJSON,
	"google.protobuf.Int64Value":  wrapperJSON,
	"google.protobuf.UInt64Value": wrapperJSON,
	"google.protobuf.Int32Value":  wrapperJSON,
	"google.protobuf.UInt32Value": wrapperJSON,
	"google.protobuf.BoolValue":   wrapperJSON,
	"google.protobuf.StringValue": wrapperJSON,
	"google.protobuf.BytesValue":  wrapperJSON,
}

// The Timestamp seconds range covering years 0001 through 9999, the only
// years the JSON form may carry.
const (
	minTimestampSeconds = -62135596800
	maxTimestampSeconds = 253402300799
)

func marshalTimestampJSON(jm *JSONMarshaler, m *Message) (interface{}, error) {
	seconds, _ := m.values[1].(int64)
	nanos, _ := m.values[2].(int32)
	if seconds < minTimestampSeconds || seconds > maxTimestampSeconds {
		return nil, errors.Errorf("timestamp seconds %d outside the representable years 0001-9999", seconds)
	}
	if nanos < 0 || nanos >= 1e9 {
		return nil, errors.Errorf("timestamp nanos %d outside [0, 1e9)", nanos)
	}
	t := time.Unix(seconds, int64(nanos)).UTC()
	return t.Format("2006-01-02T15:04:05") + fracSeconds(nanos) + "Z", nil
}

func unmarshalTimestampJSON(ju *JSONUnmarshaler, v interface{}, m *Message) error {
	s, ok := v.(string)
	if !ok {
		return errors.Errorf("expected an RFC 3339 string, got %s", jsonTypeName(v))
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return errors.Errorf("invalid RFC 3339 timestamp %q", s)
	}
	seconds := t.Unix()
	if seconds < minTimestampSeconds || seconds > maxTimestampSeconds {
		return errors.Errorf("timestamp %q outside the representable years 0001-9999", s)
	}
	return setMessageFields(m, map[int32]interface{}{1: seconds, 2: int32(t.Nanosecond())})
}

// fracSeconds renders nanoseconds as a fractional second with 3, 6 or 9
// digits, or nothing for zero.
func fracSeconds(nanos int32) string {
	if nanos == 0 {
		return ""
	}
	s := fmt.Sprintf(".%09d", nanos)
	for strings.HasSuffix(s, "000") {
		s = s[:len(s)-3]
	}
	return s
}

// The Duration seconds bound, about 10000 years either way.
const maxDurationSeconds = 315576000000

func marshalDurationJSON(jm *JSONMarshaler, m *Message) (interface{}, error) {
	seconds, _ := m.values[1].(int64)
	nanos, _ := m.values[2].(int32)
	if seconds < -maxDurationSeconds || seconds > maxDurationSeconds {
		return nil, errors.Errorf("duration seconds %d outside the representable range", seconds)
	}
	if nanos <= -1e9 || nanos >= 1e9 {
		return nil, errors.Errorf("duration nanos %d outside (-1e9, 1e9)", nanos)
	}
	if seconds != 0 && nanos != 0 && (seconds < 0) != (nanos < 0) {
		return nil, errors.New("duration seconds and nanos have opposing signs")
	}
	sign := ""
	if seconds < 0 || nanos < 0 {
		sign = "-"
		seconds, nanos = -seconds, -nanos
	}
	return fmt.Sprintf("%s%d%ss", sign, seconds, fracSeconds(nanos)), nil
}

func unmarshalDurationJSON(ju *JSONUnmarshaler, v interface{}, m *Message) error {
	str, ok := v.(string)
	if !ok {
		return errors.Errorf("expected a duration string, got %s", jsonTypeName(v))
	}
	body, ok := strings.CutSuffix(str, "s")
	if !ok {
		return errors.Errorf("duration %q does not end in s", str)
	}
	neg := strings.HasPrefix(body, "-")
	if neg {
		body = body[1:]
	}
	intPart, fracPart, hasFrac := strings.Cut(body, ".")
	seconds, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || seconds < 0 || seconds > maxDurationSeconds {
		return errors.Errorf("invalid duration %q", str)
	}
	var nanos int64
	if hasFrac {
		if fracPart == "" || len(fracPart) > 9 {
			return errors.Errorf("invalid duration %q", str)
		}
		n, err := strconv.ParseUint(fracPart, 10, 64)
		if err != nil {
			return errors.Errorf("invalid duration %q", str)
		}
		nanos = int64(n)
		for i := len(fracPart); i < 9; i++ {
			nanos *= 10
		}
	}
	if neg {
		seconds, nanos = -seconds, -nanos
	}
	return setMessageFields(m, map[int32]interface{}{1: seconds, 2: int32(nanos)})
}

func marshalWrapperJSON(jm *JSONMarshaler, m *Message) (interface{}, error) {
	f := m.md.Find(1)
	if f == nil {
		return nil, errors.Errorf("%s does not declare a value field", m.md.Name())
	}
	return jm.marshalSingular(f.Type, m.Get(f))
}

func unmarshalWrapperJSON(ju *JSONUnmarshaler, v interface{}, m *Message) error {
	f := m.md.Find(1)
	if f == nil {
		return errors.Errorf("%s does not declare a value field", m.md.Name())
	}
	e, err := ju.unmarshalSingular(f.Type, v)
	if err != nil {
		return err
	}
	m.setValue(f, e)
	return nil
}

func marshalStructJSON(jm *JSONMarshaler, m *Message) (interface{}, error) {
	f := m.md.Find(1)
	if f == nil || !f.IsMap() {
		return nil, errors.Errorf("%s does not declare a fields map", m.md.Name())
	}
	return jm.marshalValue(f, m.Get(f))
}

func unmarshalStructJSON(ju *JSONUnmarshaler, v interface{}, m *Message) error {
	f := m.md.Find(1)
	if f == nil || !f.IsMap() {
		return errors.Errorf("%s does not declare a fields map", m.md.Name())
	}
	if _, ok := v.(map[string]interface{}); !ok {
		return errors.Errorf("expected a JSON object, got %s", jsonTypeName(v))
	}
	return ju.unmarshalField(f, v, m)
}

func marshalValueJSON(jm *JSONMarshaler, m *Message) (interface{}, error) {
	oneofs := m.md.Oneofs()
	if len(oneofs) == 0 {
		return nil, errors.Errorf("%s does not declare a kind", m.md.Name())
	}
	f := m.WhichOneof(oneofs[0])
	if f == nil {
		return nil, errors.New("value has no kind set")
	}
	v := m.values[f.Number]
	switch f.Name {
	case "null_value":
		return nil, nil
	case "number_value":
		// A JSON number cannot carry these, and Value has no literal
		// escape hatch.
		if n, ok := v.(float64); ok && (math.IsNaN(n) || math.IsInf(n, 0)) {
			return nil, errors.Errorf("number value %v cannot be represented in JSON", n)
		}
		return jm.marshalSingular(f.Type, v)
	default:
		return jm.marshalSingular(f.Type, v)
	}
}

func unmarshalValueJSON(ju *JSONUnmarshaler, v interface{}, m *Message) error {
	set := func(name string, val interface{}) error {
		f := m.md.FindName(name)
		if f == nil {
			return errors.Errorf("%s does not declare field %s", m.md.Name(), name)
		}
		e, err := ju.unmarshalSingular(f.Type, val)
		if err != nil {
			return err
		}
		m.setValue(f, e)
		return nil
	}
	switch x := v.(type) {
	case nil:
		f := m.md.FindName("null_value")
		if f == nil {
			return errors.Errorf("%s does not declare field null_value", m.md.Name())
		}
		m.setValue(f, int32(0))
		return nil
	case bool:
		return set("bool_value", x)
	case string:
		return set("string_value", x)
	case json.Number:
		return set("number_value", x)
	case float64:
		return set("number_value", x)
	case []interface{}:
		return set("list_value", x)
	case map[string]interface{}:
		return set("struct_value", x)
	default:
		return errors.Errorf("unsupported JSON value of type %T", v)
	}
}

func marshalListValueJSON(jm *JSONMarshaler, m *Message) (interface{}, error) {
	f := m.md.Find(1)
	if f == nil || !f.Repeated {
		return nil, errors.Errorf("%s does not declare a values list", m.md.Name())
	}
	return jm.marshalValue(f, m.Get(f))
}

func unmarshalListValueJSON(ju *JSONUnmarshaler, v interface{}, m *Message) error {
	f := m.md.Find(1)
	if f == nil || !f.Repeated {
		return errors.Errorf("%s does not declare a values list", m.md.Name())
	}
	if _, ok := v.([]interface{}); !ok {
		return errors.Errorf("expected a JSON array, got %s", jsonTypeName(v))
	}
	return ju.unmarshalField(f, v, m)
}

func marshalAnyJSON(jm *JSONMarshaler, m *Message) (interface{}, error) {
	url, _ := m.values[1].(string)
	raw, _ := m.values[2].([]byte)
	if url == "" && len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	if url == "" {
		return nil, errors.New("any value has no type URL")
	}
	if jm.Resolver == nil {
		return nil, errors.Errorf("no resolver to look up %q", url)
	}
	md, err := jm.Resolver.FindMessageByURL(url)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %q", url)
	}
	inner := New(md)
	if err := inner.Unmarshal(raw); err != nil {
		return nil, err
	}
	rendered, err := jm.marshalMessage(inner)
	if err != nil {
		return nil, err
	}
	if _, special := wellKnownTypes[md.Name()]; special {
		return map[string]interface{}{"@type": url, "value": rendered}, nil
	}
	obj := rendered.(map[string]interface{})
	obj["@type"] = url
	return obj, nil
}

func unmarshalAnyJSON(ju *JSONUnmarshaler, v interface{}, m *Message) error {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return errors.Errorf("expected a JSON object, got %s", jsonTypeName(v))
	}
	if len(obj) == 0 {
		return nil
	}
	tv, ok := obj["@type"]
	if !ok {
		return errors.New("any object is missing the @type key")
	}
	url, ok := tv.(string)
	if !ok {
		return errors.Errorf("@type must be a string, got %s", jsonTypeName(tv))
	}
	if ju.Resolver == nil {
		return errors.Errorf("no resolver to look up %q", url)
	}
	md, err := ju.Resolver.FindMessageByURL(url)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve %q", url)
	}
	inner := New(md)
	if _, special := wellKnownTypes[md.Name()]; special {
		payload, ok := obj["value"]
		if !ok {
			return errors.Errorf("any carrying %s is missing the value key", md.Name())
		}
		if err := ju.unmarshalMessage(payload, inner); err != nil {
			return err
		}
	} else {
		fields := make(map[string]interface{}, len(obj))
		for k, e := range obj {
			if k != "@type" {
				fields[k] = e
			}
		}
		if err := ju.unmarshalMessage(fields, inner); err != nil {
			return err
		}
	}
	raw, err := inner.Marshal()
	if err != nil {
		return err
	}
	return setMessageFields(m, map[int32]interface{}{1: url, 2: raw})
}

func marshalFieldMaskJSON(jm *JSONMarshaler, m *Message) (interface{}, error) {
	f := m.md.Find(1)
	if f == nil || !f.Repeated {
		return nil, errors.Errorf("%s does not declare a paths list", m.md.Name())
	}
	paths, _ := m.values[f.Number].([]interface{})
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		s, ok := p.(string)
		if !ok {
			return nil, errors.Errorf("field mask path of type %T", p)
		}
		camel, err := fieldMaskPathToCamel(s)
		if err != nil {
			return nil, err
		}
		parts = append(parts, camel)
	}
	return strings.Join(parts, ","), nil
}

func unmarshalFieldMaskJSON(ju *JSONUnmarshaler, v interface{}, m *Message) error {
	str, ok := v.(string)
	if !ok {
		return errors.Errorf("expected a string, got %s", jsonTypeName(v))
	}
	f := m.md.Find(1)
	if f == nil || !f.Repeated {
		return errors.Errorf("%s does not declare a paths list", m.md.Name())
	}
	if str == "" {
		m.setValue(f, []interface{}{})
		return nil
	}
	parts := strings.Split(str, ",")
	paths := make([]interface{}, len(parts))
	for i, p := range parts {
		snake, err := fieldMaskPathToSnake(p)
		if err != nil {
			return err
		}
		paths[i] = snake
	}
	m.setValue(f, paths)
	return nil
}

// fieldMaskPathToCamel converts one snake_case path to lowerCamelCase,
// failing on paths that cannot round-trip.
func fieldMaskPathToCamel(path string) (string, error) {
	var sb strings.Builder
	up := false
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case c >= 'A' && c <= 'Z':
			return "", errors.Errorf("field mask path %q contains uppercase letters", path)
		case c == '_':
			if up || i == 0 || i == len(path)-1 {
				return "", errors.Errorf("invalid field mask path %q", path)
			}
			up = true
		case up:
			if c < 'a' || c > 'z' {
				return "", errors.Errorf("invalid field mask path %q", path)
			}
			sb.WriteByte(c - 'a' + 'A')
			up = false
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}

func fieldMaskPathToSnake(path string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case c == '_':
			return "", errors.Errorf("field mask path %q contains an underscore", path)
		case c >= 'A' && c <= 'Z':
			sb.WriteByte('_')
			sb.WriteByte(c - 'A' + 'a')
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}

func marshalEmptyJSON(jm *JSONMarshaler, m *Message) (interface{}, error) {
	return map[string]interface{}{}, nil
}

func unmarshalEmptyJSON(ju *JSONUnmarshaler, v interface{}, m *Message) error {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return errors.Errorf("expected a JSON object, got %s", jsonTypeName(v))
	}
	return ju.unmarshalObject(obj, m)
}

// setMessageFields sets declared fields by number through the usual
// normalization.
func setMessageFields(m *Message, values map[int32]interface{}) error {
	for num, v := range values {
		f := m.md.Find(num)
		if f == nil {
			return errors.Errorf("%s does not declare field %d", m.md.Name(), num)
		}
		if err := m.Set(f, v); err != nil {
			return err
		}
	}
	return nil
}
