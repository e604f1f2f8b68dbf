package known

import (
	"encoding/base64"

	"github.com/ktr0731/dynpb/dynamic"
	"github.com/pkg/errors"
)

// NewStruct builds a google.protobuf.Struct message from a generic
// map. Values follow the NewValue conversion rules.
func NewStruct(fields map[string]interface{}) (*dynamic.Message, error) {
	entries := make(map[interface{}]interface{}, len(fields))
	for k, v := range fields {
		val, err := NewValue(v)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", k)
		}
		entries[k] = val
	}
	m := dynamic.New(StructType())
	mustSet(m, 1, entries)
	return m, nil
}

// NewValue builds a google.protobuf.Value message from a generic Go
// value. Numbers of any width become number_value, []byte becomes a
// base64 string_value, maps and slices recurse into struct_value and
// list_value, and nil becomes null_value.
func NewValue(v interface{}) (*dynamic.Message, error) {
	m := dynamic.New(ValueType())
	switch x := v.(type) {
	case nil:
		mustSet(m, 1, int32(0))
	case bool:
		mustSet(m, 4, x)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		f := m.Descriptor().Find(2)
		if err := m.Set(f, x); err != nil {
			return nil, err
		}
	case string:
		mustSet(m, 3, x)
	case []byte:
		mustSet(m, 3, base64.StdEncoding.EncodeToString(x))
	case map[string]interface{}:
		sub, err := NewStruct(x)
		if err != nil {
			return nil, err
		}
		mustSet(m, 5, sub)
	case []interface{}:
		sub, err := NewListValue(x)
		if err != nil {
			return nil, err
		}
		mustSet(m, 6, sub)
	default:
		return nil, errors.Errorf("cannot build a value from %T", v)
	}
	return m, nil
}

// NewListValue builds a google.protobuf.ListValue message from a
// generic slice.
func NewListValue(values []interface{}) (*dynamic.Message, error) {
	elems := make([]interface{}, len(values))
	for i, v := range values {
		val, err := NewValue(v)
		if err != nil {
			return nil, errors.Wrapf(err, "element %d", i)
		}
		elems[i] = val
	}
	m := dynamic.New(ListValueType())
	mustSet(m, 1, elems)
	return m, nil
}

// AsMap converts a google.protobuf.Struct message to a generic map.
func AsMap(m *dynamic.Message) (map[string]interface{}, error) {
	if err := expectType(m, "google.protobuf.Struct"); err != nil {
		return nil, err
	}
	md := m.Descriptor()
	entries, ok := m.Get(md.Find(1)).(map[interface{}]interface{})
	if !ok {
		return nil, errors.Errorf("%s holds a malformed fields map", md.Name())
	}
	out := make(map[string]interface{}, len(entries))
	for k, v := range entries {
		key, ok := k.(string)
		if !ok {
			return nil, errors.Errorf("%s holds a non-string map key %v", md.Name(), k)
		}
		val, err := valueAsInterface(v)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", key)
		}
		out[key] = val
	}
	return out, nil
}

// AsInterface converts a google.protobuf.Value message to a generic Go
// value: nil, bool, float64, string, map[string]interface{} or
// []interface{}. A Value with no kind set converts to nil.
func AsInterface(m *dynamic.Message) (interface{}, error) {
	if err := expectType(m, "google.protobuf.Value"); err != nil {
		return nil, err
	}
	md := m.Descriptor()
	f := m.WhichOneof(md.Oneofs()[0])
	if f == nil {
		return nil, nil
	}
	switch f.Name {
	case "null_value":
		return nil, nil
	case "number_value", "string_value", "bool_value":
		return m.Get(f), nil
	case "struct_value":
		sub, ok := m.Get(f).(*dynamic.Message)
		if !ok {
			return nil, errors.Errorf("%s holds a malformed struct_value", md.Name())
		}
		return AsMap(sub)
	case "list_value":
		sub, ok := m.Get(f).(*dynamic.Message)
		if !ok {
			return nil, errors.Errorf("%s holds a malformed list_value", md.Name())
		}
		elems, ok := sub.Get(sub.Descriptor().Find(1)).([]interface{})
		if !ok {
			return nil, errors.Errorf("%s holds a malformed values list", sub.Descriptor().Name())
		}
		out := make([]interface{}, len(elems))
		for i, e := range elems {
			val, err := valueAsInterface(e)
			if err != nil {
				return nil, errors.Wrapf(err, "element %d", i)
			}
			out[i] = val
		}
		return out, nil
	}
	return nil, errors.Errorf("%s declares an unexpected kind member %s", md.Name(), f.Name)
}

func valueAsInterface(v interface{}) (interface{}, error) {
	sub, ok := v.(*dynamic.Message)
	if !ok {
		return nil, errors.Errorf("expected a value message, got %T", v)
	}
	return AsInterface(sub)
}
