// Package known hand-builds the schemas of the google.protobuf
// well-known types and provides typed constructors and accessors for
// dynamic messages of those types.
package known

import (
	"sync"

	"github.com/ktr0731/dynpb/dynamic"
	"github.com/ktr0731/dynpb/schema"
	"github.com/pkg/errors"
)

// messageCell builds one message type lazily, once.
type messageCell struct {
	once sync.Once
	m    *schema.Message
}

func (c *messageCell) get(build func() *schema.Message) *schema.Message {
	c.once.Do(func() { c.m = build() })
	return c.m
}

func mustMessage(name string, fields []*schema.Field, oneofs []*schema.Oneof) *schema.Message {
	m, err := schema.NewMessage(name, fields, oneofs, schema.MessageOptions{PackedByDefault: true})
	if err != nil {
		panic(err)
	}
	return m
}

var (
	timestampCell messageCell
	durationCell  messageCell
	anyCell       messageCell
	structCell    messageCell
	valueCell     messageCell
	listValueCell messageCell
	fieldMaskCell messageCell
	emptyCell     messageCell
)

// TimestampType returns the schema of google.protobuf.Timestamp.
func TimestampType() *schema.Message {
	return timestampCell.get(func() *schema.Message {
		return mustMessage("google.protobuf.Timestamp", []*schema.Field{
			{Number: 1, Name: "seconds", Type: schema.Int64},
			{Number: 2, Name: "nanos", Type: schema.Int32},
		}, nil)
	})
}

// DurationType returns the schema of google.protobuf.Duration.
func DurationType() *schema.Message {
	return durationCell.get(func() *schema.Message {
		return mustMessage("google.protobuf.Duration", []*schema.Field{
			{Number: 1, Name: "seconds", Type: schema.Int64},
			{Number: 2, Name: "nanos", Type: schema.Int32},
		}, nil)
	})
}

// AnyType returns the schema of google.protobuf.Any.
func AnyType() *schema.Message {
	return anyCell.get(func() *schema.Message {
		return mustMessage("google.protobuf.Any", []*schema.Field{
			{Number: 1, Name: "type_url", Type: schema.String},
			{Number: 2, Name: "value", Type: schema.Bytes},
		}, nil)
	})
}

// StructType returns the schema of google.protobuf.Struct.
func StructType() *schema.Message {
	return structCell.get(func() *schema.Message {
		return mustMessage("google.protobuf.Struct", []*schema.Field{
			{Number: 1, Name: "fields", MapKey: schema.String, MapValue: schema.LazyMessageRef(ValueType)},
		}, nil)
	})
}

// ValueType returns the schema of google.protobuf.Value.
func ValueType() *schema.Message {
	return valueCell.get(func() *schema.Message {
		kind := &schema.Oneof{Name: "kind"}
		fields := []*schema.Field{
			{Number: 1, Name: "null_value", Type: NullValueEnum(), Oneof: kind},
			{Number: 2, Name: "number_value", Type: schema.Double, Oneof: kind},
			{Number: 3, Name: "string_value", Type: schema.String, Oneof: kind},
			{Number: 4, Name: "bool_value", Type: schema.Bool, Oneof: kind},
			{Number: 5, Name: "struct_value", Type: schema.LazyMessageRef(StructType), Oneof: kind},
			{Number: 6, Name: "list_value", Type: schema.LazyMessageRef(ListValueType), Oneof: kind},
		}
		kind.Fields = fields
		return mustMessage("google.protobuf.Value", fields, []*schema.Oneof{kind})
	})
}

// ListValueType returns the schema of google.protobuf.ListValue.
func ListValueType() *schema.Message {
	return listValueCell.get(func() *schema.Message {
		return mustMessage("google.protobuf.ListValue", []*schema.Field{
			{Number: 1, Name: "values", Type: schema.LazyMessageRef(ValueType), Repeated: true},
		}, nil)
	})
}

// FieldMaskType returns the schema of google.protobuf.FieldMask.
func FieldMaskType() *schema.Message {
	return fieldMaskCell.get(func() *schema.Message {
		return mustMessage("google.protobuf.FieldMask", []*schema.Field{
			{Number: 1, Name: "paths", Type: schema.String, Repeated: true},
		}, nil)
	})
}

// EmptyType returns the schema of google.protobuf.Empty.
func EmptyType() *schema.Message {
	return emptyCell.get(func() *schema.Message {
		return mustMessage("google.protobuf.Empty", nil, nil)
	})
}

var (
	nullValueOnce sync.Once
	nullValueEnum *schema.Enum
)

// NullValueEnum returns the schema of google.protobuf.NullValue.
func NullValueEnum() *schema.Enum {
	nullValueOnce.Do(func() {
		e, err := schema.NewEnum("google.protobuf.NullValue", []schema.EnumValue{
			{Name: "NULL_VALUE", Number: 0},
		}, schema.EnumOptions{Open: true})
		if err != nil {
			panic(err)
		}
		nullValueEnum = e
	})
	return nullValueEnum
}

// wrapperKinds maps each google.protobuf wrapper type to the scalar
// kind of its single value field.
var wrapperKinds = map[string]schema.Scalar{
	"google.protobuf.DoubleValue": schema.Double,
	"google.protobuf.FloatValue":  schema.Float,
	"google.protobuf.Int64Value":  schema.Int64,
	"google.protobuf.UInt64Value": schema.UInt64,
	"google.protobuf.Int32Value":  schema.Int32,
	"google.protobuf.UInt32Value": schema.UInt32,
	"google.protobuf.BoolValue":   schema.Bool,
	"google.protobuf.StringValue": schema.String,
	"google.protobuf.BytesValue":  schema.Bytes,
}

var (
	wrappersOnce sync.Once
	wrapperTypes map[string]*schema.Message
)

func wrapperType(name string) *schema.Message {
	wrappersOnce.Do(func() {
		wrapperTypes = make(map[string]*schema.Message, len(wrapperKinds))
		for n, kind := range wrapperKinds {
			wrapperTypes[n] = mustMessage(n, []*schema.Field{
				{Number: 1, Name: "value", Type: kind},
			}, nil)
		}
	})
	return wrapperTypes[name]
}

// DoubleValueType returns the schema of google.protobuf.DoubleValue.
func DoubleValueType() *schema.Message { return wrapperType("google.protobuf.DoubleValue") }

// FloatValueType returns the schema of google.protobuf.FloatValue.
func FloatValueType() *schema.Message { return wrapperType("google.protobuf.FloatValue") }

// Int64ValueType returns the schema of google.protobuf.Int64Value.
func Int64ValueType() *schema.Message { return wrapperType("google.protobuf.Int64Value") }

// UInt64ValueType returns the schema of google.protobuf.UInt64Value.
func UInt64ValueType() *schema.Message { return wrapperType("google.protobuf.UInt64Value") }

// Int32ValueType returns the schema of google.protobuf.Int32Value.
func Int32ValueType() *schema.Message { return wrapperType("google.protobuf.Int32Value") }

// UInt32ValueType returns the schema of google.protobuf.UInt32Value.
func UInt32ValueType() *schema.Message { return wrapperType("google.protobuf.UInt32Value") }

// BoolValueType returns the schema of google.protobuf.BoolValue.
func BoolValueType() *schema.Message { return wrapperType("google.protobuf.BoolValue") }

// StringValueType returns the schema of google.protobuf.StringValue.
func StringValueType() *schema.Message { return wrapperType("google.protobuf.StringValue") }

// BytesValueType returns the schema of google.protobuf.BytesValue.
func BytesValueType() *schema.Message { return wrapperType("google.protobuf.BytesValue") }

// TypeByName returns the schema of the named well-known type, or nil
// if name is not one of them.
func TypeByName(name string) *schema.Message {
	switch name {
	case "google.protobuf.Timestamp":
		return TimestampType()
	case "google.protobuf.Duration":
		return DurationType()
	case "google.protobuf.Any":
		return AnyType()
	case "google.protobuf.Struct":
		return StructType()
	case "google.protobuf.Value":
		return ValueType()
	case "google.protobuf.ListValue":
		return ListValueType()
	case "google.protobuf.FieldMask":
		return FieldMaskType()
	case "google.protobuf.Empty":
		return EmptyType()
	}
	if _, ok := wrapperKinds[name]; ok {
		return wrapperType(name)
	}
	return nil
}

// Resolver resolves Any type URLs against the well-known types alone.
// It implements dynamic.AnyResolver.
type Resolver struct{}

// FindMessageByURL returns the well-known type named by the last path
// element of url.
func (Resolver) FindMessageByURL(url string) (*schema.Message, error) {
	name := url
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			name = url[i+1:]
			break
		}
	}
	if m := TypeByName(name); m != nil {
		return m, nil
	}
	return nil, errors.Errorf("unknown message type %s", name)
}

// mustSet assigns a field that is known to accept the value. The
// hand-built schemas above make a failure a programming error.
func mustSet(m *dynamic.Message, number int32, v interface{}) {
	md := m.Descriptor()
	if err := m.Set(md.Find(number), v); err != nil {
		panic(err)
	}
}

func expectType(m *dynamic.Message, name string) error {
	if got := m.Descriptor().Name(); got != name {
		return errors.Errorf("expected a %s message, got %s", name, got)
	}
	return nil
}
