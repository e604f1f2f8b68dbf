package known

import (
	"github.com/ktr0731/dynpb/dynamic"
	"github.com/ktr0731/dynpb/schema"
	"github.com/pkg/errors"
)

// NewDoubleValue returns a google.protobuf.DoubleValue message.
func NewDoubleValue(v float64) *dynamic.Message { return newWrapper(DoubleValueType(), v) }

// NewFloatValue returns a google.protobuf.FloatValue message.
func NewFloatValue(v float32) *dynamic.Message { return newWrapper(FloatValueType(), v) }

// NewInt64Value returns a google.protobuf.Int64Value message.
func NewInt64Value(v int64) *dynamic.Message { return newWrapper(Int64ValueType(), v) }

// NewUInt64Value returns a google.protobuf.UInt64Value message.
func NewUInt64Value(v uint64) *dynamic.Message { return newWrapper(UInt64ValueType(), v) }

// NewInt32Value returns a google.protobuf.Int32Value message.
func NewInt32Value(v int32) *dynamic.Message { return newWrapper(Int32ValueType(), v) }

// NewUInt32Value returns a google.protobuf.UInt32Value message.
func NewUInt32Value(v uint32) *dynamic.Message { return newWrapper(UInt32ValueType(), v) }

// NewBoolValue returns a google.protobuf.BoolValue message.
func NewBoolValue(v bool) *dynamic.Message { return newWrapper(BoolValueType(), v) }

// NewStringValue returns a google.protobuf.StringValue message.
func NewStringValue(v string) *dynamic.Message { return newWrapper(StringValueType(), v) }

// NewBytesValue returns a google.protobuf.BytesValue message.
func NewBytesValue(v []byte) *dynamic.Message { return newWrapper(BytesValueType(), v) }

func newWrapper(md *schema.Message, v interface{}) *dynamic.Message {
	m := dynamic.New(md)
	mustSet(m, 1, v)
	return m
}

// Unwrap returns the value held by any of the nine wrapper messages,
// in the value's canonical Go representation.
func Unwrap(m *dynamic.Message) (interface{}, error) {
	md := m.Descriptor()
	if _, ok := wrapperKinds[md.Name()]; !ok {
		return nil, errors.Errorf("%s is not a wrapper type", md.Name())
	}
	return m.Get(md.Find(1)), nil
}

// NewFieldMask returns a google.protobuf.FieldMask message over the
// given paths.
func NewFieldMask(paths ...string) *dynamic.Message {
	elems := make([]interface{}, len(paths))
	for i, p := range paths {
		elems[i] = p
	}
	m := dynamic.New(FieldMaskType())
	mustSet(m, 1, elems)
	return m
}

// NewEmpty returns a google.protobuf.Empty message.
func NewEmpty() *dynamic.Message {
	return dynamic.New(EmptyType())
}
