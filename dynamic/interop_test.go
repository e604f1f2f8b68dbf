package dynamic

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ktr0731/dynpb/schema"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// The tests below drive this package and the protobuf-go runtime from one
// shared descriptor and require each side to accept the other's output.

func interopFileProto() *descriptorpb.FileDescriptorProto {
	opt := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()
	rep := descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("interop.proto"),
		Package: proto.String("interop"),
		Syntax:  proto.String("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("Status"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("STATUS_UNKNOWN"), Number: proto.Int32(0)},
				{Name: proto.String("ACTIVE"), Number: proto.Int32(1)},
				{Name: proto.String("RETIRED"), Number: proto.Int32(2)},
			},
		}},
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("Item"),
			Field: []*descriptorpb.FieldDescriptorProto{
				{Name: proto.String("id"), Number: proto.Int32(1), Label: opt, Type: descriptorpb.FieldDescriptorProto_TYPE_INT64.Enum()},
				{Name: proto.String("name"), Number: proto.Int32(2), Label: opt, Type: descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum()},
				{Name: proto.String("nums"), Number: proto.Int32(3), Label: rep, Type: descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum()},
				{Name: proto.String("status"), Number: proto.Int32(4), Label: opt, Type: descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum(), TypeName: proto.String(".interop.Status")},
				{Name: proto.String("child"), Number: proto.Int32(5), Label: opt, Type: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(), TypeName: proto.String(".interop.Item")},
				{Name: proto.String("ratio"), Number: proto.Int32(6), Label: opt, Type: descriptorpb.FieldDescriptorProto_TYPE_DOUBLE.Enum()},
				{Name: proto.String("blob"), Number: proto.Int32(7), Label: opt, Type: descriptorpb.FieldDescriptorProto_TYPE_BYTES.Enum()},
				{Name: proto.String("counts"), Number: proto.Int32(8), Label: rep, Type: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(), TypeName: proto.String(".interop.Item.CountsEntry")},
				{Name: proto.String("alias"), Number: proto.Int32(9), Label: opt, Type: descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(), OneofIndex: proto.Int32(0)},
				{Name: proto.String("code"), Number: proto.Int32(10), Label: opt, Type: descriptorpb.FieldDescriptorProto_TYPE_INT64.Enum(), OneofIndex: proto.Int32(0)},
			},
			NestedType: []*descriptorpb.DescriptorProto{{
				Name: proto.String("CountsEntry"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{Name: proto.String("key"), Number: proto.Int32(1), Label: opt, Type: descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum()},
					{Name: proto.String("value"), Number: proto.Int32(2), Label: opt, Type: descriptorpb.FieldDescriptorProto_TYPE_INT64.Enum()},
				},
				Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
			}},
			OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("pick")}},
		}},
	}
}

func interopTypes(t *testing.T) (*schema.Message, protoreflect.MessageDescriptor) {
	t.Helper()
	fdp := interopFileProto()
	files, err := schema.NewFiles(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{fdp}})
	if err != nil {
		t.Fatalf("NewFiles must not return an error, but got '%s'", err)
	}
	md, err := files.Message("interop.Item")
	if err != nil {
		t.Fatalf("Message must not return an error, but got '%s'", err)
	}
	pfd, err := protodesc.NewFile(fdp, nil)
	if err != nil {
		t.Fatalf("protodesc.NewFile must not return an error, but got '%s'", err)
	}
	pmd := pfd.Messages().ByName("Item")
	if pmd == nil {
		t.Fatal("the compiled file must declare Item")
	}
	return md, pmd
}

func interopMine(t *testing.T, md *schema.Message, withMap bool) *Message {
	t.Helper()
	values := map[string]interface{}{
		"id":     int64(42),
		"name":   "dynamic reflection",
		"nums":   []interface{}{int32(3), int32(1), int32(4)},
		"status": "ACTIVE",
		"child":  map[string]interface{}{"id": int64(7)},
		"ratio":  0.5,
		"blob":   []byte{0xde, 0xad, 0xbe, 0xef},
		"alias":  "lizbird",
	}
	if withMap {
		values["counts"] = map[string]interface{}{"a": int64(1), "b": int64(2)}
	}
	m, err := NewFromMap(md, values)
	if err != nil {
		t.Fatalf("NewFromMap must not return an error, but got '%s'", err)
	}
	return m
}

func interopTheirs(t *testing.T, pmd protoreflect.MessageDescriptor, withMap bool) *dynamicpb.Message {
	t.Helper()
	pm := dynamicpb.NewMessage(pmd)
	fields := pmd.Fields()
	set := func(name string, v protoreflect.Value) {
		fd := fields.ByName(protoreflect.Name(name))
		if fd == nil {
			t.Fatalf("Item must declare a field named %s", name)
		}
		pm.Set(fd, v)
	}
	set("id", protoreflect.ValueOfInt64(42))
	set("name", protoreflect.ValueOfString("dynamic reflection"))
	nums := pm.Mutable(fields.ByName("nums")).List()
	for _, n := range []int32{3, 1, 4} {
		nums.Append(protoreflect.ValueOfInt32(n))
	}
	set("status", protoreflect.ValueOfEnum(1))
	child := pm.Mutable(fields.ByName("child")).Message()
	child.Set(fields.ByName("id"), protoreflect.ValueOfInt64(7))
	set("ratio", protoreflect.ValueOfFloat64(0.5))
	set("blob", protoreflect.ValueOfBytes([]byte{0xde, 0xad, 0xbe, 0xef}))
	set("alias", protoreflect.ValueOfString("lizbird"))
	if withMap {
		counts := pm.Mutable(fields.ByName("counts")).Map()
		counts.Set(protoreflect.ValueOfString("a").MapKey(), protoreflect.ValueOfInt64(1))
		counts.Set(protoreflect.ValueOfString("b").MapKey(), protoreflect.ValueOfInt64(2))
	}
	return pm
}

func TestWireInterop(t *testing.T) {
	md, pmd := interopTypes(t)

	t.Run("deterministic encodings match", func(t *testing.T) {
		got, err := interopMine(t, md, false).Marshal()
		if err != nil {
			t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
		}
		want, err := proto.MarshalOptions{Deterministic: true}.Marshal(interopTheirs(t, pmd, false))
		if err != nil {
			t.Fatalf("proto.Marshal must not return errors, but got an error: '%s'", err)
		}
		if !bytes.Equal(want, got) {
			t.Errorf("expected % x, but got % x", want, got)
		}
	})

	t.Run("their bytes decode here", func(t *testing.T) {
		b, err := proto.MarshalOptions{Deterministic: true}.Marshal(interopTheirs(t, pmd, true))
		if err != nil {
			t.Fatalf("proto.Marshal must not return errors, but got an error: '%s'", err)
		}
		m := New(md)
		if err := m.Unmarshal(b); err != nil {
			t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
		}
		if !Equal(m, interopMine(t, md, true)) {
			t.Errorf("the decoded message differs from the directly built one")
		}
	})

	t.Run("our bytes decode there", func(t *testing.T) {
		b, err := interopMine(t, md, true).Marshal()
		if err != nil {
			t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
		}
		pm := dynamicpb.NewMessage(pmd)
		if err := proto.Unmarshal(b, pm); err != nil {
			t.Fatalf("proto.Unmarshal must not return errors, but got an error: '%s'", err)
		}
		if !proto.Equal(interopTheirs(t, pmd, true), pm) {
			t.Errorf("the decoded message differs from the directly built one")
		}
	})
}

func TestJSONInterop(t *testing.T) {
	md, pmd := interopTypes(t)

	jsonTree := func(t *testing.T, b []byte) interface{} {
		t.Helper()
		var v interface{}
		if err := json.Unmarshal(b, &v); err != nil {
			t.Fatalf("the output must be valid JSON, but got an error: '%s'", err)
		}
		return v
	}

	t.Run("rendered trees match", func(t *testing.T) {
		got, err := (&JSONMarshaler{}).Marshal(interopMine(t, md, true))
		if err != nil {
			t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
		}
		want, err := protojson.Marshal(interopTheirs(t, pmd, true))
		if err != nil {
			t.Fatalf("protojson.Marshal must not return errors, but got an error: '%s'", err)
		}
		if diff := cmp.Diff(jsonTree(t, want), jsonTree(t, got)); diff != "" {
			t.Errorf("(-want, +got)\n%s", diff)
		}
	})

	t.Run("their JSON decodes here", func(t *testing.T) {
		b, err := protojson.Marshal(interopTheirs(t, pmd, true))
		if err != nil {
			t.Fatalf("protojson.Marshal must not return errors, but got an error: '%s'", err)
		}
		m := New(md)
		u := &JSONUnmarshaler{}
		if err := u.Unmarshal(b, m); err != nil {
			t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
		}
		if !Equal(m, interopMine(t, md, true)) {
			t.Errorf("the decoded message differs from the directly built one")
		}
	})

	t.Run("our JSON decodes there", func(t *testing.T) {
		b, err := (&JSONMarshaler{}).Marshal(interopMine(t, md, true))
		if err != nil {
			t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
		}
		pm := dynamicpb.NewMessage(pmd)
		if err := protojson.Unmarshal(b, pm); err != nil {
			t.Fatalf("protojson.Unmarshal must not return errors, but got an error: '%s'", err)
		}
		if !proto.Equal(interopTheirs(t, pmd, true), pm) {
			t.Errorf("the decoded message differs from the directly built one")
		}
	})
}
