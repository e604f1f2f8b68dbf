package dynamic_test

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ktr0731/dynpb/dynamic"
	"github.com/ktr0731/dynpb/known"
	"github.com/ktr0731/dynpb/schema"
)

func setField(t *testing.T, m *dynamic.Message, name string, v interface{}) {
	t.Helper()
	if err := m.SetName(name, v); err != nil {
		t.Fatalf("SetName must not return errors, but got an error: '%s'", err)
	}
}

func secondsNanos(t *testing.T, md *schema.Message, seconds int64, nanos int32) *dynamic.Message {
	t.Helper()
	m := dynamic.New(md)
	setField(t, m, "seconds", seconds)
	setField(t, m, "nanos", nanos)
	return m
}

func TestTimestampJSON(t *testing.T) {
	md := known.TimestampType()

	marshalCases := map[string]struct {
		seconds int64
		nanos   int32
		want    string
	}{
		"epoch": {
			want: `"1970-01-01T00:00:00Z"`,
		},
		"whole seconds": {
			seconds: 1136214245,
			want:    `"2006-01-02T15:04:05Z"`,
		},
		"start of 2022": {
			seconds: 1640995200,
			want:    `"2022-01-01T00:00:00Z"`,
		},
		"millis": {
			nanos: 500000000,
			want:  `"1970-01-01T00:00:00.500Z"`,
		},
		"micros": {
			nanos: 1000,
			want:  `"1970-01-01T00:00:00.000001Z"`,
		},
		"nanos": {
			nanos: 1,
			want:  `"1970-01-01T00:00:00.000000001Z"`,
		},
		"before the epoch": {
			seconds: -1,
			want:    `"1969-12-31T23:59:59Z"`,
		},
		"minimum": {
			seconds: -62135596800,
			want:    `"0001-01-01T00:00:00Z"`,
		},
		"maximum": {
			seconds: 253402300799,
			nanos:   999999999,
			want:    `"9999-12-31T23:59:59.999999999Z"`,
		},
	}

	for name, c := range marshalCases {
		c := c
		t.Run("marshal "+name, func(t *testing.T) {
			m := secondsNanos(t, md, c.seconds, c.nanos)
			got, err := (&dynamic.JSONMarshaler{}).Marshal(m)
			if err != nil {
				t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
			}
			if diff := cmp.Diff(c.want, string(got)); diff != "" {
				t.Errorf("unexpected JSON (-want, +got):\n%s", diff)
			}
		})
	}

	marshalErrors := map[string]struct {
		seconds int64
		nanos   int32
	}{
		"seconds above year 9999": {seconds: 253402300800},
		"seconds below year 1":    {seconds: -62135596801},
		"negative nanos":          {nanos: -1},
		"nanos above one second":  {nanos: 1000000000},
	}

	for name, c := range marshalErrors {
		c := c
		t.Run("marshal rejects "+name, func(t *testing.T) {
			m := secondsNanos(t, md, c.seconds, c.nanos)
			if _, err := (&dynamic.JSONMarshaler{}).Marshal(m); err == nil {
				t.Errorf("Marshal must return an error, but got nil")
			}
		})
	}

	unmarshalCases := map[string]struct {
		data    string
		seconds int64
		nanos   int32
	}{
		"whole seconds": {
			data:    `"2006-01-02T15:04:05Z"`,
			seconds: 1136214245,
		},
		"start of 2022": {
			data:    `"2022-01-01T00:00:00Z"`,
			seconds: 1640995200,
		},
		"fractional seconds": {
			data:  `"1970-01-01T00:00:00.123Z"`,
			nanos: 123000000,
		},
		"utc offset": {
			data: `"1970-01-01T09:00:00+09:00"`,
		},
	}

	for name, c := range unmarshalCases {
		c := c
		t.Run("unmarshal "+name, func(t *testing.T) {
			got := dynamic.New(md)
			if err := (&dynamic.JSONUnmarshaler{}).Unmarshal([]byte(c.data), got); err != nil {
				t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
			}
			if want := secondsNanos(t, md, c.seconds, c.nanos); !dynamic.Equal(want, got) {
				t.Errorf("expected seconds %d and nanos %d after parsing %s", c.seconds, c.nanos, c.data)
			}
		})
	}

	unmarshalErrors := map[string]string{
		"not a string":     `5`,
		"not a timestamp":  `"tomorrow"`,
		"year zero":        `"0000-01-01T00:00:00Z"`,
		"missing timezone": `"2006-01-02T15:04:05"`,
	}

	for name, data := range unmarshalErrors {
		data := data
		t.Run("unmarshal rejects "+name, func(t *testing.T) {
			if err := (&dynamic.JSONUnmarshaler{}).Unmarshal([]byte(data), dynamic.New(md)); err == nil {
				t.Errorf("Unmarshal must return an error, but got nil")
			}
		})
	}
}

func TestDurationJSON(t *testing.T) {
	md := known.DurationType()

	marshalCases := map[string]struct {
		seconds int64
		nanos   int32
		want    string
	}{
		"zero": {
			want: `"0s"`,
		},
		"whole seconds": {
			seconds: 3,
			want:    `"3s"`,
		},
		"seconds and millis": {
			seconds: 1,
			nanos:   500000000,
			want:    `"1.500s"`,
		},
		"negative fraction": {
			nanos: -300000000,
			want:  `"-0.300s"`,
		},
		"negative seconds and fraction": {
			seconds: -1,
			nanos:   -500000000,
			want:    `"-1.500s"`,
		},
		"single nano": {
			nanos: 1,
			want:  `"0.000000001s"`,
		},
		"maximum": {
			seconds: 315576000000,
			nanos:   999999999,
			want:    `"315576000000.999999999s"`,
		},
	}

	for name, c := range marshalCases {
		c := c
		t.Run("marshal "+name, func(t *testing.T) {
			m := secondsNanos(t, md, c.seconds, c.nanos)
			got, err := (&dynamic.JSONMarshaler{}).Marshal(m)
			if err != nil {
				t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
			}
			if diff := cmp.Diff(c.want, string(got)); diff != "" {
				t.Errorf("unexpected JSON (-want, +got):\n%s", diff)
			}
		})
	}

	marshalErrors := map[string]struct {
		seconds int64
		nanos   int32
	}{
		"opposing signs":       {seconds: 1, nanos: -1},
		"seconds out of range": {seconds: 315576000001},
		"nanos out of range":   {nanos: 1000000000},
	}

	for name, c := range marshalErrors {
		c := c
		t.Run("marshal rejects "+name, func(t *testing.T) {
			m := secondsNanos(t, md, c.seconds, c.nanos)
			if _, err := (&dynamic.JSONMarshaler{}).Marshal(m); err == nil {
				t.Errorf("Marshal must return an error, but got nil")
			}
		})
	}

	unmarshalCases := map[string]struct {
		data    string
		seconds int64
		nanos   int32
	}{
		"whole seconds": {
			data:    `"3s"`,
			seconds: 3,
		},
		"millis": {
			data:    `"1.500s"`,
			seconds: 1,
			nanos:   500000000,
		},
		"negative fraction": {
			data:  `"-0.300s"`,
			nanos: -300000000,
		},
		"nine fraction digits": {
			data:    `"3.000000001s"`,
			seconds: 3,
			nanos:   1,
		},
		"zero": {
			data: `"0s"`,
		},
	}

	for name, c := range unmarshalCases {
		c := c
		t.Run("unmarshal "+name, func(t *testing.T) {
			got := dynamic.New(md)
			if err := (&dynamic.JSONUnmarshaler{}).Unmarshal([]byte(c.data), got); err != nil {
				t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
			}
			if want := secondsNanos(t, md, c.seconds, c.nanos); !dynamic.Equal(want, got) {
				t.Errorf("expected seconds %d and nanos %d after parsing %s", c.seconds, c.nanos, c.data)
			}
		})
	}

	unmarshalErrors := map[string]string{
		"missing unit":        `"3"`,
		"empty seconds":       `"s"`,
		"empty fraction":      `"1.s"`,
		"ten fraction digits": `"1.1234567891s"`,
		"out of range":        `"999999999999999s"`,
		"not a string":        `3`,
	}

	for name, data := range unmarshalErrors {
		data := data
		t.Run("unmarshal rejects "+name, func(t *testing.T) {
			if err := (&dynamic.JSONUnmarshaler{}).Unmarshal([]byte(data), dynamic.New(md)); err == nil {
				t.Errorf("Unmarshal must return an error, but got nil")
			}
		})
	}
}

func TestWrapperJSON(t *testing.T) {
	cases := map[string]struct {
		msg  *dynamic.Message
		want string
	}{
		"double":         {msg: known.NewDoubleValue(2.5), want: `2.5`},
		"float":          {msg: known.NewFloatValue(-0.5), want: `-0.5`},
		"int64 minimum":  {msg: known.NewInt64Value(math.MinInt64), want: `"-9223372036854775808"`},
		"uint64 maximum": {msg: known.NewUInt64Value(math.MaxUint64), want: `"18446744073709551615"`},
		"int32":          {msg: known.NewInt32Value(7), want: `7`},
		"uint32 maximum": {msg: known.NewUInt32Value(math.MaxUint32), want: `4294967295`},
		"true":           {msg: known.NewBoolValue(true), want: `true`},
		"false":          {msg: known.NewBoolValue(false), want: `false`},
		"string":         {msg: known.NewStringValue("héllo"), want: `"héllo"`},
		"bytes":          {msg: known.NewBytesValue([]byte{0xde, 0xad}), want: `"3q0="`},
	}

	for name, c := range cases {
		c := c
		t.Run(name, func(t *testing.T) {
			data, err := (&dynamic.JSONMarshaler{}).Marshal(c.msg)
			if err != nil {
				t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
			}
			if diff := cmp.Diff(c.want, string(data)); diff != "" {
				t.Errorf("unexpected JSON (-want, +got):\n%s", diff)
			}

			got := dynamic.New(c.msg.Descriptor())
			if err := (&dynamic.JSONUnmarshaler{}).Unmarshal(data, got); err != nil {
				t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
			}
			if !dynamic.Equal(c.msg, got) {
				t.Errorf("the wrapper must survive the round trip through %s", data)
			}
		})
	}

	t.Run("MarshalToMap rejects non-object forms", func(t *testing.T) {
		_, err := (&dynamic.JSONMarshaler{}).MarshalToMap(known.NewStringValue("x"))
		if err == nil {
			t.Fatalf("MarshalToMap must return an error, but got nil")
		}
		if !strings.Contains(err.Error(), "not an object") {
			t.Errorf("expected the error to explain the JSON form, but got '%s'", err)
		}
	})
}

func TestStructJSON(t *testing.T) {
	s, err := known.NewStruct(map[string]interface{}{
		"name":    "dynpb",
		"score":   9.5,
		"ok":      true,
		"nothing": nil,
		"tags":    []interface{}{"go", "proto"},
		"meta":    map[string]interface{}{"depth": 2},
	})
	if err != nil {
		t.Fatalf("NewStruct must not return errors, but got an error: '%s'", err)
	}

	data, err := (&dynamic.JSONMarshaler{}).Marshal(s)
	if err != nil {
		t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
	}
	want := `{"meta":{"depth":2},"name":"dynpb","nothing":null,"ok":true,"score":9.5,"tags":["go","proto"]}`
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("unexpected JSON (-want, +got):\n%s", diff)
	}

	parsed := dynamic.New(known.StructType())
	if err := (&dynamic.JSONUnmarshaler{}).Unmarshal(data, parsed); err != nil {
		t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
	}
	got, err := known.AsMap(parsed)
	if err != nil {
		t.Fatalf("AsMap must not return errors, but got an error: '%s'", err)
	}
	wantMap := map[string]interface{}{
		"name":    "dynpb",
		"score":   9.5,
		"ok":      true,
		"nothing": nil,
		"tags":    []interface{}{"go", "proto"},
		"meta":    map[string]interface{}{"depth": float64(2)},
	}
	if diff := cmp.Diff(wantMap, got); diff != "" {
		t.Errorf("unexpected parsed struct (-want, +got):\n%s", diff)
	}

	if err := (&dynamic.JSONUnmarshaler{}).Unmarshal([]byte(`[1]`), dynamic.New(known.StructType())); err == nil {
		t.Errorf("Unmarshal must reject non-object JSON for a struct")
	}
}

func TestValueJSON(t *testing.T) {
	md := known.ValueType()

	t.Run("null round trip", func(t *testing.T) {
		m := dynamic.New(md)
		if err := (&dynamic.JSONUnmarshaler{}).Unmarshal([]byte(`null`), m); err != nil {
			t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
		}
		if f := m.WhichOneof(md.Oneofs()[0]); f == nil || f.Name != "null_value" {
			t.Errorf("expected the null case, but got %v", f)
		}
		data, err := (&dynamic.JSONMarshaler{}).Marshal(m)
		if err != nil {
			t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
		}
		if diff := cmp.Diff(`null`, string(data)); diff != "" {
			t.Errorf("unexpected JSON (-want, +got):\n%s", diff)
		}
	})

	t.Run("nested collections", func(t *testing.T) {
		v, err := known.NewValue([]interface{}{1, "a", true, nil, map[string]interface{}{"k": "v"}})
		if err != nil {
			t.Fatalf("NewValue must not return errors, but got an error: '%s'", err)
		}
		data, err := (&dynamic.JSONMarshaler{}).Marshal(v)
		if err != nil {
			t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
		}
		if diff := cmp.Diff(`[1,"a",true,null,{"k":"v"}]`, string(data)); diff != "" {
			t.Errorf("unexpected JSON (-want, +got):\n%s", diff)
		}
	})

	t.Run("parsed object becomes a struct kind", func(t *testing.T) {
		m := dynamic.New(md)
		if err := (&dynamic.JSONUnmarshaler{}).Unmarshal([]byte(`{"a":[1.5]}`), m); err != nil {
			t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
		}
		got, err := known.AsInterface(m)
		if err != nil {
			t.Fatalf("AsInterface must not return errors, but got an error: '%s'", err)
		}
		want := map[string]interface{}{"a": []interface{}{1.5}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("unexpected value (-want, +got):\n%s", diff)
		}
	})

	t.Run("non-finite numbers cannot render", func(t *testing.T) {
		v, err := known.NewValue(math.NaN())
		if err != nil {
			t.Fatalf("NewValue must not return errors, but got an error: '%s'", err)
		}
		_, err = (&dynamic.JSONMarshaler{}).Marshal(v)
		if err == nil {
			t.Fatalf("Marshal must return an error, but got nil")
		}
		if !strings.Contains(err.Error(), "cannot be represented") {
			t.Errorf("expected the error to explain the value, but got '%s'", err)
		}
	})

	t.Run("unset value cannot render", func(t *testing.T) {
		if _, err := (&dynamic.JSONMarshaler{}).Marshal(dynamic.New(md)); err == nil {
			t.Errorf("Marshal must return an error, but got nil")
		}
	})
}

func TestListValueJSON(t *testing.T) {
	l, err := known.NewListValue([]interface{}{1.5, "x", false})
	if err != nil {
		t.Fatalf("NewListValue must not return errors, but got an error: '%s'", err)
	}
	data, err := (&dynamic.JSONMarshaler{}).Marshal(l)
	if err != nil {
		t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
	}
	if diff := cmp.Diff(`[1.5,"x",false]`, string(data)); diff != "" {
		t.Errorf("unexpected JSON (-want, +got):\n%s", diff)
	}

	parsed := dynamic.New(known.ListValueType())
	if err := (&dynamic.JSONUnmarshaler{}).Unmarshal(data, parsed); err != nil {
		t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
	}
	if !dynamic.Equal(l, parsed) {
		t.Errorf("the list must survive the round trip through %s", data)
	}

	if err := (&dynamic.JSONUnmarshaler{}).Unmarshal([]byte(`{}`), dynamic.New(known.ListValueType())); err == nil {
		t.Errorf("Unmarshal must reject non-array JSON for a list")
	}
}

func TestFieldMaskJSON(t *testing.T) {
	m := known.NewFieldMask("user.display_name", "photo")
	data, err := (&dynamic.JSONMarshaler{}).Marshal(m)
	if err != nil {
		t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
	}
	if diff := cmp.Diff(`"user.displayName,photo"`, string(data)); diff != "" {
		t.Errorf("unexpected JSON (-want, +got):\n%s", diff)
	}

	parsed := dynamic.New(known.FieldMaskType())
	if err := (&dynamic.JSONUnmarshaler{}).Unmarshal(data, parsed); err != nil {
		t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
	}
	want := []interface{}{"user.display_name", "photo"}
	if diff := cmp.Diff(want, parsed.GetName("paths")); diff != "" {
		t.Errorf("unexpected paths (-want, +got):\n%s", diff)
	}

	t.Run("empty mask", func(t *testing.T) {
		data, err := (&dynamic.JSONMarshaler{}).Marshal(known.NewFieldMask())
		if err != nil {
			t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
		}
		if diff := cmp.Diff(`""`, string(data)); diff != "" {
			t.Errorf("unexpected JSON (-want, +got):\n%s", diff)
		}
		parsed := dynamic.New(known.FieldMaskType())
		if err := (&dynamic.JSONUnmarshaler{}).Unmarshal([]byte(`""`), parsed); err != nil {
			t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
		}
		if diff := cmp.Diff([]interface{}{}, parsed.GetName("paths")); diff != "" {
			t.Errorf("unexpected paths (-want, +got):\n%s", diff)
		}
	})

	t.Run("paths that cannot round-trip", func(t *testing.T) {
		for name, m := range map[string]*dynamic.Message{
			"uppercase":           known.NewFieldMask("displayName"),
			"trailing underscore": known.NewFieldMask("name_"),
			"double underscore":   known.NewFieldMask("a__b"),
		} {
			m := m
			t.Run(name, func(t *testing.T) {
				if _, err := (&dynamic.JSONMarshaler{}).Marshal(m); err == nil {
					t.Errorf("Marshal must return an error, but got nil")
				}
			})
		}
	})

	t.Run("parse rejects underscores", func(t *testing.T) {
		err := (&dynamic.JSONUnmarshaler{}).Unmarshal([]byte(`"display_name"`), dynamic.New(known.FieldMaskType()))
		if err == nil {
			t.Fatalf("Unmarshal must return an error, but got nil")
		}
		if !strings.Contains(err.Error(), "underscore") {
			t.Errorf("expected the error to name the underscore, but got '%s'", err)
		}
	})
}

func TestEmptyJSON(t *testing.T) {
	data, err := (&dynamic.JSONMarshaler{}).Marshal(known.NewEmpty())
	if err != nil {
		t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
	}
	if diff := cmp.Diff(`{}`, string(data)); diff != "" {
		t.Errorf("unexpected JSON (-want, +got):\n%s", diff)
	}

	if err := (&dynamic.JSONUnmarshaler{}).Unmarshal([]byte(`{}`), dynamic.New(known.EmptyType())); err != nil {
		t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
	}
	if err := (&dynamic.JSONUnmarshaler{}).Unmarshal([]byte(`{"x":1}`), dynamic.New(known.EmptyType())); err == nil {
		t.Errorf("Unmarshal must reject unknown keys")
	}
	if err := (&dynamic.JSONUnmarshaler{}).Unmarshal([]byte(`3`), dynamic.New(known.EmptyType())); err == nil {
		t.Errorf("Unmarshal must reject non-object JSON")
	}
}

type testResolver map[string]*schema.Message

func (r testResolver) FindMessageByURL(url string) (*schema.Message, error) {
	name := url[strings.LastIndex(url, "/")+1:]
	if md, ok := r[name]; ok {
		return md, nil
	}
	return known.Resolver{}.FindMessageByURL(url)
}

func TestAnyJSON(t *testing.T) {
	address, err := schema.NewMessage("library.Address", []*schema.Field{
		{Number: 1, Name: "city", Type: schema.String},
		{Number: 2, Name: "zip", Type: schema.String},
	}, nil, schema.MessageOptions{PackedByDefault: true})
	if err != nil {
		t.Fatalf("NewMessage must not return an error, but got '%s'", err)
	}
	resolver := testResolver{"library.Address": address}
	jm := dynamic.JSONMarshaler{Resolver: resolver}
	ju := dynamic.JSONUnmarshaler{Resolver: resolver}

	t.Run("plain message payload", func(t *testing.T) {
		inner, err := dynamic.NewFromMap(address, map[string]interface{}{"city": "Kyoto", "zip": "600"})
		if err != nil {
			t.Fatalf("NewFromMap must not return errors, but got an error: '%s'", err)
		}
		packed, err := known.PackAny(inner)
		if err != nil {
			t.Fatalf("PackAny must not return errors, but got an error: '%s'", err)
		}
		data, err := jm.Marshal(packed)
		if err != nil {
			t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
		}
		want := `{"@type":"type.googleapis.com/library.Address","city":"Kyoto","zip":"600"}`
		if diff := cmp.Diff(want, string(data)); diff != "" {
			t.Errorf("unexpected JSON (-want, +got):\n%s", diff)
		}

		got := dynamic.New(known.AnyType())
		if err := ju.Unmarshal(data, got); err != nil {
			t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
		}
		if !dynamic.Equal(packed, got) {
			t.Errorf("the any must survive the round trip through %s", data)
		}
	})

	t.Run("well-known payload", func(t *testing.T) {
		packed, err := known.PackAny(known.NewDuration(1500 * time.Millisecond))
		if err != nil {
			t.Fatalf("PackAny must not return errors, but got an error: '%s'", err)
		}
		data, err := jm.Marshal(packed)
		if err != nil {
			t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
		}
		want := `{"@type":"type.googleapis.com/google.protobuf.Duration","value":"1.500s"}`
		if diff := cmp.Diff(want, string(data)); diff != "" {
			t.Errorf("unexpected JSON (-want, +got):\n%s", diff)
		}

		got := dynamic.New(known.AnyType())
		if err := ju.Unmarshal(data, got); err != nil {
			t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
		}
		if !dynamic.Equal(packed, got) {
			t.Errorf("the any must survive the round trip through %s", data)
		}
	})

	t.Run("empty", func(t *testing.T) {
		data, err := (&dynamic.JSONMarshaler{}).Marshal(dynamic.New(known.AnyType()))
		if err != nil {
			t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
		}
		if diff := cmp.Diff(`{}`, string(data)); diff != "" {
			t.Errorf("unexpected JSON (-want, +got):\n%s", diff)
		}
		got := dynamic.New(known.AnyType())
		if err := (&dynamic.JSONUnmarshaler{}).Unmarshal([]byte(`{}`), got); err != nil {
			t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
		}
		if !dynamic.Equal(dynamic.New(known.AnyType()), got) {
			t.Errorf("an empty object must parse as an empty any")
		}
	})

	t.Run("missing type key", func(t *testing.T) {
		err := ju.Unmarshal([]byte(`{"city":"x"}`), dynamic.New(known.AnyType()))
		if err == nil {
			t.Fatalf("Unmarshal must return an error, but got nil")
		}
		if !strings.Contains(err.Error(), "@type") {
			t.Errorf("expected the error to name the @type key, but got '%s'", err)
		}
	})

	t.Run("missing value key for a well-known payload", func(t *testing.T) {
		err := ju.Unmarshal([]byte(`{"@type":"type.googleapis.com/google.protobuf.Duration"}`), dynamic.New(known.AnyType()))
		if err == nil {
			t.Fatalf("Unmarshal must return an error, but got nil")
		}
		if !strings.Contains(err.Error(), "value key") {
			t.Errorf("expected the error to name the value key, but got '%s'", err)
		}
	})

	t.Run("no resolver", func(t *testing.T) {
		packed, err := known.PackAny(known.NewEmpty())
		if err != nil {
			t.Fatalf("PackAny must not return errors, but got an error: '%s'", err)
		}
		if _, err := (&dynamic.JSONMarshaler{}).Marshal(packed); err == nil {
			t.Errorf("Marshal must return an error, but got nil")
		}
	})
}

func TestWellKnownFieldsInsideMessages(t *testing.T) {
	event, err := schema.NewMessage("library.Event", []*schema.Field{
		{Number: 1, Name: "name", Type: schema.String},
		{Number: 2, Name: "at", Type: schema.NewMessageRef(known.TimestampType())},
		{Number: 3, Name: "window", Type: schema.NewMessageRef(known.DurationType())},
		{Number: 4, Name: "attrs", Type: schema.NewMessageRef(known.StructType())},
	}, nil, schema.MessageOptions{PackedByDefault: true})
	if err != nil {
		t.Fatalf("NewMessage must not return an error, but got '%s'", err)
	}

	attrs, err := known.NewStruct(map[string]interface{}{"lang": "go"})
	if err != nil {
		t.Fatalf("NewStruct must not return errors, but got an error: '%s'", err)
	}
	m := dynamic.New(event)
	setField(t, m, "name", "launch")
	setField(t, m, "at", known.NewTimestamp(time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)))
	setField(t, m, "window", known.NewDuration(90*time.Second))
	setField(t, m, "attrs", attrs)

	data, err := (&dynamic.JSONMarshaler{}).Marshal(m)
	if err != nil {
		t.Fatalf("Marshal must not return errors, but got an error: '%s'", err)
	}
	want := `{"at":"2006-01-02T15:04:05Z","attrs":{"lang":"go"},"name":"launch","window":"90s"}`
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("unexpected JSON (-want, +got):\n%s", diff)
	}

	got := dynamic.New(event)
	if err := (&dynamic.JSONUnmarshaler{}).Unmarshal(data, got); err != nil {
		t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
	}
	if !dynamic.Equal(m, got) {
		t.Errorf("the message must survive the round trip through %s", data)
	}

	cleared := dynamic.New(event)
	if err := (&dynamic.JSONUnmarshaler{}).Unmarshal([]byte(`{"at":null}`), cleared); err != nil {
		t.Fatalf("Unmarshal must not return errors, but got an error: '%s'", err)
	}
	if !dynamic.Equal(dynamic.New(event), cleared) {
		t.Errorf("a JSON null must leave the field unset")
	}
}
