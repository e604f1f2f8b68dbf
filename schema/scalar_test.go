package schema

import (
	"encoding/json"
	"math"
	"math/big"
	"reflect"
	"testing"

	"github.com/ktr0731/dynpb/wire"
)

func TestScalarNormalize(t *testing.T) {
	cases := map[string]struct {
		kind Scalar
		v    interface{}

		expected interface{}
		hasErr   bool
	}{
		"int32 from int":               {kind: Int32, v: 100, expected: int32(100)},
		"int32 from string":            {kind: Int32, v: "-42", expected: int32(-42)},
		"int32 from json.Number":       {kind: Int32, v: json.Number("7"), expected: int32(7)},
		"int32 max":                    {kind: Int32, v: int64(math.MaxInt32), expected: int32(math.MaxInt32)},
		"int32 overflow":               {kind: Int32, v: int64(math.MaxInt32) + 1, hasErr: true},
		"int32 underflow":              {kind: Int32, v: int64(math.MinInt32) - 1, hasErr: true},
		"int32 from fraction":          {kind: Int32, v: 1.5, hasErr: true},
		"int32 from integral float":    {kind: Int32, v: float64(12), expected: int32(12)},
		"sint32 from int":              {kind: SInt32, v: -100, expected: int32(-100)},
		"sfixed32 from int":            {kind: SFixed32, v: -100, expected: int32(-100)},
		"int64 from string":            {kind: Int64, v: "9223372036854775807", expected: int64(math.MaxInt64)},
		"int64 from big.Int":           {kind: Int64, v: big.NewInt(-5), expected: int64(-5)},
		"int64 from huge big.Int":      {kind: Int64, v: new(big.Int).Lsh(big.NewInt(1), 64), hasErr: true},
		"int64 from bad string":        {kind: Int64, v: "10x", hasErr: true},
		"int64 from float beyond 2^53": {kind: Int64, v: float64(1 << 60), hasErr: true},
		"uint32 from int":              {kind: UInt32, v: 100, expected: uint32(100)},
		"uint32 negative":              {kind: UInt32, v: -1, hasErr: true},
		"uint32 overflow":              {kind: UInt32, v: int64(math.MaxUint32) + 1, hasErr: true},
		"fixed32 from uint64":          {kind: Fixed32, v: uint64(7), expected: uint32(7)},
		"uint64 from string":           {kind: UInt64, v: "18446744073709551615", expected: uint64(math.MaxUint64)},
		"uint64 from negative string":  {kind: UInt64, v: "-1", hasErr: true},
		"uint64 from big.Int":          {kind: UInt64, v: new(big.Int).SetUint64(math.MaxUint64), expected: uint64(math.MaxUint64)},
		"fixed64 from int":             {kind: Fixed64, v: 3, expected: uint64(3)},
		"double from float64":          {kind: Double, v: 100.25, expected: float64(100.25)},
		"double from int":              {kind: Double, v: 4, expected: float64(4)},
		"double from string":           {kind: Double, v: "1.5", expected: float64(1.5)},
		"float from float64":           {kind: Float, v: 100.25, expected: float32(100.25)},
		"float out of range":           {kind: Float, v: math.MaxFloat64, hasErr: true},
		"float infinity":               {kind: Float, v: math.Inf(1), expected: float32(math.Inf(1))},
		"bool":                         {kind: Bool, v: true, expected: true},
		"bool from string":             {kind: Bool, v: "true", hasErr: true},
		"string":                       {kind: String, v: "mumei", expected: "mumei"},
		"string from bytes":            {kind: String, v: []byte("x"), hasErr: true},
		"bytes":                        {kind: Bytes, v: []byte{1, 2}, expected: []byte{1, 2}},
		"bytes from string":            {kind: Bytes, v: "ikoma", expected: []byte("ikoma")},
		"bytes from int":               {kind: Bytes, v: 1, hasErr: true},
	}

	for name, c := range cases {
		c := c
		t.Run(name, func(t *testing.T) {
			actual, err := c.kind.Normalize(c.v)
			if c.hasErr {
				if err == nil {
					t.Errorf("Normalize must return an error, but got nil (value = %v)", actual)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize must not return errors, but got an error: '%s'", err)
			}
			if !reflect.DeepEqual(c.expected, actual) {
				t.Errorf("expected '%v' (type = %T), but got '%v' (type = %T)",
					c.expected, c.expected, actual, actual)
			}
		})
	}
}

func TestScalarEqual(t *testing.T) {
	cases := map[string]struct {
		kind     Scalar
		a, b     interface{}
		expected bool
	}{
		"int64 string vs int":        {kind: Int64, a: "9223372036854775807", b: int64(math.MaxInt64), expected: true},
		"int64 big.Int vs int":       {kind: Int64, a: big.NewInt(42), b: 42, expected: true},
		"int64 differs":              {kind: Int64, a: int64(1), b: int64(2), expected: false},
		"uint64 string vs uint":      {kind: UInt64, a: "18446744073709551615", b: uint64(math.MaxUint64), expected: true},
		"bytes nil vs empty":         {kind: Bytes, a: []byte(nil), b: []byte{}, expected: true},
		"bytes differ":               {kind: Bytes, a: []byte{1}, b: []byte{2}, expected: false},
		"double NaN vs NaN":          {kind: Double, a: math.NaN(), b: math.NaN(), expected: true},
		"float NaN vs NaN":           {kind: Float, a: float32(math.NaN()), b: float32(math.NaN()), expected: true},
		"double zero vs minus zero":  {kind: Double, a: 0.0, b: math.Copysign(0, -1), expected: false},
		"bool":                       {kind: Bool, a: true, b: true, expected: true},
		"string differs":             {kind: String, a: "a", b: "b", expected: false},
		"invalid never equals":       {kind: Int32, a: "x", b: "x", expected: false},
		"int32 string vs int":        {kind: Int32, a: "7", b: int32(7), expected: true},
		"double int vs float":        {kind: Double, a: 1, b: 1.0, expected: true},
		"sint64 negative string":     {kind: SInt64, a: "-1", b: int64(-1), expected: true},
		"fixed64 json number vs int": {kind: Fixed64, a: json.Number("3"), b: uint64(3), expected: true},
	}

	for name, c := range cases {
		c := c
		t.Run(name, func(t *testing.T) {
			if actual := c.kind.Equal(c.a, c.b); actual != c.expected {
				t.Errorf("expected %t, but got %t", c.expected, actual)
			}
		})
	}
}

func TestScalarZero(t *testing.T) {
	cases := map[string]struct {
		kind     Scalar
		expected interface{}
	}{
		"double":   {kind: Double, expected: float64(0)},
		"float":    {kind: Float, expected: float32(0)},
		"int32":    {kind: Int32, expected: int32(0)},
		"sint64":   {kind: SInt64, expected: int64(0)},
		"uint32":   {kind: UInt32, expected: uint32(0)},
		"fixed64":  {kind: Fixed64, expected: uint64(0)},
		"sfixed32": {kind: SFixed32, expected: int32(0)},
		"bool":     {kind: Bool, expected: false},
		"string":   {kind: String, expected: ""},
		"bytes":    {kind: Bytes, expected: []byte(nil)},
	}

	for name, c := range cases {
		c := c
		t.Run(name, func(t *testing.T) {
			if actual := c.kind.Zero(); !reflect.DeepEqual(c.expected, actual) {
				t.Errorf("expected '%v' (type = %T), but got '%v' (type = %T)",
					c.expected, c.expected, actual, actual)
			}
		})
	}
}

func TestScalarWireType(t *testing.T) {
	cases := map[Scalar]wire.Type{
		Int32:    wire.TypeVarint,
		Int64:    wire.TypeVarint,
		UInt32:   wire.TypeVarint,
		UInt64:   wire.TypeVarint,
		SInt32:   wire.TypeVarint,
		SInt64:   wire.TypeVarint,
		Bool:     wire.TypeVarint,
		Fixed64:  wire.TypeFixed64,
		SFixed64: wire.TypeFixed64,
		Double:   wire.TypeFixed64,
		Fixed32:  wire.TypeFixed32,
		SFixed32: wire.TypeFixed32,
		Float:    wire.TypeFixed32,
		String:   wire.TypeBytes,
		Bytes:    wire.TypeBytes,
	}
	for kind, expected := range cases {
		if actual := kind.WireType(); actual != expected {
			t.Errorf("%s: expected %s, but got %s", kind, expected, actual)
		}
	}
}

func TestScalarPackable(t *testing.T) {
	for _, kind := range []Scalar{String, Bytes} {
		if kind.Packable() {
			t.Errorf("%s must not be packable", kind)
		}
	}
	for _, kind := range []Scalar{Double, Float, Int32, Int64, UInt32, UInt64, SInt32, SInt64, Fixed32, Fixed64, SFixed32, SFixed64, Bool} {
		if !kind.Packable() {
			t.Errorf("%s must be packable", kind)
		}
	}
}
