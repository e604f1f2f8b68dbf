// Package schema provides the reflective description of Protocol Buffers
// message types: scalar kinds, enum registries, field lists with oneof
// groups, and editions feature resolution. Schemas are built once, either
// from serialized file descriptors or by hand, and are immutable and safe
// for concurrent readers afterwards.
package schema

import (
	"bytes"
	"encoding/json"
	"math"
	"math/big"
	"strconv"

	"github.com/ktr0731/dynpb/wire"
	"github.com/pkg/errors"
)

// Scalar identifies one of the primitive wire kinds. It implements Type so
// a field's value type can be a scalar directly.
type Scalar int

const (
	Double Scalar = iota + 1
	Float
	Int32
	Int64
	UInt32
	UInt64
	SInt32
	SInt64
	Fixed32
	Fixed64
	SFixed32
	SFixed64
	Bool
	String
	Bytes
)

var scalarNames = map[Scalar]string{
	Double:   "double",
	Float:    "float",
	Int32:    "int32",
	Int64:    "int64",
	UInt32:   "uint32",
	UInt64:   "uint64",
	SInt32:   "sint32",
	SInt64:   "sint64",
	Fixed32:  "fixed32",
	Fixed64:  "fixed64",
	SFixed32: "sfixed32",
	SFixed64: "sfixed64",
	Bool:     "bool",
	String:   "string",
	Bytes:    "bytes",
}

func (s Scalar) String() string {
	if name, ok := scalarNames[s]; ok {
		return name
	}
	return "unknown"
}

// TypeName returns the proto-language name of the scalar kind.
func (s Scalar) TypeName() string { return s.String() }

// Valid reports whether s is one of the declared kinds.
func (s Scalar) Valid() bool {
	_, ok := scalarNames[s]
	return ok
}

// WireType returns the wire type the kind is framed with when not packed.
func (s Scalar) WireType() wire.Type {
	switch s {
	case Int32, Int64, UInt32, UInt64, SInt32, SInt64, Bool:
		return wire.TypeVarint
	case Fixed64, SFixed64, Double:
		return wire.TypeFixed64
	case Fixed32, SFixed32, Float:
		return wire.TypeFixed32
	default:
		return wire.TypeBytes
	}
}

// Packable reports whether a repeated field of this kind may use packed
// encoding. Everything except the length-delimited kinds is packable.
func (s Scalar) Packable() bool {
	return s != String && s != Bytes
}

// Numeric reports whether the kind holds a number.
func (s Scalar) Numeric() bool {
	switch s {
	case Bool, String, Bytes:
		return false
	default:
		return true
	}
}

// ValidMapKey reports whether the kind may key a map field. The language
// allows every integral kind plus bool and string.
func (s Scalar) ValidMapKey() bool {
	switch s {
	case Double, Float, Bytes:
		return false
	default:
		return s.Valid()
	}
}

// Zero returns the kind's zero value in its canonical Go representation.
func (s Scalar) Zero() interface{} {
	switch s {
	case Double:
		return float64(0)
	case Float:
		return float32(0)
	case Int32, SInt32, SFixed32:
		return int32(0)
	case Int64, SInt64, SFixed64:
		return int64(0)
	case UInt32, Fixed32:
		return uint32(0)
	case UInt64, Fixed64:
		return uint64(0)
	case Bool:
		return false
	case String:
		return ""
	case Bytes:
		return []byte(nil)
	default:
		return nil
	}
}

// Normalize converts v to the kind's canonical Go representation. Integer
// kinds accept native integers of any width, decimal strings, json.Number
// and *big.Int, so 64-bit values survive sources that cannot represent
// them natively; everything is range-checked exactly, never truncated.
// Bytes additionally accept a string holding the raw bytes.
func (s Scalar) Normalize(v interface{}) (interface{}, error) {
	switch s {
	case Int32, SInt32, SFixed32:
		n, err := toInt64(v)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid value for %s", s)
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, errors.Errorf("value %d out of range for %s", n, s)
		}
		return int32(n), nil
	case Int64, SInt64, SFixed64:
		n, err := toInt64(v)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid value for %s", s)
		}
		return n, nil
	case UInt32, Fixed32:
		n, err := toUint64(v)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid value for %s", s)
		}
		if n > math.MaxUint32 {
			return nil, errors.Errorf("value %d out of range for %s", n, s)
		}
		return uint32(n), nil
	case UInt64, Fixed64:
		n, err := toUint64(v)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid value for %s", s)
		}
		return n, nil
	case Double:
		f, err := toFloat64(v)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid value for %s", s)
		}
		return f, nil
	case Float:
		f, err := toFloat64(v)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid value for %s", s)
		}
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return nil, errors.Errorf("value %g out of range for float", f)
		}
		return float32(f), nil
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, errors.Errorf("invalid value of type %T for bool", v)
		}
		return b, nil
	case String:
		str, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("invalid value of type %T for string", v)
		}
		return str, nil
	case Bytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		default:
			return nil, errors.Errorf("invalid value of type %T for bytes", v)
		}
	default:
		return nil, errors.Errorf("invalid scalar kind %d", s)
	}
}

// Equal reports whether a and b represent the same value of the kind.
// Both sides are normalized first, so for the 64-bit kinds a string, a
// native integer and a *big.Int holding the same number compare equal.
// Floats compare by bit pattern, which makes NaN equal to itself and
// keeps round-tripped messages equal to their originals.
func (s Scalar) Equal(a, b interface{}) bool {
	na, err := s.Normalize(a)
	if err != nil {
		return false
	}
	nb, err := s.Normalize(b)
	if err != nil {
		return false
	}
	switch s {
	case Bytes:
		return bytes.Equal(na.([]byte), nb.([]byte))
	case Double:
		return math.Float64bits(na.(float64)) == math.Float64bits(nb.(float64))
	case Float:
		return math.Float32bits(na.(float32)) == math.Float32bits(nb.(float32))
	default:
		return na == nb
	}
}

// maxSafeInteger bounds float inputs to integer kinds: beyond 2^53 a
// float64 no longer distinguishes adjacent integers.
const maxSafeInteger = 1 << 53

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, errors.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, errors.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		return floatToInt64(n)
	case float32:
		return floatToInt64(float64(n))
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, errors.Errorf("cannot parse %q as an integer", n)
		}
		return i, nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		// Exponent or decimal notation; accept only exact integral values.
		f, err := n.Float64()
		if err != nil {
			return 0, errors.Errorf("cannot parse %q as an integer", n.String())
		}
		return floatToInt64(f)
	case *big.Int:
		if !n.IsInt64() {
			return 0, errors.Errorf("value %s overflows int64", n.String())
		}
		return n.Int64(), nil
	default:
		return 0, errors.Errorf("invalid value of type %T", v)
	}
}

func toUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, errors.Errorf("negative value %d for an unsigned integer", n)
		}
		return uint64(n), nil
	case int8:
		if n < 0 {
			return 0, errors.Errorf("negative value %d for an unsigned integer", n)
		}
		return uint64(n), nil
	case int16:
		if n < 0 {
			return 0, errors.Errorf("negative value %d for an unsigned integer", n)
		}
		return uint64(n), nil
	case int32:
		if n < 0 {
			return 0, errors.Errorf("negative value %d for an unsigned integer", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, errors.Errorf("negative value %d for an unsigned integer", n)
		}
		return uint64(n), nil
	case uint:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case float64:
		return floatToUint64(n)
	case float32:
		return floatToUint64(float64(n))
	case string:
		u, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			return 0, errors.Errorf("cannot parse %q as an unsigned integer", n)
		}
		return u, nil
	case json.Number:
		if i, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, errors.Errorf("cannot parse %q as an unsigned integer", n.String())
		}
		return floatToUint64(f)
	case *big.Int:
		if !n.IsUint64() {
			return 0, errors.Errorf("value %s overflows uint64", n.String())
		}
		return n.Uint64(), nil
	default:
		return 0, errors.Errorf("invalid value of type %T", v)
	}
}

func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) {
		return 0, errors.Errorf("value %g is not an integer", f)
	}
	if math.Abs(f) > maxSafeInteger {
		return 0, errors.Errorf("value %g exceeds the exact integer range of a double", f)
	}
	return int64(f), nil
}

func floatToUint64(f float64) (uint64, error) {
	if f != math.Trunc(f) {
		return 0, errors.Errorf("value %g is not an integer", f)
	}
	if f < 0 {
		return 0, errors.Errorf("negative value %g for an unsigned integer", f)
	}
	if f > maxSafeInteger {
		return 0, errors.Errorf("value %g exceeds the exact integer range of a double", f)
	}
	return uint64(f), nil
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, errors.Errorf("cannot parse %q as a number", n)
		}
		return f, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, errors.Errorf("cannot parse %q as a number", n.String())
		}
		return f, nil
	default:
		return 0, errors.Errorf("invalid value of type %T", v)
	}
}
