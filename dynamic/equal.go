package dynamic

import (
	"github.com/ktr0731/dynpb/schema"
)

// Equal reports structural equality slot by slot: matching oneof cases,
// matching presence of explicit-presence fields and nested messages,
// element-wise sequences and mapping comparison over the union of both
// sides' keys. Two nil messages are equal; retained unknown fields are
// ignored. Fields without explicit presence compare by value, so a
// recorded zero equals an absent field.
func Equal(a, b *Message) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.md.Name() != b.md.Name() {
		return false
	}
	for _, member := range a.md.Members() {
		if member.Oneof != nil {
			fa := a.WhichOneof(member.Oneof)
			fb := b.WhichOneof(member.Oneof)
			if fa == nil || fb == nil {
				if fa != fb {
					return false
				}
				continue
			}
			if fa.Number != fb.Number {
				return false
			}
			if !equalValue(fa, a.values[fa.Number], b.values[fb.Number]) {
				return false
			}
			continue
		}
		f := member.Field
		if f.Optional || f.Required {
			_, oka := a.values[f.Number]
			_, okb := b.values[f.Number]
			if oka != okb {
				return false
			}
			if !oka {
				continue
			}
		}
		if !equalValue(f, a.Get(f), b.Get(f)) {
			return false
		}
	}
	return true
}

func equalValue(f *schema.Field, a, b interface{}) bool {
	switch {
	case f.IsMap():
		return equalMap(f, a.(map[interface{}]interface{}), b.(map[interface{}]interface{}))
	case f.Repeated:
		ea, eb := a.([]interface{}), b.([]interface{})
		if len(ea) != len(eb) {
			return false
		}
		for i := range ea {
			if !equalSingular(f.Type, ea[i], eb[i]) {
				return false
			}
		}
		return true
	default:
		return equalSingular(f.Type, a, b)
	}
}

func equalMap(f *schema.Field, a, b map[interface{}]interface{}) bool {
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !equalSingular(f.MapValue, va, vb) {
			return false
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			return false
		}
	}
	return true
}

func equalSingular(t schema.Type, a, b interface{}) bool {
	switch typ := t.(type) {
	case schema.Scalar:
		return typ.Equal(a, b)
	case *schema.Enum:
		return a == b
	default:
		ma, _ := a.(*Message)
		mb, _ := b.(*Message)
		if ma == nil || mb == nil {
			return ma == nil && mb == nil
		}
		return Equal(ma, mb)
	}
}
