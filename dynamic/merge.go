package dynamic

import (
	"github.com/ktr0731/dynpb/schema"
	"github.com/pkg/errors"
)

// Merge folds src into dst with wire merge semantics: singular scalars
// and enums present in src overwrite, nested messages merge recursively,
// sequences append and mapping entries overwrite key by key. Retained
// unknown fields are appended. Both messages must share a type.
func Merge(dst, src *Message) error {
	if dst.md.Name() != src.md.Name() {
		return errors.Errorf("cannot merge %s into %s", src.md.Name(), dst.md.Name())
	}
	for _, f := range src.md.ByNumber() {
		v, ok := src.values[f.Number]
		if !ok {
			continue
		}
		df := dst.md.Find(f.Number)
		switch {
		case f.IsMap():
			cur, _ := dst.values[df.Number].(map[interface{}]interface{})
			if cur == nil {
				cur = map[interface{}]interface{}{}
			}
			for k, e := range v.(map[interface{}]interface{}) {
				cur[k] = cloneValue(e)
			}
			dst.setValue(df, cur)
		case f.Repeated:
			cur, _ := dst.values[df.Number].([]interface{})
			for _, e := range v.([]interface{}) {
				cur = append(cur, cloneValue(e))
			}
			dst.setValue(df, cur)
		default:
			if sub, ok := v.(*Message); ok {
				cur, _ := dst.values[df.Number].(*Message)
				if cur == nil {
					dst.setValue(df, sub.Clone())
					continue
				}
				if err := Merge(cur, sub); err != nil {
					return err
				}
				continue
			}
			dst.setValue(df, cloneValue(v))
		}
	}
	for _, u := range src.unknown {
		raw := make([]byte, len(u.Raw))
		copy(raw, u.Raw)
		dst.unknown = append(dst.unknown, UnknownField{Number: u.Number, Type: u.Type, Raw: raw})
	}
	return nil
}

// MergeMap folds a sparse name-keyed value map into the message. Keys
// resolve by declared or JSON name. An explicit nil clears the field;
// absent keys leave the target untouched. Nested message values given as
// maps merge recursively into an existing value, mapping entries merge
// key by key, and every other value replaces the field after the usual
// normalization, switching oneof cases as needed.
func (m *Message) MergeMap(values map[string]interface{}) error {
	for name, v := range values {
		f := m.md.FindJSONName(name)
		if f == nil {
			return errors.Errorf("message %s has no field named %s", m.md.Name(), name)
		}
		if v == nil {
			m.Clear(f)
			continue
		}
		if err := m.mergeField(f, v); err != nil {
			return errors.Wrapf(err, "invalid value for field %s.%s", m.md.Name(), f.Name)
		}
	}
	return nil
}

func (m *Message) mergeField(f *schema.Field, v interface{}) error {
	switch {
	case f.IsMap():
		norm, err := m.normalizeMap(f, v)
		if err != nil {
			return err
		}
		cur, _ := m.values[f.Number].(map[interface{}]interface{})
		if cur == nil {
			m.setValue(f, norm)
			return nil
		}
		for k, e := range norm.(map[interface{}]interface{}) {
			cur[k] = e
		}
		return nil
	case f.Repeated:
		norm, err := m.normalizeValue(f, v)
		if err != nil {
			return err
		}
		m.setValue(f, norm)
		return nil
	default:
		if sub, ok := v.(map[string]interface{}); ok {
			if _, isMsg := f.Type.(*schema.MessageRef); isMsg {
				cur, _ := m.values[f.Number].(*Message)
				if cur != nil && (f.Oneof == nil || m.WhichOneof(f.Oneof) == f) {
					return cur.MergeMap(sub)
				}
			}
		}
		norm, err := m.normalizeSingular(f.Type, v)
		if err != nil {
			return err
		}
		m.setValue(f, norm)
		return nil
	}
}
