package known

import (
	"github.com/ktr0731/dynpb/dynamic"
	"github.com/pkg/errors"
)

const typeURLPrefix = "type.googleapis.com/"

// PackAny wraps msg into a google.protobuf.Any message under the
// standard type URL prefix.
func PackAny(msg *dynamic.Message) (*dynamic.Message, error) {
	raw, err := msg.Marshal()
	if err != nil {
		return nil, err
	}
	m := dynamic.New(AnyType())
	mustSet(m, 1, typeURLPrefix+msg.Descriptor().Name())
	mustSet(m, 2, raw)
	return m, nil
}

// UnpackAny resolves the Any's type URL through resolver and decodes
// its payload into a fresh message of the resolved type.
func UnpackAny(m *dynamic.Message, resolver dynamic.AnyResolver) (*dynamic.Message, error) {
	if err := expectType(m, "google.protobuf.Any"); err != nil {
		return nil, err
	}
	md := m.Descriptor()
	url, ok := m.Get(md.Find(1)).(string)
	if !ok || url == "" {
		return nil, errors.Errorf("any message has no type URL")
	}
	raw, ok := m.Get(md.Find(2)).([]byte)
	if !ok {
		return nil, errors.Errorf("any message holds a malformed value field")
	}
	inner, err := resolver.FindMessageByURL(url)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", url)
	}
	out := dynamic.New(inner)
	if err := out.Unmarshal(raw); err != nil {
		return nil, err
	}
	return out, nil
}
