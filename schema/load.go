package schema

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/bufbuild/protocompile"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Files is a registry of message and enum types built from a set of file
// descriptors, the interface boundary to the schema compiler. Built once,
// immutable afterwards.
type Files struct {
	messages map[string]*Message
	enums    map[string]*Enum
}

// NewFiles builds the registry from a serialized compiler output. Every
// message type gets its field list, every enum its value registry; map
// entry messages are folded into their map fields and not exposed as
// standalone types.
func NewFiles(set *descriptorpb.FileDescriptorSet) (*Files, error) {
	b := &filesBuilder{
		files:    &Files{messages: map[string]*Message{}, enums: map[string]*Enum{}},
		msgDecls: map[string]*messageDecl{},
	}
	seen := map[string]bool{}
	for _, fd := range set.GetFile() {
		if seen[fd.GetName()] {
			continue
		}
		seen[fd.GetName()] = true
		if err := b.collectFile(fd); err != nil {
			return nil, err
		}
	}
	if err := b.build(); err != nil {
		return nil, err
	}
	return b.files, nil
}

// CompileFileDescriptorSet compiles the given proto source files,
// resolving imports against the import paths and the standard well-known
// imports. The returned set carries every transitive dependency, ordered
// so that imports precede their importers.
func CompileFileDescriptorSet(importPaths []string, fnames []string) (*descriptorpb.FileDescriptorSet, error) {
	c := &protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			ImportPaths: importPaths,
		}),
	}
	compiled, err := c.Compile(context.TODO(), fnames...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile proto files")
	}

	set := &descriptorpb.FileDescriptorSet{}
	collected := map[string]bool{}
	var add func(fd protoreflect.FileDescriptor)
	add = func(fd protoreflect.FileDescriptor) {
		if collected[fd.Path()] {
			return
		}
		collected[fd.Path()] = true
		imports := fd.Imports()
		for i := 0; i < imports.Len(); i++ {
			add(imports.Get(i).FileDescriptor)
		}
		set.File = append(set.File, protodesc.ToFileDescriptorProto(fd))
	}
	for _, fd := range compiled {
		add(fd)
	}
	return set, nil
}

// LoadFiles compiles the given proto source files and builds the
// registry from the result.
func LoadFiles(importPaths []string, fnames []string) (*Files, error) {
	set, err := CompileFileDescriptorSet(importPaths, fnames)
	if err != nil {
		return nil, err
	}
	return NewFiles(set)
}

// LoadFileDescriptorSet reads a serialized FileDescriptorSet, as written
// by protoc --descriptor_set_out, and builds the registry from it.
func LoadFileDescriptorSet(path string) (*Files, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read the descriptor set file")
	}
	set := &descriptorpb.FileDescriptorSet{}
	if err := proto.Unmarshal(raw, set); err != nil {
		return nil, errors.Wrap(err, "failed to parse the descriptor set file")
	}
	return NewFiles(set)
}

// Message returns the message type with the given full name.
func (f *Files) Message(name string) (*Message, error) {
	if m, ok := f.messages[strings.TrimPrefix(name, ".")]; ok {
		return m, nil
	}
	return nil, errors.Wrap(ErrTypeNotFound, name)
}

// Enum returns the enum type with the given full name.
func (f *Files) Enum(name string) (*Enum, error) {
	if e, ok := f.enums[strings.TrimPrefix(name, ".")]; ok {
		return e, nil
	}
	return nil, errors.Wrap(ErrTypeNotFound, name)
}

// FindMessageByURL resolves a type URL, as carried by Any messages, to a
// message type. Only the last path segment identifies the type; the host
// prefix is ignored.
func (f *Files) FindMessageByURL(url string) (*Message, error) {
	name := url
	if i := strings.LastIndexByte(url, '/'); i >= 0 {
		name = url[i+1:]
	}
	return f.Message(name)
}

// MessageNames returns the full names of all registered message types,
// sorted.
func (f *Files) MessageNames() []string {
	names := make([]string, 0, len(f.messages))
	for name := range f.messages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnumNames returns the full names of all registered enum types, sorted.
func (f *Files) EnumNames() []string {
	names := make([]string, 0, len(f.enums))
	for name := range f.enums {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type messageDecl struct {
	name     string
	d        *descriptorpb.DescriptorProto
	features Features
}

type enumDecl struct {
	name     string
	d        *descriptorpb.EnumDescriptorProto
	features Features
}

type filesBuilder struct {
	files     *Files
	msgDecls  map[string]*messageDecl
	msgOrder  []*messageDecl
	enumDecls []*enumDecl
}

func fileEdition(fd *descriptorpb.FileDescriptorProto) (descriptorpb.Edition, error) {
	switch fd.GetSyntax() {
	case "", "proto2":
		return descriptorpb.Edition_EDITION_PROTO2, nil
	case "proto3":
		return descriptorpb.Edition_EDITION_PROTO3, nil
	case "editions":
		return fd.GetEdition(), nil
	default:
		return 0, buildErrorf(fd.GetName(), "unsupported syntax %q", fd.GetSyntax())
	}
}

func (b *filesBuilder) collectFile(fd *descriptorpb.FileDescriptorProto) error {
	edition, err := fileEdition(fd)
	if err != nil {
		return err
	}
	feats, err := ResolveFeatures(edition, fd.GetOptions().GetFeatures())
	if err != nil {
		return errors.Wrapf(err, "file %s", fd.GetName())
	}

	prefix := fd.GetPackage()
	for _, md := range fd.GetMessageType() {
		b.collectMessage(prefix, md, feats)
	}
	for _, ed := range fd.GetEnumType() {
		b.collectEnum(prefix, ed, feats)
	}
	return nil
}

func (b *filesBuilder) collectMessage(prefix string, d *descriptorpb.DescriptorProto, parent Features) {
	name := scopedName(prefix, d.GetName())
	feats := parent.override(d.GetOptions().GetFeatures())
	decl := &messageDecl{name: name, d: d, features: feats}
	b.msgDecls[name] = decl
	b.msgOrder = append(b.msgOrder, decl)

	for _, nested := range d.GetNestedType() {
		b.collectMessage(name, nested, feats)
	}
	for _, ed := range d.GetEnumType() {
		b.collectEnum(name, ed, feats)
	}
}

func (b *filesBuilder) collectEnum(prefix string, d *descriptorpb.EnumDescriptorProto, parent Features) {
	b.enumDecls = append(b.enumDecls, &enumDecl{
		name:     scopedName(prefix, d.GetName()),
		d:        d,
		features: parent.override(d.GetOptions().GetFeatures()),
	})
}

func scopedName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// build runs in two phases: enums first since fields may reference them
// directly, then messages, whose mutual references stay lazy so cycles
// between message types resolve after the registry is fully populated.
func (b *filesBuilder) build() error {
	for _, decl := range b.enumDecls {
		values := make([]EnumValue, 0, len(decl.d.GetValue()))
		for _, v := range decl.d.GetValue() {
			values = append(values, EnumValue{Name: v.GetName(), Number: v.GetNumber()})
		}
		e, err := NewEnum(decl.name, values, EnumOptions{
			Open:             decl.features.OpenEnums(),
			AllowAlias:       decl.d.GetOptions().GetAllowAlias(),
			RequireZeroFirst: decl.features.OpenEnums(),
		})
		if err != nil {
			return err
		}
		b.files.enums[decl.name] = e
	}

	for _, decl := range b.msgOrder {
		if decl.d.GetOptions().GetMapEntry() {
			continue
		}
		m, err := b.buildMessage(decl)
		if err != nil {
			return err
		}
		b.files.messages[decl.name] = m
	}
	return nil
}

func (b *filesBuilder) buildMessage(decl *messageDecl) (*Message, error) {
	d := decl.d

	// A proto3 optional field is carried in a synthetic single-member
	// oneof; those groups are presence bookkeeping, not real oneofs.
	synthetic := map[int32]bool{}
	for _, fdp := range d.GetField() {
		if fdp.OneofIndex != nil && fdp.GetProto3Optional() {
			synthetic[fdp.GetOneofIndex()] = true
		}
	}
	byIndex := make([]*Oneof, len(d.GetOneofDecl()))
	var oneofs []*Oneof
	for i, od := range d.GetOneofDecl() {
		if synthetic[int32(i)] {
			continue
		}
		o := &Oneof{Name: od.GetName()}
		byIndex[i] = o
		oneofs = append(oneofs, o)
	}

	fields := make([]*Field, 0, len(d.GetField()))
	for _, fdp := range d.GetField() {
		f, err := b.buildField(decl, fdp, byIndex)
		if err != nil {
			return nil, &BuildError{Name: decl.name, Err: err}
		}
		fields = append(fields, f)
	}
	return NewMessage(decl.name, fields, oneofs, MessageOptions{Features: decl.features})
}

func (b *filesBuilder) buildField(decl *messageDecl, fdp *descriptorpb.FieldDescriptorProto, oneofs []*Oneof) (*Field, error) {
	feats := decl.features.override(fdp.GetOptions().GetFeatures())

	f := &Field{
		Number: fdp.GetNumber(),
		Name:   fdp.GetName(),
	}
	if fdp.JsonName != nil {
		f.JSONName = fdp.GetJsonName()
	}
	if fdp.GetLabel() == descriptorpb.FieldDescriptorProto_LABEL_REPEATED {
		f.Repeated = true
	}

	if fdp.OneofIndex != nil && !fdp.GetProto3Optional() {
		idx := fdp.GetOneofIndex()
		if idx < 0 || int(idx) >= len(oneofs) || oneofs[idx] == nil {
			return nil, errors.Errorf("field %s references an unknown oneof index %d", f.Name, idx)
		}
		f.Oneof = oneofs[idx]
		f.Oneof.Fields = append(f.Oneof.Fields, f)
	}

	isMessageKind := false
	switch fdp.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		e, err := b.lookupEnum(fdp.GetTypeName())
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", f.Name)
		}
		f.Type = e
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, descriptorpb.FieldDescriptorProto_TYPE_GROUP:
		isMessageKind = true
		target, err := b.lookupMessageDecl(fdp.GetTypeName())
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", f.Name)
		}
		if target.d.GetOptions().GetMapEntry() {
			if err := b.foldMapEntry(f, target); err != nil {
				return nil, err
			}
			isMessageKind = false
		} else {
			f.Type = b.messageRef(target.name)
			if fdp.GetType() == descriptorpb.FieldDescriptorProto_TYPE_GROUP || feats.DelimitedMessages() {
				f.Delimited = true
			}
		}
	default:
		s, err := scalarKind(fdp.GetType())
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", f.Name)
		}
		f.Type = s
	}

	if !f.IsMap() {
		singular := !f.Repeated
		switch {
		case fdp.GetLabel() == descriptorpb.FieldDescriptorProto_LABEL_REQUIRED,
			singular && feats.RequiredPresence():
			f.Required = true
		case singular && f.Oneof == nil:
			switch {
			case isMessageKind, fdp.GetProto3Optional(), feats.ExplicitPresence():
				f.Optional = true
			}
		}

		packable := false
		switch t := f.Type.(type) {
		case Scalar:
			packable = t.Packable()
		case *Enum:
			packable = true
		}
		if f.Repeated && packable {
			packed := feats.PackedByDefault()
			if opts := fdp.GetOptions(); opts != nil && opts.Packed != nil {
				packed = opts.GetPacked()
			}
			if packed {
				f.Packed = true
			} else {
				f.Unpacked = true
			}
		}

		if fdp.DefaultValue != nil {
			v, err := parseDefault(f.Type, fdp.GetDefaultValue())
			if err != nil {
				return nil, errors.Wrapf(err, "field %s", f.Name)
			}
			f.Default = v
		}
	}
	return f, nil
}

// foldMapEntry turns a repeated map-entry message field into a map field
// using the entry's key and value sub-fields.
func (b *filesBuilder) foldMapEntry(f *Field, entry *messageDecl) error {
	if !f.Repeated {
		return errors.Errorf("map field %s must be repeated on the wire", f.Name)
	}
	var keyFD, valFD *descriptorpb.FieldDescriptorProto
	for _, fdp := range entry.d.GetField() {
		switch fdp.GetNumber() {
		case 1:
			keyFD = fdp
		case 2:
			valFD = fdp
		}
	}
	if keyFD == nil || valFD == nil {
		return errors.Errorf("map entry %s must declare key and value fields", entry.name)
	}

	key, err := scalarKind(keyFD.GetType())
	if err != nil {
		return errors.Wrapf(err, "map field %s key", f.Name)
	}
	f.MapKey = key

	switch valFD.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		e, err := b.lookupEnum(valFD.GetTypeName())
		if err != nil {
			return errors.Wrapf(err, "map field %s value", f.Name)
		}
		f.MapValue = e
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE:
		target, err := b.lookupMessageDecl(valFD.GetTypeName())
		if err != nil {
			return errors.Wrapf(err, "map field %s value", f.Name)
		}
		f.MapValue = b.messageRef(target.name)
	default:
		s, err := scalarKind(valFD.GetType())
		if err != nil {
			return errors.Wrapf(err, "map field %s value", f.Name)
		}
		f.MapValue = s
	}
	f.Repeated = false
	return nil
}

// messageRef returns a lazy reference into the registry. By the time any
// caller resolves it the build has completed, so cyclic references
// between message types cost nothing here.
func (b *filesBuilder) messageRef(name string) *MessageRef {
	files := b.files
	return LazyMessageRef(func() *Message {
		return files.messages[name]
	})
}

func (b *filesBuilder) lookupMessageDecl(typeName string) (*messageDecl, error) {
	name := strings.TrimPrefix(typeName, ".")
	decl, ok := b.msgDecls[name]
	if !ok {
		return nil, errors.Wrapf(ErrTypeNotFound, "message %s", name)
	}
	return decl, nil
}

func (b *filesBuilder) lookupEnum(typeName string) (*Enum, error) {
	name := strings.TrimPrefix(typeName, ".")
	e, ok := b.files.enums[name]
	if !ok {
		return nil, errors.Wrapf(ErrTypeNotFound, "enum %s", name)
	}
	return e, nil
}

func scalarKind(t descriptorpb.FieldDescriptorProto_Type) (Scalar, error) {
	switch t {
	case descriptorpb.FieldDescriptorProto_TYPE_DOUBLE:
		return Double, nil
	case descriptorpb.FieldDescriptorProto_TYPE_FLOAT:
		return Float, nil
	case descriptorpb.FieldDescriptorProto_TYPE_INT64:
		return Int64, nil
	case descriptorpb.FieldDescriptorProto_TYPE_UINT64:
		return UInt64, nil
	case descriptorpb.FieldDescriptorProto_TYPE_INT32:
		return Int32, nil
	case descriptorpb.FieldDescriptorProto_TYPE_FIXED64:
		return Fixed64, nil
	case descriptorpb.FieldDescriptorProto_TYPE_FIXED32:
		return Fixed32, nil
	case descriptorpb.FieldDescriptorProto_TYPE_BOOL:
		return Bool, nil
	case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		return String, nil
	case descriptorpb.FieldDescriptorProto_TYPE_BYTES:
		return Bytes, nil
	case descriptorpb.FieldDescriptorProto_TYPE_UINT32:
		return UInt32, nil
	case descriptorpb.FieldDescriptorProto_TYPE_SFIXED32:
		return SFixed32, nil
	case descriptorpb.FieldDescriptorProto_TYPE_SFIXED64:
		return SFixed64, nil
	case descriptorpb.FieldDescriptorProto_TYPE_SINT32:
		return SInt32, nil
	case descriptorpb.FieldDescriptorProto_TYPE_SINT64:
		return SInt64, nil
	default:
		return 0, errors.Errorf("type %s is not a scalar kind", t)
	}
}

// parseDefault parses a proto2 textual default value into the field
// type's canonical representation. Bytes defaults use the C escaping the
// descriptor format carries them in.
func parseDefault(t Type, s string) (interface{}, error) {
	switch t := t.(type) {
	case *Enum:
		return t.Normalize(s)
	case Scalar:
		switch t {
		case Bool:
			switch s {
			case "true":
				return true, nil
			case "false":
				return false, nil
			default:
				return nil, errors.Errorf("invalid bool default %q", s)
			}
		case String:
			return s, nil
		case Bytes:
			return unescapeBytes(s)
		default:
			return t.Normalize(s)
		}
	default:
		return nil, errors.New("message fields cannot declare default values")
	}
}

// unescapeBytes reverses the C-style escaping used for bytes defaults in
// descriptors.
func unescapeBytes(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(s) {
			return nil, errors.New("truncated escape sequence in bytes default")
		}
		switch e := s[i]; e {
		case 'a':
			out = append(out, '\a')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'v':
			out = append(out, '\v')
		case '\\', '\'', '"', '?':
			out = append(out, e)
		case 'x', 'X':
			var v, n int
			for n = 0; n < 2 && i+1 < len(s) && isHex(s[i+1]); n++ {
				i++
				v = v*16 + hexVal(s[i])
			}
			if n == 0 {
				return nil, errors.New("invalid hex escape in bytes default")
			}
			out = append(out, byte(v))
		case '0', '1', '2', '3', '4', '5', '6', '7':
			v := int(e - '0')
			for n := 0; n < 2 && i+1 < len(s) && '0' <= s[i+1] && s[i+1] <= '7'; n++ {
				i++
				v = v*8 + int(s[i]-'0')
			}
			if v > 0xff {
				return nil, errors.Errorf("octal escape \\%o out of range in bytes default", v)
			}
			out = append(out, byte(v))
		default:
			return nil, errors.Errorf("unknown escape sequence \\%c in bytes default", e)
		}
	}
	return out, nil
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func hexVal(c byte) int {
	switch {
	case '0' <= c && c <= '9':
		return int(c - '0')
	case 'a' <= c && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}
