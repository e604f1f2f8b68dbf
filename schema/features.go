package schema

import (
	"sync"

	"google.golang.org/protobuf/types/descriptorpb"
)

// The feature enums mirror the descriptor ones value-for-value so feature
// sets read from descriptors convert by plain casts.

// FieldPresence decides whether singular fields track explicit presence.
type FieldPresence int32

const (
	FieldPresenceUnknown        FieldPresence = 0
	FieldPresenceExplicit       FieldPresence = 1
	FieldPresenceImplicit       FieldPresence = 2
	FieldPresenceLegacyRequired FieldPresence = 3
)

// RepeatedFieldEncoding decides whether packable repeated fields default
// to packed encoding.
type RepeatedFieldEncoding int32

const (
	RepeatedFieldEncodingUnknown  RepeatedFieldEncoding = 0
	RepeatedFieldEncodingPacked   RepeatedFieldEncoding = 1
	RepeatedFieldEncodingExpanded RepeatedFieldEncoding = 2
)

// EnumTypeFeature decides whether enums accept undeclared numbers.
type EnumTypeFeature int32

const (
	EnumTypeUnknown EnumTypeFeature = 0
	EnumTypeOpen    EnumTypeFeature = 1
	EnumTypeClosed  EnumTypeFeature = 2
)

// UTF8Validation decides whether string fields are checked for valid
// UTF-8 when decoding.
type UTF8Validation int32

const (
	UTF8ValidationUnknown UTF8Validation = 0
	UTF8ValidationVerify  UTF8Validation = 2
	UTF8ValidationNone    UTF8Validation = 3
)

// MessageEncoding decides how message fields are framed on the wire.
type MessageEncoding int32

const (
	MessageEncodingUnknown        MessageEncoding = 0
	MessageEncodingLengthPrefixed MessageEncoding = 1
	MessageEncodingDelimited      MessageEncoding = 2
)

// JSONFormat decides whether the canonical JSON mapping must be
// supported for the element.
type JSONFormat int32

const (
	JSONFormatUnknown          JSONFormat = 0
	JSONFormatAllow            JSONFormat = 1
	JSONFormatLegacyBestEffort JSONFormat = 2
)

// Features is the fully merged feature set effective for one schema
// element at one edition. A resolved set never holds an unknown value.
type Features struct {
	FieldPresence         FieldPresence
	RepeatedFieldEncoding RepeatedFieldEncoding
	EnumType              EnumTypeFeature
	UTF8Validation        UTF8Validation
	MessageEncoding       MessageEncoding
	JSONFormat            JSONFormat
}

// PackedByDefault reports whether packable repeated fields default to
// packed under the feature set.
func (f Features) PackedByDefault() bool {
	return f.RepeatedFieldEncoding == RepeatedFieldEncodingPacked
}

// ExplicitPresence reports whether singular scalar fields track presence.
func (f Features) ExplicitPresence() bool {
	return f.FieldPresence == FieldPresenceExplicit || f.FieldPresence == FieldPresenceLegacyRequired
}

// RequiredPresence reports proto2-style required fields.
func (f Features) RequiredPresence() bool {
	return f.FieldPresence == FieldPresenceLegacyRequired
}

// OpenEnums reports whether enums accept undeclared numbers.
func (f Features) OpenEnums() bool {
	return f.EnumType == EnumTypeOpen
}

// VerifyUTF8 reports whether decoded string fields must hold valid UTF-8.
func (f Features) VerifyUTF8() bool {
	return f.UTF8Validation == UTF8ValidationVerify
}

// DelimitedMessages reports whether message fields use the legacy group
// framing.
func (f Features) DelimitedMessages() bool {
	return f.MessageEncoding == MessageEncodingDelimited
}

func (f Features) complete() bool {
	return f.FieldPresence != FieldPresenceUnknown &&
		f.RepeatedFieldEncoding != RepeatedFieldEncodingUnknown &&
		f.EnumType != EnumTypeUnknown &&
		f.UTF8Validation != UTF8ValidationUnknown &&
		f.MessageEncoding != MessageEncodingUnknown &&
		f.JSONFormat != JSONFormatUnknown
}

// The supported edition range. Editions outside it fail resolution.
const (
	MinEdition = descriptorpb.Edition_EDITION_PROTO2
	MaxEdition = descriptorpb.Edition_EDITION_2023
)

var (
	editionDefaultsOnce sync.Once
	editionDefaults     map[descriptorpb.Edition]Features
)

// defaultFeatures returns the per-edition default table, built once. The
// proto2 and proto3 rows reproduce the behavior of the legacy syntax
// declarations; the 2023 row holds that edition's published defaults.
func defaultFeatures() map[descriptorpb.Edition]Features {
	editionDefaultsOnce.Do(func() {
		editionDefaults = map[descriptorpb.Edition]Features{
			descriptorpb.Edition_EDITION_PROTO2: {
				FieldPresence:         FieldPresenceExplicit,
				RepeatedFieldEncoding: RepeatedFieldEncodingExpanded,
				EnumType:              EnumTypeClosed,
				UTF8Validation:        UTF8ValidationNone,
				MessageEncoding:       MessageEncodingLengthPrefixed,
				JSONFormat:            JSONFormatLegacyBestEffort,
			},
			descriptorpb.Edition_EDITION_PROTO3: {
				FieldPresence:         FieldPresenceImplicit,
				RepeatedFieldEncoding: RepeatedFieldEncodingPacked,
				EnumType:              EnumTypeOpen,
				UTF8Validation:        UTF8ValidationVerify,
				MessageEncoding:       MessageEncodingLengthPrefixed,
				JSONFormat:            JSONFormatAllow,
			},
			descriptorpb.Edition_EDITION_2023: {
				FieldPresence:         FieldPresenceExplicit,
				RepeatedFieldEncoding: RepeatedFieldEncodingPacked,
				EnumType:              EnumTypeOpen,
				UTF8Validation:        UTF8ValidationVerify,
				MessageEncoding:       MessageEncodingLengthPrefixed,
				JSONFormat:            JSONFormatAllow,
			},
		}
	})
	return editionDefaults
}

// ResolveFeatures merges the edition's default feature set with explicit
// overrides, applied in order with later sets winning field-by-field.
// Every feature of the result must come out concrete.
func ResolveFeatures(edition descriptorpb.Edition, overrides ...*descriptorpb.FeatureSet) (Features, error) {
	if edition < MinEdition || edition > MaxEdition {
		return Features{}, buildErrorf("", "unsupported edition %s: supported range is [%s, %s]", edition, MinEdition, MaxEdition)
	}
	f, ok := defaultFeatures()[edition]
	if !ok {
		return Features{}, buildErrorf("", "no feature defaults compiled for edition %s", edition)
	}
	for _, o := range overrides {
		f = f.override(o)
	}
	if !f.complete() {
		return Features{}, buildErrorf("", "feature resolution for edition %s left unknown values", edition)
	}
	return f, nil
}

// override applies the non-zero features of o on top of f.
func (f Features) override(o *descriptorpb.FeatureSet) Features {
	if o == nil {
		return f
	}
	if v := o.GetFieldPresence(); v != descriptorpb.FeatureSet_FIELD_PRESENCE_UNKNOWN {
		f.FieldPresence = FieldPresence(v)
	}
	if v := o.GetRepeatedFieldEncoding(); v != descriptorpb.FeatureSet_REPEATED_FIELD_ENCODING_UNKNOWN {
		f.RepeatedFieldEncoding = RepeatedFieldEncoding(v)
	}
	if v := o.GetEnumType(); v != descriptorpb.FeatureSet_ENUM_TYPE_UNKNOWN {
		f.EnumType = EnumTypeFeature(v)
	}
	if v := o.GetUtf8Validation(); v != descriptorpb.FeatureSet_UTF8_VALIDATION_UNKNOWN {
		f.UTF8Validation = UTF8Validation(v)
	}
	if v := o.GetMessageEncoding(); v != descriptorpb.FeatureSet_MESSAGE_ENCODING_UNKNOWN {
		f.MessageEncoding = MessageEncoding(v)
	}
	if v := o.GetJsonFormat(); v != descriptorpb.FeatureSet_JSON_FORMAT_UNKNOWN {
		f.JSONFormat = JSONFormat(v)
	}
	return f
}
