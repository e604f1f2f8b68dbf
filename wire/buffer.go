package wire

import (
	"fmt"
	"io"
)

// Buffer is a cursor over a byte slice with primitives for reading and
// writing wire-format data. Reads consume from an internal offset; writes
// append to the end. The zero value is an empty buffer ready for writing.
type Buffer struct {
	buf   []byte
	index int
}

// NewBuffer returns a buffer that reads from buf. The buffer does not copy
// buf; callers that reuse the slice should hand the buffer a copy.
func NewBuffer(buf []byte) *Buffer {
	return &Buffer{buf: buf}
}

// Reset discards all contents and rewinds the cursor.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.index = 0
}

// SetBuf replaces the underlying slice and rewinds the cursor.
func (b *Buffer) SetBuf(buf []byte) {
	b.buf = buf
	b.index = 0
}

// Bytes returns the unread portion of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.buf[b.index:]
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.buf) - b.index
}

// EOF reports whether the cursor has consumed the whole buffer.
func (b *Buffer) EOF() bool {
	return b.index >= len(b.buf)
}

// Skip advances the cursor by n bytes.
func (b *Buffer) Skip(n int) error {
	if b.Len() < n {
		return io.ErrUnexpectedEOF
	}
	b.index += n
	return nil
}

// Write appends p to the buffer, implementing io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// DecodeVarint reads one base-128 varint. It fails with ErrOverflow when
// the value needs more than 64 bits and io.ErrUnexpectedEOF when the data
// runs out mid-varint.
func (b *Buffer) DecodeVarint() (uint64, error) {
	var v uint64
	for i, s := b.index, uint(0); i < len(b.buf); i, s = i+1, s+7 {
		c := b.buf[i]
		if s == 63 && c > 1 {
			return 0, ErrOverflow
		}
		if c < 0x80 {
			b.index = i + 1
			return v | uint64(c)<<s, nil
		}
		v |= uint64(c&0x7f) << s
	}
	return 0, io.ErrUnexpectedEOF
}

// DecodeTag reads one field tag and splits it into field number and wire
// type. Field number zero is rejected; it is reserved as an end marker by
// other encodings and never valid here.
func (b *Buffer) DecodeTag() (int32, Type, error) {
	v, err := b.DecodeVarint()
	if err != nil {
		return 0, 0, err
	}
	if v > uint64(MaxFieldNumber)<<3|7 {
		return 0, 0, ErrInvalidFieldNumber
	}
	num, typ := int32(v>>3), Type(v&7)
	if num < MinFieldNumber {
		return 0, 0, ErrInvalidFieldNumber
	}
	if !typ.Valid() {
		return 0, 0, fmt.Errorf("%w %d for field %d", ErrInvalidType, typ, num)
	}
	return num, typ, nil
}

// DecodeFixed32 reads four little-endian bytes.
func (b *Buffer) DecodeFixed32() (uint32, error) {
	if b.Len() < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	i := b.index
	b.index += 4
	return uint32(b.buf[i]) |
		uint32(b.buf[i+1])<<8 |
		uint32(b.buf[i+2])<<16 |
		uint32(b.buf[i+3])<<24, nil
}

// DecodeFixed64 reads eight little-endian bytes.
func (b *Buffer) DecodeFixed64() (uint64, error) {
	if b.Len() < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	i := b.index
	b.index += 8
	return uint64(b.buf[i]) |
		uint64(b.buf[i+1])<<8 |
		uint64(b.buf[i+2])<<16 |
		uint64(b.buf[i+3])<<24 |
		uint64(b.buf[i+4])<<32 |
		uint64(b.buf[i+5])<<40 |
		uint64(b.buf[i+6])<<48 |
		uint64(b.buf[i+7])<<56, nil
}

// DecodeRawBytes reads a length-delimited payload. When alloc is true the
// returned slice is a copy; otherwise it aliases the buffer and is only
// valid until the buffer's contents change.
func (b *Buffer) DecodeRawBytes(alloc bool) ([]byte, error) {
	n, err := b.DecodeVarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(b.Len()) {
		return nil, io.ErrUnexpectedEOF
	}
	raw := b.buf[b.index : b.index+int(n)]
	b.index += int(n)
	if alloc {
		cp := make([]byte, len(raw))
		copy(cp, raw)
		raw = cp
	}
	return raw, nil
}

// ReadGroup reads the body of a group whose start tag, carrying the given
// field number, has already been consumed. The returned slice holds the
// group's inner fields without the surrounding tags, so re-encoding it
// between fresh start and end tags reproduces the original bytes. When
// alloc is true the slice is a copy.
func (b *Buffer) ReadGroup(number int32, alloc bool) ([]byte, error) {
	dataEnd, end, err := b.findGroupEnd(number)
	if err != nil {
		return nil, err
	}
	raw := b.buf[b.index:dataEnd]
	b.index = end
	if alloc {
		cp := make([]byte, len(raw))
		copy(cp, raw)
		raw = cp
	}
	return raw, nil
}

// SkipGroup discards a group whose start tag has already been consumed.
func (b *Buffer) SkipGroup(number int32) error {
	_, end, err := b.findGroupEnd(number)
	if err != nil {
		return err
	}
	b.index = end
	return nil
}

// SkipValue discards a single value of the given wire type, including
// whole groups. It is the primitive behind discarding unknown fields.
func (b *Buffer) SkipValue(number int32, t Type) error {
	switch t {
	case TypeVarint:
		_, err := b.DecodeVarint()
		return err
	case TypeFixed32:
		return b.Skip(4)
	case TypeFixed64:
		return b.Skip(8)
	case TypeBytes:
		_, err := b.DecodeRawBytes(false)
		return err
	case TypeStartGroup:
		return b.SkipGroup(number)
	case TypeEndGroup:
		return ErrGroupMismatch
	default:
		return fmt.Errorf("%w %d for field %d", ErrInvalidType, t, number)
	}
}

// ReadValue reads a single value of the given wire type and returns the
// raw bytes that followed the tag, copied out of the buffer. For groups
// the slice holds the inner fields only, as with ReadGroup. The bytes are
// exactly what EncodeValue needs to reproduce the field.
func (b *Buffer) ReadValue(number int32, t Type) ([]byte, error) {
	start := b.index
	switch t {
	case TypeVarint:
		if _, err := b.DecodeVarint(); err != nil {
			return nil, err
		}
	case TypeFixed32:
		if err := b.Skip(4); err != nil {
			return nil, err
		}
	case TypeFixed64:
		if err := b.Skip(8); err != nil {
			return nil, err
		}
	case TypeBytes:
		if _, err := b.DecodeRawBytes(false); err != nil {
			return nil, err
		}
	case TypeStartGroup:
		return b.ReadGroup(number, true)
	case TypeEndGroup:
		return nil, ErrGroupMismatch
	default:
		return nil, fmt.Errorf("%w %d for field %d", ErrInvalidType, t, number)
	}
	raw := make([]byte, b.index-start)
	copy(raw, b.buf[start:b.index])
	return raw, nil
}

// findGroupEnd scans forward from the cursor for the end tag matching the
// given group number, tolerating nested groups. It returns the offset just
// past the last inner field and the offset just past the end tag. The
// cursor itself is left where it was.
func (b *Buffer) findGroupEnd(number int32) (dataEnd int, end int, err error) {
	start := b.index
	defer func() { b.index = start }()
	for {
		fieldStart := b.index
		num, typ, err := b.DecodeTag()
		if err != nil {
			return 0, 0, err
		}
		if typ == TypeEndGroup {
			if num != number {
				return 0, 0, ErrGroupMismatch
			}
			return fieldStart, b.index, nil
		}
		if err := b.SkipValue(num, typ); err != nil {
			return 0, 0, err
		}
	}
}

// EncodeVarint appends v as a base-128 varint.
func (b *Buffer) EncodeVarint(v uint64) {
	for v >= 0x80 {
		b.buf = append(b.buf, byte(v)&0x7f|0x80)
		v >>= 7
	}
	b.buf = append(b.buf, byte(v))
}

// EncodeTag appends the tag for the given field number and wire type.
func (b *Buffer) EncodeTag(number int32, t Type) {
	b.EncodeVarint(uint64(number)<<3 | uint64(t))
}

// EncodeFixed32 appends v as four little-endian bytes.
func (b *Buffer) EncodeFixed32(v uint32) {
	b.buf = append(b.buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24))
}

// EncodeFixed64 appends v as eight little-endian bytes.
func (b *Buffer) EncodeFixed64(v uint64) {
	b.buf = append(b.buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56))
}

// EncodeRawBytes appends raw prefixed with its length as a varint.
func (b *Buffer) EncodeRawBytes(raw []byte) {
	b.EncodeVarint(uint64(len(raw)))
	b.buf = append(b.buf, raw...)
}

// EncodeValue appends the tag and raw bytes previously captured by
// ReadValue. Groups get both start and end tags around raw; every other
// type already carries its length or width inside raw.
func (b *Buffer) EncodeValue(number int32, t Type, raw []byte) {
	if t == TypeStartGroup {
		b.EncodeTag(number, TypeStartGroup)
		b.buf = append(b.buf, raw...)
		b.EncodeTag(number, TypeEndGroup)
		return
	}
	b.EncodeTag(number, t)
	b.buf = append(b.buf, raw...)
}

// SizeVarint returns the number of bytes EncodeVarint would use for v.
func SizeVarint(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// SizeTag returns the encoded size of the tag for a field number.
func SizeTag(number int32) int {
	return SizeVarint(uint64(number) << 3)
}
