// Package codec implements VarbyteCodec and the "magic" double-vbyte
// (docgap, tf) co-encoding described in spec.md §4.1, ported from
// _examples/original_source/src/compress.rs (itself a port of Joel
// McKenzie's immediate-access project).
package codec

// MagicBase is the base M used by the double-vbyte (docgap, tf) scheme.
const MagicBase = 4

// BytesRequired returns the number of bytes EncodeVarbyte would emit for v.
func BytesRequired(v uint32) int {
	switch {
	case v < (1 << 7):
		return 1
	case v < (1 << 14):
		return 2
	case v < (1 << 21):
		return 3
	case v < (1 << 28):
		return 4
	default:
		return 5
	}
}

// EncodeVarbyte appends the vbyte encoding of v to buf and returns the
// extended slice.
func EncodeVarbyte(buf []byte, v uint32) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v&0x7f)|0x80)
		v >>= 7
	}
	return append(buf, byte(v&0x7f))
}

// DecodeVarbyte reads one vbyte-encoded value from buf starting at
// offset off, and returns the value plus the new offset.
func DecodeVarbyte(buf []byte, off int) (uint32, int, error) {
	var value uint32
	var shift uint
	for {
		if off >= len(buf) {
			return 0, off, errShortBuffer
		}
		b := buf[off]
		off++
		value |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return value, off, nil
}

// MagicBytesRequired returns the byte length EncodeMagic would emit for
// (docgap, tf). docgap must be >= 1.
func MagicBytesRequired(docgap, tf uint32) int {
	if docgap == 0 {
		panic("codec: docgap must be >= 1")
	}
	if tf < MagicBase {
		return BytesRequired((docgap-1)*MagicBase + tf)
	}
	n := BytesRequired(docgap * MagicBase)
	n += BytesRequired(tf - MagicBase + 1)
	return n
}

// EncodeMagic appends the double-vbyte encoding of (docgap, tf) to buf.
// docgap must be >= 1 and tf must be >= 1; violating either is an
// encoder bug (spec.md §4.1 invariant), so it panics rather than
// returning an error.
func EncodeMagic(buf []byte, docgap, tf uint32) []byte {
	if docgap == 0 {
		panic("codec: EncodeMagic requires docgap >= 1")
	}
	if tf == 0 {
		panic("codec: EncodeMagic requires tf >= 1")
	}
	if tf < MagicBase {
		return EncodeVarbyte(buf, (docgap-1)*MagicBase+tf)
	}
	buf = EncodeVarbyte(buf, docgap*MagicBase)
	return EncodeVarbyte(buf, tf-MagicBase+1)
}

// DecodeMagic reads one (docgap, tf) pair starting at offset off.
func DecodeMagic(buf []byte, off int) (docgap, tf uint32, newOff int, err error) {
	v, off, err := DecodeVarbyte(buf, off)
	if err != nil {
		return 0, 0, off, err
	}
	if v%MagicBase > 0 {
		docgap = 1 + v/MagicBase
		tf = v % MagicBase
		return docgap, tf, off, nil
	}
	docgap = v / MagicBase
	tfPart, off, err := DecodeVarbyte(buf, off)
	if err != nil {
		return 0, 0, off, err
	}
	tf = MagicBase - 1 + tfPart
	return docgap, tf, off, nil
}

var errShortBuffer = shortBufferError{}

type shortBufferError struct{}

func (shortBufferError) Error() string { return "codec: buffer exhausted mid-vbyte" }
