package strpool

import (
	"errors"
	"fmt"
	"unicode/utf16"
)

// ErrMalformedMUTF8 is returned when a byte sequence is not valid
// modified UTF-8.
var ErrMalformedMUTF8 = errors.New("malformed modified UTF-8")

// EncodeModifiedUTF8 encodes s the way the JVM stores strings and the way
// JNI's NewStringUTF expects them: U+0000 becomes C0 80 and code points
// above U+FFFF are written as a surrogate pair, each half in three bytes.
//
// Invalid UTF-8 in s is encoded as U+FFFD.
func EncodeModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r == 0:
			out = append(out, 0xC0, 0x80)
		case r < 0x80:
			out = append(out, byte(r))
		case r < 0x800:
			out = append(out, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			out = appendThree(out, r)
		default:
			hi, lo := utf16.EncodeRune(r)
			out = appendThree(out, hi)
			out = appendThree(out, lo)
		}
	}
	return out
}

func appendThree(out []byte, r rune) []byte {
	return append(out, 0xE0|byte(r>>12), 0x80|byte((r>>6)&0x3F), 0x80|byte(r&0x3F))
}

// DecodeModifiedUTF8 is the inverse of EncodeModifiedUTF8. Surrogate pairs
// are joined into a single code point.
func DecodeModifiedUTF8(b []byte) (string, error) {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		x := b[i]
		switch {
		case x < 0x80:
			if x == 0 {
				return "", fmt.Errorf("%w: raw NUL at %d", ErrMalformedMUTF8, i)
			}
			units = append(units, uint16(x))
			i++
		case x&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: truncated sequence at %d", ErrMalformedMUTF8, i)
			}
			units = append(units, uint16(x&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case x&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: truncated sequence at %d", ErrMalformedMUTF8, i)
			}
			units = append(units, uint16(x&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", fmt.Errorf("%w: unexpected byte 0x%02x at %d", ErrMalformedMUTF8, x, i)
		}
	}
	return string(utf16.Decode(units)), nil
}
