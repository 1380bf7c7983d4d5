package dts

import (
	"github.com/audiopass/audiopass/pkg/bits"
)

// SwapWords - swap bytes in every 16-bit word (16LE <> 16BE).
// Odd trailing byte is dropped.
func SwapWords(dst, src []byte) []byte {
	n := len(src) &^ 1
	dst = append(dst[:0], src[:n]...)
	for i := 0; i < n; i += 2 {
		dst[i], dst[i+1] = dst[i+1], dst[i]
	}
	return dst
}

// Repack14To16 - join 14-bit words (two MSB of each 16-bit word unused)
// into a continuous big endian bitstream. le selects word byte order.
func Repack14To16(dst, src []byte, le bool) []byte {
	w := bits.NewWriter(dst)
	for i := 0; i+1 < len(src); i += 2 {
		w.WriteBits16(word(src[i:], le)&0x3FFF, 14)
	}
	return w.Bytes()
}

// Repack16To14 - split a big endian bitstream into sign extended 14-bit words.
// The last word is zero padded.
func Repack16To14(dst, src []byte, le bool) []byte {
	dst = dst[:0]

	rd := bits.NewReader(src)
	for n := len(src) * 8; n > 0; n -= 14 {
		v := rd.ReadBits16(14)
		if v&0x2000 != 0 {
			v |= 0xC000
		}
		if le {
			dst = append(dst, byte(v), byte(v>>8))
		} else {
			dst = append(dst, byte(v>>8), byte(v))
		}
	}

	return dst
}

func word(b []byte, le bool) uint16 {
	if le {
		return uint16(b[1])<<8 | uint16(b[0])
	}
	return uint16(b[0])<<8 | uint16(b[1])
}
