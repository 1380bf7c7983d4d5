package bits

// Reader - MSB first bit reader over a fixed buffer.
// Reading past the end never panics: it returns zero bits and raises EOF.
type Reader struct {
	EOF bool // if end of buffer raised during reading

	buf  []byte // total buf
	byte byte   // current byte
	bits byte   // bits left in byte
	pos  int    // current pos in buf
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

//goland:noinspection GoStandardMethods
func (r *Reader) ReadByte() byte {
	if r.bits != 0 {
		return r.ReadBits8(8)
	}

	if r.pos >= len(r.buf) {
		r.EOF = true
		return 0
	}

	b := r.buf[r.pos]
	r.pos++
	return b
}

func (r *Reader) ReadUint16() uint16 {
	if r.bits != 0 {
		return r.ReadBits16(16)
	}
	return uint16(r.ReadByte())<<8 | uint16(r.ReadByte())
}

func (r *Reader) ReadUint32() uint32 {
	if r.bits != 0 {
		return r.ReadBits(32)
	}
	return uint32(r.ReadByte())<<24 | uint32(r.ReadByte())<<16 | uint32(r.ReadByte())<<8 | uint32(r.ReadByte())
}

func (r *Reader) ReadBit() byte {
	if r.bits == 0 {
		r.byte = r.ReadByte()
		r.bits = 7
	} else {
		r.bits--
	}

	return (r.byte >> r.bits) & 0b1
}

// ReadFlag - one bit as bool
func (r *Reader) ReadFlag() bool {
	return r.ReadBit() != 0
}

func (r *Reader) ReadBits(n byte) (res uint32) {
	for i := n - 1; i != 255; i-- {
		res |= uint32(r.ReadBit()) << i
	}
	return
}

func (r *Reader) ReadBits8(n byte) (res uint8) {
	for i := n - 1; i != 255; i-- {
		res |= r.ReadBit() << i
	}
	return
}

func (r *Reader) ReadBits16(n byte) (res uint16) {
	for i := n - 1; i != 255; i-- {
		res |= uint16(r.ReadBit()) << i
	}
	return
}

// SkipBits - skip n bits, whole bytes are skipped without bit shifting
func (r *Reader) SkipBits(n int) {
	for ; n > 0 && r.bits != 0; n-- {
		_ = r.ReadBit()
	}

	if bytes := n / 8; bytes > 0 {
		if r.pos+bytes > len(r.buf) {
			r.pos = len(r.buf)
			r.EOF = true
			return
		}
		r.pos += bytes
		n -= bytes * 8
	}

	for ; n > 0; n-- {
		_ = r.ReadBit()
	}
}

// Left - unread whole bytes
func (r *Reader) Left() []byte {
	return r.buf[r.pos:]
}

// Pos - bit position from the start of the buffer
func (r *Reader) Pos() int {
	return r.pos*8 - int(r.bits)
}
