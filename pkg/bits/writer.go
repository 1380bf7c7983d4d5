package bits

// Writer - MSB first bit writer, the pair of Reader
type Writer struct {
	buf  []byte // total buf
	byte byte   // current byte
	bits byte   // bits used in current byte
}

// NewWriter reuses b as storage (its content is dropped)
func NewWriter(b []byte) *Writer {
	return &Writer{buf: b[:0]}
}

func (w *Writer) WriteBit(b byte) {
	w.byte |= (b & 0b1) << (7 - w.bits)

	if w.bits++; w.bits == 8 {
		w.buf = append(w.buf, w.byte)
		w.byte = 0
		w.bits = 0
	}
}

func (w *Writer) WriteBits(v uint32, n byte) {
	for i := n - 1; i != 255; i-- {
		w.WriteBit(byte(v>>i) & 0b1)
	}
}

func (w *Writer) WriteBits16(v uint16, n byte) {
	for i := n - 1; i != 255; i-- {
		w.WriteBit(byte(v>>i) & 0b1)
	}
}

func (w *Writer) WriteBits8(v, n byte) {
	for i := n - 1; i != 255; i-- {
		w.WriteBit((v >> i) & 0b1)
	}
}

// WriteAllBits - write n bits with the same value
func (w *Writer) WriteAllBits(bit, n byte) {
	for i := byte(0); i < n; i++ {
		w.WriteBit(bit)
	}
}

// WriteBytes - write whole bytes, aligned or not
func (w *Writer) WriteBytes(b ...byte) {
	if w.bits == 0 {
		w.buf = append(w.buf, b...)
		return
	}
	for _, v := range b {
		w.WriteBits8(v, 8)
	}
}

// Len - number of whole bytes written
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes - written data, last byte is zero padded
func (w *Writer) Bytes() []byte {
	if w.bits == 0 {
		return w.buf
	}
	return append(w.buf, w.byte)
}
