package core

import (
	"io"
)

// ProbeSize - enough for any DTS/AC-3 frame and the MPEG-TS tables
const ProbeSize = 64 * 1024

// ReadBuffer - reader which replays the bytes read by Peek.
// Peek works only before the first Read.
type ReadBuffer struct {
	io.Reader

	buf []byte
	pos int
}

func NewReadBuffer(rd io.Reader) *ReadBuffer {
	if rb, ok := rd.(*ReadBuffer); ok {
		return rb
	}
	return &ReadBuffer{Reader: rd}
}

// Peek - first n bytes of the stream, less only if the stream is shorter
func (r *ReadBuffer) Peek(n int) ([]byte, error) {
	if need := n - len(r.buf); need > 0 {
		b := make([]byte, need)
		m, err := io.ReadFull(r.Reader, b)
		r.buf = append(r.buf, b[:m]...)

		switch err {
		case nil, io.ErrUnexpectedEOF:
		case io.EOF:
			if len(r.buf) == 0 {
				return nil, io.EOF
			}
		default:
			return nil, err
		}
	}

	if n > len(r.buf) {
		n = len(r.buf)
	}
	return r.buf[:n], nil
}

func (r *ReadBuffer) Read(p []byte) (n int, err error) {
	if r.pos < len(r.buf) {
		n = copy(p, r.buf[r.pos:])
		if r.pos += n; r.pos == len(r.buf) {
			r.buf = nil
			r.pos = 0
		}
		return
	}

	return r.Reader.Read(p)
}

func (r *ReadBuffer) Close() error {
	if closer, ok := r.Reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
