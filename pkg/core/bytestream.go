package core

import "time"

// Bytestream - FIFO of pushed blocks with a read cursor.
// Peek functions never move the cursor, Skip and Get functions consume data
// irreversibly. Consumed data is released on Pop/Flush.
// Each byte remembers the PTS of the block it came from.
type Bytestream struct {
	buf   []byte
	pos   int
	marks []mark
}

type mark struct {
	offset int // block start in buf
	pts    time.Duration
}

func (s *Bytestream) Push(b *Block) {
	if len(b.Data) == 0 {
		return
	}
	s.marks = append(s.marks, mark{offset: len(s.buf), pts: b.PTS})
	s.buf = append(s.buf, b.Data...)
}

// Len - number of unconsumed bytes
func (s *Bytestream) Len() int {
	return len(s.buf) - s.pos
}

// PeekBytes - copy len(b) bytes from the cursor
func (s *Bytestream) PeekBytes(b []byte) bool {
	return s.PeekOffsetBytes(0, b)
}

// PeekOffsetBytes - copy len(b) bytes located offset bytes after the cursor
func (s *Bytestream) PeekOffsetBytes(offset int, b []byte) bool {
	i := s.pos + offset
	if offset < 0 || i+len(b) > len(s.buf) {
		return false
	}
	copy(b, s.buf[i:])
	return true
}

// WaitBytes - check that n bytes are available from the cursor
func (s *Bytestream) WaitBytes(n int) bool {
	return s.Len() >= n
}

func (s *Bytestream) SkipByte() bool {
	return s.SkipBytes(1)
}

func (s *Bytestream) SkipBytes(n int) bool {
	if n < 0 || s.Len() < n {
		return false
	}
	s.pos += n
	return true
}

// GetBytes - copy len(b) bytes and move the cursor after them
func (s *Bytestream) GetBytes(b []byte) bool {
	if !s.PeekBytes(b) {
		return false
	}
	s.pos += len(b)
	return true
}

// BlockPTS - PTS of the block that holds the byte under the cursor
func (s *Bytestream) BlockPTS() time.Duration {
	if i := s.block(); i >= 0 {
		return s.marks[i].pts
	}
	return NoPTS
}

// InvalidatePTS - forget PTS of the block under the cursor, so it is used once
func (s *Bytestream) InvalidatePTS() {
	if i := s.block(); i >= 0 {
		s.marks[i].pts = NoPTS
	}
}

// Pop - release consumed data and return what is left
func (s *Bytestream) Pop() []byte {
	s.Flush()
	return s.buf
}

// Flush - release data before the cursor
func (s *Bytestream) Flush() {
	if s.pos == 0 {
		return
	}

	i := s.block()
	if i < 0 {
		s.Empty()
		return
	}

	marks := s.marks[i:]
	for j := range marks {
		if marks[j].offset -= s.pos; marks[j].offset < 0 {
			marks[j].offset = 0
		}
	}

	n := copy(s.buf, s.buf[s.pos:])
	s.buf = s.buf[:n]
	s.marks = append(s.marks[:0], marks...)
	s.pos = 0
}

// Empty - drop everything
func (s *Bytestream) Empty() {
	s.buf = s.buf[:0]
	s.marks = s.marks[:0]
	s.pos = 0
}

func (s *Bytestream) block() int {
	if s.pos >= len(s.buf) {
		return -1
	}
	for i := len(s.marks) - 1; i >= 0; i-- {
		if s.marks[i].offset <= s.pos {
			return i
		}
	}
	return -1
}
