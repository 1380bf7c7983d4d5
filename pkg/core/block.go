package core

import (
	"errors"
	"math"
	"time"
)

// NoPTS - invalid (unknown) timestamp
const NoPTS time.Duration = math.MinInt64

type BlockFlag uint32

const (
	FlagDiscontinuity BlockFlag = 1 << iota // data before this block is not continuous with it
	FlagCorrupted                           // block content is known to be damaged
)

// Block - chunk of an elementary stream, input or output of a packetizer
type Block struct {
	Data     []byte
	PTS      time.Duration
	DTS      time.Duration
	Duration time.Duration
	Samples  int
	Flags    BlockFlag
}

func NewBlock(data []byte, pts time.Duration) *Block {
	return &Block{Data: data, PTS: pts, DTS: pts}
}

func (b *Block) Has(flag BlockFlag) bool {
	return b.Flags&flag != 0
}

// Allocator - returns writable block with len(Data) == size or nil on failure
type Allocator func(size int) *Block

var ErrAllocation = errors.New("core: can't allocate block")

// Alloc - default Allocator
func Alloc(size int) *Block {
	if size < 0 {
		return nil
	}
	return &Block{Data: make([]byte, size), PTS: NoPTS, DTS: NoPTS}
}
