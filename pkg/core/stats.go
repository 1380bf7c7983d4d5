package core

// Stats - packetizer counters, only grow
type Stats struct {
	Frames          int // emitted frames
	Bytes           int // emitted bytes
	Skipped         int // bytes dropped while searching for a sync word
	Resyncs         int // false sync words and lost sync
	Discarded       int // whole frames dropped (e.g. orphan extensions)
	Discontinuities int
}

func (s Stats) Sub(prev Stats) Stats {
	return Stats{
		Frames:          s.Frames - prev.Frames,
		Bytes:           s.Bytes - prev.Bytes,
		Skipped:         s.Skipped - prev.Skipped,
		Resyncs:         s.Resyncs - prev.Resyncs,
		Discarded:       s.Discarded - prev.Discarded,
		Discontinuities: s.Discontinuities - prev.Discontinuities,
	}
}

// Mode - consumer of packetizer output
type Mode byte

const (
	// ModePacketizer - frames go to a muxer, zero stuffing between frames is accepted
	ModePacketizer Mode = iota
	// ModeDecoder - frames go to a decoder, stuffing is treated as lost sync
	ModeDecoder
)

func (m Mode) String() string {
	if m == ModeDecoder {
		return "decoder"
	}
	return "packetizer"
}

// Packetizer - common interface of the frame packetizers.
// Packetize with nil block drains frames that wait only for the next sync word.
type Packetizer interface {
	Packetize(b *Block) ([]*Block, error)
	Flush()
	Codec() *Codec
	Stats() Stats
}
