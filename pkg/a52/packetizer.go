package a52

import (
	"time"

	"github.com/audiopass/audiopass/pkg/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type state byte

const (
	stateNoSync state = iota
	stateSync
	stateHeader
	stateNextSync
	stateGetData
	stateSendData
)

// Packetizer - splits an AC-3 / E-AC-3 byte stream into whole frames.
// E-AC-3 dependent substreams are merged into the preceding independent frame.
type Packetizer struct {
	Mode  core.Mode
	Alloc core.Allocator
	Log   zerolog.Logger

	state  state
	stream core.Bytestream
	date   *core.Date
	pts    time.Duration

	// first timestamp since start or flush, opens the input gate
	startPTS time.Duration

	frame     Header
	inputSize int

	discontinuity bool

	codec core.Codec
	stats core.Stats
}

func NewPacketizer(mode core.Mode) *Packetizer {
	return &Packetizer{
		Mode:     mode,
		Alloc:    core.Alloc,
		Log:      log.Logger,
		date:     core.NewDate(0),
		pts:      core.NoPTS,
		startPTS: core.NoPTS,
		codec:    core.Codec{Name: core.CodecAC3},
	}
}

// Packetize - push a block and return all complete frames. Nil block drains.
// On core.ErrAllocation frames produced before the failure are returned
// and the pending frame is retried on the next call.
func (p *Packetizer) Packetize(b *core.Block) ([]*core.Block, error) {
	if b == nil {
		return p.collect(true)
	}

	var frames []*core.Block

	if b.Has(core.FlagDiscontinuity | core.FlagCorrupted) {
		var err error
		if frames, err = p.collect(true); err != nil {
			return frames, err
		}
		p.Flush()

		if b.Has(core.FlagCorrupted) {
			p.Log.Debug().Msgf("[a52] drop corrupted block size=%d", len(b.Data))
			return frames, nil
		}
	}

	if b.PTS != core.NoPTS {
		if p.startPTS == core.NoPTS {
			p.startPTS = b.PTS
		}
	} else if p.startPTS == core.NoPTS {
		// wait for the first timestamp
		return frames, nil
	}

	p.stream.Push(b)

	more, err := p.collect(false)
	return append(frames, more...), err
}

func (p *Packetizer) Flush() {
	p.discontinuity = true
	p.stats.Discontinuities++
	p.date.Set(core.NoPTS)
	p.startPTS = core.NoPTS
	p.state = stateNoSync
	p.stream.Empty()
}

func (p *Packetizer) Codec() *core.Codec {
	return p.codec.Clone()
}

func (p *Packetizer) Stats() core.Stats {
	return p.stats
}

func (p *Packetizer) collect(drain bool) (frames []*core.Block, err error) {
	for {
		var frame *core.Block
		if frame, err = p.next(drain); frame == nil {
			return
		}
		frames = append(frames, frame)
	}
}

func (p *Packetizer) next(drain bool) (*core.Block, error) {
	var header [HeaderSize]byte

	for {
		switch p.state {
		case stateNoSync:
			for p.stream.PeekBytes(header[:2]) {
				if IsSync(header[:]) {
					p.state = stateSync
					break
				}
				p.stream.SkipByte()
				p.stats.Skipped++
			}
			if p.state != stateSync {
				p.stream.Flush()
				return nil, nil
			}
			fallthrough

		case stateSync:
			// new frame, remember its timestamp
			p.pts = p.stream.BlockPTS()
			if p.pts == core.NoPTS && !p.date.Valid() {
				// timestamp of the bytes skipped before the sync word
				p.pts = p.startPTS
			}
			if p.pts != core.NoPTS && p.pts != p.date.Get() {
				p.date.Set(p.pts)
			}
			p.state = stateHeader
			fallthrough

		case stateHeader:
			if !p.stream.PeekBytes(header[:]) {
				return nil, nil
			}

			h, err := ParseHeader(header[:])
			if err != nil {
				p.Log.Debug().Err(err).Msg("[a52] emulated sync word")
				p.resync()
				continue
			}

			if h.EAC3 && h.StreamType == StreamTypeDependent {
				p.Log.Debug().Msg("[a52] starting with dependent stream, skip it")
				p.state = stateNoSync
				if !p.stream.SkipBytes(h.FrameSize) {
					return nil, nil
				}
				p.stats.Discarded++
				continue
			}

			p.frame = *h
			p.inputSize = h.FrameSize
			p.state = stateNextSync
			fallthrough

		case stateNextSync:
			// check the following frame
			if !p.stream.PeekOffsetBytes(p.inputSize, header[:]) {
				if drain {
					p.state = stateGetData
					continue
				}
				return nil, nil
			}

			if p.Mode == core.ModePacketizer && header[0] == 0 && header[1] == 0 {
				// zero stuffing from WAV or audio CD
				p.state = stateSendData
				continue
			}

			if !IsSync(header[:]) {
				p.Log.Debug().Msg("[a52] emulated sync word (no sync on following frame)")
				p.resync()
				continue
			}

			if p.frame.EAC3 {
				h, err := ParseHeader(header[:])
				if err == nil && h.EAC3 && h.StreamType == StreamTypeDependent {
					p.inputSize += h.FrameSize
					continue
				}
			}

			p.state = stateGetData
			fallthrough

		case stateGetData:
			if !p.stream.WaitBytes(p.inputSize) {
				return nil, nil
			}
			p.state = stateSendData
			fallthrough

		case stateSendData:
			out := p.getOutBuffer()
			if out == nil {
				return nil, core.ErrAllocation
			}

			p.stream.GetBytes(out.Data)

			// timestamp of this block is used, don't reuse it for the next frame
			if p.pts != core.NoPTS && p.pts == p.stream.BlockPTS() {
				p.stream.InvalidatePTS()
			}
			p.pts = core.NoPTS

			if p.discontinuity {
				out.Flags |= core.FlagDiscontinuity
				p.discontinuity = false
			}

			p.stream.Pop()
			p.state = stateNoSync

			p.stats.Frames++
			p.stats.Bytes += len(out.Data)
			return out, nil
		}
	}
}

func (p *Packetizer) resync() {
	p.state = stateNoSync
	p.stream.SkipByte()
	p.stats.Skipped++
	p.stats.Resyncs++
}

func (p *Packetizer) getOutBuffer() *core.Block {
	h := &p.frame

	if p.date.Rate() != h.SampleRate {
		p.Log.Debug().Msgf(
			"[a52] codec=%s samplerate=%d channels=%d bitrate=%d",
			h.Codec(), h.SampleRate, h.Channels, h.Bitrate,
		)
		p.date.Change(h.SampleRate)
	}

	p.codec.Name = h.Codec()
	p.codec.Profile = ""
	p.codec.ClockRate = h.SampleRate
	p.codec.Channels = uint16(h.Channels)
	p.codec.ChannelMask = h.ChannelMask
	p.codec.Bitrate = h.Bitrate
	p.codec.FrameLength = h.Samples
	if p.inputSize > p.codec.BytesPerFrame {
		p.codec.BytesPerFrame = p.inputSize
	}

	out := p.Alloc(p.inputSize)
	if out == nil {
		return nil
	}

	out.PTS = p.date.Increment(h.Samples)
	out.DTS = out.PTS
	if out.PTS != core.NoPTS {
		out.Duration = p.date.Get() - out.PTS
	}
	out.Samples = h.Samples

	return out
}
