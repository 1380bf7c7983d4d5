package dts

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
	stateSyncSubstreamExtensions
	stateNextSync
	stateNextSyncSubstreamExtensions
	stateGetData
	stateSendData
)

// Packetizer - splits a DTS byte stream (any of the core encodings,
// DTS-HD and DTS Express substreams) into whole timestamped frames.
// A core frame followed by an extension substream is output as one DTS-HD frame.
type Packetizer struct {
	Alloc core.Allocator
	Log   zerolog.Logger

	state  state
	stream core.Bytestream
	date   *core.Date
	pts    time.Duration

	// first timestamp since start or flush, opens the input gate
	startPTS time.Duration

	first  Header
	second Header

	nextOffset int
	inputSize  int

	discontinuity bool

	profile string
	codec   core.Codec
	stats   core.Stats
}

func NewPacketizer() *Packetizer {
	return &Packetizer{
		Alloc:    core.Alloc,
		Log:      log.Logger,
		date:     core.NewDate(0),
		pts:      core.NoPTS,
		startPTS: core.NoPTS,
		profile:  core.ProfileDTS,
		codec:    core.Codec{Name: core.CodecDTS, Profile: core.ProfileDTS},
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
		// always drain complete frames before the discontinuity
		var err error
		if frames, err = p.collect(true); err != nil {
			return frames, err
		}
		p.Flush()

		if b.Has(core.FlagCorrupted) {
			p.Log.Debug().Msgf("[dts] drop corrupted block size=%d", len(b.Data))
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
			for p.stream.PeekBytes(header[:SyncSize]) {
				if IsSync(header[:SyncSize]) {
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
				p.Log.Debug().Err(err).Msg("[dts] emulated sync word")
				p.resync()
				continue
			}

			p.first = *h
			p.inputSize = h.FrameSize
			p.nextOffset = h.FrameSize

			if h.SyncWord == SyncSubstream {
				p.state = stateSyncSubstreamExtensions
			} else {
				p.state = stateNextSync
			}

		case stateSyncSubstreamExtensions:
			// substream alone is valid only with LBR inside (DTS Express)
			if !p.stream.PeekOffsetBytes(p.first.SubstreamHeaderSize, header[:]) {
				return nil, nil
			}

			h, err := ParseHeader(header[:])
			if err != nil {
				p.Log.Debug().Err(err).Msg("[dts] emulated substream sync word, can't find extension")
				p.resync()
				continue
			}

			if h.SyncWord == SyncSubstreamLBR {
				p.first.SampleRate = h.SampleRate
				p.first.FrameLength = h.FrameLength
				p.first.ChannelMask = h.ChannelMask
				p.first.Channels = h.Channels
				p.first.LFE = h.LFE
				p.state = stateNextSync
				continue
			}

			if !p.stream.SkipBytes(p.first.FrameSize) {
				return nil, nil
			}

			p.Log.Warn().Msg("[dts] substream without the paired core or lbr, skipping")
			p.profile = core.ProfileDTS
			p.stats.Discarded++
			p.state = stateNoSync

		case stateNextSync:
			// check that the next expected frame starts with a sync word
			if !p.stream.PeekOffsetBytes(p.nextOffset, header[:]) {
				if drain {
					p.state = stateGetData
					continue
				}
				return nil, nil
			}

			if header[0] == 0 {
				// stuffing in WAV files, audio CD and some MKV
				p.nextOffset++
				continue
			}

			if !IsSync(header[:]) {
				// some encoders write odd frame size one byte bigger than real
				if p.first.FrameSize%2 == 1 && p.nextOffset > 0 &&
					p.stream.PeekOffsetBytes(p.nextOffset-1, header[:]) && IsSync(header[:]) {
					p.inputSize = p.first.FrameSize - 1
					p.nextOffset = p.inputSize
					continue
				}

				p.Log.Debug().Msg("[dts] emulated sync word (no sync on following frame)")
				p.resync()
				continue
			}

			// extension substream right after the frame
			if p.nextOffset == p.first.FrameSize {
				if h, err := ParseHeader(header[:]); err == nil && h.SyncWord == SyncSubstream {
					p.second = *h
					p.state = stateNextSyncSubstreamExtensions
					continue
				}
			}

			p.profile = core.ProfileDTS
			p.state = stateGetData

		case stateNextSyncSubstreamExtensions:
			if p.first.SyncWord == SyncSubstream {
				// first substream had LBR inside
				p.profile = core.ProfileDTSExpress
			} else {
				// core + extension is one frame
				p.inputSize += p.second.FrameSize
				p.profile = core.ProfileDTSHD
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

			// don't reuse the same timestamp twice
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
	h := &p.first

	if p.date.Rate() != h.SampleRate {
		p.Log.Debug().Msgf("[dts] samplerate=%d bitrate=%d profile=%s", h.SampleRate, h.Bitrate, p.profile)
		p.date.Change(h.SampleRate)
	}

	p.codec.Profile = p.profile
	p.codec.ClockRate = h.SampleRate
	p.codec.Channels = uint16(h.Channels)
	p.codec.ChannelMask = h.ChannelMask
	p.codec.Bitrate = h.Bitrate
	p.codec.FrameLength = h.FrameLength
	if p.inputSize > p.codec.BytesPerFrame {
		p.codec.BytesPerFrame = p.inputSize
	}

	out := p.Alloc(p.inputSize)
	if out == nil {
		return nil
	}

	out.PTS = p.date.Increment(h.FrameLength)
	out.DTS = out.PTS
	if out.PTS != core.NoPTS {
		out.Duration = p.date.Get() - out.PTS
	}
	out.Samples = h.FrameLength

	return out
}
