package dts

import (
	"time"

	"github.com/audiopass/audiopass/pkg/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Decoder - legacy frame splitter for passthrough decoding.
// Works with a single frame per sync word: extension substreams are never
// merged with the core, they are skipped.
type Decoder struct {
	Mode  core.Mode
	Alloc core.Allocator
	Log   zerolog.Logger

	state  state
	stream core.Bytestream
	date   *core.Date
	pts    time.Duration

	// first timestamp since start or flush, opens the input gate
	startPTS time.Duration

	frame Header

	discontinuity bool

	codec core.Codec
	stats core.Stats
}

func NewDecoder(mode core.Mode) *Decoder {
	return &Decoder{
		Mode:     mode,
		Alloc:    core.Alloc,
		Log:      log.Logger,
		date:     core.NewDate(0),
		pts:      core.NoPTS,
		startPTS: core.NoPTS,
		codec:    core.Codec{Name: core.CodecDTS, Profile: core.ProfileDTS},
	}
}

func (d *Decoder) Packetize(b *core.Block) ([]*core.Block, error) {
	if b == nil {
		return d.collect(true)
	}

	var frames []*core.Block

	if b.Has(core.FlagDiscontinuity | core.FlagCorrupted) {
		var err error
		if frames, err = d.collect(true); err != nil {
			return frames, err
		}
		d.Flush()

		if b.Has(core.FlagCorrupted) {
			return frames, nil
		}
	}

	if b.PTS != core.NoPTS {
		if d.startPTS == core.NoPTS {
			d.startPTS = b.PTS
		}
	} else if d.startPTS == core.NoPTS {
		// wait for the first timestamp
		return frames, nil
	}

	d.stream.Push(b)

	more, err := d.collect(false)
	return append(frames, more...), err
}

func (d *Decoder) Flush() {
	d.discontinuity = true
	d.stats.Discontinuities++
	d.date.Set(core.NoPTS)
	d.startPTS = core.NoPTS
	d.state = stateNoSync
	d.stream.Empty()
}

func (d *Decoder) Codec() *core.Codec {
	return d.codec.Clone()
}

func (d *Decoder) Stats() core.Stats {
	return d.stats
}

func (d *Decoder) collect(drain bool) (frames []*core.Block, err error) {
	for {
		var frame *core.Block
		if frame, err = d.next(drain); frame == nil {
			return
		}
		frames = append(frames, frame)
	}
}

func (d *Decoder) next(drain bool) (*core.Block, error) {
	var header [HeaderSize]byte

	for {
		switch d.state {
		case stateNoSync:
			for d.stream.PeekBytes(header[:SyncSize]) {
				if IsSync(header[:SyncSize]) {
					d.state = stateSync
					break
				}
				d.stream.SkipByte()
				d.stats.Skipped++
			}
			if d.state != stateSync {
				d.stream.Flush()
				return nil, nil
			}
			fallthrough

		case stateSync:
			d.pts = d.stream.BlockPTS()
			if d.pts == core.NoPTS && !d.date.Valid() {
				// timestamp of the bytes skipped before the sync word
				d.pts = d.startPTS
			}
			if d.pts != core.NoPTS && d.pts != d.date.Get() {
				d.date.Set(d.pts)
			}
			d.state = stateHeader
			fallthrough

		case stateHeader:
			if !d.stream.PeekBytes(header[:]) {
				return nil, nil
			}

			h, err := ParseHeader(header[:])
			if err != nil {
				d.Log.Debug().Err(err).Msg("[dts] emulated sync word")
				d.state = stateNoSync
				d.stream.SkipByte()
				d.stats.Skipped++
				d.stats.Resyncs++
				continue
			}

			if h.IsHD() {
				d.state = stateNoSync
				if !d.stream.SkipBytes(h.FrameSize) {
					return nil, nil
				}
				d.Log.Debug().Msgf("[dts] skip substream size=%d", h.FrameSize)
				d.stats.Discarded++
				continue
			}

			d.frame = *h
			d.state = stateNextSync
			fallthrough

		case stateNextSync:
			if !d.stream.PeekOffsetBytes(d.frame.FrameSize, header[:SyncSize]) {
				if drain {
					d.state = stateGetData
					continue
				}
				return nil, nil
			}

			if d.Mode == core.ModePacketizer && header[0] == 0 && header[1] == 0 {
				// stuffing in WAV files and audio CD
				d.state = stateSendData
				continue
			}

			if !IsSync(header[:SyncSize]) {
				d.Log.Debug().Msg("[dts] emulated sync word (no sync on following frame)")
				d.state = stateNoSync
				d.stream.SkipByte()
				d.stats.Skipped++
				d.stats.Resyncs++
				continue
			}

			d.state = stateGetData
			fallthrough

		case stateGetData:
			if !d.stream.WaitBytes(d.frame.FrameSize) {
				return nil, nil
			}
			d.state = stateSendData
			fallthrough

		case stateSendData:
			out := d.getOutBuffer()
			if out == nil {
				return nil, core.ErrAllocation
			}

			d.stream.GetBytes(out.Data)

			if d.pts != core.NoPTS && d.pts == d.stream.BlockPTS() {
				d.stream.InvalidatePTS()
			}
			d.pts = core.NoPTS

			if d.discontinuity {
				out.Flags |= core.FlagDiscontinuity
				d.discontinuity = false
			}

			d.stream.Pop()
			d.state = stateNoSync

			d.stats.Frames++
			d.stats.Bytes += len(out.Data)
			return out, nil

		default:
			// substream states are not used here
			d.state = stateNoSync
		}
	}
}

func (d *Decoder) getOutBuffer() *core.Block {
	h := &d.frame

	if d.date.Rate() != h.SampleRate {
		d.Log.Debug().Msgf("[dts] samplerate=%d bitrate=%d", h.SampleRate, h.Bitrate)
		d.date.Change(h.SampleRate)
	}

	d.codec.ClockRate = h.SampleRate
	d.codec.Channels = uint16(h.Channels)
	d.codec.ChannelMask = h.ChannelMask
	d.codec.Bitrate = h.Bitrate
	d.codec.FrameLength = h.FrameLength
	if h.FrameSize > d.codec.BytesPerFrame {
		d.codec.BytesPerFrame = h.FrameSize
	}

	out := d.Alloc(h.FrameSize)
	if out == nil {
		return nil
	}

	out.PTS = d.date.Increment(h.FrameLength)
	out.DTS = out.PTS
	if out.PTS != core.NoPTS {
		out.Duration = d.date.Get() - out.PTS
	}
	out.Samples = h.FrameLength

	return out
}
