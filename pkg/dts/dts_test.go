package dts

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/audiopass/audiopass/pkg/bits"
	"github.com/audiopass/audiopass/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type coreFields struct {
	nblks byte
	fsize uint16 // frame size - 1
	amode byte
	sfreq byte
	rate  byte
	lff   byte
}

// 48000 Hz, 1536 samples (32 ms), 5.1, 1536 kb/s, 512 bytes
var defaultCore = coreFields{nblks: 47, fsize: 511, amode: 9, sfreq: 13, rate: 24, lff: 1}

func coreHeader(f coreFields) []byte {
	w := bits.NewWriter(nil)
	w.WriteBits(0x7FFE8001, 32)
	w.WriteBit(1)       // normal frame
	w.WriteBits8(31, 5) // deficit sample count
	w.WriteBit(0)       // crc present
	w.WriteBits8(f.nblks, 7)
	w.WriteBits16(f.fsize, 14)
	w.WriteBits8(f.amode, 6)
	w.WriteBits8(f.sfreq, 4)
	w.WriteBits8(f.rate, 5)
	w.WriteAllBits(0, 10)
	w.WriteBits8(f.lff, 2)
	return w.Bytes()
}

func coreFrame(f coreFields) []byte {
	return pad(coreHeader(f), int(f.fsize)+1)
}

func substreamFrame(headerSize, frameSize int) []byte {
	w := bits.NewWriter(nil)
	w.WriteBits(0x64582025, 32)
	w.WriteBits8(0, 8) // user defined
	w.WriteBits8(0, 2) // substream index
	w.WriteBit(0)      // short size fields
	w.WriteBits(uint32(headerSize-1), 8)
	w.WriteBits(uint32(frameSize-1), 16)
	return pad(w.Bytes(), frameSize)
}

// expressFrame - substream with LBR 16000 Hz (2048 samples, 128 ms), C + L + R
func expressFrame(frameSize int) []byte {
	b := substreamFrame(16, frameSize)
	copy(b[16:], []byte{0x0A, 0x80, 0x19, 0x21, 2, 1, 0x00, 0x03})
	return b
}

func pad(b []byte, size int) []byte {
	frame := make([]byte, size)
	n := copy(frame, b)
	for i := n; i < size; i++ {
		frame[i] = 0xAA
	}
	return frame
}

func repeat(frames ...[]byte) []byte {
	var b []byte
	for _, frame := range frames {
		b = append(b, frame...)
	}
	return b
}

func TestDetectSync(t *testing.T) {
	tests := []struct {
		b    []byte
		sync SyncWord
	}{
		{[]byte{0x7F, 0xFE, 0x80, 0x01, 0, 0}, SyncCoreBE},
		{[]byte{0xFE, 0x7F, 0x01, 0x80, 0, 0}, SyncCoreLE},
		{[]byte{0x1F, 0xFF, 0xE8, 0x00, 0x07, 0xF3}, SyncCore14BE},
		{[]byte{0xFF, 0x1F, 0x00, 0xE8, 0xF3, 0x07}, SyncCore14LE},
		{[]byte{0x64, 0x58, 0x20, 0x25, 0, 0}, SyncSubstream},
		{[]byte{0x0A, 0x80, 0x19, 0x21, 0, 0}, SyncSubstreamLBR},
		{[]byte{0x1F, 0xFF, 0xE8, 0x00, 0x07, 0x73}, SyncNone},
		{[]byte{0x1F, 0xFF, 0xE8, 0x00, 0x07}, SyncNone},
		{[]byte{0x0B, 0x77, 0x00, 0x00, 0x00, 0x00}, SyncNone},
		{[]byte{0x7F, 0xFE}, SyncNone},
	}
	for _, test := range tests {
		require.Equal(t, test.sync, DetectSync(test.b), "%X", test.b)
	}

	require.True(t, IsSync([]byte{0x64, 0x58, 0x20, 0x25, 0, 0}))
	require.False(t, IsSync([]byte{0x0A, 0x80, 0x19, 0x21, 0, 0}))
	require.False(t, IsCoreSync([]byte{0x64, 0x58, 0x20, 0x25, 0, 0}))
	require.True(t, IsCoreSync([]byte{0xFE, 0x7F, 0x01, 0x80, 0, 0}))
}

func TestParseCore(t *testing.T) {
	// 48000 Hz, 192 kb/s, 192 samples
	h, err := ParseHeader(pad(coreHeader(coreFields{nblks: 5, fsize: 1023, amode: 2, sfreq: 13, rate: 6}), HeaderSize))
	require.Nil(t, err)
	require.Equal(t, SyncCoreBE, h.SyncWord)
	require.Equal(t, uint32(48000), h.SampleRate)
	require.Equal(t, uint32(192000), h.Bitrate)
	require.Equal(t, BitrateFixed, h.BitrateMode)
	require.Equal(t, 192, h.FrameLength)
	require.Equal(t, 1024, h.FrameSize)
	require.Equal(t, 2, h.Channels)
	require.False(t, h.IsHD())

	h, err = ParseHeader(coreFrame(defaultCore))
	require.Nil(t, err)
	require.Equal(t, 6, h.Channels)
	require.Equal(t, core.Chans5_0|core.ChanLFE, h.ChannelMask)
	require.Equal(t, 1536, h.FrameLength)
	require.Equal(t, 512, h.FrameSize)
	require.True(t, h.LFE)

	// user defined channel layout
	f := defaultCore
	f.amode = 0x10
	h, err = ParseHeader(coreFrame(f))
	require.Nil(t, err)
	require.Equal(t, core.ChanLFE, h.ChannelMask)
	require.Equal(t, 1, h.Channels)

	f.amode, f.lff = 1, 0
	h, err = ParseHeader(coreFrame(f))
	require.Nil(t, err)
	require.Equal(t, core.Chans2_0|core.ChanDualMono, h.ChannelMask)
}

func TestBitrateMode(t *testing.T) {
	modes := map[byte]BitrateMode{29: BitrateOpen, 30: BitrateVariable, 31: BitrateLossless}
	for rate, mode := range modes {
		f := defaultCore
		f.rate = rate
		h, err := ParseHeader(coreFrame(f))
		require.Nil(t, err)
		require.Equal(t, mode, h.BitrateMode)
		require.Zero(t, h.Bitrate)
	}
	require.Equal(t, "lossless", BitrateLossless.String())
}

func TestParseErrors(t *testing.T) {
	short := coreFrame(defaultCore)[:HeaderSize-1]
	_, err := ParseHeader(short)
	require.ErrorIs(t, err, ErrInvalidHeader)

	_, err = ParseHeader(make([]byte, HeaderSize))
	require.ErrorIs(t, err, ErrBadSync)
	require.True(t, errors.Is(ErrBadSync, ErrInvalidHeader))

	for name, fn := range map[string]func(f *coreFields){
		"nblks":  func(f *coreFields) { f.nblks = 4 },
		"fsize":  func(f *coreFields) { f.fsize = 94 },
		"sfreq0": func(f *coreFields) { f.sfreq = 0 },
		"sfreq9": func(f *coreFields) { f.sfreq = 9 },
	} {
		f := defaultCore
		fn(&f)
		_, err = ParseHeader(coreFrame(f))
		require.ErrorIs(t, err, ErrInvalidHeader, name)
	}

	// LBR without decoder init
	_, err = ParseHeader(pad([]byte{0x0A, 0x80, 0x19, 0x21, 1, 1}, HeaderSize))
	require.ErrorIs(t, err, ErrInvalidHeader)

	// LBR with reserved rate
	_, err = ParseHeader(pad([]byte{0x0A, 0x80, 0x19, 0x21, 2, 3}, HeaderSize))
	require.ErrorIs(t, err, ErrInvalidHeader)
}

func TestParseEncodings(t *testing.T) {
	f := defaultCore
	f.fsize = 1007 // 1008 bytes is a whole number of 14-bit words
	frame := coreFrame(f)

	be, err := ParseHeader(frame)
	require.Nil(t, err)

	le, err := ParseHeader(SwapWords(nil, frame))
	require.Nil(t, err)
	require.Equal(t, SyncCoreLE, le.SyncWord)

	for _, little := range []bool{false, true} {
		packed := Repack16To14(nil, frame, little)
		require.Len(t, packed, 1152)
		require.Equal(t, frame, Repack14To16(nil, packed, little))

		h, err := ParseHeader(packed)
		require.Nil(t, err)
		require.True(t, h.SyncWord.Is14Bit())
		require.Equal(t, 1152, h.FrameSize)

		for _, other := range []*Header{h, le} {
			require.Equal(t, be.SampleRate, other.SampleRate)
			require.Equal(t, be.AudioMode, other.AudioMode)
			require.Equal(t, be.NumBlocks, other.NumBlocks)
			require.Equal(t, be.Bitrate, other.Bitrate)
			require.Equal(t, be.ChannelMask, other.ChannelMask)
		}
	}
}

func TestParseSubstream(t *testing.T) {
	h, err := ParseHeader(substreamFrame(16, 200))
	require.Nil(t, err)
	require.True(t, h.IsHD())
	require.Equal(t, 16, h.SubstreamHeaderSize)
	require.Equal(t, 200, h.FrameSize)
	require.Zero(t, h.SampleRate)

	// long size fields
	w := bits.NewWriter(nil)
	w.WriteBits(0x64582025, 32)
	w.WriteBits8(0, 8)
	w.WriteBits8(0, 2)
	w.WriteBit(1)
	w.WriteBits(1000-1, 12)
	w.WriteBits(70000-1, 20)
	h, err = ParseHeader(pad(w.Bytes(), HeaderSize))
	require.Nil(t, err)
	require.Equal(t, 1000, h.SubstreamHeaderSize)
	require.Equal(t, 70000, h.FrameSize)

	h, err = ParseHeader(expressFrame(100)[16:])
	require.Nil(t, err)
	require.Equal(t, SyncSubstreamLBR, h.SyncWord)
	require.Equal(t, uint32(16000), h.SampleRate)
	require.Equal(t, 2048, h.FrameLength)
	require.Equal(t, core.Chans3_0, h.ChannelMask)
}

func newTestPacketizer() *Packetizer {
	p := NewPacketizer()
	p.Log = zerolog.Nop()
	return p
}

func packetizeAll(t *testing.T, p core.Packetizer, blocks ...*core.Block) []*core.Block {
	var frames []*core.Block
	for _, b := range blocks {
		out, err := p.Packetize(b)
		require.Nil(t, err)
		frames = append(frames, out...)
	}
	out, err := p.Packetize(nil)
	require.Nil(t, err)
	return append(frames, out...)
}

func chunks(b []byte, pts time.Duration) []*core.Block {
	blocks := []*core.Block{core.NewBlock(b[:20], pts)}
	for i, size := 20, 7; i < len(b); size = size*5%251 + 1 {
		j := i + size
		if j > len(b) {
			j = len(b)
		}
		blocks = append(blocks, core.NewBlock(b[i:j], core.NoPTS))
		i = j
	}
	return blocks
}

func TestPacketizerChunks(t *testing.T) {
	f := defaultCore
	f.fsize = 1007

	encodings := map[string]func([]byte) []byte{
		"16BE": func(b []byte) []byte { return b },
		"16LE": func(b []byte) []byte { return SwapWords(nil, b) },
		"14BE": func(b []byte) []byte { return Repack16To14(nil, b, false) },
		"14LE": func(b []byte) []byte { return Repack16To14(nil, b, true) },
	}

	for name, encode := range encodings {
		t.Run(name, func(t *testing.T) {
			frame := encode(coreFrame(f))
			stream := repeat(frame, frame, frame, frame, frame, frame, frame, frame)

			p := newTestPacketizer()
			frames := packetizeAll(t, p, chunks(stream, time.Second)...)
			require.Len(t, frames, 8)

			for i, out := range frames {
				require.Equal(t, frame, out.Data)
				require.Equal(t, time.Second+time.Duration(i)*32*time.Millisecond, out.PTS)
				require.Equal(t, 32*time.Millisecond, out.Duration)
				require.Equal(t, 1536, out.Samples)
			}

			codec := p.Codec()
			require.Equal(t, "DTS/48000/6", codec.String())
			require.Equal(t, len(frame), codec.BytesPerFrame)
			require.Zero(t, p.Stats().Skipped)
		})
	}
}

func TestPacketizerResync(t *testing.T) {
	frame := coreFrame(defaultCore)
	stream := repeat([]byte{0x42}, frame, frame)

	p := newTestPacketizer()
	frames := packetizeAll(t, p, core.NewBlock(stream, 0))
	require.Len(t, frames, 2)
	require.Equal(t, frame, frames[0].Data)
	require.Equal(t, 1, p.Stats().Skipped)
	require.Zero(t, p.Stats().Resyncs)

	// emulated sync word inside garbage
	garbage := []byte{0x7F, 0xFE, 0x80, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

	var logs bytes.Buffer

	p = newTestPacketizer()
	p.Log = zerolog.New(&logs).Level(zerolog.DebugLevel)

	frames = packetizeAll(t, p, core.NewBlock(repeat(garbage, frame, frame), 0))
	require.Len(t, frames, 2)
	require.Equal(t, 1, p.Stats().Resyncs)
	require.Equal(t, len(garbage), p.Stats().Skipped)
	require.Contains(t, logs.String(), "[dts] emulated sync word")
}

func TestPacketizerStuffing(t *testing.T) {
	frame := coreFrame(defaultCore)
	stream := repeat(frame, []byte{0, 0, 0, 0}, frame, frame)

	p := newTestPacketizer()
	frames, err := p.Packetize(core.NewBlock(stream, 0))
	require.Nil(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, frame, frames[0].Data)
	require.Equal(t, frame, frames[1].Data)
	require.Equal(t, 4, p.Stats().Skipped)
}

func TestPacketizerOddFrameSize(t *testing.T) {
	// header says 513 bytes, real frames are 512
	f := defaultCore
	f.fsize = 512
	frame := coreFrame(f)[:512]

	p := newTestPacketizer()
	frames, err := p.Packetize(core.NewBlock(repeat(frame, frame, frame), 0))
	require.Nil(t, err)
	require.Len(t, frames, 2)
	for _, out := range frames {
		require.Equal(t, frame, out.Data)
	}
	require.Zero(t, p.Stats().Resyncs)
}

func TestPacketizerDTSHD(t *testing.T) {
	frame := repeat(coreFrame(defaultCore), substreamFrame(16, 200))

	p := newTestPacketizer()
	frames := packetizeAll(t, p, core.NewBlock(repeat(frame, frame, frame), 0))
	require.Len(t, frames, 3)
	for _, out := range frames {
		require.Equal(t, frame, out.Data)
		require.Equal(t, 1536, out.Samples)
	}

	codec := p.Codec()
	require.Equal(t, core.ProfileDTSHD, codec.Profile)
	require.Equal(t, 712, codec.BytesPerFrame)
}

func TestPacketizerExpress(t *testing.T) {
	frame := expressFrame(300)

	p := newTestPacketizer()
	frames := packetizeAll(t, p, core.NewBlock(repeat(frame, frame, frame), 0))
	require.Len(t, frames, 3)
	for i, out := range frames {
		require.Equal(t, frame, out.Data)
		require.Equal(t, 2048, out.Samples)
		require.Equal(t, time.Duration(i)*128*time.Millisecond, out.PTS)
	}

	codec := p.Codec()
	require.Equal(t, core.ProfileDTSExpress, codec.Profile)
	require.Equal(t, uint32(16000), codec.ClockRate)
	require.Equal(t, uint16(3), codec.Channels)
}

// byteChunks - one byte per block, only the first byte has a timestamp
func byteChunks(b []byte) []*core.Block {
	blocks := []*core.Block{core.NewBlock(b[:1], 0)}
	for i := 1; i < len(b); i++ {
		blocks = append(blocks, core.NewBlock(b[i:i+1], core.NoPTS))
	}
	return blocks
}

func TestPacketizerByteChunks(t *testing.T) {
	f := defaultCore
	f.fsize = 1007

	tests := map[string]struct {
		frame    []byte
		duration time.Duration
	}{
		"core":    {coreFrame(defaultCore), 32 * time.Millisecond},
		"14LE":    {Repack16To14(nil, coreFrame(f), true), 32 * time.Millisecond},
		"DTS-HD":  {repeat(coreFrame(defaultCore), substreamFrame(16, 200)), 32 * time.Millisecond},
		"Express": {expressFrame(300), 128 * time.Millisecond},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			frame := test.frame

			// header of the first frame is split over many untimed blocks
			p := newTestPacketizer()
			frames := packetizeAll(t, p, byteChunks(repeat(frame, frame, frame))...)
			require.Len(t, frames, 3)

			for i, out := range frames {
				require.Equal(t, frame, out.Data)
				require.Equal(t, time.Duration(i)*test.duration, out.PTS)
				require.Equal(t, test.duration, out.Duration)
			}
			require.Zero(t, p.Stats().Skipped)
		})
	}

	d := NewDecoder(core.ModePacketizer)
	d.Log = zerolog.Nop()

	frame := coreFrame(defaultCore)
	frames := packetizeAll(t, d, byteChunks(repeat(frame, frame, frame))...)
	require.Len(t, frames, 3)
	for i, out := range frames {
		require.Equal(t, time.Duration(i)*32*time.Millisecond, out.PTS)
	}
}

func TestPacketizerJunkBeforeSync(t *testing.T) {
	frame := coreFrame(defaultCore)

	// only the junk block has a timestamp
	p := newTestPacketizer()
	frames := packetizeAll(t, p,
		core.NewBlock(bytes.Repeat([]byte{0x55}, 100), 5*time.Second),
		core.NewBlock(repeat(frame, frame), core.NoPTS),
	)
	require.Len(t, frames, 2)
	require.Equal(t, 5*time.Second, frames[0].PTS)
	require.Equal(t, 5*time.Second+32*time.Millisecond, frames[1].PTS)
	require.Equal(t, 100, p.Stats().Skipped)
}

func TestPacketizerUnpairedSubstream(t *testing.T) {
	unpaired := substreamFrame(16, 100)
	copy(unpaired[16:], coreHeader(defaultCore))

	frame := coreFrame(defaultCore)

	p := newTestPacketizer()
	frames := packetizeAll(t, p, core.NewBlock(repeat(unpaired, frame, frame), 0))
	require.Len(t, frames, 2)
	require.Equal(t, frame, frames[0].Data)
	require.Equal(t, 1, p.Stats().Discarded)
	require.Equal(t, core.ProfileDTS, p.Codec().Profile)
}

func TestPacketizerCorrupted(t *testing.T) {
	frame := coreFrame(defaultCore)

	p := newTestPacketizer()
	frames, err := p.Packetize(core.NewBlock(frame[:300], 0))
	require.Nil(t, err)
	require.Len(t, frames, 0)
	require.Equal(t, stateNextSync, p.state)

	b := core.NewBlock(frame, time.Second)
	b.Flags = core.FlagCorrupted
	frames, err = p.Packetize(b)
	require.Nil(t, err)
	require.Len(t, frames, 0)
	require.Equal(t, stateNoSync, p.state)
	require.Zero(t, p.stream.Len())

	// as if nothing was before
	frames = packetizeAll(t, p, core.NewBlock(repeat(frame, frame), 5*time.Second))
	require.Len(t, frames, 2)
	require.True(t, frames[0].Has(core.FlagDiscontinuity))
	require.False(t, frames[1].Has(core.FlagDiscontinuity))
	require.Equal(t, 5*time.Second, frames[0].PTS)
	require.Equal(t, 5*time.Second+32*time.Millisecond, frames[1].PTS)
}

func TestPacketizerDiscontinuity(t *testing.T) {
	frame := coreFrame(defaultCore)

	p := newTestPacketizer()
	frames, err := p.Packetize(core.NewBlock(repeat(frame, frame), 0))
	require.Nil(t, err)
	require.Len(t, frames, 1)

	b := core.NewBlock(repeat(frame, frame), time.Minute)
	b.Flags = core.FlagDiscontinuity
	frames, err = p.Packetize(b)
	require.Nil(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, 32*time.Millisecond, frames[0].PTS)
	require.False(t, frames[0].Has(core.FlagDiscontinuity))
	require.Equal(t, time.Minute, frames[1].PTS)
	require.True(t, frames[1].Has(core.FlagDiscontinuity))
	require.Equal(t, 1, p.Stats().Discontinuities)
}

func TestPacketizerStartup(t *testing.T) {
	frame := coreFrame(defaultCore)

	p := newTestPacketizer()
	frames, err := p.Packetize(core.NewBlock(repeat(frame, frame), core.NoPTS))
	require.Nil(t, err)
	require.Len(t, frames, 0)
	require.Zero(t, p.stream.Len())

	frames = packetizeAll(t, p, core.NewBlock(frame, 0), core.NewBlock(frame, core.NoPTS))
	require.Len(t, frames, 2)
	require.Equal(t, 32*time.Millisecond, frames[1].PTS)
}

func TestPacketizerAllocation(t *testing.T) {
	frame := coreFrame(defaultCore)

	p := newTestPacketizer()
	p.Alloc = func(int) *core.Block { return nil }

	frames, err := p.Packetize(core.NewBlock(repeat(frame, frame), 0))
	require.ErrorIs(t, err, core.ErrAllocation)
	require.Len(t, frames, 0)
	require.Equal(t, stateSendData, p.state)

	p.Alloc = core.Alloc
	frames = packetizeAll(t, p)
	require.Len(t, frames, 2)
	require.Equal(t, frame, frames[0].Data)
}

func TestDecoder(t *testing.T) {
	frame := coreFrame(defaultCore)
	hd := substreamFrame(16, 200)

	d := NewDecoder(core.ModePacketizer)
	d.Log = zerolog.Nop()

	frames, err := d.Packetize(core.NewBlock(repeat(frame, hd, frame, hd, frame, hd), 0))
	require.Nil(t, err)
	require.Len(t, frames, 3)
	for i, out := range frames {
		require.Equal(t, frame, out.Data)
		require.Equal(t, time.Duration(i)*32*time.Millisecond, out.PTS)
	}
	require.Equal(t, 3, d.Stats().Discarded)

	frames = packetizeAll(t, d)
	require.Len(t, frames, 0)
	require.Equal(t, core.ProfileDTS, d.Codec().Profile)
}

func TestDecoderStuffing(t *testing.T) {
	frame := coreFrame(defaultCore)
	stream := repeat(frame, []byte{0, 0, 0, 0}, frame, frame)

	d := NewDecoder(core.ModePacketizer)
	d.Log = zerolog.Nop()
	frames := packetizeAll(t, d, core.NewBlock(stream, 0))
	require.Len(t, frames, 3)

	// decoder mode loses the frame before stuffing
	d = NewDecoder(core.ModeDecoder)
	d.Log = zerolog.Nop()
	frames = packetizeAll(t, d, core.NewBlock(stream, 0))
	require.Len(t, frames, 2)
	require.Equal(t, 1, d.Stats().Resyncs)
}
