package dts

import (
	"errors"
	"fmt"

	"github.com/audiopass/audiopass/pkg/bits"
	"github.com/audiopass/audiopass/pkg/core"
)

// HeaderSize - bytes needed to parse any header kind
const HeaderSize = 14

var (
	ErrInvalidHeader = errors.New("dts: invalid header")
	ErrBadSync       = fmt.Errorf("%w: bad sync", ErrInvalidHeader)
)

type BitrateMode byte

const (
	BitrateFixed BitrateMode = iota
	BitrateOpen
	BitrateVariable
	BitrateLossless
)

func (m BitrateMode) String() string {
	switch m {
	case BitrateOpen:
		return "open"
	case BitrateVariable:
		return "variable"
	case BitrateLossless:
		return "lossless"
	}
	return "fixed"
}

// Header - decoded DTS frame header.
// For substream headers only FrameSize and SubstreamHeaderSize are set.
type Header struct {
	SyncWord SyncWord

	FrameSize           int // bytes, in the original encoding
	SubstreamHeaderSize int

	SampleRate  uint32
	Bitrate     uint32 // bits per second, 0 unless BitrateMode is fixed
	BitrateMode BitrateMode
	FrameLength int // samples

	Channels    int
	ChannelMask core.ChannelMask
	AudioMode   byte
	NumBlocks   byte // raw nblks, FrameLength = (NumBlocks+1) * 32
	LFE         bool
}

// IsHD - extension substream (DTS-HD) header, content isn't decoded
func (h *Header) IsHD() bool {
	return h.SyncWord == SyncSubstream
}

var sampleRates = [16]uint32{
	0, 8000, 16000, 32000, 0, 0, 11025, 22050, 44100, 0, 0, 12000, 24000, 48000, 96000, 192000,
}

// kbps, last three are special modes
var bitratesKbps = [32]uint32{
	32, 56, 64, 96, 112, 128, 192, 224, 256, 320, 384,
	448, 512, 576, 640, 768, 896, 1024, 1152, 1280, 1344,
	1408, 1411, 1472, 1536, 1920, 2048, 3072, 3840,
	1, 2, 3, // open, variable, lossless
}

var amodeChannels = [16]core.ChannelMask{
	core.Chans1_0,
	core.Chans2_0 | core.ChanDualMono, // A + B
	core.Chans2_0,                     // L + R
	core.Chans2_0,                     // sum + difference
	core.Chans2_0,                     // Lt + Rt
	core.Chans3_0,
	core.Chans2_1,
	core.Chans3_1,
	core.Chans4_0,
	core.Chans5_0,
	core.Chans6_0,
	core.Chans6_0,
	core.Chans7_0,
	core.Chans7_0,
	core.Chans7_0, // 8.0
	core.Chans7_0, // 8.0
}

var lbrSampleRates = [16]uint32{
	8000, 16000, 32000, 0, 0, 22050, 44100, 0, 0, 0, 12000, 24000, 48000, 0, 0, 0,
}

// LBR speaker activity mask bits
var lbrSpeakers = [16]core.ChannelMask{
	core.ChanCenter,
	core.ChanLeft | core.ChanRight,
	core.ChanMiddleLeft | core.ChanMiddleRight,
	core.ChanLFE,
	core.ChanRearCenter,
	0,
	core.ChanRearLeft | core.ChanRearRight,
	0, 0, 0,
	core.ChanLeft | core.ChanRight,
	core.ChanMiddleLeft | core.ChanMiddleRight,
	0, 0, 0, 0,
}

// ParseHeader - detect the encoding and decode the header from the first HeaderSize bytes.
// Core headers in 16LE and 14-bit forms are converted to 16BE before parsing.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("%w: need %d bytes", ErrInvalidHeader, HeaderSize)
	}

	b = b[:HeaderSize]

	switch sync := DetectSync(b); sync {
	case SyncCoreBE:
		return parseCore(b, sync)
	case SyncCoreLE:
		var buf [HeaderSize]byte
		return parseCore(SwapWords(buf[:], b), sync)
	case SyncCore14BE, SyncCore14LE:
		var buf [HeaderSize]byte
		return parseCore(Repack14To16(buf[:], b, sync == SyncCore14LE), sync)
	case SyncSubstream:
		return parseSubstream(b)
	case SyncSubstreamLBR:
		return parseLBR(b)
	}

	return nil, ErrBadSync
}

func parseCore(b []byte, sync SyncWord) (*Header, error) {
	rd := bits.NewReader(b)
	rd.SkipBits(32 + 1 + 5 + 1) // sync, frame type, deficit sample count, crc present

	h := &Header{SyncWord: sync}

	h.NumBlocks = rd.ReadBits8(7)
	if h.NumBlocks < 5 {
		return nil, fmt.Errorf("%w: nblks %d", ErrInvalidHeader, h.NumBlocks)
	}

	fsize := rd.ReadBits16(14)
	if fsize < 95 {
		return nil, fmt.Errorf("%w: fsize %d", ErrInvalidHeader, fsize)
	}

	h.AudioMode = rd.ReadBits8(6)
	sfreq := rd.ReadBits8(4)
	rate := rd.ReadBits8(5)

	// fixed bit, dynamic range, time stamp, aux data, hdcd, ext audio id (3), ext audio, aspf
	rd.SkipBits(10)
	h.LFE = rd.ReadBits8(2) != 0

	if rd.EOF {
		return nil, fmt.Errorf("%w: short core header", ErrInvalidHeader)
	}

	if h.SampleRate = sampleRates[sfreq]; h.SampleRate == 0 {
		return nil, fmt.Errorf("%w: sfreq %d", ErrInvalidHeader, sfreq)
	}

	switch rate {
	case 29:
		h.BitrateMode = BitrateOpen
	case 30:
		h.BitrateMode = BitrateVariable
	case 31:
		h.BitrateMode = BitrateLossless
	default:
		h.Bitrate = bitratesKbps[rate] * 1000
	}

	if sync.Is14Bit() {
		// 16 bits of the header domain are stored in 14-bit words
		h.FrameSize = (int(fsize) + 1) * 8 / 14 * 2
	} else {
		h.FrameSize = int(fsize) + 1
	}

	h.FrameLength = (int(h.NumBlocks) + 1) * 32

	if int(h.AudioMode) < len(amodeChannels) {
		h.ChannelMask = amodeChannels[h.AudioMode]
	}
	// 0x10 and above are user defined, layout is unknown
	if h.LFE {
		h.ChannelMask |= core.ChanLFE
	}
	h.Channels = h.ChannelMask.Count()

	return h, nil
}

func parseSubstream(b []byte) (*Header, error) {
	rd := bits.NewReader(b)
	rd.SkipBits(32 + 8 + 2) // sync, user defined, substream index

	var headerBits, sizeBits byte
	if rd.ReadFlag() {
		headerBits, sizeBits = 12, 20
	} else {
		headerBits, sizeBits = 8, 16
	}

	h := &Header{SyncWord: SyncSubstream}
	h.SubstreamHeaderSize = int(rd.ReadBits(headerBits)) + 1
	h.FrameSize = int(rd.ReadBits(sizeBits)) + 1

	return h, nil
}

func parseLBR(b []byte) (*Header, error) {
	rd := bits.NewReader(b)
	rd.SkipBits(32)

	// only the decoder init header carries the stream format
	if code := rd.ReadByte(); code != 2 {
		return nil, fmt.Errorf("%w: lbr format %d", ErrInvalidHeader, code)
	}

	h := &Header{SyncWord: SyncSubstreamLBR}

	rate := rd.ReadByte()
	if int(rate) >= len(lbrSampleRates) || lbrSampleRates[rate] == 0 {
		return nil, fmt.Errorf("%w: lbr rate %d", ErrInvalidHeader, rate)
	}
	h.SampleRate = lbrSampleRates[rate]

	switch {
	case h.SampleRate < 16000:
		h.FrameLength = 1024
	case h.SampleRate < 32000:
		h.FrameLength = 2048
	default:
		h.FrameLength = 4096
	}

	mask := rd.ReadUint16()
	for i := 0; mask != 0; i, mask = i+1, mask>>1 {
		if mask&1 != 0 {
			h.ChannelMask |= lbrSpeakers[i]
		}
	}
	h.LFE = h.ChannelMask.Has(core.ChanLFE)
	h.Channels = h.ChannelMask.Count()

	return h, nil
}
