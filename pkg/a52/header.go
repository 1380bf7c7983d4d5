package a52

import (
	"errors"
	"fmt"

	"github.com/audiopass/audiopass/pkg/bits"
	"github.com/audiopass/audiopass/pkg/core"
)

const (
	HeaderSize = 8    // enough bytes for AC-3 and E-AC-3 sync info
	Samples    = 1536 // AC-3 frame length: 6 blocks x 256
)

// E-AC-3 stream types
const (
	StreamTypeIndependent = 0
	StreamTypeDependent   = 1
	StreamTypeAC3Convert  = 2
)

var (
	ErrInvalidHeader = errors.New("a52: invalid header")
	ErrBadSync       = fmt.Errorf("%w: bad sync", ErrInvalidHeader)
)

// Header - normalized AC-3 or E-AC-3 sync info
type Header struct {
	EAC3        bool
	Channels    int
	ChannelMask core.ChannelMask
	SampleRate  uint32
	Bitrate     uint32 // bits per second
	FrameSize   int    // bytes
	Samples     int    // per frame

	BSID       byte
	BSMod      byte // AC-3 only
	FSCod      byte
	FrmSizeCod byte // AC-3 only
	ACMod      byte
	LFE        bool

	StreamType  byte // E-AC-3 only
	SubstreamID byte // E-AC-3 only
}

// bsid 9 and 10 are half and quarter rate AC-3
var rateShift = [...]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 2, 3}

var acmodChannels = [8]core.ChannelMask{
	core.Chans2_0 | core.ChanDualMono, // 1+1
	core.Chans1_0,
	core.Chans2_0,
	core.Chans3_0,
	core.Chans2_1,
	core.Chans3_1,
	core.Chans4_0,
	core.Chans5_0,
}

// position of lfeon bit in byte 6, depends on optional mix level fields
var lfeonMask = [8]byte{0x10, 0x10, 0x04, 0x04, 0x04, 0x01, 0x04, 0x01}

// kbps, index is frmsizecod >> 1
var bitratesKbps = [19]uint32{
	32, 40, 48, 56, 64, 80, 96, 112, 128, 160,
	192, 224, 256, 320, 384, 448, 512, 576, 640,
}

var sampleRates = [3]uint32{48000, 44100, 32000}

var eac3Blocks = [4]int{1, 2, 3, 6}

func IsSync(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x0B && b[1] == 0x77
}

// ParseHeader - validate and decode AC-3 / E-AC-3 sync info from the first HeaderSize bytes
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("%w: need %d bytes", ErrInvalidHeader, HeaderSize)
	}
	if !IsSync(b) {
		return nil, ErrBadSync
	}

	bsid := b[5] >> 3
	if bsid > 16 {
		return nil, fmt.Errorf("%w: bsid %d", ErrInvalidHeader, bsid)
	}

	if bsid <= 10 {
		return parseAC3(b, bsid)
	}
	return parseEAC3(b, bsid)
}

func parseAC3(b []byte, bsid byte) (*Header, error) {
	h := &Header{
		BSID:       bsid,
		BSMod:      b[5] & 0x07,
		FSCod:      b[4] >> 6,
		FrmSizeCod: b[4] & 0x3F,
		ACMod:      b[6] >> 5,
		Samples:    Samples,
	}

	if h.FrmSizeCod >= 38 {
		return nil, fmt.Errorf("%w: frmsizecod %d", ErrInvalidHeader, h.FrmSizeCod)
	}
	if h.FSCod == 3 {
		return nil, fmt.Errorf("%w: reserved fscod", ErrInvalidHeader)
	}

	if b[6]&0xF8 == 0x50 {
		// acmod 2/0 with dsurmod "surround encoded"
		h.ChannelMask = core.Chans2_0 | core.ChanDolbySurround
	} else {
		h.ChannelMask = acmodChannels[h.ACMod]
	}

	if b[6]&lfeonMask[h.ACMod] != 0 {
		h.LFE = true
		h.ChannelMask |= core.ChanLFE
	}
	h.Channels = h.ChannelMask.Count()

	shift := rateShift[bsid]
	kbps := bitratesKbps[h.FrmSizeCod>>1]

	h.Bitrate = kbps * 1000 >> shift
	h.SampleRate = sampleRates[h.FSCod] >> shift

	switch h.FSCod {
	case 0:
		h.FrameSize = int(4 * kbps)
	case 1:
		h.FrameSize = int(2 * (320*kbps/147 + uint32(h.FrmSizeCod&1)))
	case 2:
		h.FrameSize = int(6 * kbps)
	}

	return h, nil
}

func parseEAC3(b []byte, bsid byte) (*Header, error) {
	h := &Header{EAC3: true, BSID: bsid}

	rd := bits.NewReader(b[:HeaderSize])
	_ = rd.ReadBits16(16)           // syncword
	h.StreamType = rd.ReadBits8(2)  // strmtyp
	h.SubstreamID = rd.ReadBits8(3) // substreamid
	frmsiz := rd.ReadBits16(11)     // frame size in words - 1
	if frmsiz < 2 {
		return nil, fmt.Errorf("%w: frmsiz %d", ErrInvalidHeader, frmsiz)
	}
	h.FrameSize = 2 * (int(frmsiz) + 1)

	var blocks int

	h.FSCod = rd.ReadBits8(2)
	if h.FSCod == 3 {
		fscod2 := rd.ReadBits8(2)
		if fscod2 == 3 {
			return nil, fmt.Errorf("%w: reserved fscod2", ErrInvalidHeader)
		}
		h.SampleRate = sampleRates[fscod2] / 2
		blocks = 6
	} else {
		h.SampleRate = sampleRates[h.FSCod]
		blocks = eac3Blocks[rd.ReadBits8(2)] // numblkscod
	}

	h.ACMod = rd.ReadBits8(3)
	h.LFE = rd.ReadFlag()

	h.ChannelMask = acmodChannels[h.ACMod]
	if h.LFE {
		h.ChannelMask |= core.ChanLFE
	}
	h.Channels = h.ChannelMask.Count()

	h.Samples = blocks * 256
	h.Bitrate = uint32(uint64(8*h.FrameSize) * uint64(h.SampleRate) / uint64(h.Samples))

	return h, nil
}

func (h *Header) Codec() string {
	if h.EAC3 {
		return core.CodecEAC3
	}
	return core.CodecAC3
}
