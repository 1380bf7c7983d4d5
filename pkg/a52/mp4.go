package a52

import (
	"github.com/Eyevinn/mp4ff/mp4"
)

// Dac3Box - AC3SpecificBox (ETSI TS 102 366 F.4) for an MP4 sample entry
func Dac3Box(h *Header) *mp4.Dac3Box {
	box := &mp4.Dac3Box{
		FSCod:       h.FSCod,
		BSID:        h.BSID,
		BSMod:       h.BSMod,
		ACMod:       h.ACMod,
		BitRateCode: h.FrmSizeCod >> 1,
	}
	if h.LFE {
		box.LFEOn = 1
	}
	return box
}

// Dec3Box - EC3SpecificBox (ETSI TS 102 366 F.6) for one independent substream
// followed by the given number of dependent substreams. Their channel locations are not tracked.
// E-AC-3 headers don't carry bsmod, so it stays 0 (complete main).
func Dec3Box(h *Header, dependent int) *mp4.Dec3Box {
	sub := mp4.EC3Sub{
		FSCod:     h.FSCod,
		BSID:      h.BSID,
		ACMod:     h.ACMod,
		NumDepSub: byte(dependent),
	}
	if h.LFE {
		sub.LFEOn = 1
	}
	return &mp4.Dec3Box{
		DataRate:  uint16(h.Bitrate / 1000),
		NumIndSub: 0, // number of independent substreams minus one
		EC3Subs:   []mp4.EC3Sub{sub},
	}
}

// DependentCount - dependent substreams that follow the independent one in the packetized frame
func DependentCount(frame []byte) (n int) {
	h, err := ParseHeader(frame)
	if err != nil || !h.EAC3 {
		return 0
	}

	for i := h.FrameSize; i < len(frame); i += h.FrameSize {
		if h, err = ParseHeader(frame[i:]); err != nil || h.StreamType != StreamTypeDependent {
			break
		}
		n++
	}
	return
}
