package magic

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/audiopass/audiopass/pkg/a52"
	"github.com/audiopass/audiopass/pkg/core"
	"github.com/audiopass/audiopass/pkg/dts"
	"github.com/audiopass/audiopass/pkg/mpegts"
	"github.com/audiopass/audiopass/pkg/wav"
)

const (
	FormatRaw    = "raw"
	FormatWAV    = "wav"
	FormatMPEGTS = "mpegts"
)

var ErrUnknownFormat = errors.New("magic: unknown format")

// Info - container and codec detected from the first bytes
type Info struct {
	Format     string
	Codec      string
	StreamType byte // MPEG-TS only
	Swap       bool // 16-bit words are byte swapped (PCM WAV only)
}

// Probe - can read unknown bytes and autodetect format
func Probe(b []byte) (*Info, error) {
	switch {
	case len(b) >= 12 && string(b[:4]) == wav.FourCC && string(b[8:12]) == "WAVE":
		return probeWAV(b)

	case len(b) >= mpegts.PacketSize && b[0] == mpegts.SyncByte &&
		(len(b) < 2*mpegts.PacketSize || b[mpegts.PacketSize] == mpegts.SyncByte):
		return probeMPEGTS(b)
	}

	if codec := probeRaw(b); codec != "" {
		return &Info{Format: FormatRaw, Codec: codec}, nil
	}

	if len(b) > 8 {
		b = b[:8]
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, hex.EncodeToString(b))
}

func probeWAV(b []byte) (*Info, error) {
	r := bytes.NewReader(b)

	format, err := wav.ReadHeader(r)
	if err != nil {
		return nil, err
	}

	info := &Info{Format: FormatWAV, Codec: format.Codec()}
	if info.Codec == "" && format.Tag == wav.FormatPCM && format.BitsPerSample == 16 {
		data := b[len(b)-r.Len():]
		info.Codec, info.Swap = wav.Sniff(data)
	}

	if info.Codec == "" {
		return nil, fmt.Errorf("%w: wav format 0x%04X", ErrUnknownFormat, format.Tag)
	}

	return info, nil
}

func probeMPEGTS(b []byte) (*Info, error) {
	d := mpegts.NewDemuxer()
	r := bytes.NewReader(b)

	for {
		pkt, err := d.ReadPacket(r)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, fmt.Errorf("%w: mpegts without audio tables", ErrUnknownFormat)
			}
			return nil, err
		}

		if pkt.PayloadType != mpegts.StreamTypeMetadata {
			continue
		}

		if len(pkt.Payload) == 0 {
			return nil, fmt.Errorf("%w: mpegts without AC-3 or DTS", ErrUnknownFormat)
		}

		// first supported stream wins
		return &Info{
			Format:     FormatMPEGTS,
			Codec:      mpegts.Codec(pkt.Payload[0]),
			StreamType: pkt.Payload[0],
		}, nil
	}
}

// probeRaw - first header which parses wins
func probeRaw(b []byte) string {
	for i := 0; i+dts.HeaderSize <= len(b); i++ {
		if a52.IsSync(b[i:]) {
			if h, err := a52.ParseHeader(b[i:]); err == nil {
				return h.Codec()
			}
		} else if dts.IsSync(b[i:]) {
			if _, err := dts.ParseHeader(b[i:]); err == nil {
				return core.CodecDTS
			}
		}
	}
	return ""
}
