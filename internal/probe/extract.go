package probe

import (
	"context"
	"fmt"
	"io"

	"github.com/audiopass/audiopass/pkg/a52"
	"github.com/audiopass/audiopass/pkg/core"
	"github.com/audiopass/audiopass/pkg/mpegts"
	"github.com/audiopass/audiopass/pkg/wav"
)

const (
	OutputRaw    = "raw"
	OutputWAV    = "wav"
	OutputMPEGTS = "ts"
	OutputRTP    = "rtp" // RFC 4184 packets with RFC 4571 length prefix, AC-3 and E-AC-3 only
)

// Extract - write packetized frames of the file to w.
// Container headers are written before the first frame, when the codec is known.
func (p *Prober) Extract(ctx context.Context, path string, w io.Writer, output string) (*Result, error) {
	var enc frameWriter

	switch output {
	case "", OutputRaw:
		enc = &rawWriter{}
	case OutputWAV:
		enc = &wavWriter{}
	case OutputMPEGTS:
		enc = &tsWriter{}
	case OutputRTP:
		enc = &rtpWriter{}
	default:
		return nil, fmt.Errorf("probe: unknown output format: %s", output)
	}

	var err error

	res, err2 := p.frames(ctx, path, func(frame *core.Block, codec func() *core.Codec) bool {
		err = enc.write(w, frame, codec)
		return err == nil
	})
	if err2 != nil {
		return res, err2
	}

	return res, err
}

type frameWriter interface {
	write(w io.Writer, frame *core.Block, codec func() *core.Codec) error
}

type rawWriter struct{}

func (rawWriter) write(w io.Writer, frame *core.Block, _ func() *core.Codec) error {
	_, err := w.Write(frame.Data)
	return err
}

type wavWriter struct {
	header bool
}

func (e *wavWriter) write(w io.Writer, frame *core.Block, codec func() *core.Codec) error {
	if !e.header {
		b := wav.Header(codec())
		if b == nil {
			return fmt.Errorf("probe: can't write %s to wav", codec().Name)
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
		e.header = true
	}

	_, err := w.Write(frame.Data)
	return err
}

type tsWriter struct {
	muxer *mpegts.Muxer
	pid   uint16
	pts   uint32
}

func (e *tsWriter) write(w io.Writer, frame *core.Block, codec func() *core.Codec) error {
	if e.muxer == nil {
		e.muxer = mpegts.NewMuxer()
		e.pid = e.muxer.AddTrack(mpegts.StreamType(codec()))
		if _, err := w.Write(e.muxer.GetHeader()); err != nil {
			return err
		}
	}

	// frames without timestamp continue from the previous one
	if frame.PTS != core.NoPTS {
		e.pts = mpegts.DurationToPTS(frame.PTS)
	}

	_, err := w.Write(e.muxer.GetPayload(e.pid, e.pts, frame.Data))

	e.pts += mpegts.DurationToPTS(frame.Duration)
	return err
}

type rtpWriter struct {
	pay core.HandlerFunc
	err error
}

func (e *rtpWriter) write(w io.Writer, frame *core.Block, codec func() *core.Codec) error {
	c := codec()

	if e.pay == nil {
		if c.Name != core.CodecAC3 && c.Name != core.CodecEAC3 {
			return fmt.Errorf("probe: can't write %s to rtp", c.Name)
		}

		e.pay = a52.RTPPay(0, func(packet *core.Packet) {
			if e.err != nil {
				return
			}

			b, err := packet.Marshal()
			if err != nil {
				e.err = err
				return
			}

			_, e.err = w.Write(append([]byte{byte(len(b) >> 8), byte(len(b))}, b...))
		})
	}

	e.pay(core.BlockToPacket(frame, c.ClockRate))
	return e.err
}
