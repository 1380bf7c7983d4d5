package magic

import (
	"io"

	"github.com/audiopass/audiopass/pkg/a52"
	"github.com/audiopass/audiopass/pkg/core"
	"github.com/audiopass/audiopass/pkg/dts"
	"github.com/audiopass/audiopass/pkg/mpegts"
	"github.com/audiopass/audiopass/pkg/wav"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

const DefaultChunk = 4096

// Source - pulls chunks from the reader, feeds the packetizer and yields frames
type Source struct {
	Info

	// Chunk - bytes per packetizer push for raw and WAV data
	Chunk int

	rd   *core.ReadBuffer
	data io.Reader
	ts   *mpegts.Demuxer

	packetizer core.Packetizer

	offset int
	ssrc   uint32
	seq    uint16

	queue []*core.Block
	err   error
}

func Open(r io.Reader, mode core.Mode) (*Source, error) {
	rd := core.NewReadBuffer(r)

	b, err := rd.Peek(core.ProbeSize)
	if err != nil {
		return nil, err
	}

	info, err := Probe(b)
	if err != nil {
		return nil, err
	}

	s := &Source{Info: *info, Chunk: DefaultChunk, rd: rd, data: rd}

	switch info.Format {
	case FormatWAV:
		format, err := wav.ReadHeader(rd)
		if err != nil {
			return nil, err
		}
		if format.DataSize != 0 && format.DataSize != wav.SizeUnknown {
			s.data = io.LimitReader(rd, int64(format.DataSize))
		}
	case FormatMPEGTS:
		s.ts = mpegts.NewDemuxer()
	}

	switch info.Codec {
	case core.CodecDTS:
		if mode == core.ModeDecoder {
			s.packetizer = dts.NewDecoder(mode)
		} else {
			s.packetizer = dts.NewPacketizer()
		}
	default:
		s.packetizer = a52.NewPacketizer(mode)
	}

	return s, nil
}

func (s *Source) SetLogger(log zerolog.Logger) {
	switch p := s.packetizer.(type) {
	case *a52.Packetizer:
		p.Log = log
	case *dts.Packetizer:
		p.Log = log
	case *dts.Decoder:
		p.Log = log
	}
}

func (s *Source) Codec() *core.Codec {
	return s.packetizer.Codec()
}

func (s *Source) Stats() core.Stats {
	return s.packetizer.Stats()
}

// ReadFrame - next frame, io.EOF after the last one
func (s *Source) ReadFrame() (*core.Block, error) {
	for len(s.queue) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		s.err = s.fill()
	}

	frame := s.queue[0]
	s.queue = s.queue[1:]
	return frame, nil
}

func (s *Source) Close() error {
	return s.rd.Close()
}

func (s *Source) fill() error {
	blocks, err := s.read()

	for _, b := range blocks {
		frames, err := s.packetizer.Packetize(b)
		s.queue = append(s.queue, frames...)
		if err != nil {
			return err
		}
	}

	if err == io.EOF {
		// drain the last frame
		frames, err := s.packetizer.Packetize(nil)
		s.queue = append(s.queue, frames...)
		if err != nil {
			return err
		}
		return io.EOF
	}

	return err
}

func (s *Source) read() ([]*core.Block, error) {
	if s.ts != nil {
		return s.readMPEGTS()
	}

	size := s.Chunk
	if size <= 0 {
		size = DefaultChunk
	}
	if s.Swap {
		size = (size + 1) &^ 1
	}

	b := make([]byte, size)
	n, err := io.ReadFull(s.data, b)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if n == 0 {
		return nil, err
	}

	b = b[:n]
	if s.Swap {
		b = dts.SwapWords(b, b)
	}

	// raw streams have no timestamps, start from zero
	pts := core.NoPTS
	if s.offset == 0 {
		pts = 0
	}
	s.offset += n

	return []*core.Block{core.NewBlock(b, pts)}, err
}

func (s *Source) readMPEGTS() ([]*core.Block, error) {
	for {
		pkt, err := s.ts.ReadPacket(s.rd)
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				return nil, err
			}

			var blocks []*core.Block
			for _, pkt = range s.ts.Flush() {
				if b := s.block(pkt); b != nil {
					blocks = append(blocks, b)
				}
			}
			return blocks, io.EOF
		}

		if b := s.block(pkt); b != nil {
			return []*core.Block{b}, nil
		}
	}
}

func (s *Source) block(pkt *rtp.Packet) *core.Block {
	if pkt.PayloadType != s.StreamType {
		return nil
	}

	b := mpegts.PacketToBlock(pkt)

	// first elementary stream with the probed type
	if s.ssrc == 0 {
		s.ssrc = pkt.SSRC
	} else if pkt.SSRC != s.ssrc {
		return nil
	} else if pkt.SequenceNumber != s.seq+1 {
		b.Flags |= core.FlagDiscontinuity
	}
	s.seq = pkt.SequenceNumber

	return b
}
