package mpegts

import (
	"time"

	"github.com/audiopass/audiopass/pkg/core"
	"github.com/pion/rtp"
)

const (
	PacketSize = 188
	SyncByte   = 0x47  // Uppercase G
	ClockRate  = 90000 // fixed clock rate for PTS/DTS of any type
)

// https://en.wikipedia.org/wiki/Program-specific_information#Elementary_stream_types
const (
	StreamTypeMetadata   = 0    // Reserved
	StreamTypePrivate    = 0x06 // PES private data, real type in descriptors
	StreamTypeAC3        = 0x81 // ATSC A/52
	StreamTypeDTS        = 0x82
	StreamTypeDTSHD      = 0x85 // DTS-HD High Resolution (Blu-ray)
	StreamTypeDTSHDMA    = 0x86 // DTS-HD Master Audio (Blu-ray)
	StreamTypeEAC3       = 0x87 // ATSC A/52B
	StreamTypeDTSExpress = 0x8A // DTS Express secondary audio (Blu-ray)
)

// https://en.wikipedia.org/wiki/Program-specific_information#Descriptors
const (
	descriptorRegistration = 0x05
	descriptorAC3          = 0x6A // DVB
	descriptorEAC3         = 0x7A // DVB
	descriptorDTS          = 0x7B // DVB
)

const streamIDPrivate1 = 0xBD

// Codec - elementary stream codec name or empty string for unsupported types
func Codec(streamType byte) string {
	switch streamType {
	case StreamTypeAC3:
		return core.CodecAC3
	case StreamTypeEAC3:
		return core.CodecEAC3
	case StreamTypeDTS, StreamTypeDTSHD, StreamTypeDTSHDMA, StreamTypeDTSExpress:
		return core.CodecDTS
	}
	return ""
}

// StreamType - elementary stream type for the packetizer output codec
func StreamType(codec *core.Codec) byte {
	switch codec.Name {
	case core.CodecAC3:
		return StreamTypeAC3
	case core.CodecEAC3:
		return StreamTypeEAC3
	case core.CodecDTS:
		switch codec.Profile {
		case core.ProfileDTSHD:
			return StreamTypeDTSHD
		case core.ProfileDTSExpress:
			return StreamTypeDTSExpress
		}
		return StreamTypeDTS
	}
	return StreamTypePrivate
}

// DurationToPTS - convert to 90 kHz timestamp, wraps at 32 bits
func DurationToPTS(d time.Duration) uint32 {
	return uint32(uint64(d) * ClockRate / uint64(time.Second))
}

// PTSToDuration - convert 90 kHz timestamp
func PTSToDuration(ts uint32) time.Duration {
	return time.Duration(uint64(ts) * uint64(time.Second) / ClockRate)
}

// PacketToBlock - wrap demuxed packet into a packetizer input block.
// Packets without PTS get core.NoPTS.
func PacketToBlock(pkt *rtp.Packet) *core.Block {
	pts := core.NoPTS
	if pkt.Marker {
		pts = PTSToDuration(pkt.Timestamp)
	}
	return core.NewBlock(pkt.Payload, pts)
}

func privateStreamType(info []byte) byte {
	for len(info) >= 2 {
		tag, size := info[0], int(info[1])
		if 2+size > len(info) {
			break
		}

		switch tag {
		case descriptorAC3:
			return StreamTypeAC3
		case descriptorEAC3:
			return StreamTypeEAC3
		case descriptorDTS:
			return StreamTypeDTS
		case descriptorRegistration:
			if size >= 4 {
				switch string(info[2:6]) {
				case "AC-3":
					return StreamTypeAC3
				case "EAC3":
					return StreamTypeEAC3
				case "DTS1", "DTS2", "DTS3":
					return StreamTypeDTS
				}
			}
		}

		info = info[2+size:]
	}

	return StreamTypePrivate
}

// PES - Packetized Elementary Stream
type PES struct {
	PID        uint16 // from PMT table
	StreamID   byte   // from each PES header
	StreamType byte   // from PMT table
	Sequence   uint16 // manual, skipped values mark lost data
	PTS        uint32 // from extra header, always 90000Hz
	Payload    []byte // from PES body
	Size       int    // from PES header, can be 0

	hasPTS  bool
	counter byte // last continuity counter + 1, zero before the first packet
}

func (p *PES) SetBuffer(size int, b []byte) {
	p.Payload = make([]byte, 0, size)
	p.Payload = append(p.Payload, b...)
	p.Size = size
}

func (p *PES) AppendBuffer(b []byte) {
	p.Payload = append(p.Payload, b...)
}

// Continuity - check packet counter, false for the duplicate packet.
// Lost packets drop the unfinished payload and make a gap in Sequence.
func (p *PES) Continuity(cc byte) bool {
	expect := p.counter
	p.counter = (cc+1)&0xF | 0x10

	if expect == 0 {
		return true
	}
	if cc == (expect-1)&0xF {
		return false
	}
	if cc != expect&0xF {
		p.Payload = nil
		p.Size = 0
		p.Sequence++
	}
	return true
}

func (p *PES) GetPacket() *rtp.Packet {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         p.hasPTS, // timestamp is valid
			PayloadType:    p.StreamType,
			SequenceNumber: p.Sequence,
			Timestamp:      p.PTS,
			SSRC:           uint32(p.PID),
		},
		Payload: p.Payload,
	}

	p.Sequence++
	p.Payload = nil
	p.Size = 0

	return pkt
}
