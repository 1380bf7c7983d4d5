package core

import (
	"github.com/pion/rtp"
)

type Packet = rtp.Packet

// HandlerFunc - process packets (just like http.HandlerFunc)
type HandlerFunc func(packet *Packet)

// BlockToPacket - wrap a frame into a packet with timestamp in clockRate units
func BlockToPacket(b *Block, clockRate uint32) *Packet {
	pkt := &Packet{
		Header: rtp.Header{
			Version: 2,
			Marker:  true,
		},
		Payload: b.Data,
	}
	if b.PTS != NoPTS && b.PTS >= 0 {
		pkt.Timestamp = uint32(uint64(b.PTS) * uint64(clockRate) / 1e9)
	}
	return pkt
}
