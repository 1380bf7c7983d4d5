package a52

import (
	"github.com/audiopass/audiopass/pkg/core"
	"github.com/pion/rtp"
)

// RFC 4184 payload header frame types
const (
	FrameTypeComplete     = 0 // one or more complete frames
	FrameTypeInitialLarge = 1 // initial fragment with at least 5/8 of the frame
	FrameTypeInitialSmall = 2 // initial fragment with less than 5/8 of the frame
	FrameTypeNonInitial   = 3
)

const (
	payloadHeaderSize = 2
	defaultMTU        = 1472
)

// RTPPay - packetize one frame per incoming packet into RFC 4184 payloads.
// Big frames are split into fragments with the same timestamp.
func RTPPay(mtu uint16, handler core.HandlerFunc) core.HandlerFunc {
	if mtu == 0 {
		mtu = defaultMTU
	}

	sequencer := rtp.NewRandomSequencer()
	size := int(mtu) - 12 - payloadHeaderSize // RTP header + payload header

	return func(packet *rtp.Packet) {
		frame := packet.Payload

		if len(frame) <= size {
			clone := rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					Marker:         true,
					SequenceNumber: sequencer.NextSequenceNumber(),
					Timestamp:      packet.Timestamp,
				},
				Payload: append([]byte{FrameTypeComplete, 1}, frame...),
			}
			handler(&clone)
			return
		}

		n := (len(frame) + size - 1) / size

		for i := 0; len(frame) > 0; i++ {
			var ft byte
			switch {
			case i > 0:
				ft = FrameTypeNonInitial
			case size*8 >= len(packet.Payload)*5:
				ft = FrameTypeInitialLarge
			default:
				ft = FrameTypeInitialSmall
			}

			chunk := frame
			if len(chunk) > size {
				chunk = chunk[:size]
			}
			frame = frame[len(chunk):]

			clone := rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					Marker:         len(frame) == 0,
					SequenceNumber: sequencer.NextSequenceNumber(),
					Timestamp:      packet.Timestamp,
				},
				Payload: append([]byte{ft, byte(n)}, chunk...),
			}
			handler(&clone)
		}
	}
}

// RTPDepay - restore whole frames from RFC 4184 payloads.
// Packets with several frames are split, each frame gets its own timestamp.
func RTPDepay(handler core.HandlerFunc) core.HandlerFunc {
	var buf []byte
	var ts uint32

	return func(packet *rtp.Packet) {
		if len(packet.Payload) < payloadHeaderSize {
			return
		}

		ft := packet.Payload[0] & 0b11
		payload := packet.Payload[payloadHeaderSize:]

		switch ft {
		case FrameTypeComplete:
			buf = buf[:0]
			splitFrames(payload, packet.Timestamp, handler)
			return

		case FrameTypeInitialLarge, FrameTypeInitialSmall:
			buf = append(buf[:0], payload...)
			ts = packet.Timestamp

		case FrameTypeNonInitial:
			if len(buf) == 0 || packet.Timestamp != ts {
				buf = buf[:0] // lost initial fragment
				return
			}
			buf = append(buf, payload...)
		}

		if !packet.Marker {
			return
		}

		clone := rtp.Packet{
			Header:  packet.Header,
			Payload: append([]byte(nil), buf...),
		}
		buf = buf[:0]
		handler(&clone)
	}
}

func splitFrames(b []byte, ts uint32, handler core.HandlerFunc) {
	for len(b) >= HeaderSize {
		h, err := ParseHeader(b)
		if err != nil || h.FrameSize > len(b) {
			return
		}

		clone := rtp.Packet{
			Header: rtp.Header{
				Version:   2,
				Marker:    true,
				Timestamp: ts,
			},
			Payload: b[:h.FrameSize],
		}
		handler(&clone)

		b = b[h.FrameSize:]
		ts += uint32(h.Samples)
	}
}
