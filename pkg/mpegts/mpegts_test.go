package mpegts

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/audiopass/audiopass/pkg/core"
	"github.com/stretchr/testify/require"
)

func TestTime(t *testing.T) {
	b := make([]byte, 5)
	WriteTime(b, 0xFFFFFFFF)
	require.Equal(t, []byte{0x27, 0xFF, 0xFF, 0xFF, 0xFF}, b)
}

func TestTimeRoundTrip(t *testing.T) {
	for _, ts := range []uint32{0, 1, 90000, 0x7FFFFFFF, 0xFFFFFFFF} {
		m := NewMuxer()
		pid := m.AddTrack(StreamTypeAC3)
		b := append(m.GetHeader(), m.GetPayload(pid, ts, []byte{1, 2, 3})...)

		d := NewDemuxer()
		r := bytes.NewReader(b)

		_, err := d.ReadPacket(r)
		require.Nil(t, err)

		pkt, err := d.ReadPacket(r)
		require.Nil(t, err)
		require.Equal(t, ts, pkt.Timestamp)
		require.True(t, pkt.Marker)
	}
}

func TestDemuxer(t *testing.T) {
	m := NewMuxer()
	pid1 := m.AddTrack(StreamTypeAC3)
	pid2 := m.AddTrack(StreamTypePrivate, descriptorDTS, 0)
	pid3 := m.AddTrack(0x0F) // AAC
	pid4 := m.AddTrack(StreamTypePrivate, descriptorRegistration, 4, 'E', 'A', 'C', '3')

	payload1 := bytes.Repeat([]byte{0x0B}, 1000)
	payload2 := bytes.Repeat([]byte{0x7F}, 100)
	payload3 := bytes.Repeat([]byte{0xFF}, 300)

	b := m.GetHeader()
	b = append(b, m.GetPayload(pid1, 90000, payload1)...)
	b = append(b, m.GetPayload(pid3, 90000, payload3)...)
	b = append(b, m.GetPayload(pid2, 180000, payload2)...)
	b = append(b, m.GetPayload(pid1, 90000+2880, payload1)...)
	b = append(b, m.GetPayload(pid4, 0, payload2)...)

	d := NewDemuxer()
	r := bytes.NewReader(b)

	pkt, err := d.ReadPacket(r)
	require.Nil(t, err)
	require.Equal(t, byte(StreamTypeMetadata), pkt.PayloadType)
	require.Equal(t, []byte{StreamTypeAC3, StreamTypeDTS, StreamTypeEAC3}, pkt.Payload)

	pkt, err = d.ReadPacket(r)
	require.Nil(t, err)
	require.Equal(t, byte(StreamTypeAC3), pkt.PayloadType)
	require.Equal(t, uint32(90000), pkt.Timestamp)
	require.Equal(t, uint16(0), pkt.SequenceNumber)
	require.Equal(t, uint32(pid1), pkt.SSRC)
	require.Equal(t, payload1, pkt.Payload)

	pkt, err = d.ReadPacket(r)
	require.Nil(t, err)
	require.Equal(t, byte(StreamTypeDTS), pkt.PayloadType)
	require.Equal(t, uint32(180000), pkt.Timestamp)
	require.Equal(t, payload2, pkt.Payload)

	pkt, err = d.ReadPacket(r)
	require.Nil(t, err)
	require.Equal(t, byte(StreamTypeAC3), pkt.PayloadType)
	require.Equal(t, uint32(92880), pkt.Timestamp)
	require.Equal(t, uint16(1), pkt.SequenceNumber)

	block := PacketToBlock(pkt)
	require.Equal(t, time.Second+32*time.Millisecond, block.PTS)
	require.Equal(t, payload1, block.Data)

	pkt, err = d.ReadPacket(r)
	require.Nil(t, err)
	require.Equal(t, byte(StreamTypeEAC3), pkt.PayloadType)
	require.Equal(t, core.CodecEAC3, Codec(pkt.PayloadType))

	_, err = d.ReadPacket(r)
	require.Equal(t, io.EOF, err)
	require.Len(t, d.Flush(), 0)
}

func TestDemuxerContinuity(t *testing.T) {
	m := NewMuxer()
	pid := m.AddTrack(StreamTypeAC3)

	header := m.GetHeader()

	// 14 + 1000 bytes = 6 TS packets
	pes1 := m.GetPayload(pid, 0, bytes.Repeat([]byte{1}, 1000))
	require.Len(t, pes1, 6*PacketSize)

	pes2 := m.GetPayload(pid, 2880, bytes.Repeat([]byte{2}, 1000))

	b := append(header, pes1[:2*PacketSize]...)
	b = append(b, pes1[3*PacketSize:]...) // lost packet
	b = append(b, pes2[:PacketSize]...)
	b = append(b, pes2[:PacketSize]...) // duplicate packet
	b = append(b, pes2[PacketSize:]...)

	d := NewDemuxer()
	r := bytes.NewReader(b)

	_, err := d.ReadPacket(r)
	require.Nil(t, err)

	pkt, err := d.ReadPacket(r)
	require.Nil(t, err)
	require.Equal(t, uint16(1), pkt.SequenceNumber) // gap
	require.Equal(t, bytes.Repeat([]byte{2}, 1000), pkt.Payload)
}

func TestDemuxerFlush(t *testing.T) {
	m := NewMuxer()
	pid := m.AddTrack(StreamTypeDTS)

	pes := m.GetPayload(pid, 0, bytes.Repeat([]byte{1}, 1000))
	b := append(m.GetHeader(), pes[:len(pes)-PacketSize]...)

	d := NewDemuxer()
	r := bytes.NewReader(b)

	_, err := d.ReadPacket(r)
	require.Nil(t, err)

	_, err = d.ReadPacket(r)
	require.Equal(t, io.EOF, err)

	pkts := d.Flush()
	require.Len(t, pkts, 1)
	require.Len(t, pkts[0].Payload, 5*PacketSize-4*5-14)
}

func TestDemuxerErrors(t *testing.T) {
	d := NewDemuxer()
	_, err := d.ReadPacket(bytes.NewReader(make([]byte, PacketSize)))
	require.ErrorIs(t, err, ErrSyncByte)

	_, err = d.ReadPacket(bytes.NewReader(make([]byte, 100)))
	require.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestPrivateStreamType(t *testing.T) {
	require.Equal(t, byte(StreamTypeAC3), privateStreamType([]byte{descriptorAC3, 1, 0}))
	require.Equal(t, byte(StreamTypeEAC3), privateStreamType([]byte{descriptorEAC3, 0}))
	require.Equal(t, byte(StreamTypeDTS), privateStreamType([]byte{0x0A, 4, 'e', 'n', 'g', 0, descriptorRegistration, 4, 'D', 'T', 'S', '2'}))
	require.Equal(t, byte(StreamTypePrivate), privateStreamType([]byte{descriptorRegistration, 4, 'O', 'p', 'u', 's'}))
	require.Equal(t, byte(StreamTypePrivate), privateStreamType([]byte{descriptorAC3, 10}))
}

func TestStreamType(t *testing.T) {
	require.Equal(t, byte(StreamTypeAC3), StreamType(&core.Codec{Name: core.CodecAC3}))
	require.Equal(t, byte(StreamTypeEAC3), StreamType(&core.Codec{Name: core.CodecEAC3}))
	require.Equal(t, byte(StreamTypeDTS), StreamType(&core.Codec{Name: core.CodecDTS, Profile: core.ProfileDTS}))
	require.Equal(t, byte(StreamTypeDTSHD), StreamType(&core.Codec{Name: core.CodecDTS, Profile: core.ProfileDTSHD}))
	require.Equal(t, byte(StreamTypeDTSExpress), StreamType(&core.Codec{Name: core.CodecDTS, Profile: core.ProfileDTSExpress}))

	for _, typ := range []byte{StreamTypeAC3, StreamTypeEAC3, StreamTypeDTS} {
		require.Equal(t, typ, StreamType(&core.Codec{Name: Codec(typ)}))
	}
}

func TestDurationToPTS(t *testing.T) {
	require.Equal(t, uint32(2880), DurationToPTS(32*time.Millisecond))
	require.Equal(t, 32*time.Millisecond, PTSToDuration(DurationToPTS(32*time.Millisecond)))
}
