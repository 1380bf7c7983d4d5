package mpegts

import (
	"github.com/audiopass/audiopass/pkg/bits"
)

// Muxer - writes audio elementary streams into MPEG-TS, one program
type Muxer struct {
	pes  map[uint16]*PES
	info map[uint16][]byte
}

func NewMuxer() *Muxer {
	return &Muxer{
		pes:  map[uint16]*PES{},
		info: map[uint16][]byte{},
	}
}

// AddTrack - info is the raw ES descriptors loop for the PMT
func (m *Muxer) AddTrack(streamType byte, info ...byte) (pid uint16) {
	// AC-3 and DTS go to private stream 1, others to MPEG audio streams (0xC0-0xDF)
	pes := &PES{StreamType: streamType, StreamID: 0xC0}
	if streamType == StreamTypePrivate || Codec(streamType) != "" {
		pes.StreamID = streamIDPrivate1
	}

	pid = pes0PID + uint16(len(m.pes))
	m.pes[pid] = pes
	m.info[pid] = info

	return
}

func (m *Muxer) GetHeader() []byte {
	wr := bits.NewWriter(nil)
	m.writePAT(wr)
	m.writePMT(wr)
	return wr.Bytes()
}

// GetPayload - one PES with 90 kHz timestamp, split into TS packets
func (m *Muxer) GetPayload(pid uint16, pts uint32, payload []byte) []byte {
	pes := m.pes[pid]

	// min header size (3 byte) + adv header size (PES)
	size := 3 + 5 + len(payload)

	b := make([]byte, 6+3+5, 6+3+5+len(payload))

	b[0], b[1], b[2] = 0, 0, 1 // Packet start code prefix
	b[3] = pes.StreamID        // Stream ID

	if size <= 0xFFFF {
		b[4], b[5] = byte(size>>8), byte(size) // PES Packet length
	}

	// Optional PES header:
	b[6] = 0x80 // Marker bits (binary)
	b[7] = 0x80 // PTS indicator
	b[8] = 5    // PES header length

	WriteTime(b[9:], pts)

	pes.Payload = append(b, payload...)

	wr := bits.NewWriter(nil)
	for start := true; len(pes.Payload) > 0; start = false {
		m.writePES(wr, pid, pes, start)
		pes.counter++
	}

	return wr.Bytes()
}

const patPID = 0
const pmtPID = 0x1000
const pes0PID = 0x100

func (m *Muxer) writePAT(wr *bits.Writer) {
	m.writeHeader(wr, patPID)
	i := wr.Len() + 1 // start for CRC32
	m.writePSIHeader(wr, 0, 4)

	wr.WriteBits16(1, 16)      // Program num
	wr.WriteBits8(0b111, 3)    // Reserved bits (all to 1)
	wr.WriteBits16(pmtPID, 13) // Program map PID

	m.writeCRC(wr, i)
	m.WriteTail(wr)
}

func (m *Muxer) writePMT(wr *bits.Writer) {
	size := uint16(4)
	for _, info := range m.info {
		size += 5 + uint16(len(info))
	}

	m.writeHeader(wr, pmtPID)
	i := wr.Len() + 1 // start for CRC32
	m.writePSIHeader(wr, 2, size)

	wr.WriteBits8(0b111, 3)    // Reserved bits (all to 1)
	wr.WriteBits16(0x1FFF, 13) // PCR PID (not used)

	wr.WriteBits8(0b1111, 4) // Reserved bits (all to 1)
	wr.WriteBits16(0, 12)    // Program info length

	for pid := uint16(pes0PID); ; pid++ {
		pes, ok := m.pes[pid]
		if !ok {
			break
		}
		info := m.info[pid]

		wr.WriteBits8(pes.StreamType, 8)      // Stream type
		wr.WriteBits8(0b111, 3)               // Reserved bits (all to 1)
		wr.WriteBits16(pid, 13)               // Elementary PID
		wr.WriteBits8(0b1111, 4)              // Reserved bits (all to 1)
		wr.WriteBits16(uint16(len(info)), 12) // ES Info length
		wr.WriteBytes(info...)
	}

	m.writeCRC(wr, i)
	m.WriteTail(wr)
}

func (m *Muxer) writePES(wr *bits.Writer, pid uint16, pes *PES, start bool) {
	const flagPUSI = 0b01000000_00000000
	const flagAdaptation = 0b00100000
	const flagPayload = 0b00010000

	wr.WriteBits8(SyncByte, 8)

	if start {
		pid |= flagPUSI // Payload unit start indicator (PUSI)
	}

	wr.WriteBits16(pid, 16)

	counter := pes.counter & 0xF

	if size := len(pes.Payload); size < PacketSize-4 {
		wr.WriteBits8(flagAdaptation|flagPayload|counter, 8) // adaptation + payload

		// for 183 payload will be zero
		adSize := PacketSize - 4 - 1 - byte(size)
		wr.WriteBits8(adSize, 8)
		if adSize > 0 {
			wr.WriteBits8(0, 8) // Adaptation flags
			for i := byte(1); i < adSize; i++ {
				wr.WriteBits8(0xFF, 8) // Stuffing
			}
		}

		wr.WriteBytes(pes.Payload...)
		pes.Payload = nil
	} else {
		wr.WriteBits8(flagPayload|counter, 8) // only payload

		wr.WriteBytes(pes.Payload[:PacketSize-4]...)
		pes.Payload = pes.Payload[PacketSize-4:]
	}
}

func (m *Muxer) writeHeader(wr *bits.Writer, pid uint16) {
	wr.WriteBits8(SyncByte, 8)

	wr.WriteBit(0)          // Transport error indicator (TEI)
	wr.WriteBit(1)          // Payload unit start indicator (PUSI)
	wr.WriteBit(0)          // Transport priority
	wr.WriteBits16(pid, 13) // PID

	wr.WriteBits8(0, 2) // Transport scrambling control (TSC)
	wr.WriteBit(0)      // Adaptation field
	wr.WriteBit(1)      // Payload
	wr.WriteBits8(0, 4) // Continuity counter
}

func (m *Muxer) writePSIHeader(wr *bits.Writer, tableID byte, size uint16) {
	wr.WriteBits8(0, 8) // Pointer field

	wr.WriteBits8(tableID, 8) // Table ID

	wr.WriteBit(1)               // Section syntax indicator
	wr.WriteBit(0)               // Private bit
	wr.WriteBits8(0b11, 2)       // Reserved bits (all to 1)
	wr.WriteBits16(5+size+4, 12) // Section length (5 bytes below + content + 4 bytes CRC32)

	wr.WriteBits16(1, 16)  // Table ID extension
	wr.WriteBits8(0b11, 2) // Reserved bits (all to 1)
	wr.WriteBits8(0, 5)    // Version number
	wr.WriteBit(1)         // Current/next indicator

	wr.WriteBits8(0, 8) // Section number
	wr.WriteBits8(0, 8) // Last section number
}

func (m *Muxer) writeCRC(wr *bits.Writer, start int) {
	crc := checksum(wr.Bytes()[start:])
	wr.WriteBytes(byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

func (m *Muxer) WriteTail(wr *bits.Writer) {
	if size := wr.Len() % PacketSize; size != 0 {
		for ; size < PacketSize; size++ {
			wr.WriteBits8(0xFF, 8)
		}
	}
}

func WriteTime(b []byte, t uint32) {
	_ = b[4] // bounds
	const onlyPTS = 0x20
	b[0] = onlyPTS | byte(t>>(32-3))&0b1110 | 1
	b[1] = byte(t >> (24 - 2))
	b[2] = byte(t>>(16-2)) | 1
	b[3] = byte(t >> (8 - 1))
	b[4] = byte(t<<1) | 1 // t>>(0-1)
}

// checksum - CRC-32/MPEG-2
func checksum(b []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, v := range b {
		crc ^= uint32(v) << 24
		for i := 0; i < 8; i++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
