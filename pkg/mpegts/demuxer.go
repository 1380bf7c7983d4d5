package mpegts

import (
	"bytes"
	"errors"
	"io"

	"github.com/audiopass/audiopass/pkg/bits"
	"github.com/pion/rtp"
)

var (
	ErrSyncByte       = errors.New("mpegts: wrong sync byte")
	ErrAdaptationSize = errors.New("mpegts: wrong adaptation size")
)

// Demuxer - reads audio elementary streams from MPEG-TS.
// The first packet has PayloadType StreamTypeMetadata and lists supported stream types.
type Demuxer struct {
	buf [PacketSize]byte
	rd  *bits.Reader

	pmtID uint16 // Program Map Table (PMT) PID
	pes   map[uint16]*PES
	pids  []uint16 // PMT order

	queue []*rtp.Packet
}

func NewDemuxer() *Demuxer {
	return &Demuxer{}
}

func (d *Demuxer) ReadPacket(rd io.Reader) (*rtp.Packet, error) {
	for {
		if len(d.queue) > 0 {
			pkt := d.queue[0]
			d.queue = d.queue[1:]
			return pkt, nil
		}

		if _, err := io.ReadFull(rd, d.buf[:]); err != nil {
			return nil, err
		}

		pid, start, ok, err := d.readPacketHeader()
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		if d.pes == nil {
			switch pid {
			case 0: // PAT ID
				d.readPAT() // PAT: Program Association Table
			case d.pmtID:
				d.readPMT() // PMT : Program Map Table

				pkt := &rtp.Packet{
					Payload: make([]byte, 0, len(d.pes)),
				}
				for _, pid := range d.pids {
					pkt.Payload = append(pkt.Payload, d.pes[pid].StreamType)
				}
				return pkt, nil
			}
			continue
		}

		d.readPES(pid, start)
	}
}

// Flush - return unfinished payloads, call it on the end of stream
func (d *Demuxer) Flush() (pkts []*rtp.Packet) {
	pkts = d.queue
	d.queue = nil

	for _, pid := range d.pids {
		if pes := d.pes[pid]; len(pes.Payload) != 0 {
			pkts = append(pkts, pes.GetPacket())
		}
	}
	return
}

func (d *Demuxer) readPacketHeader() (pid uint16, start, ok bool, err error) {
	d.rd = bits.NewReader(d.buf[:])

	if d.rd.ReadByte() != SyncByte {
		return 0, false, false, ErrSyncByte
	}

	tei := d.rd.ReadBit()        // Transport error indicator (TEI)
	pusi := d.rd.ReadBit()       // Payload unit start indicator (PUSI)
	_ = d.rd.ReadBit()           // Transport priority
	pid = d.rd.ReadBits16(13)    // PID
	_ = d.rd.ReadBits8(2)        // Transport scrambling control (TSC)
	af := d.rd.ReadBit()         // Adaptation field
	payload := d.rd.ReadBit()    // Payload
	counter := d.rd.ReadBits8(4) // Continuity counter

	if af != 0 {
		size := d.rd.ReadByte() // Adaptation field length
		if size > PacketSize-5 {
			return 0, false, false, ErrAdaptationSize
		}
		d.rd.SkipBits(int(size) * 8)
	}

	if payload == 0 {
		return pid, false, false, nil
	}

	if pes := d.pes[pid]; pes != nil {
		if tei != 0 {
			// damaged packet is the same as lost one
			pes.Continuity(counter + 1)
			return pid, false, false, nil
		}
		if !pes.Continuity(counter) {
			return pid, false, false, nil
		}
	}

	return pid, pusi != 0, tei == 0, nil
}

// readPSIHeader - returns bit position of the section end
func (d *Demuxer) readPSIHeader() int {
	// https://en.wikipedia.org/wiki/Program-specific_information#Table_Sections
	pointer := d.rd.ReadByte() // Pointer field
	d.rd.SkipBits(int(pointer) * 8)

	_ = d.rd.ReadByte()         // Table ID
	_ = d.rd.ReadBits8(4)       // Section syntax, private, reserved bits
	size := d.rd.ReadBits16(12) // Section length
	end := d.rd.Pos() + int(size)*8

	_ = d.rd.ReadUint16() // Table ID extension
	_ = d.rd.ReadByte()   // Reserved, version, current/next indicator
	_ = d.rd.ReadByte()   // Section number
	_ = d.rd.ReadByte()   // Last section number

	return end
}

// ReadPAT (Program Association Table)
func (d *Demuxer) readPAT() {
	// https://en.wikipedia.org/wiki/Program-specific_information#PAT_(Program_Association_Table)
	end := d.readPSIHeader()

	const CRCSize = 4 * 8
	for end-d.rd.Pos() > CRCSize && !d.rd.EOF {
		num := d.rd.ReadUint16()   // Program num
		_ = d.rd.ReadBits8(3)      // Reserved bits
		pid := d.rd.ReadBits16(13) // Program map PID
		if num != 0 && d.pmtID == 0 {
			d.pmtID = pid // first program only
		}
	}
}

// ReadPMT (Program map specific data)
func (d *Demuxer) readPMT() {
	// https://en.wikipedia.org/wiki/Program-specific_information#PMT_(Program_map_specific_data)
	end := d.readPSIHeader()

	_ = d.rd.ReadBits16(16)     // Reserved bits + PCR PID
	_ = d.rd.ReadBits8(4)       // Reserved bits
	size := d.rd.ReadBits16(12) // Program info length
	d.rd.SkipBits(int(size) * 8)

	d.pes = map[uint16]*PES{}

	const CRCSize = 4 * 8
	for end-d.rd.Pos() > CRCSize && !d.rd.EOF {
		streamType := d.rd.ReadByte() // Stream type
		_ = d.rd.ReadBits8(3)         // Reserved bits
		pid := d.rd.ReadBits16(13)    // Elementary PID
		_ = d.rd.ReadBits8(4)         // Reserved bits
		size = d.rd.ReadBits16(12)    // ES Info length

		left := d.rd.Left()
		if int(size) > len(left) {
			break
		}
		info := left[:size]
		d.rd.SkipBits(int(size) * 8)

		if streamType == StreamTypePrivate {
			streamType = privateStreamType(info)
		}

		if Codec(streamType) == "" {
			continue
		}

		d.pes[pid] = &PES{PID: pid, StreamType: streamType}
		d.pids = append(d.pids, pid)
	}
}

func (d *Demuxer) readPES(pid uint16, start bool) {
	pes := d.pes[pid]
	if pes == nil {
		return
	}

	// if new payload begins
	if start {
		if len(pes.Payload) != 0 {
			d.queue = append(d.queue, pes.GetPacket()) // finish previous packet
		}

		// https://en.wikipedia.org/wiki/Packetized_elementary_stream
		// Packet start code prefix
		if !bytes.HasPrefix(d.rd.Left(), []byte{0, 0, 1}) {
			return
		}
		d.rd.SkipBits(3 * 8)

		pes.StreamID = d.rd.ReadByte()       // Stream id
		packetSize := int(d.rd.ReadUint16()) // PES Packet length

		_ = d.rd.ReadBits8(2) // Marker bits
		_ = d.rd.ReadBits8(6) // Scrambling control, priority, alignment, copyright, original

		ptsi := d.rd.ReadBit() // PTS indicator
		dtsi := d.rd.ReadBit() // DTS indicator
		_ = d.rd.ReadBits8(6)  // ESCR, ES rate, DSM trick mode, copy info, CRC, extension flags

		headerSize := int(d.rd.ReadByte()) // PES header length

		if packetSize != 0 {
			if packetSize -= 3 + headerSize; packetSize < 0 {
				return
			}
		}

		if pes.hasPTS = ptsi != 0; pes.hasPTS {
			pes.PTS = d.readTime()
			headerSize -= 5
		}

		if dtsi != 0 {
			_ = d.readTime() // audio has DTS == PTS
			headerSize -= 5
		}

		if headerSize < 0 || d.rd.EOF {
			return
		}
		d.rd.SkipBits(headerSize * 8)

		pes.SetBuffer(packetSize, d.rd.Left())
	} else if pes.Payload != nil {
		pes.AppendBuffer(d.rd.Left())
	} else {
		return // wait for payload start
	}

	if pes.Size != 0 && len(pes.Payload) >= pes.Size {
		pes.Payload = pes.Payload[:pes.Size]
		d.queue = append(d.queue, pes.GetPacket()) // finish current packet
	}
}

func (d *Demuxer) readTime() uint32 {
	// https://en.wikipedia.org/wiki/Packetized_elementary_stream
	// xxxxAAAx BBBBBBBB BBBBBBBx CCCCCCCC CCCCCCCx
	_ = d.rd.ReadBits8(4) // 0010b or 0011b or 0001b
	ts := d.rd.ReadBits(3) << 30
	_ = d.rd.ReadBit() // 1b
	ts |= d.rd.ReadBits(15) << 15
	_ = d.rd.ReadBit() // 1b
	ts |= d.rd.ReadBits(15)
	_ = d.rd.ReadBit() // 1b
	return ts
}
