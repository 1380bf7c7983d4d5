package core

import (
	"math/bits"
	"strconv"
	"strings"
)

// ChannelMask - physical speaker positions of an audio stream.
// Bits above ChanPhysical are markers and are not counted as channels.
type ChannelMask uint32

const (
	ChanCenter ChannelMask = 1 << iota
	ChanLeft
	ChanRight
	ChanRearCenter
	ChanRearLeft
	ChanRearRight
	ChanMiddleLeft
	ChanMiddleRight
	ChanLFE
)

const (
	ChanDualMono      ChannelMask = 1 << 16 // two independent mono programs
	ChanDolbySurround ChannelMask = 1 << 17 // stereo with matrixed surround

	ChanPhysical ChannelMask = 0xFFFF
)

const (
	Chans1_0 = ChanCenter
	Chans2_0 = ChanLeft | ChanRight
	Chans2_1 = Chans2_0 | ChanRearCenter
	Chans3_0 = Chans2_0 | ChanCenter
	Chans3_1 = Chans3_0 | ChanRearCenter
	Chans4_0 = Chans2_0 | ChanRearLeft | ChanRearRight
	Chans5_0 = Chans4_0 | ChanCenter
	Chans6_0 = Chans5_0 | ChanRearCenter
	Chans7_0 = Chans5_0 | ChanMiddleLeft | ChanMiddleRight
)

var chanNames = [...]string{"C", "L", "R", "Cs", "Ls", "Rs", "Lm", "Rm", "LFE"}

// Count - number of physical channels
func (m ChannelMask) Count() int {
	return bits.OnesCount32(uint32(m & ChanPhysical))
}

func (m ChannelMask) Has(c ChannelMask) bool {
	return m&c == c
}

// Layout - short form like 2.0 or 5.1
func (m ChannelMask) Layout() string {
	if m&ChanPhysical == 0 {
		return ""
	}
	lfe := 0
	if m.Has(ChanLFE) {
		lfe = 1
	}
	return strconv.Itoa(m.Count()-lfe) + "." + strconv.Itoa(lfe)
}

func (m ChannelMask) String() string {
	var ss []string
	for i, name := range chanNames {
		if m&(1<<i) != 0 {
			ss = append(ss, name)
		}
	}
	if m.Has(ChanDualMono) {
		ss = append(ss, "dual-mono")
	}
	if m.Has(ChanDolbySurround) {
		ss = append(ss, "dolby-surround")
	}
	return strings.Join(ss, " ")
}
