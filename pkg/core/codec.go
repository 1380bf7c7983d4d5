package core

import (
	"fmt"
	"strconv"
)

const (
	CodecAC3  = "AC3"  // Dolby Digital, aka A/52
	CodecEAC3 = "EAC3" // Dolby Digital Plus
	CodecDTS  = "DTS"
)

const (
	ProfileDTS        = "DTS"
	ProfileDTSHD      = "DTS-HD"
	ProfileDTSExpress = "DTS Express"
)

// Codec - output format of a packetizer, updated on every frame
type Codec struct {
	Name          string // AC3, EAC3, DTS
	Profile       string // DTS, DTS-HD, DTS Express
	ClockRate     uint32 // sample rate
	Channels      uint16
	ChannelMask   ChannelMask
	Bitrate       uint32 // bits per second, 0 if unknown or variable
	FrameLength   int    // samples per frame
	BytesPerFrame int    // largest frame seen
}

func (c *Codec) String() string {
	s := c.Name
	if c.Profile != "" && c.Profile != c.Name {
		s += " (" + c.Profile + ")"
	}
	if c.ClockRate != 0 {
		s += "/" + strconv.Itoa(int(c.ClockRate))
	}
	if c.Channels > 0 {
		s += "/" + strconv.Itoa(int(c.Channels))
	}
	return s
}

func (c *Codec) Text() string {
	s := c.String()
	if layout := c.ChannelMask.Layout(); layout != "" {
		s += " " + layout
	}
	if c.Bitrate > 0 {
		s += fmt.Sprintf(" %d kb/s", c.Bitrate/1000)
	}
	return s
}

func (c *Codec) Clone() *Codec {
	clone := *c
	return &clone
}
