package dts

// SyncWord - kind of DTS sync word, also tells the bitstream encoding
type SyncWord byte

const (
	SyncNone SyncWord = iota
	SyncCoreBE
	SyncCoreLE
	SyncCore14BE
	SyncCore14LE
	SyncSubstream
	SyncSubstreamLBR
)

const SyncSize = 6

func (s SyncWord) String() string {
	switch s {
	case SyncCoreBE:
		return "core 16BE"
	case SyncCoreLE:
		return "core 16LE"
	case SyncCore14BE:
		return "core 14BE"
	case SyncCore14LE:
		return "core 14LE"
	case SyncSubstream:
		return "substream"
	case SyncSubstreamLBR:
		return "substream LBR"
	}
	return "none"
}

func (s SyncWord) IsCore() bool {
	return s >= SyncCoreBE && s <= SyncCore14LE
}

func (s SyncWord) Is14Bit() bool {
	return s == SyncCore14BE || s == SyncCore14LE
}

// DetectSync - recognize sync word at the start of b.
// Up to SyncSize bytes are checked, 14-bit forms need all of them.
func DetectSync(b []byte) SyncWord {
	if len(b) < 4 {
		return SyncNone
	}

	switch {
	case b[0] == 0x7F && b[1] == 0xFE && b[2] == 0x80 && b[3] == 0x01:
		return SyncCoreBE
	case b[0] == 0xFE && b[1] == 0x7F && b[2] == 0x01 && b[3] == 0x80:
		return SyncCoreLE
	case b[0] == 0x64 && b[1] == 0x58 && b[2] == 0x20 && b[3] == 0x25:
		return SyncSubstream
	case b[0] == 0x0A && b[1] == 0x80 && b[2] == 0x19 && b[3] == 0x21:
		return SyncSubstreamLBR
	}

	if len(b) < SyncSize {
		return SyncNone
	}

	switch {
	case b[0] == 0x1F && b[1] == 0xFF && b[2] == 0xE8 && b[3] == 0x00 && b[4] == 0x07 && b[5]&0xF0 == 0xF0:
		return SyncCore14BE
	case b[0] == 0xFF && b[1] == 0x1F && b[2] == 0x00 && b[3] == 0xE8 && b[4]&0xF0 == 0xF0 && b[5] == 0x07:
		return SyncCore14LE
	}

	return SyncNone
}

// IsSync - frame start of a DTS elementary stream.
// LBR sync word lives only inside a substream and doesn't start a frame.
func IsSync(b []byte) bool {
	s := DetectSync(b)
	return s != SyncNone && s != SyncSubstreamLBR
}

// IsCoreSync - frame start of a stream without extension substreams
func IsCoreSync(b []byte) bool {
	return DetectSync(b).IsCore()
}
