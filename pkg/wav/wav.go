package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/audiopass/audiopass/pkg/a52"
	"github.com/audiopass/audiopass/pkg/core"
	"github.com/audiopass/audiopass/pkg/dts"
)

const FourCC = "RIFF"

// https://audiocoding.cc/articles/2008-05-22-wav-file-structure/wav_formats.txt
const (
	FormatPCM        = 0x0001
	FormatAC3        = 0x2000
	FormatDTS        = 0x2001
	FormatExtensible = 0xFFFE
)

// SizeUnknown - chunk size of a stream with unknown length
const SizeUnknown = 0xFFFFFFFF

var ErrNotWAV = errors.New("wav: not a RIFF/WAVE file")

// Format - content of the "fmt " chunk
type Format struct {
	Tag           uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16

	DataSize uint32 // from "data" chunk header
}

// Codec - compressed codec from the format tag, empty for PCM
func (f *Format) Codec() string {
	switch f.Tag {
	case FormatAC3:
		return core.CodecAC3
	case FormatDTS:
		return core.CodecDTS
	}
	return ""
}

// Header - WAV header for AC-3 or DTS passthrough with unknown data size
func Header(codec *core.Codec) []byte {
	var tag uint16

	switch codec.Name {
	case core.CodecAC3, core.CodecEAC3:
		tag = FormatAC3
	case core.CodecDTS:
		tag = FormatDTS
	default:
		return nil
	}

	channels := codec.Channels
	if channels == 0 {
		channels = 2
	}

	b := make([]byte, 0, 46)
	b = append(b, "RIFF\xFF\xFF\xFF\xFFWAVEfmt "...)

	b = binary.LittleEndian.AppendUint32(b, 0x12)
	b = binary.LittleEndian.AppendUint16(b, tag)
	b = binary.LittleEndian.AppendUint16(b, channels)
	b = binary.LittleEndian.AppendUint32(b, codec.ClockRate)
	b = binary.LittleEndian.AppendUint32(b, codec.Bitrate/8)
	b = binary.LittleEndian.AppendUint16(b, uint16(codec.BytesPerFrame)) // BlockAlign
	b = append(b, 0, 0)                                                  // BitsPerSample, not used for compressed data
	b = append(b, 0, 0)                                                  // ExtraParamSize

	b = append(b, "data\xFF\xFF\xFF\xFF"...)

	return b
}

// ReadHeader - read chunks up to the start of "data" content
func ReadHeader(r io.Reader) (*Format, error) {
	// Master RIFF chunk
	b := make([]byte, 12)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	if string(b[:4]) != FourCC || string(b[8:]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var format *Format

	for {
		chunkID, size, err := readChunkHeader(r)
		if err != nil {
			return nil, err
		}

		if chunkID == "data" {
			if format == nil {
				return nil, fmt.Errorf("%w: no fmt chunk", ErrNotWAV)
			}
			format.DataSize = size
			return format, nil
		}

		if size > 1<<20 {
			return nil, fmt.Errorf("wav: chunk %q too big: %d", chunkID, size)
		}

		// chunks are word aligned
		data := make([]byte, size+size&1)
		if _, err = io.ReadFull(r, data); err != nil {
			return nil, err
		}

		if chunkID == "fmt " {
			if format, err = parseFormat(data); err != nil {
				return nil, err
			}
		}
	}
}

func readChunkHeader(r io.Reader) (chunkID string, size uint32, err error) {
	b := make([]byte, 8)
	if _, err = io.ReadFull(r, b); err != nil {
		return
	}
	return string(b[:4]), binary.LittleEndian.Uint32(b[4:]), nil
}

func parseFormat(b []byte) (*Format, error) {
	if len(b) < 16 {
		return nil, fmt.Errorf("wav: wrong fmt size: %d", len(b))
	}

	f := &Format{
		Tag:           binary.LittleEndian.Uint16(b),
		Channels:      binary.LittleEndian.Uint16(b[2:]),
		SampleRate:    binary.LittleEndian.Uint32(b[4:]),
		ByteRate:      binary.LittleEndian.Uint32(b[8:]),
		BlockAlign:    binary.LittleEndian.Uint16(b[12:]),
		BitsPerSample: binary.LittleEndian.Uint16(b[14:]),
	}

	// WAVEFORMATEXTENSIBLE: real tag is the first two bytes of SubFormat GUID
	if f.Tag == FormatExtensible && len(b) >= 26 {
		f.Tag = binary.LittleEndian.Uint16(b[24:])
	}

	return f, nil
}

// Sniff - find compressed audio inside PCM samples (DTS CD, AC-3 over S/PDIF dumps).
// swap means 16-bit words are little endian and must be swapped before parsing.
func Sniff(b []byte) (codec string, swap bool) {
	for i := 0; i+a52.HeaderSize <= len(b) && i+dts.HeaderSize <= len(b); i += 2 {
		if dts.IsCoreSync(b[i:]) {
			if _, err := dts.ParseHeader(b[i:]); err == nil {
				return core.CodecDTS, false
			}
		}

		if a52.IsSync(b[i:]) {
			if h, err := a52.ParseHeader(b[i:]); err == nil {
				return h.Codec(), false
			}
		}

		if b[i] == 0x77 && b[i+1] == 0x0B {
			var buf [a52.HeaderSize]byte
			if h, err := a52.ParseHeader(dts.SwapWords(buf[:], b[i:i+a52.HeaderSize])); err == nil {
				return h.Codec(), true
			}
		}
	}

	return "", false
}
