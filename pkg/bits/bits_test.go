package bits

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReader(t *testing.T) {
	rd := NewReader([]byte{0b1010_0000, 0xFF, 0x0F})

	require.Equal(t, byte(1), rd.ReadBit())
	require.Equal(t, uint8(0b010), rd.ReadBits8(3))
	require.Equal(t, uint16(0b0000_1111_1111), rd.ReadBits16(12))
	require.False(t, rd.EOF)
	require.Equal(t, 16, rd.Pos())

	require.Equal(t, byte(0x0F), rd.ReadByte())
	require.False(t, rd.EOF)

	require.Equal(t, byte(0), rd.ReadBit())
	require.True(t, rd.EOF)
}

func TestSkipBits(t *testing.T) {
	rd := NewReader([]byte{0x00, 0x00, 0x00, 0b0000_0100, 0x80})
	rd.SkipBits(5)
	rd.SkipBits(24)
	require.Equal(t, 29, rd.Pos())
	require.True(t, rd.ReadFlag())
	require.Equal(t, uint32(0b001), rd.ReadBits(3))
	require.False(t, rd.EOF)

	rd.SkipBits(100)
	require.True(t, rd.EOF)
}

func TestWriter(t *testing.T) {
	wr := NewWriter(nil)
	wr.WriteBits(0x0B77, 16)
	require.Equal(t, []byte{0x0B, 0x77}, wr.Bytes())

	wr.WriteBit(1)
	wr.WriteBits8(0b01, 2)
	wr.WriteAllBits(1, 5)
	wr.WriteBits16(0x1FF, 9)
	require.Equal(t, 4, wr.Len())
	require.Equal(t, []byte{0x0B, 0x77, 0b1011_1111, 0xFF, 0x80}, wr.Bytes())

	rd := NewReader(wr.Bytes())
	require.Equal(t, uint16(0x0B77), rd.ReadUint16())
	require.Equal(t, byte(1), rd.ReadBit())
	require.Equal(t, uint8(1), rd.ReadBits8(2))
	rd.SkipBits(5)
	require.Equal(t, uint16(0x1FF), rd.ReadBits16(9))
}

func TestWriteBytesUnaligned(t *testing.T) {
	wr := NewWriter(make([]byte, 16))
	wr.WriteBits8(0b1111, 4)
	wr.WriteBytes(0x00, 0xFF)
	require.Equal(t, []byte{0xF0, 0x0F, 0xF0}, wr.Bytes())
}
