package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProbeRoundTripSameEndian(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteProbe(&buf))
	order, err := ReadProbe(&buf)
	require.NoError(t, err)
	require.Equal(t, binary.LittleEndian, order)
}

func TestProbeDetectsOppositeEndianHost(t *testing.T) {
	// Simulate a big-endian writer: byte 0 is not 0xFF.
	var buf bytes.Buffer
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], probeMagic)
	buf.Write(raw[:])

	order, err := ReadProbe(&buf)
	require.NoError(t, err)
	require.Equal(t, binary.BigEndian, order)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFieldWriter(binary.LittleEndian)
	fw.PutUint32(7)
	fw.PutString("libfoo.so")
	fw.PutInt64(-12345)

	want := Frame{Tag: TagModuleMetadata, Token: 42, Payload: fw.Bytes()}
	require.NoError(t, WriteFrame(&buf, binary.LittleEndian, want))

	got, err := ReadFrame(&buf, binary.LittleEndian)
	require.NoError(t, err)
	require.Equal(t, want, got)

	fr := NewFieldReader(binary.LittleEndian, got.Payload)
	moduleID, err := fr.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(7), moduleID)
	path, err := fr.String()
	require.NoError(t, err)
	require.Equal(t, "libfoo.so", path)
	offset, err := fr.Int64()
	require.NoError(t, err)
	require.Equal(t, int64(-12345), offset)
	require.True(t, fr.Done())
}

// TestEndianRoundTripAcrossSimulatedOppositeHost exercises property P7:
// serializing on one endianness and deserializing on the other, once the
// probe has established which order to use, yields the original values.
func TestEndianRoundTripAcrossSimulatedOppositeHost(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		fw := NewFieldWriter(order)
		fw.PutUint64(0xDEADBEEFCAFEBABE)
		fw.PutUint32(0xFFFFFFFF)
		fw.PutBytes([]byte{1, 2, 3, 4, 5})

		fr := NewFieldReader(order, fw.Bytes())
		u64, err := fr.Uint64()
		require.NoError(t, err)
		require.Equal(t, uint64(0xDEADBEEFCAFEBABE), u64)
		u32, err := fr.Uint32()
		require.NoError(t, err)
		require.Equal(t, uint32(0xFFFFFFFF), u32)
		b, err := fr.Bytes()
		require.NoError(t, err)
		require.Equal(t, []byte{1, 2, 3, 4, 5}, b)
		require.True(t, fr.Done())
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, 12)
	binary.LittleEndian.PutUint32(header[0:4], uint32(TagInit))
	binary.LittleEndian.PutUint32(header[4:8], 0)
	binary.LittleEndian.PutUint32(header[8:12], maxFrameLength+1)
	buf.Write(header)

	_, err := ReadFrame(&buf, binary.LittleEndian)
	require.Error(t, err)
}

func TestCorrelatorMatchesResponseToRequest(t *testing.T) {
	c := NewCorrelator()
	token, done := c.Register(time.Now().Add(time.Minute))

	ok := c.Complete(Frame{Tag: TagModuleMetadata, Token: token})
	require.True(t, ok)

	select {
	case f := <-done:
		require.Equal(t, token, f.Token)
	default:
		t.Fatal("expected the response to be delivered")
	}
}

func TestCorrelatorDropsUnmatchedResponse(t *testing.T) {
	c := NewCorrelator()
	ok := c.Complete(Frame{Tag: TagModuleMetadata, Token: 999})
	require.False(t, ok)
}

func TestCorrelatorSweepDropsExpired(t *testing.T) {
	c := NewCorrelator()
	token, done := c.Register(time.Now().Add(-time.Second)) // already expired

	dropped := c.Sweep(time.Now())
	require.Equal(t, []uint32{token}, dropped)

	_, stillOpen := <-done
	require.False(t, stillOpen, "done channel should be closed on sweep-drop")
	require.Equal(t, 0, c.Pending())
}
