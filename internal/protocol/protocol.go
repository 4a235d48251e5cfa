// Package protocol implements component I of spec.md: the tagged,
// length-prefixed message codec between collector and frontend, plus (as a
// supplemented feature — see SPEC_FULL.md) a request/response correlator
// keyed by token with a deadline sweep.
//
// Wire shape (spec.md §6): each message is
// { u32 tag, u32 token, u32 length, payload[length] }, little-endian, with
// a byte-order probe at the start of the stream: the sender writes the u32
// value 0xFF; a reader that observes the low byte isn't 0xFF knows the
// peer's endianness differs from its own and must byte-swap every scalar
// field for the rest of the session. Requests/responses carry their u32
// correlation token (§6) in the header's token field; other messages carry
// token 0.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hollowcore/profiler/internal/errkind"
)

// Tag is one of the eleven canonical message tags (spec.md §6), stable
// across versions.
type Tag uint32

const (
	TagInit                   Tag = 1
	TagModulesLoaded          Tag = 2
	TagModulesUnloaded        Tag = 3
	TagRequestModuleMetadata  Tag = 4
	TagModuleMetadata         Tag = 5
	TagRequestStatisticsUpdate Tag = 6
	TagStatisticsUpdate       Tag = 7
	TagThreadsInfo            Tag = 8
	TagApplyPatches           Tag = 9
	TagRevertPatches          Tag = 10
	TagPatchResult            Tag = 11
)

// probeMagic is the scalar written to probe endianness, per spec.md §6:
// "detected by writing a u32 0xFF and examining byte 0".
const probeMagic uint32 = 0xFF

// WriteProbe writes the byte-order probe a session opens with.
func WriteProbe(w io.Writer) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], probeMagic)
	_, err := w.Write(buf[:])
	if err != nil {
		return errkind.NewEnvironmental(fmt.Errorf("protocol: write byte-order probe: %w", err))
	}
	return nil
}

// ReadProbe reads the byte-order probe and returns the binary.ByteOrder a
// reader should use for every subsequent scalar field on this connection.
func ReadProbe(r io.Reader) (binary.ByteOrder, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, errkind.NewEnvironmental(fmt.Errorf("protocol: read byte-order probe: %w", err))
	}
	if buf[0] == 0xFF {
		return binary.LittleEndian, nil
	}
	return binary.BigEndian, nil
}

// Frame is one decoded message: tag, correlation token (0 for messages
// that aren't requests/responses), and a self-describing TLV payload of
// primitive fields (encoded/decoded with the Writer/Reader in fields.go),
// in the order declared for that tag in spec.md §3/§6.
type Frame struct {
	Tag     Tag
	Token   uint32
	Payload []byte
}

// WriteFrame writes { u32 tag, u32 token, u32 length, payload } using
// order (as established by the session's byte-order probe).
func WriteFrame(w io.Writer, order binary.ByteOrder, f Frame) error {
	header := make([]byte, 12)
	order.PutUint32(header[0:4], uint32(f.Tag))
	order.PutUint32(header[4:8], f.Token)
	order.PutUint32(header[8:12], uint32(len(f.Payload)))
	if _, err := w.Write(header); err != nil {
		return errkind.NewEnvironmental(fmt.Errorf("protocol: write frame header: %w", err))
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return errkind.NewEnvironmental(fmt.Errorf("protocol: write frame payload: %w", err))
		}
	}
	return nil
}

// maxFrameLength guards against a corrupt or malicious length field
// forcing an unbounded allocation; spec.md §7 classifies an oversized or
// truncated frame as a data-shape error terminating the session.
const maxFrameLength = 64 << 20

// ReadFrame reads one frame using order. A truncated or oversized frame is
// a DataShape error (spec.md §7: "Corrupt incoming message: the session is
// terminated; in-memory state is preserved").
func ReadFrame(r io.Reader, order binary.ByteOrder) (Frame, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, errkind.NewDataShape(fmt.Errorf("protocol: read frame header: %w", err))
	}
	tag := Tag(order.Uint32(header[0:4]))
	token := order.Uint32(header[4:8])
	length := order.Uint32(header[8:12])
	if length > maxFrameLength {
		return Frame{}, errkind.NewDataShape(fmt.Errorf("protocol: frame length %d exceeds limit", length))
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, errkind.NewDataShape(fmt.Errorf("protocol: read frame payload: %w", err))
		}
	}
	return Frame{Tag: tag, Token: token, Payload: payload}, nil
}
