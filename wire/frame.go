package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize bounds a single length-prefixed frame on a stream.
const MaxFrameSize = 1 << 20

// Frame is the hop-by-hop header network transports put around an encoded
// envelope. Dest == NoAddress marks a broadcast. Hops counts the links the
// frame may still cross, including the next one.
type Frame struct {
	Origin  Address
	Dest    Address
	Hops    uint32
	Payload []byte
}

// EncodeFrame serializes a transport frame.
func EncodeFrame(f Frame) []byte {
	b := make([]byte, 0, 16+len(f.Payload))
	b = appendUint(b, 1, uint64(f.Origin))
	b = appendUint(b, 2, uint64(f.Dest))
	b = appendUint(b, 3, uint64(f.Hops))
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	return protowire.AppendBytes(b, f.Payload)
}

// DecodeFrame parses a frame produced by EncodeFrame.
func DecodeFrame(b []byte) (Frame, error) {
	var origin, dest, hops uint64
	var payload []byte
	err := eachField(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeVarint(typ, b, &origin)
		case 2:
			return consumeVarint(typ, b, &dest)
		case 3:
			return consumeVarint(typ, b, &hops)
		case 4:
			return consumeBytes(typ, b, &payload)
		}
		return 0
	})
	if err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if origin > math.MaxUint32 || dest > math.MaxUint32 || hops > math.MaxUint32 {
		return Frame{}, fmt.Errorf("decode frame: %w: field out of range", ErrMalformed)
	}
	if len(payload) == 0 {
		return Frame{}, fmt.Errorf("decode frame: %w: empty payload", ErrMalformed)
	}
	return Frame{Origin: Address(origin), Dest: Address(dest), Hops: uint32(hops), Payload: cloneBytes(payload)}, nil
}

// WriteFrame writes a 4-byte big-endian length prefix followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("payload too large")
	}
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	_, err := w.Write(out)
	return err
}

// ReadFrame reads one frame written by WriteFrame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 || n > MaxFrameSize {
		return nil, fmt.Errorf("invalid frame size")
	}
	payload := make([]byte, int(n))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
