package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// WireHeaderSize is the length of the header that precedes the payload of
// every binary websocket message: an 8-byte little-endian Unix-nano
// timestamp followed by an 8-byte little-endian sequence number.
const WireHeaderSize = 16

// EncodeWire serialises c into one websocket message. The codec is not part
// of the message; both ends agree on it when the stream is opened.
func EncodeWire(c Chunk) []byte {
	msg := make([]byte, WireHeaderSize+len(c.Data))
	var ts int64
	if !c.Timestamp.IsZero() {
		ts = c.Timestamp.UnixNano()
	}
	binary.LittleEndian.PutUint64(msg[0:8], uint64(ts))
	binary.LittleEndian.PutUint64(msg[8:16], c.Sequence)
	copy(msg[WireHeaderSize:], c.Data)
	return msg
}

// DecodeWire parses one websocket message. The returned chunk's Data aliases
// msg.
func DecodeWire(msg []byte, codec string) (Chunk, error) {
	if len(msg) < WireHeaderSize {
		return Chunk{}, fmt.Errorf("audio: wire message is %d bytes, shorter than the %d-byte header", len(msg), WireHeaderSize)
	}
	c := Chunk{
		Data:     msg[WireHeaderSize:],
		Codec:    codec,
		Sequence: binary.LittleEndian.Uint64(msg[8:16]),
	}
	if ts := int64(binary.LittleEndian.Uint64(msg[0:8])); ts != 0 {
		c.Timestamp = time.Unix(0, ts)
	}
	return c, nil
}
