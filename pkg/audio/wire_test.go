package audio_test

import (
	"testing"
	"time"

	"github.com/MrWong99/voicetrigger/pkg/audio"
)

func TestWireRoundTrip(t *testing.T) {
	ts := time.Unix(1700000000, 123456789)
	in := audio.Chunk{Data: []byte{1, 2, 3, 4}, Timestamp: ts, Sequence: 42}

	msg := audio.EncodeWire(in)
	if len(msg) != audio.WireHeaderSize+4 {
		t.Fatalf("message length = %d, want %d", len(msg), audio.WireHeaderSize+4)
	}
	if msg[8] != 42 {
		t.Errorf("sequence byte = %d, want 42 (little-endian)", msg[8])
	}

	out, err := audio.DecodeWire(msg, audio.CodecPCM16)
	if err != nil {
		t.Fatalf("DecodeWire: %v", err)
	}
	if !out.Timestamp.Equal(ts) || out.Sequence != 42 || string(out.Data) != string(in.Data) || out.Codec != audio.CodecPCM16 {
		t.Errorf("decoded %+v, want %+v", out, in)
	}
}

func TestWire_ZeroTimestamp(t *testing.T) {
	out, err := audio.DecodeWire(audio.EncodeWire(audio.Chunk{Sequence: 1}), "")
	if err != nil {
		t.Fatalf("DecodeWire: %v", err)
	}
	if !out.Timestamp.IsZero() {
		t.Errorf("Timestamp = %v, want zero", out.Timestamp)
	}
	if len(out.Data) != 0 {
		t.Errorf("Data has %d bytes, want 0", len(out.Data))
	}
}

func TestDecodeWire_ShortMessage(t *testing.T) {
	if _, err := audio.DecodeWire(make([]byte, audio.WireHeaderSize-1), ""); err == nil {
		t.Fatal("expected error for a truncated header")
	}
}
