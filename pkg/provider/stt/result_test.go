package stt_test

import (
	"testing"
	"time"

	"github.com/MrWong99/voicetrigger/pkg/provider/stt"
)

func TestParseResult(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `{"text": "hello robot"}`, "hello robot"},
		{"surrounding fields", `{"result": [{"conf": 1.0, "word": "hello"}], "text" : "hello"}`, "hello"},
		{"alternatives", `{"alternatives": [{"confidence": 212.5, "text": " robot arm"}]}`, "robot arm"},
		{"empty text", `{"text": ""}`, ""},
		{"missing field", `{"partial": "hel"}`, ""},
		{"invalid json", `{"text": "hel`, ""},
		{"not an object", `"text"`, ""},
		{"non-string text", `{"text": 42}`, ""},
		{"empty input", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stt.ParseResult([]byte(tt.raw)); got != tt.want {
				t.Errorf("ParseResult(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseConfidence(t *testing.T) {
	t.Parallel()
	raw := []byte(`{"result": [{"conf": 0.5}, {"conf": 1.0}], "text": "a b"}`)
	if got := stt.ParseConfidence(raw); got != 0.75 {
		t.Errorf("ParseConfidence = %f, want 0.75", got)
	}
	if got := stt.ParseConfidence([]byte(`{"text": "x"}`)); got != 0 {
		t.Errorf("ParseConfidence without confidences = %f, want 0", got)
	}
}

func TestAudioDuration(t *testing.T) {
	t.Parallel()
	if got := stt.AudioDuration(make([]byte, 32000), 16000); got != time.Second {
		t.Errorf("AudioDuration = %v, want 1s", got)
	}
	if got := stt.AudioDuration(make([]byte, 100), 0); got != 0 {
		t.Errorf("AudioDuration with zero rate = %v, want 0", got)
	}
}
