//go:build !vosk

package vosk_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/voicetrigger/pkg/provider/stt"
	"github.com/MrWong99/voicetrigger/pkg/provider/stt/vosk"
)

func TestStub_Unavailable(t *testing.T) {
	if vosk.Available() {
		t.Fatal("Available() = true without the vosk tag")
	}
	if _, err := vosk.New("/models/vosk"); !errors.Is(err, stt.ErrNativeUnavailable) {
		t.Fatalf("New() err = %v, want ErrNativeUnavailable", err)
	}
}
