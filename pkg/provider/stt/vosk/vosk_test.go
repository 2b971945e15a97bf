//go:build vosk

package vosk_test

import (
	"context"
	"os"
	"testing"

	"github.com/MrWong99/voicetrigger/pkg/provider/stt/vosk"
)

// testModelPath reads VOSK_MODEL_PATH; the test is skipped when it is unset.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("VOSK_MODEL_PATH")
	if p == "" {
		t.Skip("VOSK_MODEL_PATH not set; skipping vosk test")
	}
	return p
}

func TestNew_EmptyPath(t *testing.T) {
	if _, err := vosk.New(""); err == nil {
		t.Fatal("expected error for empty model path")
	}
}

func TestRecognize_SilenceYieldsEmptyText(t *testing.T) {
	r, err := vosk.New(testModelPath(t), vosk.WithLogLevel(-1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	tr, err := r.Recognize(context.Background(), make([]byte, 32000), 16000)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if tr.Text != "" {
		t.Errorf("Text = %q, want empty for silence", tr.Text)
	}
}
