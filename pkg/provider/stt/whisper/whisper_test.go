package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/voicetrigger/pkg/audio"
	"github.com/MrWong99/voicetrigger/pkg/provider/stt"
	"github.com/MrWong99/voicetrigger/pkg/provider/stt/whisper"
)

// newMockServer creates a test server that answers POST /inference with a
// JSON body containing responseText and counts matched requests.
func newMockServer(t *testing.T, responseText string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestRecognize_ReturnsServerText(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newMockServer(t, " Hello Robot ", &calls)

	r, err := whisper.New(srv.URL, whisper.WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr, err := r.Recognize(context.Background(), make([]byte, 32000), 16000)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if tr.Text != "Hello Robot" {
		t.Errorf("Text = %q, want %q", tr.Text, "Hello Robot")
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
}

func TestRecognize_SendsWAVAndFields(t *testing.T) {
	t.Parallel()
	pcm := audio.PCMBytes([]int16{1, 2, 3, 4})
	var (
		gotWAV   []byte
		gotLang  string
		gotModel string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotLang = r.FormValue("language")
		gotModel = r.FormValue("model")
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotWAV, _ = io.ReadAll(f)
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	r, _ := whisper.New(srv.URL, whisper.WithLanguage("de"), whisper.WithModel("small"))
	if _, err := r.Recognize(context.Background(), pcm, 16000); err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if gotLang != "de" || gotModel != "small" {
		t.Errorf("fields = (%q, %q), want (de, small)", gotLang, gotModel)
	}
	decoded, info, err := audio.DecodeWAV(gotWAV)
	if err != nil {
		t.Fatalf("uploaded file is not a WAV: %v", err)
	}
	if info.SampleRate != 16000 || string(decoded) != string(pcm) {
		t.Errorf("uploaded WAV = %d Hz / %d bytes, want 16000 Hz / %d bytes", info.SampleRate, len(decoded), len(pcm))
	}
}

func TestRecognize_EmptyBufferSkipsServer(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newMockServer(t, "never", &calls)
	r, _ := whisper.New(srv.URL)

	tr, err := r.Recognize(context.Background(), nil, 16000)
	if err != nil || tr.Text != "" {
		t.Fatalf("Recognize(nil) = %+v, %v; want empty, nil", tr, err)
	}
	if calls.Load() != 0 {
		t.Errorf("server was called %d times, want 0", calls.Load())
	}
}

func TestRecognize_HTTPErrorIsReturned(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, _ := whisper.New(srv.URL)
	if _, err := r.Recognize(context.Background(), make([]byte, 960), 16000); err == nil {
		t.Fatal("expected error for HTTP 500, got nil")
	}
}

func TestRecognize_MalformedJSONYieldsEmptyText(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	r, _ := whisper.New(srv.URL)
	tr, err := r.Recognize(context.Background(), make([]byte, 960), 16000)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if tr.Text != "" {
		t.Errorf("Text = %q, want empty", tr.Text)
	}
}

func TestRecognize_CancelledContext(t *testing.T) {
	t.Parallel()
	srv := newMockServer(t, "x", nil)
	r, _ := whisper.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Recognize(ctx, make([]byte, 960), 16000); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestNewNative_WithoutTag(t *testing.T) {
	if whisper.NativeAvailable() {
		t.Skip("native whisper compiled in")
	}
	if _, err := whisper.NewNative("/tmp/model.bin"); !errors.Is(err, stt.ErrNativeUnavailable) {
		t.Fatalf("err = %v, want ErrNativeUnavailable", err)
	}
}
