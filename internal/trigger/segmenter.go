package trigger

import (
	"log/slog"

	"github.com/MrWong99/voicetrigger/pkg/audio"
	"github.com/MrWong99/voicetrigger/pkg/provider/vad"
)

// ScanResult summarises what [Segmenter.Scan] saw in one chunk.
type ScanResult struct {
	// Frames is the number of frames classified.
	Frames int

	// SpeechFrames is how many of them were speech.
	SpeechFrames int

	// Complete is set when the trailing-silence boundary was reached. Frames
	// after the boundary in the same chunk were not classified.
	Complete bool

	// Started is set when the chunk opened a new segment.
	Started bool

	// Dropped is the number of trailing bytes that did not fill a frame.
	Dropped int

	// Misaligned is set when the chunk had an odd byte length.
	Misaligned bool
}

// Segmenter turns a chunk stream into speech segments. It is owned by one
// streaming session and is not safe for concurrent use.
type Segmenter struct {
	vad        vad.SessionHandle
	frameBytes int
	maxSilence int
	log        *slog.Logger

	active     bool
	silence    int
	lastSpeech bool
}

// NewSegmenter returns a segmenter classifying frameBytes-sized frames with
// det and closing a segment after maxSilence consecutive silent frames.
func NewSegmenter(det vad.SessionHandle, frameBytes, maxSilence int, log *slog.Logger) *Segmenter {
	if log == nil {
		log = slog.Default()
	}
	return &Segmenter{vad: det, frameBytes: frameBytes, maxSilence: maxSilence, log: log}
}

// Scan classifies the frames of one chunk in order and updates the segment
// state. Scanning stops at the frame that completes a segment.
func (s *Segmenter) Scan(data []byte) ScanResult {
	var res ScanResult
	if len(data) == 0 {
		return res
	}
	pcm, cut := audio.Aligned(data)
	if cut {
		res.Misaligned = true
		s.log.Warn("chunk has odd byte length, processing aligned prefix", "bytes", len(data))
	}
	frames, rem := audio.Frames(pcm, s.frameBytes)
	res.Dropped = rem
	if rem > 0 {
		s.log.Debug("dropping trailing partial frame", "bytes", rem)
	}

	for _, frame := range frames {
		res.Frames++
		speech := s.classify(frame)
		s.lastSpeech = speech
		if speech {
			res.SpeechFrames++
			if !s.active {
				s.active = true
				res.Started = true
				s.log.Debug("speech segment started")
			}
			s.silence = 0
			continue
		}
		if !s.active {
			continue
		}
		s.silence++
		if s.silence >= s.maxSilence {
			res.Complete = true
			s.log.Debug("speech segment complete", "silent_frames", s.silence)
			break
		}
	}
	return res
}

// classify treats detector errors as non-speech.
func (s *Segmenter) classify(frame []byte) bool {
	r, err := s.vad.ProcessFrame(frame)
	if err != nil {
		s.log.Debug("vad error, treating frame as silence", "error", err)
		return false
	}
	return r.Speech
}

// Active reports whether a segment is open.
func (s *Segmenter) Active() bool { return s.active }

// Silence returns the current run of silent frames inside the open segment.
func (s *Segmenter) Silence() int { return s.silence }

// LastSpeech reports whether the most recently classified frame was speech.
func (s *Segmenter) LastSpeech() bool { return s.lastSpeech }

// Reset closes the segment without touching the detector's adaptive state.
func (s *Segmenter) Reset() {
	s.active = false
	s.silence = 0
	s.lastSpeech = false
}
