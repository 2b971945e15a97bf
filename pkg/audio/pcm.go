package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// BytesPerSample is the width of one PCM16 sample.
const BytesPerSample = 2

// FrameBytes returns the byte length of a mono PCM16 frame of duration d at
// sampleRate. 30 ms at 16 kHz is 960 bytes.
func FrameBytes(sampleRate int, d time.Duration) int {
	samples := int(int64(sampleRate) * int64(d) / int64(time.Second))
	return samples * BytesPerSample
}

// Aligned returns the longest prefix of pcm holding whole PCM16 samples and
// reports whether a trailing odd byte was cut.
func Aligned(pcm []byte) ([]byte, bool) {
	if len(pcm)%BytesPerSample == 0 {
		return pcm, false
	}
	return pcm[:len(pcm)-1], true
}

// Frames returns consecutive frameBytes-sized views into pcm, in order, and
// the number of trailing bytes that did not fill a whole frame. The views
// share pcm's backing array.
func Frames(pcm []byte, frameBytes int) (frames [][]byte, remainder int) {
	if frameBytes <= 0 {
		return nil, len(pcm)
	}
	n := len(pcm) / frameBytes
	frames = make([][]byte, n)
	for i := range n {
		frames[i] = pcm[i*frameBytes : (i+1)*frameBytes : (i+1)*frameBytes]
	}
	return frames, len(pcm) - n*frameBytes
}

// Int16s decodes little-endian PCM16 bytes into samples. A trailing odd byte
// is ignored.
func Int16s(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Float32s decodes little-endian PCM16 bytes into samples normalised to
// [-1.0, 1.0), the input format of whisper.cpp.
func Float32s(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out
}

// PCMBytes encodes samples as little-endian PCM16 bytes.
func PCMBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// RMS returns the root-mean-square amplitude of PCM16 data in sample units.
// Returns 0 for buffers shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:])))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((l+r)/2)))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. If the rates match the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	src := Int16s(pcm)
	dstSamples := int(int64(len(src)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}
	out := make([]int16, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := src[idx]
		s1 := s0
		if idx+1 < len(src) {
			s1 = src[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return PCMBytes(out)
}

// ToMono converts interleaved PCM16 with the given channel count and rate to
// mono at dstRate. Only mono and stereo input are supported.
func ToMono(pcm []byte, channels, srcRate, dstRate int) ([]byte, error) {
	switch channels {
	case 1:
	case 2:
		pcm = StereoToMono(pcm)
	default:
		return nil, fmt.Errorf("audio: unsupported channel count %d", channels)
	}
	return ResampleMono16(pcm, srcRate, dstRate), nil
}

// ---- WAV --------------------------------------------------------------------

// ErrNotWAV is returned by [DecodeWAV] when the input is not a PCM16 RIFF/WAVE
// file.
var ErrNotWAV = errors.New("audio: not a PCM16 WAV file")

// WAVInfo describes the format of a decoded WAV file.
type WAVInfo struct {
	SampleRate int
	Channels   int
}

// EncodeWAV wraps raw PCM16 data in a canonical 44-byte RIFF/WAV header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * BytesPerSample
	blockAlign := channels * BytesPerSample

	buf := make([]byte, 44+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}

// DecodeWAV parses a RIFF/WAVE file and returns its PCM16 payload. Unknown
// chunks between "fmt " and "data" are skipped.
func DecodeWAV(data []byte) ([]byte, WAVInfo, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, WAVInfo{}, ErrNotWAV
	}
	var (
		info   WAVInfo
		gotFmt bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, WAVInfo{}, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			format := binary.LittleEndian.Uint16(data[body:])
			bits := binary.LittleEndian.Uint16(data[body+14:])
			if format != 1 || bits != 16 {
				return nil, WAVInfo{}, fmt.Errorf("%w: format %d, %d bits", ErrNotWAV, format, bits)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			gotFmt = true
		case "data":
			if !gotFmt {
				return nil, WAVInfo{}, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			return data[body : body+size], info, nil
		}
		pos = body + size + size%2
	}
	return nil, WAVInfo{}, fmt.Errorf("%w: no data chunk", ErrNotWAV)
}
