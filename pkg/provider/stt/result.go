package stt

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ParseResult extracts the final transcription from a structured engine
// result. It reads the top-level "text" field and falls back to
// "alternatives.0.text", which is the shape Vosk produces when alternatives
// are enabled. Surrounding fields are ignored. Invalid JSON or a missing field
// yields "".
func ParseResult(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return ""
	}
	res := gjson.GetManyBytes(raw, "text", "alternatives.0.text")
	for _, r := range res {
		if r.Type == gjson.String {
			return strings.TrimSpace(r.String())
		}
	}
	return ""
}

// ParseConfidence reads "alternatives.0.confidence" or the mean of
// "result.#.conf" from a structured engine result. Returns 0 when neither is
// present.
func ParseConfidence(raw []byte) float64 {
	if !gjson.ValidBytes(raw) {
		return 0
	}
	if c := gjson.GetBytes(raw, "alternatives.0.confidence"); c.Exists() {
		return c.Float()
	}
	confs := gjson.GetBytes(raw, "result.#.conf").Array()
	if len(confs) == 0 {
		return 0
	}
	var sum float64
	for _, c := range confs {
		sum += c.Float()
	}
	return sum / float64(len(confs))
}
