package vad

// Result is the classification of a single audio frame.
type Result struct {
	// Speech is true when the frame contains voice activity.
	Speech bool

	// Probability is the speech probability score (0.0–1.0). Binary engines
	// report 0 or 1.
	Probability float64
}
