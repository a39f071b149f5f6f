package turn

// DetectorConfig controls voice activity detection.
type DetectorConfig struct {
	// Threshold is the RMS energy (int16 amplitude scale) at or above which a
	// single chunk is classified as voiced.
	Threshold float64
	// OnsetChunks is the number of consecutive voiced chunks required before
	// the detector reports a silence-to-speech transition.
	OnsetChunks int
	// ReleaseChunks is the number of consecutive silent chunks required
	// before the detector reports a speech-to-silence transition. Kept much
	// longer than onset so mid-sentence pauses don't split a turn.
	ReleaseChunks int
}

// DefaultDetectorConfig returns thresholds tuned for 16 kHz 20 ms frames from
// small-speaker edge devices.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Threshold:     900,
		OnsetChunks:   3,
		ReleaseChunks: 18,
	}
}

// Transition is a debounced speech-state change reported by the detector.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionOnset
	TransitionRelease
)

// Detector is an energy-based voice activity detector with hysteresis.
// It is stateful per session and must be fed chunks in arrival order.
type Detector struct {
	cfg        DetectorConfig
	speaking   bool
	voicedRun  int
	silenceRun int
}

// NewDetector creates a detector with the given config.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Speaking reports the current debounced classification.
func (d *Detector) Speaking() bool {
	return d.speaking
}

// Feed classifies one chunk's energy and returns the raw voiced decision plus
// any debounced transition. The debounce counters reset whenever the opposite
// classification is observed.
func (d *Detector) Feed(rms float64) (voiced bool, tr Transition) {
	voiced = rms >= d.cfg.Threshold

	if !d.speaking {
		if !voiced {
			d.voicedRun = 0
			return voiced, TransitionNone
		}
		d.voicedRun++
		if d.voicedRun < d.cfg.OnsetChunks {
			return voiced, TransitionNone
		}
		d.speaking = true
		d.voicedRun = 0
		d.silenceRun = 0
		return voiced, TransitionOnset
	}

	if voiced {
		d.silenceRun = 0
		return voiced, TransitionNone
	}
	d.silenceRun++
	if d.silenceRun < d.cfg.ReleaseChunks {
		return voiced, TransitionNone
	}
	d.speaking = false
	d.silenceRun = 0
	d.voicedRun = 0
	return voiced, TransitionRelease
}

// Reset clears all detector state.
func (d *Detector) Reset() {
	d.speaking = false
	d.voicedRun = 0
	d.silenceRun = 0
}
