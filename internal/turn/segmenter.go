package turn

import "github.com/voicewire/gateway/internal/audio"

// SegmenterConfig controls turn segmentation.
type SegmenterConfig struct {
	Detector DetectorConfig
	// PreRollChunks is how many chunks immediately preceding speech onset are
	// included in the turn, so word onsets aren't clipped.
	PreRollChunks int
}

// DefaultSegmenterConfig returns segmentation defaults for 20 ms chunks.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		Detector:      DefaultDetectorConfig(),
		PreRollChunks: 5,
	}
}

// EventKind distinguishes turn lifecycle events.
type EventKind int

const (
	TurnStarted EventKind = iota
	TurnEnded
)

// Event is a turn lifecycle notification. TurnEnded carries the closed turn
// with all of its accumulated audio.
type Event struct {
	Kind EventKind
	Turn *Turn
}

// Segmenter converts an ordered chunk stream into turns. It is a two-state
// machine: Idle until the detector reports speech onset, InTurn until it
// reports release. While InTurn, every chunk is appended to the current turn
// regardless of its own classification.
type Segmenter struct {
	cfg     SegmenterConfig
	det     *Detector
	preRoll []Chunk
	current *Turn
	nextID  uint64
}

// NewSegmenter creates a segmenter with a fresh detector.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	return &Segmenter{
		cfg:    cfg,
		det:    NewDetector(cfg.Detector),
		nextID: 1,
	}
}

// InTurn reports whether a turn is currently open.
func (s *Segmenter) InTurn() bool {
	return s.current != nil
}

// Current returns the open turn, or nil.
func (s *Segmenter) Current() *Turn {
	return s.current
}

// Push feeds one chunk through the detector and advances the state machine.
// It computes the chunk's energy, so callers pass raw decoded samples. The
// returned events preserve ordering: a TurnStarted for chunk N is emitted
// before Push is called for chunk N+1.
func (s *Segmenter) Push(c Chunk) []Event {
	c.RMS = audio.RMS(c.Samples)
	voiced, tr := s.det.Feed(c.RMS)
	c.Voiced = voiced

	switch tr {
	case TransitionOnset:
		t := &Turn{
			ID:        s.nextID,
			State:     StateOpen,
			StartedAt: c.Arrived,
		}
		s.nextID++
		// Seed with pre-roll, which includes the onset-debounce run.
		for _, pc := range s.preRoll {
			if t.StartedAt.After(pc.Arrived) {
				t.StartedAt = pc.Arrived
			}
			t.append(pc)
		}
		s.preRoll = nil
		t.append(c)
		s.current = t
		return []Event{{Kind: TurnStarted, Turn: t}}

	case TransitionRelease:
		t := s.current
		t.append(c)
		t.close()
		s.current = nil
		return []Event{{Kind: TurnEnded, Turn: t}}

	default:
		if s.current != nil {
			s.current.append(c)
			return nil
		}
		s.bufferPreRoll(c)
		return nil
	}
}

// ForceEnd closes any open turn immediately, as when the device sends stop or
// the connection drops before release debounce completes. Partial turns are
// delivered, never dropped. Returns nil if no turn is open.
func (s *Segmenter) ForceEnd() *Turn {
	if s.current == nil {
		return nil
	}
	t := s.current
	t.close()
	s.current = nil
	s.det.Reset()
	return t
}

func (s *Segmenter) bufferPreRoll(c Chunk) {
	if s.cfg.PreRollChunks <= 0 {
		return
	}
	s.preRoll = append(s.preRoll, c)
	if len(s.preRoll) > s.cfg.PreRollChunks {
		s.preRoll = s.preRoll[len(s.preRoll)-s.cfg.PreRollChunks:]
	}
}
