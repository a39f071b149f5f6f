package turn

import "time"

// Chunk is one fixed-duration slice of decoded PCM samples, tagged with its
// wire sequence number and arrival timestamp.
type Chunk struct {
	Seq     uint32
	Arrived time.Time
	Samples []int16
	RMS     float64
	Voiced  bool // raw per-chunk classification, before debouncing
}

// State is a turn's lifecycle state.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// Turn is one contiguous span of detected user speech. Chunks are append-only
// while the turn is open and strictly ordered by sequence number.
type Turn struct {
	ID        uint64
	Chunks    []Chunk
	StartedAt time.Time
	EndedAt   time.Time
	State     State
	Stats     Stats
}

func (t *Turn) append(c Chunk) {
	t.Chunks = append(t.Chunks, c)
	t.Stats.add(c)
	t.EndedAt = c.Arrived
}

func (t *Turn) close() {
	t.State = StateClosed
}

// Samples returns the turn's audio as one contiguous sample slice.
func (t *Turn) Samples() []int16 {
	n := 0
	for _, c := range t.Chunks {
		n += len(c.Samples)
	}
	out := make([]int16, 0, n)
	for _, c := range t.Chunks {
		out = append(out, c.Samples...)
	}
	return out
}

// Stats accumulates per-turn energy statistics used by the noise-gate policy.
type Stats struct {
	TotalChunks  int     `json:"total_chunks"`
	VoicedChunks int     `json:"voiced_chunks"`
	MaxRMS       float64 `json:"max_rms"`
	rmsSum       float64
}

func (s *Stats) add(c Chunk) {
	s.TotalChunks++
	s.rmsSum += c.RMS
	if c.Voiced {
		s.VoicedChunks++
	}
	if c.RMS > s.MaxRMS {
		s.MaxRMS = c.RMS
	}
}

// MeanRMS is the average chunk energy over the turn.
func (s Stats) MeanRMS() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return s.rmsSum / float64(s.TotalChunks)
}

// VoicedRatio is the fraction of chunks classified as voiced.
func (s Stats) VoicedRatio() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return float64(s.VoicedChunks) / float64(s.TotalChunks)
}
