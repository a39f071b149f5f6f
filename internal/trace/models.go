package trace

import "time"

// Session is one device connection.
type Session struct {
	ID         string     `json:"id"`
	Device     string     `json:"device"`
	SampleRate int        `json:"sample_rate"`
	Format     string     `json:"format"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	TurnCount  int        `json:"turn_count,omitempty"`
}

// Turn is one closed speech segment within a session.
type Turn struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	TurnID      uint64    `json:"turn_id"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	Chunks      int       `json:"chunks"`
	VoicedRatio float64   `json:"voiced_ratio"`
	MaxRMS      float64   `json:"max_rms"`
}

// Reply is the outcome of one reply pipeline run.
type Reply struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	TurnID     uint64    `json:"turn_id"`
	State      string    `json:"state"`
	Transcript string    `json:"transcript,omitempty"`
	Response   string    `json:"response,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
