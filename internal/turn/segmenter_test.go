package turn

import (
	"testing"
	"time"
)

// chunkStream builds chunks with deterministic timestamps and sequence
// numbers. Amplitude is flat across the chunk so RMS equals the amplitude.
type chunkStream struct {
	seq  uint32
	base time.Time
}

func (cs *chunkStream) next(amp int16) Chunk {
	samples := make([]int16, 320)
	for i := range samples {
		samples[i] = amp
	}
	c := Chunk{
		Seq:     cs.seq,
		Arrived: cs.base.Add(time.Duration(cs.seq) * 20 * time.Millisecond),
		Samples: samples,
	}
	cs.seq++
	return c
}

func testSegmenter() *Segmenter {
	return NewSegmenter(SegmenterConfig{
		Detector:      DetectorConfig{Threshold: 900, OnsetChunks: 3, ReleaseChunks: 18},
		PreRollChunks: 5,
	})
}

func feed(t *testing.T, s *Segmenter, cs *chunkStream, amp int16, n int) []Event {
	t.Helper()
	var events []Event
	for range n {
		events = append(events, s.Push(cs.next(amp))...)
	}
	return events
}

func TestSegmenterFullTurn(t *testing.T) {
	s := testSegmenter()
	cs := &chunkStream{base: time.Now()}

	if evs := feed(t, s, cs, 0, 5); len(evs) != 0 {
		t.Fatalf("silence produced %d events", len(evs))
	}
	if s.InTurn() {
		t.Fatal("in turn during silence")
	}

	// Onset fires on the third consecutive voiced chunk.
	evs := feed(t, s, cs, 3000, 3)
	if len(evs) != 1 || evs[0].Kind != TurnStarted {
		t.Fatalf("want one TurnStarted, got %v", evs)
	}
	started := evs[0].Turn
	if started.ID != 1 {
		t.Errorf("turn ID = %d, want 1", started.ID)
	}
	// Pre-roll: 3 buffered silence chunks + the 2 debounce-run voiced
	// chunks, then the onset chunk itself.
	if started.Stats.TotalChunks != 6 {
		t.Errorf("chunks at onset = %d, want 6", started.Stats.TotalChunks)
	}
	if !started.StartedAt.Before(started.Chunks[len(started.Chunks)-1].Arrived) {
		t.Error("StartedAt not adjusted back to pre-roll")
	}

	feed(t, s, cs, 3000, 5)
	evs = feed(t, s, cs, 0, 18)
	if len(evs) != 1 || evs[0].Kind != TurnEnded {
		t.Fatalf("want one TurnEnded, got %v", evs)
	}
	ended := evs[0].Turn
	if ended != started {
		t.Fatal("TurnEnded delivered a different turn")
	}
	if ended.State != StateClosed {
		t.Error("ended turn not closed")
	}
	if s.InTurn() {
		t.Fatal("still in turn after release")
	}

	// 6 at onset + 5 voiced + 18 trailing silence.
	if ended.Stats.TotalChunks != 29 {
		t.Errorf("total chunks = %d, want 29", ended.Stats.TotalChunks)
	}
	if ended.Stats.VoicedChunks != 8 {
		t.Errorf("voiced chunks = %d, want 8", ended.Stats.VoicedChunks)
	}
	if ended.Stats.MaxRMS != 3000 {
		t.Errorf("max rms = %v, want 3000", ended.Stats.MaxRMS)
	}
	if got := len(ended.Samples()); got != 29*320 {
		t.Errorf("samples = %d, want %d", got, 29*320)
	}

	// Chunks must be strictly ordered with no gaps.
	for i := 1; i < len(ended.Chunks); i++ {
		if ended.Chunks[i].Seq != ended.Chunks[i-1].Seq+1 {
			t.Fatalf("chunk order broken at %d: %d then %d", i, ended.Chunks[i-1].Seq, ended.Chunks[i].Seq)
		}
	}
}

func TestSegmenterTurnIDsIncrement(t *testing.T) {
	s := testSegmenter()
	cs := &chunkStream{base: time.Now()}

	feed(t, s, cs, 3000, 3)
	feed(t, s, cs, 0, 18)

	evs := feed(t, s, cs, 3000, 3)
	if len(evs) != 1 || evs[0].Turn.ID != 2 {
		t.Fatalf("second turn ID: got %v", evs)
	}
}

func TestSegmenterPreRollBounded(t *testing.T) {
	s := testSegmenter()
	cs := &chunkStream{base: time.Now()}

	// Long silence must not grow the pre-roll beyond its cap.
	feed(t, s, cs, 0, 100)
	evs := feed(t, s, cs, 3000, 3)
	if len(evs) != 1 {
		t.Fatalf("want onset, got %v", evs)
	}
	if got := evs[0].Turn.Stats.TotalChunks; got != 6 {
		t.Errorf("chunks at onset = %d, want 6 (5 pre-roll + onset)", got)
	}
}

// Segmentation depends only on the chunk stream, so replaying an identical
// sequence must reproduce identical turn boundaries.
func TestSegmenterReplayIsDeterministic(t *testing.T) {
	pattern := []struct {
		amp int16
		n   int
	}{
		{0, 4}, {3000, 7}, {0, 18}, {1500, 3}, {0, 2}, {3000, 12}, {0, 18}, {3000, 5},
	}
	base := time.Now()

	run := func() []*Turn {
		s := testSegmenter()
		cs := &chunkStream{base: base}
		var turns []*Turn
		for _, p := range pattern {
			for _, ev := range feed(t, s, cs, p.amp, p.n) {
				if ev.Kind == TurnEnded {
					turns = append(turns, ev.Turn)
				}
			}
		}
		if tn := s.ForceEnd(); tn != nil {
			turns = append(turns, tn)
		}
		return turns
	}

	first, second := run(), run()
	if len(first) != len(second) {
		t.Fatalf("turn counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		a, b := first[i], second[i]
		if a.ID != b.ID || !a.StartedAt.Equal(b.StartedAt) || !a.EndedAt.Equal(b.EndedAt) {
			t.Errorf("turn %d boundaries differ: %d [%v, %v] vs %d [%v, %v]",
				i, a.ID, a.StartedAt, a.EndedAt, b.ID, b.StartedAt, b.EndedAt)
		}
		if a.Stats.TotalChunks != b.Stats.TotalChunks || a.Stats.VoicedChunks != b.Stats.VoicedChunks {
			t.Errorf("turn %d stats differ: %+v vs %+v", i, a.Stats, b.Stats)
		}
		if a.Chunks[0].Seq != b.Chunks[0].Seq || a.Chunks[len(a.Chunks)-1].Seq != b.Chunks[len(b.Chunks)-1].Seq {
			t.Errorf("turn %d chunk range differs", i)
		}
	}
}

func TestSegmenterForceEnd(t *testing.T) {
	s := testSegmenter()
	cs := &chunkStream{base: time.Now()}

	if s.ForceEnd() != nil {
		t.Fatal("ForceEnd with no open turn should return nil")
	}

	feed(t, s, cs, 3000, 10)
	tn := s.ForceEnd()
	if tn == nil {
		t.Fatal("ForceEnd returned nil with open turn")
	}
	if tn.State != StateClosed {
		t.Error("forced turn not closed")
	}
	if s.InTurn() {
		t.Error("still in turn after ForceEnd")
	}

	// Detector state is reset, so a new onset needs a full debounce run.
	evs := feed(t, s, cs, 3000, 2)
	if len(evs) != 0 {
		t.Fatalf("onset before debounce after reset: %v", evs)
	}
	evs = feed(t, s, cs, 3000, 1)
	if len(evs) != 1 || evs[0].Kind != TurnStarted {
		t.Fatalf("want fresh onset, got %v", evs)
	}
}
