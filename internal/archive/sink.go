// Package archive persists session audio to disk as WAV files: one rolling
// raw capture per session plus one file per finished turn. All writes happen
// on a single worker goroutine so the session read loop never touches disk.
package archive

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/voicewire/gateway/internal/audio"
)

// Sink writes archive files under a base directory. It satisfies
// session.Archiver. Enqueueing never blocks; if the worker falls behind,
// audio is dropped and counted rather than stalling ingestion.
type Sink struct {
	dir  string
	log  *slog.Logger
	jobs chan func()
	done chan struct{}

	// mu guards closed: sessions can outlive server shutdown, so writes
	// arriving after Close must be dropped, not sent on the closed channel.
	mu     sync.Mutex
	closed bool

	// raws is touched only by the worker goroutine.
	raws map[string]*rawCapture
}

func NewSink(dir string, log *slog.Logger) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	s := &Sink{
		dir:  dir,
		log:  log,
		jobs: make(chan func(), 256),
		done: make(chan struct{}),
		raws: make(map[string]*rawCapture),
	}
	go s.worker()
	return s, nil
}

func (s *Sink) worker() {
	defer close(s.done)
	for job := range s.jobs {
		job()
	}
	for id, rc := range s.raws {
		if err := rc.close(); err != nil {
			s.log.Warn("raw capture close failed", "session_id", id, "error", err)
		}
	}
}

// Close drains pending writes and finalizes open raw captures. Writes
// enqueued after Close are dropped. Safe to call more than once.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	<-s.done
}

func (s *Sink) enqueue(job func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.jobs <- job:
	default:
		s.log.Warn("archive queue full, dropping write")
	}
}

func (s *Sink) SessionStarted(sessionID string, sampleRate int) {
	s.enqueue(func() {
		path := filepath.Join(s.dir, "raw_"+sessionID+".wav")
		rc, err := newRawCapture(path, sampleRate)
		if err != nil {
			s.log.Warn("raw capture open failed", "session_id", sessionID, "error", err)
			return
		}
		s.raws[sessionID] = rc
	})
}

func (s *Sink) RawChunk(sessionID string, samples []int16) {
	s.enqueue(func() {
		rc, ok := s.raws[sessionID]
		if !ok {
			return
		}
		if err := rc.append(samples); err != nil {
			s.log.Warn("raw capture write failed", "session_id", sessionID, "error", err)
		}
	})
}

func (s *Sink) TurnAudio(sessionID string, turnID uint64, samples []int16, sampleRate int) {
	s.enqueue(func() {
		path := filepath.Join(s.dir, fmt.Sprintf("turn_%s_%d.wav", sessionID, turnID))
		if err := os.WriteFile(path, audio.SamplesToWAV(samples, sampleRate), 0o644); err != nil {
			s.log.Warn("turn archive write failed", "session_id", sessionID, "turn_id", turnID, "error", err)
		}
	})
}

func (s *Sink) SessionEnded(sessionID string) {
	s.enqueue(func() {
		rc, ok := s.raws[sessionID]
		if !ok {
			return
		}
		delete(s.raws, sessionID)
		if err := rc.close(); err != nil {
			s.log.Warn("raw capture close failed", "session_id", sessionID, "error", err)
		}
	})
}

// rawCapture streams PCM into a WAV file, writing a placeholder header up
// front and patching the chunk sizes on close.
type rawCapture struct {
	f         *os.File
	rate      int
	dataBytes int
}

func newRawCapture(path string, rate int) (*rawCapture, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(audio.WAVHeader(rate, 0)); err != nil {
		f.Close()
		return nil, err
	}
	return &rawCapture{f: f, rate: rate}, nil
}

func (rc *rawCapture) append(samples []int16) error {
	if _, err := rc.f.Write(audio.SamplesToBytes(samples)); err != nil {
		return err
	}
	rc.dataBytes += len(samples) * 2
	return nil
}

func (rc *rawCapture) close() error {
	var sizes [4]byte
	binary.LittleEndian.PutUint32(sizes[:], uint32(36+rc.dataBytes))
	if _, err := rc.f.WriteAt(sizes[:], 4); err != nil {
		rc.f.Close()
		return err
	}
	binary.LittleEndian.PutUint32(sizes[:], uint32(rc.dataBytes))
	if _, err := rc.f.WriteAt(sizes[:], 40); err != nil {
		rc.f.Close()
		return err
	}
	return rc.f.Close()
}
