package archive

import (
	"encoding/binary"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/voicewire/gateway/internal/audio"
)

func testSink(t *testing.T) (*Sink, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSink(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	return s, dir
}

func readWAV(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

func TestSinkSessionCapture(t *testing.T) {
	s, dir := testSink(t)

	samples := make([]int16, 320)
	for i := range samples {
		samples[i] = 100
	}

	s.SessionStarted("s1", 16000)
	s.RawChunk("s1", samples)
	s.RawChunk("s1", samples)
	s.TurnAudio("s1", 1, samples, 16000)
	s.SessionEnded("s1")
	s.Close()

	raw := readWAV(t, filepath.Join(dir, "raw_s1.wav"))
	wantData := 2 * len(samples) * 2
	if len(raw) != audio.WAVHeaderSize+wantData {
		t.Fatalf("raw file size = %d, want %d", len(raw), audio.WAVHeaderSize+wantData)
	}
	// Header sizes are patched on close.
	if got := binary.LittleEndian.Uint32(raw[40:44]); got != uint32(wantData) {
		t.Errorf("data size field = %d, want %d", got, wantData)
	}
	if got := binary.LittleEndian.Uint32(raw[4:8]); got != uint32(36+wantData) {
		t.Errorf("riff size field = %d, want %d", got, 36+wantData)
	}

	turn := readWAV(t, filepath.Join(dir, "turn_s1_1.wav"))
	if len(turn) != audio.WAVHeaderSize+len(samples)*2 {
		t.Errorf("turn file size = %d", len(turn))
	}
}

func TestSinkCloseFinalizesOpenCaptures(t *testing.T) {
	s, dir := testSink(t)

	samples := make([]int16, 160)
	s.SessionStarted("s2", 8000)
	s.RawChunk("s2", samples)
	// No SessionEnded: the connection died. Close must still patch the
	// header so the file is playable.
	s.Close()

	raw := readWAV(t, filepath.Join(dir, "raw_s2.wav"))
	if got := binary.LittleEndian.Uint32(raw[40:44]); got != uint32(len(samples)*2) {
		t.Errorf("data size field = %d, want %d", got, len(samples)*2)
	}
	if got := binary.LittleEndian.Uint32(raw[24:28]); got != 8000 {
		t.Errorf("sample rate field = %d, want 8000", got)
	}
}

func TestSinkIgnoresUnknownSession(t *testing.T) {
	s, dir := testSink(t)
	s.RawChunk("ghost", make([]int16, 10))
	s.SessionEnded("ghost")
	s.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("unexpected files: %v", entries)
	}
}

// Sessions can outlive server shutdown; a write landing after Close must be
// dropped, not crash the process.
func TestSinkDropsWritesAfterClose(t *testing.T) {
	s, dir := testSink(t)
	s.SessionStarted("s3", 16000)
	s.Close()

	s.RawChunk("s3", make([]int16, 320))
	s.TurnAudio("s3", 1, make([]int16, 320), 16000)
	s.SessionEnded("s3")
	s.Close()

	if _, err := os.Stat(filepath.Join(dir, "turn_s3_1.wav")); !os.IsNotExist(err) {
		t.Error("turn file written after Close")
	}
}
