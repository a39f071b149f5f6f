package trace

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicewire/gateway/internal/audio"
	"github.com/voicewire/gateway/internal/session"
	"github.com/voicewire/gateway/internal/turn"
)

const maxTextLen = 500

type traceMsg struct {
	kind string // "session_start", "session_end", "turn", "reply"

	sessionID string
	device    string
	rate      int
	format    string
	reason    string

	turn  Turn
	reply Reply
}

// Tracer records session lifecycle events asynchronously via a buffered
// channel, shared by all sessions. All methods are nil-safe.
type Tracer struct {
	store *Store
	ch    chan traceMsg
	done  chan struct{}

	// mu guards closed: sessions can outlive server shutdown, so events
	// arriving after Close must be dropped, not sent on the closed channel.
	mu     sync.Mutex
	closed bool
}

// NewTracer starts a tracer writing to store. Call Close on shutdown.
func NewTracer(store *Store) *Tracer {
	t := &Tracer{
		store: store,
		ch:    make(chan traceMsg, 256),
		done:  make(chan struct{}),
	}
	go t.drain()
	return t
}

func (t *Tracer) drain() {
	defer close(t.done)
	for msg := range t.ch {
		t.handle(msg)
	}
}

func (t *Tracer) handle(m traceMsg) {
	var err error
	switch m.kind {
	case "session_start":
		err = t.store.CreateSession(m.sessionID, m.device, m.rate, m.format)
	case "session_end":
		err = t.store.EndSession(m.sessionID, m.reason)
	case "turn":
		err = t.store.CreateTurn(m.turn)
	case "reply":
		err = t.store.CreateReply(m.reply)
	}
	if err != nil {
		slog.Warn("trace write failed", "kind", m.kind, "error", err)
	}
}

func (t *Tracer) send(m traceMsg) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.ch <- m:
	default:
		slog.Warn("trace queue full, dropping event", "kind", m.kind)
	}
}

func (t *Tracer) SessionStarted(sessionID, device string, params audio.StreamParameters) {
	if t == nil {
		return
	}
	t.send(traceMsg{
		kind:      "session_start",
		sessionID: sessionID,
		device:    device,
		rate:      params.SampleRate,
		format:    string(params.Format),
	})
}

func (t *Tracer) TurnEnded(sessionID string, tn *turn.Turn) {
	if t == nil {
		return
	}
	t.send(traceMsg{kind: "turn", turn: Turn{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		TurnID:      tn.ID,
		StartedAt:   tn.StartedAt,
		EndedAt:     tn.EndedAt,
		Chunks:      tn.Stats.TotalChunks,
		VoicedRatio: tn.Stats.VoicedRatio(),
		MaxRMS:      tn.Stats.MaxRMS,
	}})
}

func (t *Tracer) ReplyFinished(sessionID string, turnID uint64, state session.ReplyState, transcript, reply string) {
	if t == nil {
		return
	}
	t.send(traceMsg{kind: "reply", reply: Reply{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		TurnID:     turnID,
		State:      string(state),
		Transcript: truncate(transcript, maxTextLen),
		Response:   truncate(reply, maxTextLen),
		RecordedAt: time.Now().UTC(),
	}})
}

func (t *Tracer) SessionEnded(sessionID, reason string) {
	if t == nil {
		return
	}
	t.send(traceMsg{kind: "session_end", sessionID: sessionID, reason: reason})
}

// Close drains pending writes and stops the background goroutine. Events
// sent after Close are dropped. Safe to call more than once.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.ch)
	t.mu.Unlock()
	<-t.done
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
