package session

import (
	"errors"
	"log/slog"
	"time"

	"github.com/voicewire/gateway/internal/audio"
	"github.com/voicewire/gateway/internal/metrics"
	"github.com/voicewire/gateway/internal/pipeline"
	"github.com/voicewire/gateway/internal/turn"
)

// LifecycleState is where a session stands in its lifecycle.
type LifecycleState string

const (
	StateNegotiating LifecycleState = "negotiating"
	StateStreaming   LifecycleState = "streaming"
	StateClosed      LifecycleState = "closed"
)

// Config collects per-session tuning.
type Config struct {
	Segmenter turn.SegmenterConfig
	Reply     ReplyConfig
	// NegotiationTimeout bounds the wait for the start message after the
	// connection opens; IdleTimeout bounds the gap between frames after it.
	NegotiationTimeout time.Duration
	IdleTimeout        time.Duration
	// DrainTimeout bounds how long a graceful stop waits for the in-flight
	// reply to finish.
	DrainTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Segmenter:          turn.DefaultSegmenterConfig(),
		Reply:              DefaultReplyConfig(),
		NegotiationTimeout: 10 * time.Second,
		IdleTimeout:        60 * time.Second,
		DrainTimeout:       15 * time.Second,
	}
}

// Archiver persists session audio off the hot path. Implementations must not
// block the read loop.
type Archiver interface {
	SessionStarted(sessionID string, sampleRate int)
	RawChunk(sessionID string, samples []int16)
	TurnAudio(sessionID string, turnID uint64, samples []int16, sampleRate int)
	SessionEnded(sessionID string)
}

// Tracer records session lifecycle events for later inspection.
type Tracer interface {
	SessionStarted(sessionID, device string, params audio.StreamParameters)
	TurnEnded(sessionID string, t *turn.Turn)
	ReplyFinished(sessionID string, turnID uint64, state ReplyState, transcript, reply string)
	SessionEnded(sessionID, reason string)
}

// Backends are the capabilities a session draws on. Archiver and Tracer may
// be nil.
type Backends struct {
	Recognizer  pipeline.Recognizer
	Responder   pipeline.Responder
	Synthesizer pipeline.Synthesizer
	Archiver    Archiver
	Tracer      Tracer
}

// Coordinator runs one session as an actor: the connection's read loop is the
// only place session state is touched, so negotiation, segmentation, and turn
// bookkeeping need no locks. The reply pipeline is the sole concurrent
// goroutine, coordinated through the ReplyController.
type Coordinator struct {
	ID     string
	Device string

	cfg     Config
	tr      Transport
	dec     *FrameDecoder
	seg     *turn.Segmenter
	replies *ReplyController
	arch    Archiver
	tracer  Tracer
	log     *slog.Logger

	state   LifecycleState
	started time.Time
}

func New(id, device string, cfg Config, tr Transport, b Backends, log *slog.Logger) *Coordinator {
	log = log.With("session_id", id)
	return &Coordinator{
		ID:      id,
		Device:  device,
		cfg:     cfg,
		tr:      tr,
		dec:     NewFrameDecoder(),
		seg:     turn.NewSegmenter(cfg.Segmenter),
		replies: NewReplyController(id, cfg.Reply, b.Recognizer, b.Responder, b.Synthesizer, tr, b.Tracer, log),
		arch:    b.Archiver,
		tracer:  b.Tracer,
		log:     log,
		state:   StateNegotiating,
	}
}

// State returns the session's lifecycle state. Only meaningful from the
// session's own goroutine or after Run returns.
func (c *Coordinator) State() LifecycleState { return c.state }

// Params returns the negotiated stream parameters, nil before start.
func (c *Coordinator) Params() *audio.StreamParameters { return c.dec.Params() }

// Run drives the session until the client stops, the connection drops, a
// deadline passes, or the client violates the protocol. It always tears the
// session down before returning.
func (c *Coordinator) Run() error {
	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()
	defer metrics.SessionsActive.Dec()
	c.started = time.Now()
	c.log.Info("session opened", "device", c.Device)

	err := c.loop()
	c.teardown(err)
	return err
}

func (c *Coordinator) loop() error {
	negotiateBy := time.Now().Add(c.cfg.NegotiationTimeout)
	for {
		deadline := negotiateBy
		if c.state == StateStreaming {
			deadline = time.Now().Add(c.cfg.IdleTimeout)
		}
		f, err := c.tr.ReadFrame(deadline)
		if err != nil {
			if errors.Is(err, ErrReadTimeout) {
				return c.onTimeout()
			}
			// Connection dropped. The open turn is archived so the last
			// utterance is not lost, but no reply is attempted.
			c.preserveOpenTurn()
			return err
		}

		ev, err := c.dec.Decode(f)
		if err != nil {
			var perr *ProtocolError
			if !errors.As(err, &perr) {
				return err
			}
			metrics.ProtocolErrors.WithLabelValues(perr.Code).Inc()
			c.log.Warn("protocol violation", "code", perr.Code, "reason", perr.Reason)
			c.sendError("protocol", perr.Reason)
			// The open turn is tainted by the violation and is discarded.
			if t := c.seg.ForceEnd(); t != nil {
				c.log.Info("open turn discarded", "turn_id", t.ID, "chunks", t.Stats.TotalChunks)
			}
			return perr
		}

		switch ev.kind {
		case frameStart:
			c.state = StateStreaming
			c.log.Info("stream negotiated",
				"sample_rate", ev.params.SampleRate,
				"format", ev.params.Format,
				"decoded_rate", c.dec.SampleRate())
			if c.arch != nil {
				c.arch.SessionStarted(c.ID, c.dec.SampleRate())
			}
			if c.tracer != nil {
				c.tracer.SessionStarted(c.ID, c.Device, ev.params)
			}
		case frameStop:
			c.log.Info("stop received")
			c.finishOpenTurn()
			c.replies.Drain(c.cfg.DrainTimeout)
			return nil
		case frameChunk:
			metrics.AudioChunks.Inc()
			if c.arch != nil {
				c.arch.RawChunk(c.ID, ev.chunk.Samples)
			}
			for _, tev := range c.seg.Push(ev.chunk) {
				switch tev.Kind {
				case turn.TurnStarted:
					metrics.TurnsDetected.Inc()
					c.log.Info("turn started", "turn_id", tev.Turn.ID)
					c.replies.OnTurnStarted(tev.Turn)
				case turn.TurnEnded:
					c.finishTurn(tev.Turn)
				}
			}
		}
	}
}

// onTimeout closes the session for inactivity. A turn left open by a client
// that went quiet mid-stream is still delivered before the session closes.
func (c *Coordinator) onTimeout() error {
	phase := "idle"
	if c.state == StateNegotiating {
		phase = "negotiation"
	}
	terr := &TimeoutError{Phase: phase}
	c.log.Info("session timed out", "phase", phase)
	c.finishOpenTurn()
	c.replies.Drain(c.cfg.DrainTimeout)
	c.sendError("timeout", terr.Error())
	return terr
}

func (c *Coordinator) finishTurn(t *turn.Turn) {
	c.log.Info("turn ended", "turn_id", t.ID,
		"chunks", t.Stats.TotalChunks,
		"voiced_ratio", t.Stats.VoicedRatio(),
		"max_rms", t.Stats.MaxRMS)
	if c.arch != nil {
		c.arch.TurnAudio(c.ID, t.ID, t.Samples(), c.dec.SampleRate())
	}
	if c.tracer != nil {
		c.tracer.TurnEnded(c.ID, t)
	}
	c.replies.OnTurnEnded(t, c.dec.SampleRate())
}

func (c *Coordinator) finishOpenTurn() {
	if t := c.seg.ForceEnd(); t != nil {
		c.finishTurn(t)
	}
}

// preserveOpenTurn archives a turn cut off by a dead connection without
// invoking the reply pipeline.
func (c *Coordinator) preserveOpenTurn() {
	t := c.seg.ForceEnd()
	if t == nil {
		return
	}
	c.log.Info("turn preserved at disconnect", "turn_id", t.ID, "chunks", t.Stats.TotalChunks)
	if c.arch != nil {
		c.arch.TurnAudio(c.ID, t.ID, t.Samples(), c.dec.SampleRate())
	}
	if c.tracer != nil {
		c.tracer.TurnEnded(c.ID, t)
	}
}

func (c *Coordinator) sendError(stage, msg string) {
	if err := c.tr.SendJSON(errorMessage{Type: msgError, Stage: stage, Message: msg}); err != nil {
		c.log.Debug("error notice failed", "error", err)
	}
}

func (c *Coordinator) teardown(cause error) {
	c.replies.Shutdown()
	reason := "stopped"
	if cause != nil {
		reason = cause.Error()
	}
	if c.arch != nil {
		c.arch.SessionEnded(c.ID)
	}
	if c.tracer != nil {
		c.tracer.SessionEnded(c.ID, reason)
	}
	if err := c.tr.Close(); err != nil {
		c.log.Debug("transport close", "error", err)
	}
	c.state = StateClosed
	c.log.Info("session closed", "reason", reason, "duration", time.Since(c.started))
}
