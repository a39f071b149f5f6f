package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/voicewire/gateway/internal/metrics"
	"github.com/voicewire/gateway/internal/pipeline"
	"github.com/voicewire/gateway/internal/turn"
)

// ReplyState is the lifecycle of one reply pipeline run.
type ReplyState string

const (
	ReplyPending    ReplyState = "pending"
	ReplyGenerating ReplyState = "generating"
	ReplyStreaming  ReplyState = "streaming"
	ReplyCompleted  ReplyState = "completed"
	ReplyCancelled  ReplyState = "cancelled"
	ReplyFailed     ReplyState = "failed"
)

// ReplyTask tracks one in-flight reply. The mutex serializes state
// transitions against outbound sends so that no reply segment is emitted
// after a barge_in notice.
type ReplyTask struct {
	TurnID uint64

	mu     sync.Mutex
	state  ReplyState
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newReplyTask(parent context.Context, turnID uint64) *ReplyTask {
	ctx, cancel := context.WithCancel(parent)
	return &ReplyTask{
		TurnID: turnID,
		state:  ReplyPending,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// State returns the task's current lifecycle state.
func (t *ReplyTask) State() ReplyState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// active reports whether the task can still produce output.
func (t *ReplyTask) active() bool {
	switch t.state {
	case ReplyPending, ReplyGenerating, ReplyStreaming:
		return true
	}
	return false
}

// advance moves the task forward if it is still active.
func (t *ReplyTask) advance(s ReplyState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active() {
		return false
	}
	t.state = s
	return true
}

// emit sends an outbound frame only if the task is still active, holding the
// state lock across the send so cancellation and emission cannot interleave.
func (t *ReplyTask) emit(send func() error) (sent bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active() {
		return false, nil
	}
	return true, send()
}

// ReplyConfig tunes turn admission and barge-in behavior.
type ReplyConfig struct {
	// A turn shorter than MinTurnDuration, quieter than MinPeakRMS, or with
	// a voiced ratio under MinVoicedRatio is skipped without recognition.
	MinTurnDuration time.Duration
	MinVoicedRatio  float64
	MinPeakRMS      float64
	// CancelGrace bounds how long a barge-in waits for the cancelled
	// pipeline goroutine to unwind before the new turn proceeds.
	CancelGrace time.Duration
	// MaxHistory caps retained conversation exchanges; zero keeps none.
	MaxHistory int
}

// DefaultReplyConfig mirrors the gating the segmenter was tuned against.
func DefaultReplyConfig() ReplyConfig {
	return ReplyConfig{
		MinTurnDuration: 300 * time.Millisecond,
		MinVoicedRatio:  0.35,
		MinPeakRMS:      1200,
		CancelGrace:     500 * time.Millisecond,
		MaxHistory:      8,
	}
}

// ReplyController owns the reply side of a session: it admits finished turns,
// runs the recognize/respond/synthesize pipeline on its own goroutine, and
// cancels the in-flight run when the speaker barges in. All entry points are
// called from the session's read loop; only the pipeline goroutine runs
// concurrently with it.
type ReplyController struct {
	cfg ReplyConfig
	rec pipeline.Recognizer
	res pipeline.Responder
	syn pipeline.Synthesizer
	tr  Transport
	log *slog.Logger

	sessionID string
	tracer    Tracer

	ctx    context.Context
	cancel context.CancelFunc

	active *ReplyTask
	wg     sync.WaitGroup

	histMu  sync.Mutex
	history []pipeline.Message
}

func NewReplyController(sessionID string, cfg ReplyConfig, rec pipeline.Recognizer, res pipeline.Responder, syn pipeline.Synthesizer, tr Transport, tracer Tracer, log *slog.Logger) *ReplyController {
	ctx, cancel := context.WithCancel(context.Background())
	return &ReplyController{
		cfg:       cfg,
		rec:       rec,
		res:       res,
		syn:       syn,
		tr:        tr,
		log:       log,
		sessionID: sessionID,
		tracer:    tracer,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (rc *ReplyController) trace(turnID uint64, state ReplyState, transcript, reply string) {
	if rc.tracer != nil {
		rc.tracer.ReplyFinished(rc.sessionID, turnID, state, transcript, reply)
	}
}

// Active returns the in-flight task, or nil.
func (rc *ReplyController) Active() *ReplyTask {
	if rc.active != nil && rc.active.State() != ReplyCompleted &&
		rc.active.State() != ReplyCancelled && rc.active.State() != ReplyFailed {
		return rc.active
	}
	return nil
}

// OnTurnStarted cancels any in-flight reply: the speaker has the floor again.
func (rc *ReplyController) OnTurnStarted(t *turn.Turn) {
	task := rc.Active()
	if task == nil {
		return
	}
	rc.log.Info("barge-in, cancelling reply", "turn_id", task.TurnID, "new_turn_id", t.ID)
	rc.cancelTask(task, true)
	metrics.BargeIns.Inc()
}

// cancelTask transitions the task out of its active state and waits a
// bounded grace for the pipeline goroutine to unwind. The barge_in notice
// is only sent when the cancellation came from new speech; teardown cancels
// silently.
func (rc *ReplyController) cancelTask(task *ReplyTask, notify bool) {
	task.mu.Lock()
	wasActive := task.active()
	if wasActive {
		task.state = ReplyCancelled
	}
	task.cancel()
	if wasActive && notify {
		if err := rc.tr.SendJSON(bargeInMessage{Type: msgBargeIn, TurnID: task.TurnID}); err != nil {
			rc.log.Warn("barge_in notice failed", "error", err)
		}
	}
	task.mu.Unlock()

	select {
	case <-task.done:
	case <-time.After(rc.cfg.CancelGrace):
		rc.log.Warn("reply pipeline did not unwind within grace", "turn_id", task.TurnID)
	}
	if wasActive {
		rc.trace(task.TurnID, ReplyCancelled, "", "")
	}
	rc.active = nil
}

// OnTurnEnded admits a finished turn to the pipeline, or skips it when its
// stats fall under the admission gate.
func (rc *ReplyController) OnTurnEnded(t *turn.Turn, sampleRate int) {
	samples := t.Samples()
	if reason := rc.admit(t, samples, sampleRate); reason != "" {
		rc.log.Info("turn skipped", "turn_id", t.ID, "reason", reason,
			"voiced_ratio", t.Stats.VoicedRatio(), "max_rms", t.Stats.MaxRMS)
		metrics.TurnsDropped.Inc()
		if err := rc.tr.SendJSON(skippedMessage{Type: msgASRSkipped, TurnID: t.ID, Reason: reason, Stats: t.Stats}); err != nil {
			rc.log.Warn("asr_skipped notice failed", "error", err)
		}
		return
	}

	task := newReplyTask(rc.ctx, t.ID)
	rc.active = task
	if err := rc.tr.SendJSON(statusMessage{Type: msgASRStatus, Status: "processing", TurnID: t.ID}); err != nil {
		rc.log.Warn("asr_status notice failed", "error", err)
	}
	rc.wg.Add(1)
	go rc.run(task, samples, sampleRate)
}

// admit returns a skip reason, or "" when the turn should be recognized.
func (rc *ReplyController) admit(t *turn.Turn, samples []int16, sampleRate int) string {
	if sampleRate <= 0 {
		return "no negotiated rate"
	}
	dur := time.Duration(len(samples)) * time.Second / time.Duration(sampleRate)
	if dur < rc.cfg.MinTurnDuration {
		return "too short"
	}
	if t.Stats.VoicedRatio() < rc.cfg.MinVoicedRatio {
		return "low voiced ratio"
	}
	if t.Stats.MaxRMS < rc.cfg.MinPeakRMS {
		return "low peak energy"
	}
	return ""
}

// run is the pipeline goroutine: transcribe, respond, synthesize. Synthesis
// is pipelined sentence by sentence off the responder's token stream so the
// first audio segment goes out before the full reply text is known.
func (rc *ReplyController) run(task *ReplyTask, samples []int16, sampleRate int) {
	defer rc.wg.Done()
	defer close(task.done)
	start := time.Now()

	if !task.advance(ReplyGenerating) {
		return
	}
	text, err := rc.rec.Transcribe(task.ctx, samples, sampleRate)
	if err != nil {
		rc.fail(task, err)
		return
	}
	if _, err := task.emit(func() error {
		return rc.tr.SendJSON(resultMessage{Type: msgASRResult, TurnID: task.TurnID, Text: text})
	}); err != nil {
		rc.log.Warn("asr_result send failed", "error", err)
	}

	var buf pipeline.SentenceBuffer
	synth := func(sentence string) {
		if task.ctx.Err() != nil {
			return
		}
		audio, err := rc.syn.Synthesize(task.ctx, sentence)
		if err != nil {
			if task.ctx.Err() == nil {
				rc.log.Warn("synthesis failed for sentence", "turn_id", task.TurnID, "error", err)
				metrics.Errors.WithLabelValues("synthesizer", "synthesis").Inc()
			}
			return
		}
		task.advance(ReplyStreaming)
		if _, err := task.emit(func() error { return rc.tr.SendBinary(audio) }); err != nil {
			rc.log.Warn("reply segment send failed", "error", err)
		}
	}
	reply, err := rc.res.Respond(task.ctx, text, rc.snapshotHistory(), func(token string) {
		if sentence := buf.Add(token); sentence != "" {
			synth(sentence)
		}
	})
	if err != nil {
		rc.fail(task, err)
		return
	}
	if rest := buf.Flush(); rest != "" {
		synth(rest)
	}

	sent, err := task.emit(func() error {
		return rc.tr.SendJSON(replyMessage{Type: msgAssistantReply, TurnID: task.TurnID, Text: reply})
	})
	if err != nil {
		rc.log.Warn("assistant_reply send failed", "error", err)
	}
	if !task.advance(ReplyCompleted) || !sent {
		return
	}
	rc.appendHistory(text, reply)
	rc.trace(task.TurnID, ReplyCompleted, text, reply)
	metrics.ReplyDuration.Observe(time.Since(start).Seconds())
	rc.log.Info("reply completed", "turn_id", task.TurnID, "elapsed", time.Since(start))
}

// fail marks the task Failed and notifies the client, unless the failure is
// just the task's own cancellation.
func (rc *ReplyController) fail(task *ReplyTask, err error) {
	if task.ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return
	}
	stage := "pipeline"
	switch {
	case errors.Is(err, pipeline.ErrRecognition):
		stage = "recognizer"
	case errors.Is(err, pipeline.ErrResponse):
		stage = "responder"
	case errors.Is(err, pipeline.ErrSynthesis):
		stage = "synthesizer"
	}
	task.mu.Lock()
	if task.active() {
		task.state = ReplyFailed
		if serr := rc.tr.SendJSON(errorMessage{Type: msgError, Stage: stage, Message: err.Error()}); serr != nil {
			rc.log.Warn("error notice failed", "error", serr)
		}
	}
	task.mu.Unlock()
	rc.trace(task.TurnID, ReplyFailed, "", "")
	metrics.Errors.WithLabelValues(stage, "pipeline").Inc()
	rc.log.Error("reply pipeline failed", "turn_id", task.TurnID, "stage", stage, "error", err)
}

func (rc *ReplyController) snapshotHistory() []pipeline.Message {
	rc.histMu.Lock()
	defer rc.histMu.Unlock()
	out := make([]pipeline.Message, len(rc.history))
	copy(out, rc.history)
	return out
}

func (rc *ReplyController) appendHistory(user, assistant string) {
	rc.histMu.Lock()
	defer rc.histMu.Unlock()
	rc.history = append(rc.history,
		pipeline.Message{Role: "user", Content: user},
		pipeline.Message{Role: "assistant", Content: assistant},
	)
	if max := rc.cfg.MaxHistory * 2; max > 0 && len(rc.history) > max {
		rc.history = rc.history[len(rc.history)-max:]
	}
}

// Drain waits up to the given timeout for the in-flight reply to finish,
// used on graceful stop so the last answer is not cut off.
func (rc *ReplyController) Drain(timeout time.Duration) {
	task := rc.Active()
	if task == nil {
		return
	}
	select {
	case <-task.done:
	case <-time.After(timeout):
		rc.log.Warn("reply did not finish before drain timeout", "turn_id", task.TurnID)
	}
}

// Shutdown cancels any in-flight reply and waits for the pipeline goroutine.
// No barge_in is sent: the reply died with the session, not to new speech.
func (rc *ReplyController) Shutdown() {
	if task := rc.Active(); task != nil {
		rc.cancelTask(task, false)
	}
	rc.cancel()
	rc.wg.Wait()
}
