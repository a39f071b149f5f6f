package pipeline

import (
	"context"
	"errors"
)

// The reply pipeline is built from three pluggable capabilities. Each stage
// failure is wrapped in the matching sentinel so callers can classify it
// without knowing which backend ran.
var (
	ErrRecognition = errors.New("recognition failed")
	ErrResponse    = errors.New("response generation failed")
	ErrSynthesis   = errors.New("synthesis failed")
)

// Message is one entry of a session's conversation context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Recognizer transcribes a finished speech turn. Samples are mono int16 PCM
// at the stated rate.
type Recognizer interface {
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error)
}

// TokenCallback is called for each streamed response token.
type TokenCallback func(token string)

// Responder produces reply text for a transcript, given the session's
// conversation history. Implementations stream tokens through onToken when
// the backend supports it; onToken may be nil.
type Responder interface {
	Respond(ctx context.Context, transcript string, history []Message, onToken TokenCallback) (string, error)
}

// Synthesizer converts one sentence of reply text to playable audio. The
// reply controller drives it sentence by sentence so playback starts before
// the full reply is synthesized; cancellation arrives through ctx.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
