package pipeline

import "context"

// BoundRecognizer pins a router to one engine so callers see the plain
// Recognizer interface.
type BoundRecognizer struct {
	Router *RecognizerRouter
	Engine string
}

func (b BoundRecognizer) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	return b.Router.Transcribe(ctx, samples, sampleRate, b.Engine)
}

// BoundResponder pins a responder router to one engine.
type BoundResponder struct {
	Router *ResponderRouter
	Engine string
}

func (b BoundResponder) Respond(ctx context.Context, transcript string, history []Message, onToken TokenCallback) (string, error) {
	return b.Router.Respond(ctx, transcript, history, b.Engine, onToken)
}

// BoundSynthesizer pins a synthesizer router to one engine.
type BoundSynthesizer struct {
	Router *SynthesizerRouter
	Engine string
}

func (b BoundSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return b.Router.Synthesize(ctx, text, b.Engine)
}
