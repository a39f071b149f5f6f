package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voicewire/gateway/internal/metrics"
)

// SynthesizerRouter dispatches to the correct synthesis backend by engine
// name and records stage metrics.
type SynthesizerRouter struct {
	*Router[Synthesizer]
}

// NewSynthesizerRouter creates a router with registered synthesis backends
// and a fallback default.
func NewSynthesizerRouter(backends map[string]Synthesizer, fallback string) *SynthesizerRouter {
	return &SynthesizerRouter{Router: NewRouter(backends, fallback)}
}

// Synthesize routes to the named backend and synthesizes one sentence.
func (r *SynthesizerRouter) Synthesize(ctx context.Context, text, engine string) ([]byte, error) {
	backend, err := r.Route(engine)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	start := time.Now()
	audioData, err := backend.Synthesize(ctx, text)
	if err != nil {
		metrics.Errors.WithLabelValues("synthesizer", "backend").Inc()
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("synthesizer").Observe(time.Since(start).Seconds())
	return audioData, nil
}

// --- Piper backend (local neural TTS, returns WAV) ---

type piperSynthesizer struct {
	url    string
	voice  string
	client *http.Client
}

// NewPiperSynthesizer creates a Piper HTTP backend with a fixed voice.
func NewPiperSynthesizer(url, voice string, client *http.Client) Synthesizer {
	return &piperSynthesizer{url: url, voice: voice, client: client}
}

func (p *piperSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
	}{Text: text, Voice: p.voice})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal piper request: %v", ErrSynthesis, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.url+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create piper request: %v", ErrSynthesis, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return doSynthRequest(p.client, req)
}

// --- OpenAI-compatible backend (any server exposing /v1/audio/speech) ---

type openaiSynthesizer struct {
	url    string
	model  string
	voice  string
	client *http.Client
}

// NewOpenAISynthesizer creates a backend for OpenAI-compatible speech
// servers such as Kokoro.
func NewOpenAISynthesizer(url, model, voice string, client *http.Client) Synthesizer {
	return &openaiSynthesizer{url: url, model: model, voice: voice, client: client}
}

func (o *openaiSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(struct {
		Input          string `json:"input"`
		Model          string `json:"model"`
		Voice          string `json:"voice"`
		ResponseFormat string `json:"response_format"`
	}{Input: text, Model: o.model, Voice: o.voice, ResponseFormat: "wav"})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal speech request: %v", ErrSynthesis, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.url+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create speech request: %v", ErrSynthesis, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return doSynthRequest(o.client, req)
}

func doSynthRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrSynthesis, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
