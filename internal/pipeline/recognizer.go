package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/voicewire/gateway/internal/audio"
	"github.com/voicewire/gateway/internal/metrics"
)

// RecognizerRouter dispatches to the correct recognizer backend by engine
// name and records stage metrics.
type RecognizerRouter struct {
	*Router[Recognizer]
}

// NewRecognizerRouter creates a router with registered recognizer backends
// and a fallback default.
func NewRecognizerRouter(backends map[string]Recognizer, fallback string) *RecognizerRouter {
	return &RecognizerRouter{Router: NewRouter(backends, fallback)}
}

// Transcribe routes to the named backend and transcribes the turn audio.
func (r *RecognizerRouter) Transcribe(ctx context.Context, samples []int16, sampleRate int, engine string) (string, error) {
	backend, err := r.Route(engine)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRecognition, err)
	}

	start := time.Now()
	text, err := backend.Transcribe(ctx, samples, sampleRate)
	if err != nil {
		metrics.Errors.WithLabelValues("recognizer", "backend").Inc()
		return "", err
	}
	metrics.StageDuration.WithLabelValues("recognizer").Observe(time.Since(start).Seconds())
	return text, nil
}

// WhisperRecognizer sends turn audio as a multipart WAV upload to any
// whisper-compatible HTTP server (whisper.cpp /inference and friends).
type WhisperRecognizer struct {
	url      string
	endpoint string
	client   *http.Client
}

// NewWhisperRecognizer creates a client for a whisper.cpp-style server.
func NewWhisperRecognizer(url string, poolSize int) *WhisperRecognizer {
	return &WhisperRecognizer{
		url:      url,
		endpoint: "/inference",
		client:   NewPooledHTTPClient(poolSize, 30*time.Second),
	}
}

// Transcribe uploads the audio as WAV and returns the transcript. Whisper
// models want 16 kHz input, so anything else is resampled first.
func (w *WhisperRecognizer) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	samples = audio.Resample(samples, sampleRate, 16000)

	body, contentType, err := buildMultipartWAV(samples, 16000)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRecognition, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url+w.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrRecognition, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRecognition, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrRecognition, resp.StatusCode, respBody)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrRecognition, err)
	}

	return result.Text, nil
}

func buildMultipartWAV(samples []int16, sampleRate int) (*bytes.Buffer, string, error) {
	wavData := audio.SamplesToWAV(samples, sampleRate)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "turn.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err = part.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("write wav data: %w", err)
	}
	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}
