package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type staticRecognizer string

func (s staticRecognizer) Transcribe(context.Context, []int16, int) (string, error) {
	return string(s), nil
}

func TestRouterFallback(t *testing.T) {
	r := NewRouter(map[string]Recognizer{
		"primary": staticRecognizer("one"),
		"other":   staticRecognizer("two"),
	}, "primary")

	b, err := r.Route("other")
	if err != nil {
		t.Fatalf("Route(other): %v", err)
	}
	if got, _ := b.Transcribe(context.Background(), nil, 0); got != "two" {
		t.Errorf("routed to wrong backend: %q", got)
	}

	b, err = r.Route("missing")
	if err != nil {
		t.Fatalf("Route(missing): %v", err)
	}
	if got, _ := b.Transcribe(context.Background(), nil, 0); got != "one" {
		t.Errorf("fallback not used: %q", got)
	}

	empty := NewRouter(map[string]Recognizer{}, "primary")
	if _, err := empty.Route("anything"); err == nil {
		t.Error("empty router should fail")
	}
}

func TestRouterEngines(t *testing.T) {
	r := NewRouter(map[string]Recognizer{
		"a": staticRecognizer("x"),
		"b": staticRecognizer("y"),
	}, "a")
	engines := r.Engines()
	if len(engines) != 2 {
		t.Fatalf("engines = %v", engines)
	}
	seen := map[string]bool{}
	for _, e := range engines {
		seen[e] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("engines = %v", engines)
	}
}

func TestRecognizerRouterWrapsRouteMiss(t *testing.T) {
	r := NewRecognizerRouter(map[string]Recognizer{}, "none")
	_, err := r.Transcribe(context.Background(), nil, 16000, "whisper")
	if !errors.Is(err, ErrRecognition) {
		t.Errorf("want ErrRecognition, got %v", err)
	}
}

func TestSentenceBuffer(t *testing.T) {
	var b SentenceBuffer

	if got := b.Add("Hello"); got != "" {
		t.Errorf("partial token yielded %q", got)
	}
	if got := b.Add(" world."); got != "" {
		t.Errorf("trailing period without boundary yielded %q", got)
	}
	if got := b.Add(" How"); got != "Hello world." {
		t.Errorf("Add = %q, want %q", got, "Hello world.")
	}
	if got := b.Flush(); got != "How" {
		t.Errorf("Flush = %q, want %q", got, "How")
	}
}

func TestSentenceBufferMultipleEnders(t *testing.T) {
	var b SentenceBuffer
	got := b.Add("Wait! Really? Yes")
	if got != "Wait! Really?" {
		t.Errorf("Add = %q, want %q", got, "Wait! Really?")
	}
	if rest := b.Flush(); rest != "Yes" {
		t.Errorf("Flush = %q, want %q", rest, "Yes")
	}
}

func TestSentenceBufferDecimalStaysJoined(t *testing.T) {
	var b SentenceBuffer
	if got := b.Add("3.14 is pi"); got != "" {
		t.Errorf("decimal point split a sentence: %q", got)
	}
}

func TestSentenceBufferAbbreviationStaysJoined(t *testing.T) {
	var b SentenceBuffer
	if got := b.Add("Dr. Smith"); got != "" {
		t.Errorf("title abbreviation split a sentence: %q", got)
	}
	if got := b.Add(" will see you."); got != "" {
		t.Errorf("unexpected sentence before boundary: %q", got)
	}
	if got := b.Add(" Thanks"); got != "Dr. Smith will see you." {
		t.Errorf("Add = %q, want %q", got, "Dr. Smith will see you.")
	}
	if rest := b.Flush(); rest != "Thanks" {
		t.Errorf("Flush = %q, want %q", rest, "Thanks")
	}
}

func TestWhisperRecognizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer f.Close()
		if !strings.HasSuffix(hdr.Filename, ".wav") {
			t.Errorf("filename = %q", hdr.Filename)
		}
		fmt.Fprint(w, `{"text":" hello there"}`)
	}))
	defer srv.Close()

	rec := NewWhisperRecognizer(srv.URL, 1)
	samples := make([]int16, 3200)
	text, err := rec.Transcribe(context.Background(), samples, 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != " hello there" {
		t.Errorf("text = %q", text)
	}
}

func TestWhisperRecognizerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := NewWhisperRecognizer(srv.URL, 1)
	_, err := rec.Transcribe(context.Background(), make([]int16, 320), 16000)
	if !errors.Is(err, ErrRecognition) {
		t.Errorf("want ErrRecognition, got %v", err)
	}
}

func TestOllamaResponderStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) < 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}
		fmt.Fprintln(w, `{"message":{"content":"Hel"}}`)
		fmt.Fprintln(w, `{"message":{"content":"lo."}}`)
		fmt.Fprintln(w, `{"done":true}`)
	}))
	defer srv.Close()

	var tokens []string
	res := NewOllamaResponder(srv.URL, "test-model", "be brief", 64, 1)
	text, err := res.Respond(context.Background(), "hi", nil, func(tok string) {
		tokens = append(tokens, tok)
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if text != "Hello." {
		t.Errorf("text = %q", text)
	}
	if len(tokens) != 2 {
		t.Errorf("tokens = %v", tokens)
	}
}

func TestOllamaResponderCarriesHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		json.NewDecoder(r.Body).Decode(&req)
		// system + 2 history + user
		if len(req.Messages) != 4 {
			t.Errorf("message count = %d, want 4", len(req.Messages))
		}
		fmt.Fprintln(w, `{"done":true}`)
	}))
	defer srv.Close()

	res := NewOllamaResponder(srv.URL, "m", "p", 64, 1)
	history := []Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
	}
	if _, err := res.Respond(context.Background(), "second", history, nil); err != nil {
		t.Fatalf("Respond: %v", err)
	}
}

func TestOpenAIResponderStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header = %q", got)
		}
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"Hi"}}]}`)
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":" there."}}]}`)
		fmt.Fprintln(w, `data: [DONE]`)
	}))
	defer srv.Close()

	res := NewOpenAIResponder("sk-test", srv.URL, "gpt-4o-mini", "p", 64, 1)
	text, err := res.Respond(context.Background(), "hello", nil, nil)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if text != "Hi there." {
		t.Errorf("text = %q", text)
	}
}

func TestPiperSynthesizer(t *testing.T) {
	wav := []byte("RIFFfake")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text  string `json:"text"`
			Voice string `json:"voice"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Text != "Hello." || req.Voice != "en_US-lessac-medium" {
			t.Errorf("request = %+v", req)
		}
		w.Write(wav)
	}))
	defer srv.Close()

	syn := NewPiperSynthesizer(srv.URL, "en_US-lessac-medium", NewPooledHTTPClient(1, time.Second))
	got, err := syn.Synthesize(context.Background(), "Hello.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(got) != string(wav) {
		t.Errorf("audio = %q", got)
	}
}

func TestSynthesizerRouterWrapsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	router := NewSynthesizerRouter(map[string]Synthesizer{
		"piper": NewPiperSynthesizer(srv.URL, "v", NewPooledHTTPClient(1, time.Second)),
	}, "piper")
	_, err := router.Synthesize(context.Background(), "x", "piper")
	if !errors.Is(err, ErrSynthesis) {
		t.Errorf("want ErrSynthesis, got %v", err)
	}
}

func TestBoundAdapters(t *testing.T) {
	rec := BoundRecognizer{
		Router: NewRecognizerRouter(map[string]Recognizer{"fake": staticRecognizer("yo")}, "fake"),
		Engine: "fake",
	}
	text, err := rec.Transcribe(context.Background(), nil, 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "yo" {
		t.Errorf("text = %q", text)
	}
}

func TestFoldHistory(t *testing.T) {
	if got := foldHistory("solo", nil); got != "solo" {
		t.Errorf("empty history: %q", got)
	}
	got := foldHistory("next", []Message{
		{Role: "user", Content: "a"},
		{Role: "assistant", Content: "b"},
	})
	want := "User: a\nAssistant: b\nUser: next"
	if got != want {
		t.Errorf("foldHistory = %q, want %q", got, want)
	}
}
