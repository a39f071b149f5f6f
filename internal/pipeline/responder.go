package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voicewire/gateway/internal/metrics"
)

// ResponderRouter dispatches to the correct responder backend by engine name
// and records stage metrics.
type ResponderRouter struct {
	*Router[Responder]
}

// NewResponderRouter creates a router with registered responder backends and
// a fallback default.
func NewResponderRouter(backends map[string]Responder, fallback string) *ResponderRouter {
	return &ResponderRouter{Router: NewRouter(backends, fallback)}
}

// Respond routes to the named backend and generates reply text.
func (r *ResponderRouter) Respond(ctx context.Context, transcript string, history []Message, engine string, onToken TokenCallback) (string, error) {
	backend, err := r.Route(engine)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrResponse, err)
	}

	start := time.Now()
	text, err := backend.Respond(ctx, transcript, history, onToken)
	if err != nil {
		metrics.Errors.WithLabelValues("responder", "backend").Inc()
		return "", err
	}
	metrics.StageDuration.WithLabelValues("responder").Observe(time.Since(start).Seconds())
	return text, nil
}

// OllamaResponder streams chat completions from an Ollama server.
type OllamaResponder struct {
	url          string
	model        string
	systemPrompt string
	maxTokens    int
	client       *http.Client
}

// NewOllamaResponder creates an Ollama HTTP client.
func NewOllamaResponder(url, model, systemPrompt string, maxTokens, poolSize int) *OllamaResponder {
	return &OllamaResponder{
		url:          url,
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		client:       NewPooledHTTPClient(poolSize, 60*time.Second),
	}
}

// Respond sends the transcript plus conversation history to Ollama and
// streams the reply.
func (c *OllamaResponder) Respond(ctx context.Context, transcript string, history []Message, onToken TokenCallback) (string, error) {
	messages := make([]ollamaMessage, 0, len(history)+2)
	messages = append(messages, ollamaMessage{Role: "system", Content: c.systemPrompt})
	for _, m := range history {
		messages = append(messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: transcript})

	reqBody := ollamaRequest{
		Model:    c.model,
		Stream:   true,
		Options:  ollamaOptions{NumPredict: c.maxTokens},
		Messages: messages,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrResponse, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrResponse, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrResponse, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: ollama status %d: %s", ErrResponse, resp.StatusCode, body)
	}

	return consumeOllamaStream(resp.Body, onToken), nil
}

func consumeOllamaStream(body io.Reader, onToken TokenCallback) string {
	var text string
	scanner := bufio.NewScanner(body)

	for scanner.Scan() {
		var chunk ollamaStreamChunk
		if json.Unmarshal(scanner.Bytes(), &chunk) != nil {
			continue
		}
		if chunk.Done {
			break
		}
		if chunk.Message.Content == "" {
			continue
		}
		if onToken != nil {
			onToken(chunk.Message.Content)
		}
		text += chunk.Message.Content
	}

	return text
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []ollamaMessage `json:"messages"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict"`
}

type ollamaStreamChunk struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}
