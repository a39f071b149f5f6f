package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIResponder streams chat completions from any OpenAI-compatible
// endpoint.
type OpenAIResponder struct {
	apiKey       string
	url          string
	model        string
	systemPrompt string
	maxTokens    int
	client       *http.Client
}

// NewOpenAIResponder creates a client for an OpenAI-compatible chat API.
func NewOpenAIResponder(apiKey, url, model, systemPrompt string, maxTokens, poolSize int) *OpenAIResponder {
	return &OpenAIResponder{
		apiKey:       apiKey,
		url:          url,
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		client:       NewPooledHTTPClient(poolSize, 120*time.Second),
	}
}

func (c *OpenAIResponder) Respond(ctx context.Context, transcript string, history []Message, onToken TokenCallback) (string, error) {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: "system", Content: c.systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: transcript})

	body, err := json.Marshal(map[string]any{
		"model":      c.model,
		"messages":   messages,
		"max_tokens": c.maxTokens,
		"stream":     true,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrResponse, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrResponse, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrResponse, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: chat status %d: %s", ErrResponse, resp.StatusCode, errBody)
	}

	return consumeChatStream(resp.Body, onToken), nil
}

func consumeChatStream(body io.Reader, onToken TokenCallback) string {
	var text strings.Builder
	scanner := bufio.NewScanner(body)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if json.Unmarshal([]byte(data), &chunk) != nil {
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		token := chunk.Choices[0].Delta.Content
		if onToken != nil {
			onToken(token)
		}
		text.WriteString(token)
	}

	return text.String()
}
