package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"
)

// AgentResponder generates replies through the openai-agents-go SDK, which
// covers any OpenAI-compatible chat backend.
type AgentResponder struct {
	provider     agents.ModelProvider
	model        string
	systemPrompt string
	maxTokens    int
}

// NewAgentResponder creates a responder backed by the given SDK provider.
func NewAgentResponder(provider agents.ModelProvider, model, systemPrompt string, maxTokens int) *AgentResponder {
	return &AgentResponder{
		provider:     provider,
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
	}
}

// Respond streams a single-turn completion from the resolved provider.
// Conversation history is folded into the user message, matching how the
// single-turn agent run consumes input.
func (a *AgentResponder) Respond(ctx context.Context, transcript string, history []Message, onToken TokenCallback) (string, error) {
	agent := agents.New("assistant").
		WithInstructions(a.systemPrompt).
		WithModel(a.model).
		WithModelSettings(modelsettings.ModelSettings{
			MaxTokens: param.NewOpt(int64(a.maxTokens)),
		})

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   a.provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	events, errCh, err := runner.RunStreamedChan(ctx, agent, foldHistory(transcript, history))
	if err != nil {
		return "", fmt.Errorf("%w: stream start: %v", ErrResponse, err)
	}

	var text strings.Builder
	for ev := range events {
		raw, ok := ev.(agents.RawResponsesStreamEvent)
		if !ok {
			continue
		}
		if raw.Data.Type != "response.output_text.delta" {
			continue
		}
		if onToken != nil {
			onToken(raw.Data.Delta)
		}
		text.WriteString(raw.Data.Delta)
	}

	if streamErr := <-errCh; streamErr != nil {
		return "", fmt.Errorf("%w: %v", ErrResponse, streamErr)
	}

	return text.String(), nil
}

func foldHistory(current string, history []Message) string {
	if len(history) == 0 {
		return current
	}
	var b strings.Builder
	for _, m := range history {
		role := "User"
		if m.Role == "assistant" {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
	}
	fmt.Fprintf(&b, "User: %s", current)
	return b.String()
}
