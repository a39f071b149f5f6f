package session

import (
	"github.com/voicewire/gateway/internal/turn"
)

// Control message types accepted from the client.
const (
	msgStart = "start"
	msgStop  = "stop"
)

// controlMessage is any inbound text frame. The start message carries the
// stream parameters; stop carries only the type.
type controlMessage struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Bits       int    `json:"bits,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Format     string `json:"format,omitempty"`
}

// Outbound message types.
const (
	msgASRStatus      = "asr_status"
	msgASRSkipped     = "asr_skipped"
	msgASRResult      = "asr_result"
	msgAssistantReply = "assistant_reply"
	msgBargeIn        = "barge_in"
	msgError          = "error"
)

type statusMessage struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	TurnID uint64 `json:"turn_id"`
}

// skippedMessage tells the client a detected turn was dropped before
// recognition, with the stats that failed the gate.
type skippedMessage struct {
	Type   string     `json:"type"`
	TurnID uint64     `json:"turn_id"`
	Reason string     `json:"reason"`
	Stats  turn.Stats `json:"stats"`
}

type resultMessage struct {
	Type   string `json:"type"`
	TurnID uint64 `json:"turn_id"`
	Text   string `json:"text"`
}

type replyMessage struct {
	Type   string `json:"type"`
	TurnID uint64 `json:"turn_id"`
	Text   string `json:"text"`
}

type bargeInMessage struct {
	Type   string `json:"type"`
	TurnID uint64 `json:"turn_id"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}
