package session

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/voicewire/gateway/internal/audio"
	"github.com/voicewire/gateway/internal/turn"
)

type frameKind int

const (
	frameStart frameKind = iota
	frameStop
	frameChunk
)

// frameEvent is a classified, validated inbound frame.
type frameEvent struct {
	kind   frameKind
	params audio.StreamParameters
	chunk  turn.Chunk
}

// FrameDecoder enforces the wire contract on the inbound frame stream:
// start must precede audio and must not repeat, binary frames carry a
// 4-byte little-endian sequence prefix that must be gapless, and payloads
// must decode under the negotiated parameters.
type FrameDecoder struct {
	params     *audio.StreamParameters
	sampleRate int
	nextSeq    uint32
	now        func() time.Time
}

func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{now: time.Now}
}

// Negotiated reports whether a start message has been accepted.
func (d *FrameDecoder) Negotiated() bool { return d.params != nil }

// Params returns the negotiated stream parameters, nil before start.
func (d *FrameDecoder) Params() *audio.StreamParameters { return d.params }

// SampleRate is the rate of decoded samples, zero before start.
func (d *FrameDecoder) SampleRate() int { return d.sampleRate }

// Decode classifies one transport frame. A returned *ProtocolError is
// terminal for the session.
func (d *FrameDecoder) Decode(f Frame) (frameEvent, error) {
	if f.Type == TextFrame {
		return d.decodeControl(f.Data)
	}
	return d.decodeChunk(f.Data)
}

func (d *FrameDecoder) decodeControl(data []byte) (frameEvent, error) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return frameEvent{}, protocolErrorf("malformed_control", "malformed control message: %v", err)
	}
	switch msg.Type {
	case msgStart:
		if d.params != nil {
			return frameEvent{}, protocolErrorf("duplicate_start", "duplicate start message")
		}
		p := audio.StreamParameters{
			SampleRate: msg.SampleRate,
			Bits:       msg.Bits,
			Channels:   msg.Channels,
			Format:     audio.Format(msg.Format),
		}
		if err := p.Validate(); err != nil {
			return frameEvent{}, protocolErrorf("unsupported_params", "unsupported stream parameters: %v", err)
		}
		d.params = &p
		d.sampleRate = p.DecodedRate()
		return frameEvent{kind: frameStart, params: p}, nil
	case msgStop:
		if d.params == nil {
			return frameEvent{}, protocolErrorf("stop_before_start", "stop before start")
		}
		return frameEvent{kind: frameStop}, nil
	default:
		return frameEvent{}, protocolErrorf("unknown_control", "unknown control type %q", msg.Type)
	}
}

func (d *FrameDecoder) decodeChunk(data []byte) (frameEvent, error) {
	if d.params == nil {
		return frameEvent{}, protocolErrorf("audio_before_start", "audio frame before start")
	}
	if len(data) < 4 {
		return frameEvent{}, protocolErrorf("short_frame", "audio frame shorter than sequence header")
	}
	seq := binary.LittleEndian.Uint32(data[:4])
	if seq != d.nextSeq {
		return frameEvent{}, protocolErrorf("sequence_gap", "sequence gap: expected %d, got %d", d.nextSeq, seq)
	}
	samples, _, err := audio.Decode(data[4:], *d.params)
	if err != nil {
		return frameEvent{}, protocolErrorf("bad_frame", "undecodable audio frame %d: %v", seq, err)
	}
	d.nextSeq++
	return frameEvent{kind: frameChunk, chunk: turn.Chunk{
		Seq:     seq,
		Arrived: d.now(),
		Samples: samples,
	}}, nil
}
