package session

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
)

func startFrame(rate, bits, channels int, format string) Frame {
	data := fmt.Appendf(nil, `{"type":"start","sample_rate":%d,"bits":%d,"channels":%d,"format":%q}`,
		rate, bits, channels, format)
	return Frame{Type: TextFrame, Data: data}
}

func stopFrame() Frame {
	return Frame{Type: TextFrame, Data: []byte(`{"type":"stop"}`)}
}

func binFrame(seq uint32, payload []byte) Frame {
	data := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(data, seq)
	copy(data[4:], payload)
	return Frame{Type: BinaryFrame, Data: data}
}

func pcmPayload(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

func wantProtocolError(t *testing.T, err error, code string) {
	t.Helper()
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("want ProtocolError, got %v", err)
	}
	if perr.Code != code {
		t.Fatalf("code = %q, want %q", perr.Code, code)
	}
}

func TestDecoderAudioBeforeStart(t *testing.T) {
	d := NewFrameDecoder()
	_, err := d.Decode(binFrame(0, pcmPayload(make([]int16, 320))))
	wantProtocolError(t, err, "audio_before_start")
}

func TestDecoderStopBeforeStart(t *testing.T) {
	d := NewFrameDecoder()
	_, err := d.Decode(stopFrame())
	wantProtocolError(t, err, "stop_before_start")
}

func TestDecoderMalformedControl(t *testing.T) {
	d := NewFrameDecoder()
	_, err := d.Decode(Frame{Type: TextFrame, Data: []byte("{not json")})
	wantProtocolError(t, err, "malformed_control")

	_, err = d.Decode(Frame{Type: TextFrame, Data: []byte(`{"type":"resume"}`)})
	wantProtocolError(t, err, "unknown_control")
}

func TestDecoderStartNegotiates(t *testing.T) {
	d := NewFrameDecoder()
	ev, err := d.Decode(startFrame(16000, 16, 1, "pcm_s16le"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if ev.kind != frameStart {
		t.Fatalf("kind = %v", ev.kind)
	}
	if !d.Negotiated() || d.SampleRate() != 16000 {
		t.Errorf("negotiated=%v rate=%d", d.Negotiated(), d.SampleRate())
	}

	_, err = d.Decode(startFrame(16000, 16, 1, "pcm_s16le"))
	wantProtocolError(t, err, "duplicate_start")
}

func TestDecoderRejectsBadParameters(t *testing.T) {
	d := NewFrameDecoder()
	_, err := d.Decode(startFrame(96000, 16, 1, "pcm_s16le"))
	wantProtocolError(t, err, "unsupported_params")

	// The failed start must not count as negotiation.
	if d.Negotiated() {
		t.Error("negotiated after rejected start")
	}
}

func TestDecoderG711DecodedRate(t *testing.T) {
	d := NewFrameDecoder()
	if _, err := d.Decode(startFrame(8000, 8, 1, "g711_ulaw")); err != nil {
		t.Fatalf("start: %v", err)
	}
	if d.SampleRate() != 8000 {
		t.Errorf("rate = %d, want 8000", d.SampleRate())
	}
	ev, err := d.Decode(binFrame(0, []byte{0xFF, 0xFF, 0xFF}))
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(ev.chunk.Samples) != 3 {
		t.Errorf("samples = %d, want 3", len(ev.chunk.Samples))
	}
}

func TestDecoderSequenceContinuity(t *testing.T) {
	d := NewFrameDecoder()
	if _, err := d.Decode(startFrame(16000, 16, 1, "pcm_s16le")); err != nil {
		t.Fatalf("start: %v", err)
	}

	payload := pcmPayload(make([]int16, 320))
	for seq := uint32(0); seq < 3; seq++ {
		ev, err := d.Decode(binFrame(seq, payload))
		if err != nil {
			t.Fatalf("seq %d: %v", seq, err)
		}
		if ev.chunk.Seq != seq {
			t.Errorf("chunk seq = %d, want %d", ev.chunk.Seq, seq)
		}
	}

	_, err := d.Decode(binFrame(5, payload))
	wantProtocolError(t, err, "sequence_gap")
}

func TestDecoderRejectsShortAndBadFrames(t *testing.T) {
	d := NewFrameDecoder()
	if _, err := d.Decode(startFrame(16000, 16, 1, "pcm_s16le")); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err := d.Decode(Frame{Type: BinaryFrame, Data: []byte{1, 2}})
	wantProtocolError(t, err, "short_frame")

	// Odd payload length cannot be int16 PCM.
	_, err = d.Decode(binFrame(0, []byte{1, 2, 3}))
	wantProtocolError(t, err, "bad_frame")
}
