package audio

import (
	"encoding/binary"
	"fmt"
)

// Format names the sample encoding a device streams in.
type Format string

const (
	FormatPCMS16LE Format = "pcm_s16le"
	FormatG711Ulaw Format = "g711_ulaw"
	FormatG711Alaw Format = "g711_alaw"
)

// StreamParameters are the audio parameters a device declares in its start
// message. They are immutable for the lifetime of a session.
type StreamParameters struct {
	SampleRate int    `json:"sample_rate"`
	Bits       int    `json:"bits"`
	Channels   int    `json:"channels"`
	Format     Format `json:"format"`
}

// Validate checks the declared parameters against what the decoders support.
func (p StreamParameters) Validate() error {
	if p.SampleRate < 8000 || p.SampleRate > 48000 {
		return fmt.Errorf("sample_rate %d out of range [8000, 48000]", p.SampleRate)
	}
	if p.Channels != 1 {
		return fmt.Errorf("unsupported channel count %d (want mono)", p.Channels)
	}
	if _, ok := decoders[p.Format]; !ok {
		return fmt.Errorf("unsupported format %q", p.Format)
	}
	// G.711 is 8 bits on the wire, PCM is 16.
	want := 16
	if p.Format == FormatG711Ulaw || p.Format == FormatG711Alaw {
		want = 8
	}
	if p.Bits != want {
		return fmt.Errorf("unsupported bit depth %d for %s (want %d)", p.Bits, p.Format, want)
	}
	return nil
}

// DecodedRate is the sample rate of decoded PCM for this stream. It matches
// the declared rate except for G.711, which is always 8 kHz.
func (p StreamParameters) DecodedRate() int {
	if dec, ok := decoders[p.Format]; ok && dec.rate != 0 {
		return dec.rate
	}
	return p.SampleRate
}

// decoder converts an encoded payload to int16 PCM samples. A rate of 0 means
// the stream's declared sample rate applies (PCM passthrough); G.711 is fixed
// at 8 kHz.
type decoder struct {
	fn   func([]byte) []int16
	rate int
}

var decoders = map[Format]decoder{
	FormatPCMS16LE: {fn: decodePCMS16LE, rate: 0},
	FormatG711Ulaw: {fn: decodeG711Ulaw, rate: 8000},
	FormatG711Alaw: {fn: decodeG711Alaw, rate: 8000},
}

// Decode converts an audio payload in the negotiated encoding to int16 PCM
// samples, returning the samples and their sample rate.
func Decode(data []byte, p StreamParameters) ([]int16, int, error) {
	dec, ok := decoders[p.Format]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported format %q", p.Format)
	}
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("empty audio payload")
	}
	if p.Format == FormatPCMS16LE && len(data)%2 != 0 {
		return nil, 0, fmt.Errorf("odd pcm_s16le payload length %d", len(data))
	}
	rate := dec.rate
	if rate == 0 {
		rate = p.SampleRate
	}
	return dec.fn(data), rate, nil
}

func decodePCMS16LE(data []byte) []int16 {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := range n {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
