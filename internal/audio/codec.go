package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// CaptureSampleRate is the negotiated rate for outbound microphone audio.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate of audio produced by the remote model.
	PlaybackSampleRate = 24000

	pcm16Scale = 32768
)

// OutboundMIMEType labels PCM16 mono frames sent upstream.
var OutboundMIMEType = fmt.Sprintf("audio/pcm;rate=%d", CaptureSampleRate)

// WireChunk is one base64-framed PCM16 frame ready for transport.
type WireChunk struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

// PCM returns the raw little-endian bytes carried by the chunk.
func (c WireChunk) PCM() ([]byte, error) {
	return base64.StdEncoding.DecodeString(c.Data)
}

// Buffer is a decoded multi-channel float buffer.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// Frames reports the per-channel sample count.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration is the playback length of the buffer at its sample rate.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// EncodePCM16 scales float samples by 32768 and truncates them to 16-bit
// little-endian integers. No resampling is performed.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

// EncodeOutboundChunk converts captured samples into a base64 wire chunk.
// Input must already be at CaptureSampleRate.
func EncodeOutboundChunk(samples []float32) WireChunk {
	return WireChunk{
		Data:     base64.StdEncoding.EncodeToString(EncodePCM16(samples)),
		MIMEType: OutboundMIMEType,
	}
}

// DecodeInboundChunk reinterprets PCM16LE bytes as interleaved frames and
// splits them into one float slice per channel. A trailing partial frame is
// dropped.
func DecodeInboundChunk(pcm []byte, sampleRate, channels int) *Buffer {
	if channels <= 0 {
		channels = 1
	}
	frames := len(pcm) / (channels * 2)
	buf := &Buffer{
		SampleRate: sampleRate,
		Channels:   make([][]float32, channels),
	}
	for c := range buf.Channels {
		buf.Channels[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			v := int16(binary.LittleEndian.Uint16(pcm[off:]))
			buf.Channels[c][i] = float32(v) / pcm16Scale
		}
	}
	return buf
}

// DecodeFloat32LE reads little-endian IEEE-754 samples as sent by the
// browser capture worklet. Trailing bytes that do not form a sample are ignored.
func DecodeFloat32LE(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// EncodeFloat32LE is the inverse of DecodeFloat32LE.
func EncodeFloat32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

func floatToInt16(s float32) int16 {
	v := float64(s) * pcm16Scale
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
