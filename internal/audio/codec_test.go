package audio

import (
	"encoding/base64"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodePCM16Truncates(t *testing.T) {
	tests := []struct {
		name  string
		input float32
		want  int16
	}{
		{name: "zero", input: 0, want: 0},
		{name: "half", input: 0.5, want: 16384},
		{name: "negative half", input: -0.5, want: -16384},
		{name: "truncates toward zero", input: 0.99999, want: 32767},
		{name: "full scale positive clamps", input: 1, want: 32767},
		{name: "full scale negative", input: -1, want: -32768},
		{name: "tiny positive truncates to zero", input: 1.0 / 65536, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm := EncodePCM16([]float32{tt.input})
			require.Len(t, pcm, 2)
			got := int16(uint16(pcm[0]) | uint16(pcm[1])<<8)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeOutboundChunkFraming(t *testing.T) {
	chunk := EncodeOutboundChunk([]float32{0, 0.5})
	assert.Equal(t, "audio/pcm;rate=16000", chunk.MIMEType)

	raw, err := base64.StdEncoding.DecodeString(chunk.Data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x40}, raw)

	pcm, err := chunk.PCM()
	require.NoError(t, err)
	assert.Equal(t, raw, pcm)
}

func TestDecodeInboundChunkDropsPartialFrame(t *testing.T) {
	// Two stereo frames plus three stray bytes.
	pcm := []byte{
		0x00, 0x40, 0x00, 0xc0,
		0xff, 0x7f, 0x00, 0x80,
		0x01, 0x02, 0x03,
	}
	buf := DecodeInboundChunk(pcm, PlaybackSampleRate, 2)
	require.Len(t, buf.Channels, 2)
	assert.Equal(t, 2, buf.Frames())
	assert.Equal(t, []float32{0.5, 32767.0 / 32768}, buf.Channels[0])
	assert.Equal(t, []float32{-0.5, -1}, buf.Channels[1])
}

func TestDecodeInboundChunkMonoOddLength(t *testing.T) {
	buf := DecodeInboundChunk([]byte{0x00, 0x40, 0x11}, PlaybackSampleRate, 1)
	assert.Equal(t, 1, buf.Frames())
	assert.Equal(t, float32(0.5), buf.Channels[0][0])
}

func TestBufferDuration(t *testing.T) {
	buf := DecodeInboundChunk(make([]byte, PlaybackSampleRate*2), PlaybackSampleRate, 1)
	assert.Equal(t, time.Second, buf.Duration())

	half := DecodeInboundChunk(make([]byte, PlaybackSampleRate), PlaybackSampleRate, 1)
	assert.Equal(t, 500*time.Millisecond, half.Duration())

	var empty *Buffer
	assert.Zero(t, empty.Duration())
	assert.Zero(t, empty.Frames())
}

func TestFloat32LERoundTrip(t *testing.T) {
	in := []float32{0, -0.25, 0.75, 1}
	out := DecodeFloat32LE(append(EncodeFloat32LE(in), 0xAA))
	assert.Equal(t, in, out)
}

func TestCodecRoundTripWithinQuantization(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		samples := rapid.SliceOf(rapid.Float32Range(-1, 1)).Draw(t, "samples")
		chunk := EncodeOutboundChunk(samples)
		pcm, err := chunk.PCM()
		if err != nil {
			t.Fatalf("decode base64: %v", err)
		}
		buf := DecodeInboundChunk(pcm, CaptureSampleRate, 1)
		if buf.Frames() != len(samples) {
			t.Fatalf("frames = %d, want %d", buf.Frames(), len(samples))
		}
		for i, s := range samples {
			diff := math.Abs(float64(s) - float64(buf.Channels[0][i]))
			if diff > 1.0/32768 {
				t.Fatalf("sample %d: |%v - %v| = %v exceeds quantization", i, s, buf.Channels[0][i], diff)
			}
		}
	})
}

func TestInputLevel(t *testing.T) {
	assert.Zero(t, InputLevel(nil))
	assert.Zero(t, InputLevel([]float32{0, 0, 0}))
	assert.InDelta(t, 2.0, InputLevel([]float32{0.5, -0.5, 0.5, -0.5}), 1e-9)
}
