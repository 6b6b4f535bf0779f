package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/kindred/internal/audio"
)

func TestDecodeWAVPCM16MonoRoundTrip(t *testing.T) {
	pcm := []byte{
		0x00, 0x00,
		0xE8, 0x03, // 1000
		0x18, 0xFC, // -1000
	}
	wav, err := audio.EncodeWAVPCM16LE(pcm, 16000)
	require.NoError(t, err)

	gotPCM, gotRate, err := decodeWAVPCM16(wav)
	require.NoError(t, err)
	assert.Equal(t, 16000, gotRate)
	assert.Equal(t, pcm, gotPCM)
}

func TestDecodeWAVPCM16StereoDownmix(t *testing.T) {
	// L=1000,R=-1000 then L=3000,R=1000.
	stereo := []byte{
		0xE8, 0x03, 0x18, 0xFC,
		0xB8, 0x0B, 0xE8, 0x03,
	}
	var b bytes.Buffer
	require.NoError(t, audio.WriteWAVPCM16LETo(&b, stereo, 24000, 2))

	gotPCM, gotRate, err := decodeWAVPCM16(b.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 24000, gotRate)
	require.Len(t, gotPCM, 4)
	assert.Equal(t, int16(0), int16(binary.LittleEndian.Uint16(gotPCM[0:2])))
	assert.Equal(t, int16(2000), int16(binary.LittleEndian.Uint16(gotPCM[2:4])))
}

func TestDecodeWAVPCM16Rejects(t *testing.T) {
	_, _, err := decodeWAVPCM16([]byte("RIFF"))
	assert.Error(t, err)
	_, _, err = decodeWAVPCM16(append([]byte("RIFF\x00\x00\x00\x00WAVE"), make([]byte, 4)...))
	assert.Error(t, err)
}

func TestLoadSamples(t *testing.T) {
	samples, err := loadSamples("")
	require.NoError(t, err)
	assert.Len(t, samples, 2*audio.CaptureSampleRate)

	dir := t.TempDir()
	wav, err := audio.EncodeWAVPCM16LE(make([]byte, 3200), audio.PlaybackSampleRate)
	require.NoError(t, err)
	path := filepath.Join(dir, "wrong-rate.wav")
	require.NoError(t, os.WriteFile(path, wav, 0o600))
	_, err = loadSamples(path)
	assert.ErrorContains(t, err, "sample rate")
}

func TestWSURLForSession(t *testing.T) {
	got, err := wsURLForSession("https://example.com/base/", "abc")
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/base/v1/voice/session/ws?session_id=abc", got)

	_, err = wsURLForSession("ftp://example.com", "abc")
	assert.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	var out strings.Builder
	printSummary(&out, []turnResult{
		{firstAudio: 300 * time.Millisecond, total: 2 * time.Second},
		{firstAudio: 500 * time.Millisecond, total: 3 * time.Second},
	})
	assert.Contains(t, out.String(), "turns=2")
	assert.Contains(t, out.String(), "first_audio_ms p50=300 p95=500")
}
