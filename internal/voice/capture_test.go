package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/kindred/internal/audio"
	"github.com/ent0n29/kindred/internal/live"
	"github.com/ent0n29/kindred/internal/protocol"
)

func chunkOf(samples []float32, rate int) protocol.ClientAudioChunk {
	return protocol.ClientAudioChunk{
		Type:       protocol.TypeClientAudioChunk,
		SessionID:  "s1",
		F32Base64:  base64.StdEncoding.EncodeToString(audio.EncodeFloat32LE(samples)),
		SampleRate: rate,
	}
}

func TestWSCaptureWaitsForPermission(t *testing.T) {
	c := newWSCapture()
	started := make(chan error, 1)
	go func() { started <- c.Start(context.Background(), func([]float32) {}) }()

	select {
	case err := <-started:
		t.Fatalf("Start returned before a decision: %v", err)
	case <-time.After(30 * time.Millisecond):
	}
	c.SetPermission(true)
	require.NoError(t, <-started)
}

func TestWSCaptureDenied(t *testing.T) {
	c := newWSCapture()
	c.SetPermission(false)
	err := c.Start(context.Background(), func([]float32) {})
	assert.True(t, errors.Is(err, live.ErrCapturePermission))
}

func TestWSCaptureStartHonorsContext(t *testing.T) {
	c := newWSCapture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Start(ctx, func([]float32) {}), context.Canceled)
}

func TestWSCapturePushDeliversOnlyWhileRunning(t *testing.T) {
	c := newWSCapture()
	var got [][]float32
	want := []float32{0.25, -0.5}

	delivered, err := c.Push(chunkOf(want, audio.CaptureSampleRate))
	require.NoError(t, err)
	assert.False(t, delivered)

	c.SetPermission(true)
	require.NoError(t, c.Start(context.Background(), func(s []float32) { got = append(got, s) }))
	delivered, err = c.Push(chunkOf(want, audio.CaptureSampleRate))
	require.NoError(t, err)
	assert.True(t, delivered)
	require.Len(t, got, 1)
	assert.Equal(t, want, got[0])

	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())
	delivered, _ = c.Push(chunkOf(want, audio.CaptureSampleRate))
	assert.False(t, delivered)
}

func TestWSCapturePushRejectsBadInput(t *testing.T) {
	c := newWSCapture()
	_, err := c.Push(chunkOf([]float32{0.1}, 48000))
	assert.Error(t, err)

	_, err = c.Push(protocol.ClientAudioChunk{F32Base64: "%%%", SampleRate: audio.CaptureSampleRate})
	assert.Error(t, err)
}
