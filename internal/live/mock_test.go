package live

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/kindred/internal/audio"
)

func TestMockRemoteScriptsATurn(t *testing.T) {
	ctx := context.Background()
	remote, err := NewMockConnector().Connect(ctx, RemoteConfig{})
	require.NoError(t, err)

	chunk := audio.EncodeOutboundChunk(make([]float32, 256))
	for i := 0; i < mockTurnEvery; i++ {
		require.NoError(t, remote.SendAudio(ctx, chunk))
	}

	var got []ServerEvent
	for i := 0; i < 4; i++ {
		ev, err := remote.Receive(ctx)
		require.NoError(t, err)
		got = append(got, ev)
	}
	assert.Equal(t, "simulated voice input", got[0].InputTranscript)
	assert.NotEmpty(t, got[1].OutputTranscript)
	require.Len(t, got[2].Audio, 1)
	assert.True(t, got[3].TurnComplete)

	require.NoError(t, remote.Close())
	require.NoError(t, remote.Close())
	_, err = remote.Receive(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.Error(t, remote.SendAudio(ctx, chunk))
}
