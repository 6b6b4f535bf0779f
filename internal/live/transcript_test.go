package live

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranscriptAggregatorConcatenatesAndResets(t *testing.T) {
	var a TranscriptAggregator

	a.AddAssistant("Hel")
	a.AddUser("Hi")
	snap := a.AddAssistant("lo ")
	assert.Equal(t, Transcript{User: "Hi", Assistant: "Hello "}, snap)
	assert.Equal(t, snap, a.Snapshot())

	final := a.Complete()
	assert.Equal(t, Transcript{User: "Hi", Assistant: "Hello "}, final)
	assert.Equal(t, Transcript{}, a.Snapshot())
}

func TestTranscriptAggregatorCompleteEmptyTurn(t *testing.T) {
	var a TranscriptAggregator
	assert.Equal(t, Transcript{}, a.Complete())
}

func TestTranscriptSnapshotIsACopy(t *testing.T) {
	var a TranscriptAggregator
	snap := a.AddUser("one")
	a.AddUser(" two")
	assert.Equal(t, "one", snap.User)
	assert.Equal(t, "one two", a.Snapshot().User)
}
