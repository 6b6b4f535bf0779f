package live

// Transcript holds the text accumulated for one turn.
type Transcript struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// TranscriptAggregator accumulates transcript fragments for the current turn.
// Snapshots are copies; the zero value is ready to use.
type TranscriptAggregator struct {
	cur Transcript
}

func (a *TranscriptAggregator) AddUser(fragment string) Transcript {
	a.cur.User += fragment
	return a.cur
}

func (a *TranscriptAggregator) AddAssistant(fragment string) Transcript {
	a.cur.Assistant += fragment
	return a.cur
}

func (a *TranscriptAggregator) Snapshot() Transcript {
	return a.cur
}

// Complete returns the finalized turn and resets both accumulators.
func (a *TranscriptAggregator) Complete() Transcript {
	out := a.cur
	a.cur = Transcript{}
	return out
}
