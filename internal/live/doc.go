// Package live runs one realtime voice session against a remote conversational
// model: microphone blocks are encoded and streamed upstream, returned audio is
// sequenced onto an output clock for gapless playback, and tool calls,
// transcripts and interruption signals are multiplexed over the same session.
//
// All server events, playback completions and timers for a session are handled
// on a single loop goroutine, one at a time and in arrival order.
package live
