package voice

import (
	"time"

	"github.com/ent0n29/kindred/internal/observability"
	"github.com/ent0n29/kindred/internal/protocol"
)

const criticalSendTimeout = 600 * time.Millisecond

// sender writes to one connection's outbound queue. Critical messages wait
// briefly for room; high-rate messages are dropped when the queue is full.
type sender struct {
	outbound chan<- any
	metrics  *observability.Metrics
}

func (s sender) send(msg any) {
	msgType, critical := outboundMessageMeta(msg)
	record := func(result string) {
		s.metrics.WSMessages.WithLabelValues("outbound_"+result, msgType).Inc()
	}

	if !critical {
		select {
		case s.outbound <- msg:
			record("delivered")
		default:
			record("dropped")
			s.metrics.SessionEvents.WithLabelValues("outbound_drop").Inc()
		}
		return
	}

	timer := time.NewTimer(criticalSendTimeout)
	defer timer.Stop()
	select {
	case s.outbound <- msg:
		record("delivered")
	case <-timer.C:
		record("timeout")
		s.metrics.SessionEvents.WithLabelValues("outbound_timeout_critical").Inc()
	}
}

func outboundMessageMeta(msg any) (msgType string, critical bool) {
	switch m := msg.(type) {
	case protocol.LiveStatus:
		return string(m.Type), true
	case protocol.TurnComplete:
		return string(m.Type), true
	case protocol.PlaybackFlush:
		return string(m.Type), true
	case protocol.ToolCall:
		return string(m.Type), true
	case protocol.ActionStatus:
		return string(m.Type), true
	case protocol.SystemEvent:
		return string(m.Type), true
	case protocol.ErrorEvent:
		return string(m.Type), true
	case protocol.AssistantAudioChunk:
		// Dropping audio leaves a hole in the client's schedule.
		return string(m.Type), true
	case protocol.InputLevel:
		return string(m.Type), false
	case protocol.Transcript:
		return string(m.Type), false
	default:
		return "unknown", false
	}
}
