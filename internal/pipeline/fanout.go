package pipeline

import (
	"sync"

	"sanatrack/safety-engine/internal/metrics"
)

// Fanout copies each event onto every sink channel. A full channel drops
// the event for that sink only; the in-memory stores stay authoritative.
// A nil channel means the sink is disabled. Events published after Close
// are dropped.
type Fanout struct {
	ArchiveChan chan Event
	StateChan   chan Event
	StreamChan  chan Event

	mu     sync.RWMutex
	closed bool
}

func NewFanout(archiveSize, stateSize, streamSize int) *Fanout {
	f := &Fanout{}
	if archiveSize > 0 {
		f.ArchiveChan = make(chan Event, archiveSize)
	}
	if stateSize > 0 {
		f.StateChan = make(chan Event, stateSize)
	}
	if streamSize > 0 {
		f.StreamChan = make(chan Event, streamSize)
	}
	return f
}

func (f *Fanout) Publish(ev Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		metrics.SinkDrops.WithLabelValues("closed").Inc()
		return
	}
	offer(f.ArchiveChan, ev, "archive")
	offer(f.StateChan, ev, "state")
	offer(f.StreamChan, ev, "stream")
}

// Close closes every sink channel so the writers drain and exit.
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range []chan Event{f.ArchiveChan, f.StateChan, f.StreamChan} {
		if ch != nil {
			close(ch)
		}
	}
}

func offer(ch chan Event, ev Event, sink string) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
		metrics.SinkDrops.WithLabelValues(sink).Inc()
	}
}
