package server

import (
	"sync"

	"github.com/jonathan/fineprint/internal/pipeline"
)

// subscriberBuffer is the per-client event buffer.
const subscriberBuffer = 128

// broadcast fans one run's event stream out to any number of SSE clients.
// Slow clients lose their oldest buffered events.
type broadcast struct {
	run *pipeline.Run

	mu   sync.Mutex
	subs map[chan pipeline.Event]struct{}
	done bool
	last *pipeline.Event
}

func newBroadcast(run *pipeline.Run) *broadcast {
	b := &broadcast{run: run, subs: make(map[chan pipeline.Event]struct{})}
	go b.pump()
	return b
}

func (b *broadcast) pump() {
	for e := range b.run.Events() {
		b.mu.Lock()
		for ch := range b.subs {
			deliver(ch, e)
		}
		if e.Type == pipeline.EventComplete {
			last := e
			b.last = &last
		}
		b.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.done = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// deliver sends e without blocking, discarding the oldest buffered event when full.
func deliver(ch chan pipeline.Event, e pipeline.Event) {
	for {
		select {
		case ch <- e:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// subscribe returns a channel of subsequent events and a function that
// releases it. Once the run has completed the channel holds only the
// complete event.
func (b *broadcast) subscribe() (<-chan pipeline.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan pipeline.Event, subscriberBuffer)
	if b.done || b.last != nil {
		if b.last != nil {
			ch <- *b.last
		}
		close(ch)
		return ch, func() {}
	}

	b.subs[ch] = struct{}{}
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}
