package api

import (
	"sync"

	"shiproute/internal/model"
)

// SSEEvent is one optimization event as it travels through a broker.
type SSEEvent struct {
	Type string                  `json:"type"`
	Data model.OptimizationEvent `json:"data"`
}

// EventBroker fans optimization events out to subscribers of a run.
type EventBroker interface {
	Subscribe(runID string) chan SSEEvent
	Unsubscribe(runID string, ch chan SSEEvent)
	Publish(runID string, evt SSEEvent)
}

// Broker is the in-process EventBroker. Slow subscribers drop progress
// events rather than block the optimizer; terminal events are always kept.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{} // runId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(runID string) chan SSEEvent {
	ch := make(chan SSEEvent, 16)
	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = map[chan SSEEvent]struct{}{}
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(runID string, ch chan SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[runID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, runID)
	}
	close(ch)
}

func (b *Broker) Publish(runID string, evt SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[runID] {
		offer(ch, evt)
	}
}

// offer sends evt without blocking. When ch is full a progress event is
// dropped, while a terminal event evicts the oldest buffered event so the
// subscriber always learns that the run ended. Callers must be the only
// sender on ch.
func offer(ch chan SSEEvent, evt SSEEvent) {
	for {
		select {
		case ch <- evt:
			return
		default:
		}
		if !terminal(evt.Data) {
			return
		}
		select {
		case <-ch:
		default:
		}
	}
}
