package events

import (
	"sync"
	"sync/atomic"
)

type subscriber struct {
	ch    chan Progress
	kinds map[Kind]bool // empty means all kinds
}

// Bus is a Sink that fans events out to subscribers. Slow subscribers lose
// their oldest buffered events instead of stalling the run.
type Bus struct {
	mu         sync.RWMutex
	subs       []*subscriber
	bufferSize int
	dropped    atomic.Int64
	closed     bool
}

// NewBus creates a bus whose subscriptions buffer bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{bufferSize: bufferSize}
}

// Subscribe returns a channel receiving events of the given kinds, or all
// events when none are given, and a function that ends the subscription.
func (b *Bus) Subscribe(kinds ...Kind) (<-chan Progress, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{
		ch:    make(chan Progress, b.bufferSize),
		kinds: make(map[Kind]bool, len(kinds)),
	}
	for _, k := range kinds {
		sub.kinds[k] = true
	}
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs = append(b.subs, sub)

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { b.unsubscribe(sub) })
	}
}

func (b *Bus) unsubscribe(target *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Emit publishes p to every matching subscriber without blocking.
func (b *Bus) Emit(p Progress) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if len(sub.kinds) > 0 && !sub.kinds[p.Kind] {
			continue
		}
		select {
		case sub.ch <- p:
			continue
		default:
		}
		// Buffer full: drop the oldest and retry once.
		select {
		case <-sub.ch:
			b.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- p:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many events were discarded for slow subscribers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscription channel. Later Emits are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}

var _ Sink = (*Bus)(nil)
