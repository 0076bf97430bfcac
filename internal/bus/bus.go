// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/quiltmemory/quilt/internal/log"
	"github.com/quiltmemory/quilt/internal/metrics"
)

// ErrClosed is returned by Publish once the bus has been closed.
var ErrClosed = errors.New("bus: closed")

// DefaultCapacity is the default number of events retained in the ring
// buffer before a lagging subscriber starts missing events.
const DefaultCapacity = 128

// Bus is a bounded, multi-consumer broadcast channel. Every subscriber
// observes the same sequence of events in publish order; a subscriber that
// cannot keep up skips forward and is told how much it missed via Lagged,
// rather than blocking the publisher or other subscribers.
type Bus struct {
	mu       sync.Mutex
	cond     *sync.Cond
	entries  []Event
	seq      []uint64
	writeSeq uint64
	capacity uint64
	closed   bool

	nextSubID uint64
}

// New constructs a Bus retaining up to capacity events. A capacity <= 0
// uses DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Bus{
		entries:  make([]Event, capacity),
		seq:      make([]uint64, capacity),
		capacity: uint64(capacity),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Publish appends an event to the ring buffer and wakes all subscribers.
// Publish never blocks on subscriber progress.
func (b *Bus) Publish(event Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	slot := b.writeSeq % b.capacity
	b.entries[slot] = event
	b.seq[slot] = b.writeSeq
	b.writeSeq++
	b.mu.Unlock()
	b.cond.Broadcast()

	metrics.BusEventsPublishedTotal.WithLabelValues(Name(event)).Inc()
	return nil
}

// Close unblocks every subscriber's pump goroutine and causes future
// Publish calls to fail with ErrClosed. Close does not wait for
// subscribers to drain their channels.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
	return nil
}

// Subscription delivers a private, lag-aware view of the bus to one consumer.
type Subscription struct {
	id     uint64
	bus    *Bus
	ch     chan Event
	cancel context.CancelFunc
	done   chan struct{}
}

// C returns the channel events (and Lagged signals) are delivered on. The
// channel is closed once the subscription is closed or the bus is closed
// and fully drained.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close stops the subscription's delivery goroutine and closes its channel.
func (s *Subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// Subscribe registers a new consumer starting at the current tip of the
// ring buffer (backlog published before Subscribe is not replayed). The
// subscription's pump goroutine runs until ctx is canceled or Close is
// called.
func (b *Bus) Subscribe(ctx context.Context, name string) *Subscription {
	b.mu.Lock()
	cursor := b.writeSeq
	b.nextSubID++
	id := b.nextSubID
	b.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		id:     id,
		bus:    b,
		ch:     make(chan Event, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if name == "" {
		name = fmt.Sprintf("sub-%d", id)
	}
	go sub.pump(subCtx, cursor, name)
	return sub
}

func (s *Subscription) pump(ctx context.Context, cursor uint64, name string) {
	defer close(s.done)
	defer close(s.ch)

	b := s.bus
	for {
		b.mu.Lock()
		for cursor == b.writeSeq && !b.closed && ctx.Err() == nil {
			b.cond.Wait()
		}
		if ctx.Err() != nil {
			b.mu.Unlock()
			return
		}
		if cursor == b.writeSeq && b.closed {
			b.mu.Unlock()
			return
		}

		var oldestAvailable uint64
		if b.writeSeq > b.capacity {
			oldestAvailable = b.writeSeq - b.capacity
		}
		if cursor < oldestAvailable {
			skipped := oldestAvailable - cursor
			cursor = oldestAvailable
			b.mu.Unlock()

			metrics.IncBusLag(name, skipped)
			log.WithComponent("bus").Warn().
				Str(log.FieldComponent, name).
				Uint64("skipped", skipped).
				Msg("subscriber lagged behind event bus retention window")

			if !s.deliver(ctx, Lagged{Skipped: skipped}) {
				return
			}
			continue
		}

		slot := cursor % b.capacity
		ev := b.entries[slot]
		cursor++
		b.mu.Unlock()

		if !s.deliver(ctx, ev) {
			return
		}
	}
}

func (s *Subscription) deliver(ctx context.Context, ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
