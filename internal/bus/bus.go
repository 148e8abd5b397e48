// Package bus is the in-process publish/subscribe channel between the control
// core and its consumers. Publishing never blocks; a single dispatcher
// delivers events in FIFO order to the handlers of their kind.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"usv-kernel/internal/logging"
)

// Handler consumes one event. A returned error or a panic is logged and
// counted; it never stops delivery to other handlers.
type Handler func(ctx context.Context, ev Event) error

type subscriber struct {
	name    string
	handler Handler
}

// Bus is an unbounded FIFO event queue with per-kind subscriber lists.
type Bus struct {
	mu     sync.Mutex
	subs   map[Kind][]subscriber
	queue  []Event
	notify chan struct{}

	published  atomic.Uint64
	dispatched atomic.Uint64
	failures   atomic.Uint64

	now func() time.Time
	log *slog.Logger
}

// New returns an empty bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[Kind][]subscriber),
		notify: make(chan struct{}, 1),
		now:    time.Now,
		log:    logger.With("component", "bus"),
	}
}

// Subscribe registers h for events of kind. Handlers of one kind run in
// registration order. name only shows up in logs.
func (b *Bus) Subscribe(kind Kind, name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[kind] = append(b.subs[kind], subscriber{name: name, handler: h})
}

// Publish enqueues p. Safe from any goroutine, never blocks.
func (b *Bus) Publish(p Payload) {
	ev := Event{Kind: p.Kind(), Payload: p, At: b.now()}
	b.mu.Lock()
	b.queue = append(b.queue, ev)
	b.mu.Unlock()
	b.published.Add(1)
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Len reports the number of queued, undelivered events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Failures reports how many handler invocations failed or panicked.
func (b *Bus) Failures() uint64 { return b.failures.Load() }

// Published reports how many events were enqueued.
func (b *Bus) Published() uint64 { return b.published.Load() }

// Dispatched reports how many events were delivered.
func (b *Bus) Dispatched() uint64 { return b.dispatched.Load() }

func (b *Bus) pop() (Event, []subscriber, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return Event{}, nil, false
	}
	ev := b.queue[0]
	b.queue[0] = Event{}
	b.queue = b.queue[1:]
	if len(b.queue) == 0 {
		b.queue = nil
	}
	return ev, b.subs[ev.Kind], true
}

// Run dispatches until ctx is done, then delivers whatever is still queued
// and returns.
func (b *Bus) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("starting event dispatch")
	for {
		b.DispatchPending(ctx)
		select {
		case <-b.notify:
		case <-ctx.Done():
			n := b.DispatchPending(context.WithoutCancel(ctx))
			log.Info("stopping event dispatch", "drained", n)
			return nil
		}
	}
}

// DispatchPending delivers queued events synchronously until the queue is
// empty and returns how many were delivered. Events published by handlers
// during the call are delivered too.
func (b *Bus) DispatchPending(ctx context.Context) int {
	n := 0
	for {
		ev, subs, ok := b.pop()
		if !ok {
			return n
		}
		for _, s := range subs {
			if err := b.deliver(ctx, s, ev); err != nil {
				b.failures.Add(1)
				b.log.Error("subscriber failed", "subscriber", s.name, "kind", ev.Kind, "err", err)
			}
		}
		b.dispatched.Add(1)
		n++
	}
}

func (b *Bus) deliver(ctx context.Context, s subscriber, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return s.handler(ctx, ev)
}
