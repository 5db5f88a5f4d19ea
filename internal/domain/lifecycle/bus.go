package lifecycle

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrBusClosed = errors.New("lifecycle bus is closed")

// Kind identifies a lifecycle broadcast.
type Kind string

const (
	IdleStart Kind = "idle-start"
	IdleEnd   Kind = "idle-end"
)

// Kinds lists every kind the bus carries.
var Kinds = []Kind{IdleStart, IdleEnd}

// Event is an immutable broadcast value.
type Event struct {
	Kind Kind
	At   time.Time
	// IdleSince is set on idle-start; Idle is the idle duration on idle-end.
	IdleSince time.Time
	Idle      time.Duration
	Reason    string
}

// Listener reacts to a broadcast. Listeners run synchronously on the
// emitting goroutine and must not re-enter the emitter.
type Listener func(Event)

// Emitter publishes lifecycle events.
type Emitter interface {
	Emit(Event)
}

// Subscriber registers listeners.
type Subscriber interface {
	Subscribe(kind Kind, l Listener) (*Subscription, error)
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	ID     uuid.UUID
	Kind   Kind
	bus    *Bus
	active atomic.Bool
	fn     Listener
}

// Unsubscribe removes the listener. Safe to call any number of times.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.active.CompareAndSwap(true, false) {
		return
	}
	s.bus.remove(s)
}

// Active reports whether the listener is still registered.
func (s *Subscription) Active() bool {
	return s != nil && s.active.Load()
}

// Bus is an in-process pub/sub channel for lifecycle events. It keeps no
// history: a listener only sees broadcasts emitted after it subscribed.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Kind][]*Subscription
	closed bool
	logger *zap.Logger

	emitted atomic.Uint64
}

// New creates an empty bus.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[Kind][]*Subscription),
		logger: logger,
	}
}

// Subscribe registers l for kind.
func (b *Bus) Subscribe(kind Kind, l Listener) (*Subscription, error) {
	if l == nil {
		return nil, errors.New("lifecycle: nil listener")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	sub := &Subscription{ID: uuid.New(), Kind: kind, bus: b, fn: l}
	sub.active.Store(true)
	b.subs[kind] = append(b.subs[kind], sub)
	return sub, nil
}

// SubscribeIdle registers a pair of idle-start/idle-end listeners and returns
// a single disposer for both. Either listener may be nil.
func (b *Bus) SubscribeIdle(onStart, onEnd Listener) (func(), error) {
	var subs []*Subscription
	dispose := func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}

	pairs := []struct {
		kind Kind
		fn   Listener
	}{{IdleStart, onStart}, {IdleEnd, onEnd}}

	for _, p := range pairs {
		if p.fn == nil {
			continue
		}
		s, err := b.Subscribe(p.kind, p.fn)
		if err != nil {
			dispose()
			return func() {}, err
		}
		subs = append(subs, s)
	}
	return dispose, nil
}

// Emit delivers e to the listeners of e.Kind in registration order.
// A panicking listener is logged and skipped.
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	listeners := append([]*Subscription(nil), b.subs[e.Kind]...)
	b.mu.RUnlock()

	b.emitted.Add(1)
	for _, sub := range listeners {
		// a listener removed earlier in this broadcast must not be called
		if !sub.active.Load() {
			continue
		}
		b.deliver(sub, e)
	}
}

func (b *Bus) deliver(sub *Subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Lifecycle listener panicked",
				zap.String("kind", string(e.Kind)),
				zap.String("subscription", sub.ID.String()),
				zap.Any("panic", r),
			)
		}
	}()
	sub.fn(e)
}

// Len returns the number of listeners registered for kind.
func (b *Bus) Len(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// Emitted returns the total number of broadcasts.
func (b *Bus) Emitted() uint64 {
	return b.emitted.Load()
}

// Close drops every subscription. Later Emit calls are ignored and
// Subscribe returns ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, s := range subs {
			s.active.Store(false)
		}
	}
	b.subs = make(map[Kind][]*Subscription)
}

func (b *Bus) remove(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[target.Kind]
	for i, s := range subs {
		if s == target {
			b.subs[target.Kind] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}
