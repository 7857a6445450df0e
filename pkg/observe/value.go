package observe

import (
	"context"
	"sync"
)

// Value is an observable container holding the latest published element.
// The zero value is not usable; create instances with NewValue.
// Value is safe for concurrent use.
type Value[T any] struct {
	mu   sync.Mutex
	cur  T
	subs map[*Subscription[T]]struct{}
}

// NewValue creates a Value whose current element is initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		cur:  initial,
		subs: make(map[*Subscription[T]]struct{}),
	}
}

// Current returns the latest published element.
func (v *Value[T]) Current() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set publishes val: it becomes the current element and is delivered, in
// publish order, to every live subscription. Set never blocks on consumers.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.cur = val
	for sub := range v.subs {
		sub.push(val)
	}
}

// Subscribe creates an independent subscription. Its first element is the
// value current at subscription time; every subsequent Set is delivered after
// it with no gap in between.
func (v *Value[T]) Subscribe() *Subscription[T] {
	v.mu.Lock()
	defer v.mu.Unlock()

	sub := &Subscription[T]{
		value: v,
		wake:  make(chan struct{}, 1),
		out:   make(chan T),
		done:  make(chan struct{}),
	}
	// Seed with the snapshot while holding the publisher lock so no update
	// can slip between the snapshot and the first live element.
	sub.queue = append(sub.queue, v.cur)
	v.subs[sub] = struct{}{}

	go sub.pump()
	return sub
}

// unsubscribe removes sub from the delivery set.
func (v *Value[T]) unsubscribe(sub *Subscription[T]) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.subs, sub)
}

// Subscription is one live subscription to a Value. Elements are read from C.
// A Subscription buffers internally, so the publisher is never blocked by a
// consumer that has stopped reading; Cancel releases the buffer.
type Subscription[T any] struct {
	value *Value[T]

	mu    sync.Mutex
	queue []T

	wake chan struct{}
	out  chan T
	done chan struct{}
	once sync.Once
}

// C returns the element channel. It is closed after Cancel.
func (s *Subscription[T]) C() <-chan T {
	return s.out
}

// Next returns the next element, waiting until one is available or ctx is
// done. After Cancel it returns ErrSubscriptionCancelled.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	select {
	case el, ok := <-s.out:
		if !ok {
			var zero T
			return zero, ErrSubscriptionCancelled
		}
		return el, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel ends the subscription and closes C. It is idempotent and never
// affects other subscriptions on the same Value.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		s.value.unsubscribe(s)
		close(s.done)
	})
}

// push appends an element for delivery. Called with the Value lock held.
func (s *Subscription[T]) push(el T) {
	s.mu.Lock()
	s.queue = append(s.queue, el)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump moves buffered elements to the out channel in FIFO order.
func (s *Subscription[T]) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		el := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- el:
		case <-s.done:
			return
		}
	}
}
