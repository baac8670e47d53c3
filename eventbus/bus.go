// Package eventbus provides a small typed publish/subscribe primitive keyed by
// event name. Components embed a Bus by value instead of inheriting from a
// shared emitter.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrUnknownSubscription = errors.New("unknown subscription")
	ErrTimeout             = errors.New("timeout waiting for event")
)

type Handler[T any] func(payload T)

// Subscription identifies a registered handler. It is the only way to remove a
// single handler since Go funcs are not comparable.
type Subscription uint64

type subscriber[T any] struct {
	id      Subscription
	handler Handler[T]
	once    bool
}

type Bus[T any] struct {
	mu       sync.Mutex
	handlers map[string][]subscriber[T]
	nextID   Subscription
}

func (b *Bus[T]) add(name string, h Handler[T], once bool) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers == nil {
		b.handlers = make(map[string][]subscriber[T])
	}
	b.nextID++
	b.handlers[name] = append(b.handlers[name], subscriber[T]{id: b.nextID, handler: h, once: once})
	return b.nextID
}

// On registers h for name. Handlers run in registration order.
func (b *Bus[T]) On(name string, h Handler[T]) Subscription {
	return b.add(name, h, false)
}

// Once registers h for the next dispatch of name only.
func (b *Bus[T]) Once(name string, h Handler[T]) Subscription {
	return b.add(name, h, true)
}

// Off removes the given subscriptions for name, or every handler of name if
// none are given.
func (b *Bus[T]) Off(name string, subs ...Subscription) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(subs) == 0 {
		delete(b.handlers, name)
		return nil
	}

	for _, sub := range subs {
		if !b.removeLocked(name, sub) {
			return fmt.Errorf("%w: %d for %q", ErrUnknownSubscription, sub, name)
		}
	}
	return nil
}

func (b *Bus[T]) removeLocked(name string, sub Subscription) bool {
	list := b.handlers[name]
	for i, s := range list {
		if s.id == sub {
			b.handlers[name] = append(list[:i:i], list[i+1:]...)
			if len(b.handlers[name]) == 0 {
				delete(b.handlers, name)
			}
			return true
		}
	}
	return false
}

// Clear removes every handler for every name.
func (b *Bus[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = nil
}

// Dispatch calls every handler currently registered for name, synchronously and
// in registration order. Handlers may subscribe or unsubscribe while running;
// changes take effect from the next dispatch.
func (b *Bus[T]) Dispatch(name string, payload T) {
	b.mu.Lock()
	list := b.handlers[name]
	snapshot := make([]subscriber[T], len(list))
	copy(snapshot, list)
	for _, s := range snapshot {
		if s.once {
			b.removeLocked(name, s.id)
		}
	}
	b.mu.Unlock()

	for _, s := range snapshot {
		s.handler(payload)
	}
}

// Len returns the number of handlers registered for name.
func (b *Bus[T]) Len(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[name])
}

// WaitForNext blocks until the next dispatch of name. A zero timeout waits
// until ctx is done.
func (b *Bus[T]) WaitForNext(ctx context.Context, name string, timeout time.Duration) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ch := make(chan T, 1)
	sub := b.Once(name, func(payload T) {
		ch <- payload
	})

	select {
	case payload := <-ch:
		return payload, nil
	case <-ctx.Done():
		_ = b.Off(name, sub)
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %s", ErrTimeout, name)
		}
		return zero, ctx.Err()
	}
}
