package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Await reads events until match accepts one. Every event read is passed to
// observe first when it is non-nil. A context deadline is reported as
// ErrTimeout; a closed channel as ErrTransportUnavailable.
func Await(ctx context.Context, events <-chan Event, observe func(Event), match func(Event) bool) (Event, error) {
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Event{}, ErrTimeout
			}
			return Event{}, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return Event{}, fmt.Errorf("event stream closed: %w", ErrTransportUnavailable)
			}
			if observe != nil {
				observe(ev)
			}
			if match(ev) {
				return ev, nil
			}
		}
	}
}

// Channel returns an OnEvent callback that forwards into a buffered channel
// and a stop function. After stop, pending sends are dropped instead of
// blocking the session.
func Channel(size int) (<-chan Event, func(Event), func()) {
	ch := make(chan Event, size)
	done := make(chan struct{})
	send := func(ev Event) {
		select {
		case ch <- ev:
		case <-done:
		}
	}
	var once sync.Once
	return ch, send, func() { once.Do(func() { close(done) }) }
}
