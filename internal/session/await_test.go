package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"mediagrab/internal/models"
)

func TestAwaitMatchesAndObserves(t *testing.T) {
	events, send, stop := Channel(4)
	defer stop()
	send(Event{Kind: EventScanState, ScanState: models.ScanInFlight})
	send(Event{Kind: EventScanResolved, URL: "https://youtu.be/a"})

	var seen []EventKind
	ev, err := Await(context.Background(), events,
		func(ev Event) { seen = append(seen, ev.Kind) },
		func(ev Event) bool { return ev.Kind == EventScanResolved })
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if ev.URL != "https://youtu.be/a" {
		t.Errorf("URL = %q, expected https://youtu.be/a", ev.URL)
	}
	if len(seen) != 2 {
		t.Errorf("observed %d events, expected 2", len(seen))
	}
}

func TestAwaitTimeout(t *testing.T) {
	events, _, stop := Channel(1)
	defer stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Await(ctx, events, nil, func(Event) bool { return true })
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Await() error = %v, expected ErrTimeout", err)
	}
}

func TestChannelStopUnblocksSend(t *testing.T) {
	_, send, stop := Channel(1)
	send(Event{Kind: EventAlert})
	stop()
	stop()

	done := make(chan struct{})
	go func() {
		send(Event{Kind: EventAlert})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send blocked after stop")
	}
}
