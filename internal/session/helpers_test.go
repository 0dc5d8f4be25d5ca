package session

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"mediagrab/internal/clock"
	"mediagrab/internal/models"
	"mediagrab/internal/wsconn"
)

type fakeTransport struct {
	mu       sync.Mutex
	open     bool
	connects int
	sent     []any
	closed   bool
}

func (f *fakeTransport) Connect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
}

func (f *fakeTransport) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return wsconn.ErrNotConnected
	}
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.open = false
	return nil
}

func (f *fakeTransport) setOpen(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = v
}

func (f *fakeTransport) connectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeTransport) fetches() []models.FetchInfoRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.FetchInfoRequest
	for _, v := range f.sent {
		if r, ok := v.(models.FetchInfoRequest); ok {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeTransport) downloads() []models.DownloadRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DownloadRequest
	for _, v := range f.sent {
		if r, ok := v.(models.DownloadRequest); ok {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeTransport) cancels() []models.CancelRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CancelRequest
	for _, v := range f.sent {
		if r, ok := v.(models.CancelRequest); ok {
			out = append(out, r)
		}
	}
	return out
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds(kind EventKind) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

type harness struct {
	o         *Orchestrator
	transport *fakeTransport
	clock     *clock.Fake
	events    *eventLog
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		transport: &fakeTransport{open: true},
		clock:     clock.NewFake(time.Unix(1_700_000_000, 0)),
		events:    &eventLog{},
	}
	opts := Options{
		Clock:     h.clock,
		Logger:    discardLogger(),
		OnEvent:   h.events.record,
		transport: h.transport,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.o = New(opts)
	t.Cleanup(func() { _ = h.o.Close() })
	return h
}

func successResponse(token uint64) models.Inbound {
	return models.Inbound{
		Status:    models.StatusSuccess,
		RequestID: token,
		ID:        "xyz",
		Title:     "A Video",
		Author:    "Someone",
		Duration:  "3:32",
		Formats: &models.FormatLists{
			Video: []models.FormatEntry{
				{FormatID: "137", Quality: "1080p", Ext: "mp4", Size: "40.1 MB"},
				{FormatID: "140", Quality: "Audio Only", Ext: "m4a"},
			},
			Audio: []models.FormatEntry{
				{FormatID: "140", Quality: "129", Ext: "m4a", Note: "129kbps", Size: "3.4 MB"},
				{FormatID: "139", Quality: "129", Ext: "m4a", Note: "129kbps", Size: "3.4 MB"},
				{FormatID: "251", Quality: "160", Ext: "webm", Note: "160kbps", Size: "4.0 MB"},
			},
		},
	}
}

// resolve runs a scan for url through to a successful response.
func (h *harness) resolve(t *testing.T, url string) {
	t.Helper()
	if err := h.o.ForceScan(url); err != nil {
		t.Fatalf("ForceScan(%q) error = %v", url, err)
	}
	fetches := h.transport.fetches()
	h.o.handleMessage(successResponse(fetches[len(fetches)-1].RequestID))
	if got := h.o.Snapshot().ScanState; got != models.ScanResolved {
		t.Fatalf("ScanState = %s after success, expected resolved", got)
	}
}
