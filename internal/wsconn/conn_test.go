package wsconn

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mediagrab/internal/clock"
	"mediagrab/internal/models"
)

const waitTimeout = 3 * time.Second

type backend struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	conns    chan *websocket.Conn
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{conns: make(chan *websocket.Conn, 8)}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.conns <- conn
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *backend) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-b.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(waitTimeout):
		t.Fatal("backend never received a connection")
		return nil
	}
}

type recorder struct {
	opened   chan struct{}
	closed   chan error
	messages chan models.Inbound
}

func newRecorder() *recorder {
	return &recorder{
		opened:   make(chan struct{}, 8),
		closed:   make(chan error, 8),
		messages: make(chan models.Inbound, 8),
	}
}

func (r *recorder) options(url string, clk clock.Clock) Options {
	return Options{
		URL:       url,
		Clock:     clk,
		OnOpen:    func() { r.opened <- struct{}{} },
		OnClose:   func(err error) { r.closed <- err },
		OnMessage: func(m models.Inbound) { r.messages <- m },
	}
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func TestSendWhenNotConnected(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:1/ws"})
	if c.IsOpen() {
		t.Fatal("IsOpen() = true before Connect")
	}
	if err := c.Send(models.FetchInfoRequest{Action: models.ActionFetchInfo}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, expected ErrNotConnected", err)
	}
}

func TestRoundTrip(t *testing.T) {
	b := newBackend(t)
	rec := newRecorder()
	c := New(rec.options(b.url(), clock.NewFake(time.Now())))
	t.Cleanup(func() { _ = c.Close() })

	c.Connect()
	server := b.accept(t)
	waitFor(t, rec.opened, "open")
	if !c.IsOpen() {
		t.Fatal("IsOpen() = false after open")
	}

	// A second Connect while open is a no-op.
	c.Connect()

	if err := c.Send(models.FetchInfoRequest{Action: models.ActionFetchInfo, URL: "https://youtu.be/abc", RequestID: 7}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	var req models.FetchInfoRequest
	if err := server.ReadJSON(&req); err != nil {
		t.Fatalf("server read: %v", err)
	}
	if req.Action != "fetch_info" || req.URL != "https://youtu.be/abc" || req.RequestID != 7 {
		t.Errorf("server got %+v", req)
	}

	_ = server.WriteMessage(websocket.TextMessage, []byte("not json"))
	_ = server.WriteMessage(websocket.TextMessage, []byte(`{"state":"processing","message":"Downloading: 5.0%"}`))

	msg := waitFor(t, rec.messages, "message")
	if msg.State != models.StateProcessing || msg.Message != "Downloading: 5.0%" {
		t.Errorf("received %+v", msg)
	}

	select {
	case <-b.conns:
		t.Error("second Connect opened another connection")
	default:
	}
}

func TestReconnectAfterAbnormalClose(t *testing.T) {
	b := newBackend(t)
	rec := newRecorder()
	fake := clock.NewFake(time.Now())
	c := New(rec.options(b.url(), fake))
	t.Cleanup(func() { _ = c.Close() })

	c.Connect()
	server := b.accept(t)
	waitFor(t, rec.opened, "open")

	_ = server.Close()
	waitFor(t, rec.closed, "close")

	if c.IsOpen() {
		t.Error("IsOpen() = true after server close")
	}
	if got := fake.Pending(); got != 1 {
		t.Fatalf("Pending() = %d reconnect timers, expected 1", got)
	}

	fake.Advance(500 * time.Millisecond)
	select {
	case <-b.conns:
		t.Fatal("reconnected before the delay elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	fake.Advance(500 * time.Millisecond)
	b.accept(t)
	waitFor(t, rec.opened, "reopen")
}

func TestReconnectRepeatsOnDialFailure(t *testing.T) {
	b := newBackend(t)
	url := b.url()
	b.srv.Close()

	rec := newRecorder()
	fake := clock.NewFake(time.Now())
	c := New(rec.options(url, fake))
	t.Cleanup(func() { _ = c.Close() })

	c.Connect()
	waitFor(t, rec.closed, "first failure")
	if got := fake.Pending(); got != 1 {
		t.Fatalf("Pending() = %d after first failure, expected 1", got)
	}

	fake.Advance(time.Second)
	waitFor(t, rec.closed, "second failure")
	if got := fake.Pending(); got != 1 {
		t.Fatalf("Pending() = %d after second failure, expected 1", got)
	}
}

func TestCloseDoesNotReconnect(t *testing.T) {
	b := newBackend(t)
	rec := newRecorder()
	fake := clock.NewFake(time.Now())
	c := New(rec.options(b.url(), fake))

	c.Connect()
	b.accept(t)
	waitFor(t, rec.opened, "open")

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := fake.Pending(); got != 0 {
		t.Errorf("Pending() = %d after Close, expected 0", got)
	}
	c.Connect()
	if c.IsOpen() {
		t.Error("Connect after Close reopened the connection")
	}
}

// lateClock hands scheduled callbacks to the test, which may run them even
// after Stop, the way a real timer that already fired does.
type lateClock struct {
	mu  sync.Mutex
	fns []func()
}

type lateTimer struct{ seq int }

func (*lateTimer) Stop() bool { return true }

func (l *lateClock) Now() time.Time { return time.Now() }

func (l *lateClock) AfterFunc(d time.Duration, fn func()) clock.Timer {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fns = append(l.fns, fn)
	return &lateTimer{seq: len(l.fns)}
}

func (l *lateClock) scheduled() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

func (l *lateClock) fire(i int) {
	l.mu.Lock()
	fn := l.fns[i]
	l.mu.Unlock()
	fn()
}

func TestSupersededReconnectTimerDoesNotDial(t *testing.T) {
	b := newBackend(t)
	url := b.url()
	b.srv.Close()

	rec := newRecorder()
	late := &lateClock{}
	c := New(rec.options(url, late))
	t.Cleanup(func() { _ = c.Close() })

	c.Connect()
	waitFor(t, rec.closed, "first failure")

	// An explicit Connect replaces the pending reconnect before it runs.
	c.Connect()
	waitFor(t, rec.closed, "second failure")
	if got := late.scheduled(); got != 2 {
		t.Fatalf("scheduled %d reconnects, expected 2", got)
	}

	late.fire(0)
	select {
	case err := <-rec.closed:
		t.Fatalf("stale reconnect timer dialed again: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	if got := late.scheduled(); got != 2 {
		t.Errorf("scheduled %d reconnects after stale fire, expected 2", got)
	}

	late.fire(1)
	waitFor(t, rec.closed, "third failure")
	if got := late.scheduled(); got != 3 {
		t.Errorf("scheduled %d reconnects after current fire, expected 3", got)
	}
}
