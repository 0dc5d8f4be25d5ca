// Package session implements the client side of the media backend protocol:
// debounced scans, the catalog of the last scan and the active download.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediagrab/internal/catalog"
	"mediagrab/internal/clock"
	"mediagrab/internal/models"
	"mediagrab/internal/wsconn"
)

// PathChooser resolves a destination directory out of band.
type PathChooser interface {
	Choose(ctx context.Context) (string, error)
}

type closableTransport interface {
	Transport
	Close() error
}

// Options configures an Orchestrator.
type Options struct {
	BackendURL         string
	Debounce           time.Duration
	ScanRetry          time.Duration
	ReconnectDelay     time.Duration
	CompletionDwell    time.Duration
	MaxConnectAttempts int
	URLPattern         *regexp.Regexp

	Clock  clock.Clock
	Logger *slog.Logger

	// OnEvent receives every event after the state change it describes has
	// been applied. It is called without internal locks held.
	OnEvent func(Event)

	// transport replaces the websocket connection in tests.
	transport closableTransport
}

// Snapshot is a copy of everything the presentation layer may show.
type Snapshot struct {
	SessionID       string                 `json:"session_id"`
	Connected       bool                   `json:"connected"`
	ScanState       models.ScanState       `json:"scan_state"`
	ConnectAttempts int                    `json:"connect_attempts"`
	Media           *models.MediaReference `json:"media,omitempty"`
	Category        models.Category        `json:"category"`
	Catalog         *catalog.View          `json:"catalog,omitempty"`
	Job             *models.DownloadJob    `json:"job,omitempty"`
	LastError       string                 `json:"last_error,omitempty"`
	Destination     string                 `json:"destination"`
}

// Orchestrator is the single object a presentation layer talks to. All state
// transitions happen under one mutex so scan and job handling never overlap.
type Orchestrator struct {
	id      string
	logger  *slog.Logger
	clock   clock.Clock
	onEvent func(Event)

	mu          sync.Mutex
	conn        closableTransport
	scan        *ScanController
	job         *JobController
	media       *models.MediaReference
	formats     *models.FormatLists
	view        *catalog.View
	category    models.Category
	lastErr     string
	destination string
	closed      bool
	pending     []Event
}

// New builds an Orchestrator. Call Start to open the backend connection.
func New(opts Options) *Orchestrator {
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", id)
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	o := &Orchestrator{
		id:          id,
		logger:      logger,
		clock:       clk,
		onEvent:     opts.OnEvent,
		category:    models.CategoryVideo,
		destination: models.DefaultDestination,
	}

	o.conn = opts.transport
	if o.conn == nil {
		o.conn = wsconn.New(wsconn.Options{
			URL:            opts.BackendURL,
			ReconnectDelay: opts.ReconnectDelay,
			Clock:          clk,
			Logger:         logger,
			OnOpen:         o.handleOpen,
			OnClose:        o.handleClose,
			OnMessage:      o.handleMessage,
		})
	}

	o.scan = newScanController(ScanConfig{
		Debounce:           opts.Debounce,
		Retry:              opts.ScanRetry,
		MaxConnectAttempts: opts.MaxConnectAttempts,
		Pattern:            opts.URLPattern,
	}, o.conn, o.after, o.emit, logger)
	o.job = newJobController(o.conn, o.after, o.emit, clk, opts.CompletionDwell, logger)
	return o
}

// ID returns the session identifier.
func (o *Orchestrator) ID() string { return o.id }

// Start opens the backend connection.
func (o *Orchestrator) Start() {
	o.conn.Connect()
}

// OnInput handles an edit of the URL field.
func (o *Orchestrator) OnInput(text string) {
	o.do(func() {
		o.clearCatalog()
		o.lastErr = ""
		o.scan.OnInput(text)
	})
}

// ForceScan scans url without waiting for the debounce window.
func (o *Orchestrator) ForceScan(url string) error {
	var err error
	o.do(func() {
		if err = o.scan.ForceScan(url); err == nil {
			o.clearCatalog()
			o.lastErr = ""
		}
	})
	return err
}

// SwitchCategory re-renders the retained formats for category without refetching.
func (o *Orchestrator) SwitchCategory(category models.Category) error {
	if _, err := models.ParseCategory(string(category)); err != nil {
		return err
	}
	o.do(func() {
		o.category = category
		if o.formats == nil {
			return
		}
		view := catalog.Build(*o.formats, category)
		o.view = &view
		o.emit(Event{Kind: EventCatalog, Catalog: o.copyView()})
	})
	return nil
}

// Download starts a job for formatID on the last scanned media.
func (o *Orchestrator) Download(formatID string) error {
	var err error
	o.do(func() {
		if o.media == nil {
			err = ErrNoMedia
			return
		}
		o.job.Start(o.media.URL, formatID, o.destination)
	})
	return err
}

// Cancel stops the active download.
func (o *Orchestrator) Cancel() error {
	var err error
	o.do(func() { err = o.job.Cancel() })
	return err
}

// SetDestination stores the path forwarded with the next download.
func (o *Orchestrator) SetDestination(path string) {
	o.do(func() {
		if path == "" {
			path = models.DefaultDestination
		}
		o.destination = path
	})
}

// ChooseDestination asks chooser for a path. The default sentinel keeps the
// previous selection.
func (o *Orchestrator) ChooseDestination(ctx context.Context, chooser PathChooser) (string, error) {
	path, err := chooser.Choose(ctx)
	if err != nil {
		return "", fmt.Errorf("choose destination: %w", err)
	}
	var current string
	o.do(func() {
		if path != "" && path != models.DefaultDestination {
			o.destination = path
		}
		current = o.destination
	})
	return current, nil
}

// Snapshot returns a copy of the presentation state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := Snapshot{
		SessionID:       o.id,
		Connected:       o.conn.IsOpen(),
		ScanState:       o.scan.State(),
		ConnectAttempts: o.scan.Attempts(),
		Category:        o.category,
		Catalog:         o.copyView(),
		Job:             o.job.Job(),
		LastError:       o.lastErr,
		Destination:     o.destination,
	}
	if o.media != nil {
		m := *o.media
		snap.Media = &m
	}
	return snap
}

// Close stops all timers and closes the connection without reconnecting.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	o.closed = true
	o.scan.Stop()
	o.job.Stop()
	o.mu.Unlock()
	return o.conn.Close()
}

func (o *Orchestrator) handleOpen() {
	o.do(func() {
		o.emit(Event{Kind: EventConnection, Connected: true})
		o.scan.ConnectionOpened()
		o.job.ConnectionOpened()
	})
}

func (o *Orchestrator) handleClose(err error) {
	o.do(func() {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		o.emit(Event{Kind: EventConnection, Connected: false, Message: msg})
	})
}

func (o *Orchestrator) handleMessage(msg models.Inbound) {
	o.do(func() {
		if msg.Status != "" {
			handled := o.scan.HandleResponse(msg)
			if !handled && msg.Status == models.StatusError {
				o.emit(Event{Kind: EventAlert, Message: msg.Message})
			}
		}
		if msg.State == "" {
			return
		}
		if msg.State == models.StateFetching {
			if o.scan.InFlight() {
				o.emit(Event{Kind: EventScanAck, Message: msg.Message})
			}
			return
		}
		if !o.job.HandleProgress(msg) {
			o.logger.Debug("ignoring unknown progress state", "state", msg.State)
		}
	})
}

// do runs fn under the session lock and then delivers the events it produced.
func (o *Orchestrator) do(fn func()) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	fn()
	events := o.pending
	o.pending = nil
	o.mu.Unlock()

	if o.onEvent == nil {
		return
	}
	for _, ev := range events {
		o.onEvent(ev)
	}
}

func (o *Orchestrator) after(d time.Duration, fn func()) clock.Timer {
	return o.clock.AfterFunc(d, func() { o.do(fn) })
}

// emit records an event and applies its effect on the session-level state.
// Callers hold o.mu.
func (o *Orchestrator) emit(ev Event) {
	switch ev.Kind {
	case EventScanResolved:
		o.media = ev.Media
		o.formats = ev.formats
		view := catalog.Build(*ev.formats, o.category)
		o.view = &view
		o.lastErr = ""
		ev.Catalog = o.copyView()
		ev.formats = nil
	case EventScanFailed:
		o.clearCatalog()
		o.lastErr = ev.Message
	case EventAlert:
		o.lastErr = ev.Message
	}
	o.pending = append(o.pending, ev)
}

func (o *Orchestrator) clearCatalog() {
	o.formats = nil
	o.view = nil
}

func (o *Orchestrator) copyView() *catalog.View {
	if o.view == nil {
		return nil
	}
	cards := make([]catalog.Card, len(o.view.Cards))
	copy(cards, o.view.Cards)
	return &catalog.View{Category: o.view.Category, Cards: cards}
}
