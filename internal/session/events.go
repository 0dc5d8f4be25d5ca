package session

import (
	"errors"
	"time"

	"mediagrab/internal/catalog"
	"mediagrab/internal/clock"
	"mediagrab/internal/models"
)

var (
	// ErrNoMedia is returned when a download is requested before any scan resolved.
	ErrNoMedia = errors.New("no media scanned")
	// ErrNoActiveJob is returned by Cancel when there is nothing to cancel.
	ErrNoActiveJob = errors.New("no active download")
	// ErrInvalidURL is returned by ForceScan for URLs the scanner does not recognise.
	ErrInvalidURL = errors.New("not a recognised video url")
	// ErrTransportUnavailable fails a scan once the configured connect attempts run out.
	ErrTransportUnavailable = errors.New("backend connection unavailable")
	// ErrTimeout is returned by Await when the context ends first.
	ErrTimeout = errors.New("timed out waiting for backend")
)

// EventKind names an Event.
type EventKind string

const (
	EventConnection   EventKind = "connection"
	EventScanState    EventKind = "scan_state"
	EventScanAck      EventKind = "scan_ack"
	EventScanResolved EventKind = "scan_resolved"
	EventScanFailed   EventKind = "scan_failed"
	EventCatalog      EventKind = "catalog"
	EventJob          EventKind = "job"
	EventJobCleared   EventKind = "job_cleared"
	EventAlert        EventKind = "alert"
)

// Event is a presentation-facing notification.
type Event struct {
	Kind      EventKind              `json:"kind"`
	Connected bool                   `json:"connected,omitempty"`
	ScanState models.ScanState       `json:"scan_state,omitempty"`
	URL       string                 `json:"url,omitempty"`
	Token     uint64                 `json:"token,omitempty"`
	Media     *models.MediaReference `json:"media,omitempty"`
	Catalog   *catalog.View          `json:"catalog,omitempty"`
	Job       *models.DownloadJob    `json:"job,omitempty"`
	Message   string                 `json:"message,omitempty"`

	formats *models.FormatLists
}

// Transport is the duplex channel the controllers send through.
type Transport interface {
	Connect()
	Send(v any) error
	IsOpen() bool
}

// scheduler arms a cancellable callback.
type scheduler func(d time.Duration, fn func()) clock.Timer

func stopTimer(t clock.Timer) {
	if t != nil {
		t.Stop()
	}
}
