package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	// DefaultDestination lets the backend choose where the file is written.
	DefaultDestination = "Default"
	// BestAudioFormatID asks the backend for its best audio stream converted to mp3.
	BestAudioFormatID = "best_audio"
	// AudioQuality is the quality label carried by every audio-only rendition.
	AudioQuality = "Audio Only"
)

// ScanState tracks the lifecycle of a metadata scan.
type ScanState string

const (
	ScanIdle               ScanState = "idle"
	ScanPendingDebounce    ScanState = "pending_debounce"
	ScanAwaitingConnection ScanState = "awaiting_connection"
	ScanInFlight           ScanState = "in_flight"
	ScanResolved           ScanState = "resolved"
	ScanFailed             ScanState = "failed"
)

// JobPhase is the progress phase of a download job.
type JobPhase string

const (
	PhaseInitializing JobPhase = "initializing"
	PhaseProcessing   JobPhase = "processing"
	PhaseConverting   JobPhase = "converting"
	PhaseCompleted    JobPhase = "completed"
	PhaseErrored      JobPhase = "errored"
	PhaseCancelled    JobPhase = "cancelled"
)

// IsTerminal reports whether no further transition may leave the phase.
func (p JobPhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseErrored || p == PhaseCancelled
}

// Category selects one half of a catalog.
type Category string

const (
	CategoryVideo Category = "video"
	CategoryAudio Category = "audio"
)

// ParseCategory validates a category name.
func ParseCategory(v string) (Category, error) {
	switch Category(v) {
	case CategoryVideo, CategoryAudio:
		return Category(v), nil
	default:
		return "", fmt.Errorf("unknown category %q", v)
	}
}

// Label is a free-form text field the backend sends either as a string or a number.
type Label string

func (l *Label) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Label(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("label must be a string or number: %w", err)
	}
	*l = Label(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

// FormatEntry is one downloadable rendition as reported by the backend.
type FormatEntry struct {
	FormatID string `json:"format_id"`
	Quality  Label  `json:"quality"`
	Ext      string `json:"ext"`
	Size     string `json:"size,omitempty"`
	Note     string `json:"note,omitempty"`
}

// FormatLists holds the raw per-category listings of a scan result.
type FormatLists struct {
	Video []FormatEntry `json:"video"`
	Audio []FormatEntry `json:"audio"`
}

// MediaReference identifies the media item of the last successful scan.
type MediaReference struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Author    string `json:"author,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// DownloadJob is the client-side record of one download.
type DownloadJob struct {
	FormatID        string    `json:"format_id"`
	URL             string    `json:"url"`
	DestinationPath string    `json:"destination_path"`
	Phase           JobPhase  `json:"phase"`
	Percent         float64   `json:"percent"`
	Message         string    `json:"message,omitempty"`
	StartedAt       time.Time `json:"started_at"`
}

// Outbound actions.
const (
	ActionFetchInfo = "fetch_info"
	ActionDownload  = "download"
	ActionCancel    = "cancel"
)

// FetchInfoRequest asks the backend to inspect a URL.
type FetchInfoRequest struct {
	Action    string `json:"action"`
	URL       string `json:"url"`
	RequestID uint64 `json:"request_id,omitempty"`
}

// DownloadRequest starts a download of one rendition.
type DownloadRequest struct {
	Action       string `json:"action"`
	URL          string `json:"url"`
	FormatID     string `json:"format_id"`
	DownloadPath string `json:"download_path"`
}

// CancelRequest asks the backend to stop the current download.
type CancelRequest struct {
	Action   string `json:"action"`
	URL      string `json:"url"`
	FormatID string `json:"format_id"`
}

// Scan response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Progress states.
const (
	StateFetching   = "fetching"
	StateStarting   = "starting"
	StateProcessing = "processing"
	StateConverting = "converting"
	StateCompleted  = "completed"
	StateError      = "error"
)

// Inbound is any message received from the backend. Status and State are
// independent discriminants and either, both or neither may be set.
type Inbound struct {
	Status    string       `json:"status,omitempty"`
	State     string       `json:"state,omitempty"`
	Message   string       `json:"message,omitempty"`
	RequestID uint64       `json:"request_id,omitempty"`
	Progress  *float64     `json:"progress,omitempty"`
	Formats   *FormatLists `json:"formats,omitempty"`
	ID        Label        `json:"id,omitempty"`
	Title     string       `json:"title,omitempty"`
	Author    string       `json:"author,omitempty"`
	Duration  Label        `json:"duration,omitempty"`
	Thumbnail string       `json:"thumbnail,omitempty"`
	Filename  string       `json:"filename,omitempty"`
}
