package session

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"mediagrab/internal/clock"
	"mediagrab/internal/models"
)

const (
	defaultDebounce  = 800 * time.Millisecond
	defaultScanRetry = 500 * time.Millisecond
)

const errNoFormats = "No formats found in response"

// DefaultURLPattern matches the video URLs the scanner reacts to.
var DefaultURLPattern = regexp.MustCompile(`youtu.?be`)

// ScanConfig tunes a ScanController.
type ScanConfig struct {
	Debounce time.Duration
	Retry    time.Duration
	// MaxConnectAttempts bounds how often a scan waits for the connection.
	// Zero retries forever.
	MaxConnectAttempts int
	Pattern            *regexp.Regexp
}

// ScanController debounces input and issues fetch_info requests. It is not
// safe for concurrent use; the Orchestrator serialises every call.
type ScanController struct {
	cfg       ScanConfig
	transport Transport
	after     scheduler
	emit      func(Event)
	logger    *slog.Logger

	state      models.ScanState
	pendingURL string
	currentURL string
	token      uint64
	live       uint64
	// outstanding lists sent fetch tokens not yet answered, oldest first.
	outstanding []uint64
	attempts    int
	gen         uint64

	debounceTimer clock.Timer
	retryTimer    clock.Timer
}

func newScanController(cfg ScanConfig, transport Transport, after scheduler, emit func(Event), logger *slog.Logger) *ScanController {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.Retry <= 0 {
		cfg.Retry = defaultScanRetry
	}
	if cfg.Pattern == nil {
		cfg.Pattern = DefaultURLPattern
	}
	return &ScanController{
		cfg:       cfg,
		transport: transport,
		after:     after,
		emit:      emit,
		logger:    logger,
		state:     models.ScanIdle,
	}
}

// State returns the current scan state.
func (s *ScanController) State() models.ScanState { return s.state }

// Attempts returns how many times the pending scan has waited for a connection.
func (s *ScanController) Attempts() int { return s.attempts }

// OnInput feeds the latest content of the URL field.
func (s *ScanController) OnInput(raw string) {
	text := strings.TrimSpace(raw)
	s.supersede()

	if text == "" || !s.cfg.Pattern.MatchString(text) {
		s.pendingURL = ""
		s.setState(models.ScanIdle)
		return
	}

	s.pendingURL = text
	s.setState(models.ScanPendingDebounce)
	gen := s.gen
	s.debounceTimer = s.after(s.cfg.Debounce, func() {
		if gen != s.gen {
			return
		}
		s.debounceTimer = nil
		s.issue(text, gen)
	})
}

// ForceScan issues a fetch immediately, skipping the debounce window.
func (s *ScanController) ForceScan(raw string) error {
	url := strings.TrimSpace(raw)
	if url == "" || !s.cfg.Pattern.MatchString(url) {
		return fmt.Errorf("%w: %q", ErrInvalidURL, url)
	}
	s.supersede()
	s.pendingURL = url
	s.issue(url, s.gen)
	return nil
}

// ConnectionOpened wakes a scan that is waiting for the transport. Requests
// sent on an earlier connection will never be answered, so an in-flight scan
// is sent again.
func (s *ScanController) ConnectionOpened() {
	s.outstanding = nil
	switch s.state {
	case models.ScanAwaitingConnection:
		stopTimer(s.retryTimer)
		s.retryTimer = nil
		s.issue(s.pendingURL, s.gen)
	case models.ScanInFlight:
		s.live = 0
		s.logger.Info("reissuing fetch info after reconnect", "url", s.currentURL)
		s.issue(s.currentURL, s.gen)
	}
}

// HandleResponse consumes a scan result. It reports false when no request
// sent on this connection accounts for the response. Answers to superseded
// requests are consumed and dropped.
func (s *ScanController) HandleResponse(msg models.Inbound) bool {
	token := s.claim(msg.RequestID)
	if token == 0 {
		s.logger.Debug("ignoring scan response with no outstanding request", "status", msg.Status, "request_id", msg.RequestID)
		return false
	}
	if s.state != models.ScanInFlight || token != s.live {
		s.logger.Debug("ignoring stale scan response", "token", token, "live", s.live, "state", s.state)
		return true
	}

	switch msg.Status {
	case models.StatusSuccess:
		if msg.Formats == nil {
			s.live = 0
			s.setState(models.ScanFailed)
			s.logger.Warn("scan response carried no formats", "url", s.currentURL)
			s.emit(Event{Kind: EventScanFailed, URL: s.currentURL, Token: s.token, Message: errNoFormats})
			return true
		}
		media := &models.MediaReference{
			ID:        string(msg.ID),
			URL:       s.currentURL,
			Title:     msg.Title,
			Author:    msg.Author,
			Duration:  string(msg.Duration),
			Thumbnail: msg.Thumbnail,
		}
		formats := *msg.Formats
		s.live = 0
		s.setState(models.ScanResolved)
		s.logger.Info("scan resolved", "url", s.currentURL, "video_formats", len(formats.Video), "audio_formats", len(formats.Audio))
		s.emit(Event{Kind: EventScanResolved, URL: s.currentURL, Token: s.token, Media: media, formats: &formats})
		return true
	case models.StatusError:
		s.live = 0
		s.setState(models.ScanFailed)
		s.logger.Warn("scan rejected", "url", s.currentURL, "message", msg.Message)
		s.emit(Event{Kind: EventScanFailed, URL: s.currentURL, Token: s.token, Message: msg.Message})
		return true
	}
	return false
}

// claim matches a status response to the request it answers. The backend
// answers fetch_info requests on one connection one at a time and in order,
// so an untagged response belongs to the oldest outstanding token. A tagged
// response also settles every older token.
func (s *ScanController) claim(requestID uint64) uint64 {
	if requestID != 0 {
		known := false
		for len(s.outstanding) > 0 && s.outstanding[0] <= requestID {
			known = known || s.outstanding[0] == requestID
			s.outstanding = s.outstanding[1:]
		}
		if !known {
			return 0
		}
		return requestID
	}
	if len(s.outstanding) == 0 {
		return 0
	}
	token := s.outstanding[0]
	s.outstanding = s.outstanding[1:]
	return token
}

// InFlight reports whether a fetch is awaiting its response.
func (s *ScanController) InFlight() bool { return s.state == models.ScanInFlight }

// Stop cancels timers and drops any pending request.
func (s *ScanController) Stop() {
	s.supersede()
}

func (s *ScanController) supersede() {
	s.gen++
	stopTimer(s.debounceTimer)
	stopTimer(s.retryTimer)
	s.debounceTimer = nil
	s.retryTimer = nil
	s.live = 0
	s.attempts = 0
}

func (s *ScanController) issue(url string, gen uint64) {
	if s.transport.IsOpen() {
		s.token++
		req := models.FetchInfoRequest{Action: models.ActionFetchInfo, URL: url, RequestID: s.token}
		err := s.transport.Send(req)
		if err == nil {
			s.outstanding = append(s.outstanding, s.token)
			s.live = s.token
			s.currentURL = url
			s.attempts = 0
			s.setState(models.ScanInFlight)
			s.logger.Info("fetch info requested", "url", url, "token", s.token)
			return
		}
		s.logger.Warn("fetch info send failed", "url", url, "error", err)
	}

	s.attempts++
	if s.cfg.MaxConnectAttempts > 0 && s.attempts > s.cfg.MaxConnectAttempts {
		s.logger.Warn("giving up on scan", "url", url, "attempts", s.attempts-1)
		s.setState(models.ScanFailed)
		s.emit(Event{Kind: EventScanFailed, URL: url, Message: ErrTransportUnavailable.Error()})
		return
	}

	s.setState(models.ScanAwaitingConnection)
	s.transport.Connect()
	s.retryTimer = s.after(s.cfg.Retry, func() {
		if gen != s.gen || s.state != models.ScanAwaitingConnection {
			return
		}
		s.retryTimer = nil
		s.issue(url, gen)
	})
}

func (s *ScanController) setState(next models.ScanState) {
	if s.state == next {
		return
	}
	s.state = next
	s.emit(Event{Kind: EventScanState, ScanState: next})
}
