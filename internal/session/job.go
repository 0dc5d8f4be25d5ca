package session

import (
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"mediagrab/internal/clock"
	"mediagrab/internal/models"
)

const defaultCompletionDwell = 4 * time.Second

var percentPattern = regexp.MustCompile(`(\d+\.?\d*)%`)

// JobController drives one download at a time through its phases. Like
// ScanController it relies on the Orchestrator for serialisation.
type JobController struct {
	transport Transport
	after     scheduler
	emit      func(Event)
	logger    *slog.Logger
	clock     clock.Clock
	dwell     time.Duration

	job        *models.DownloadJob
	unsent     bool
	seq        uint64
	dwellTimer clock.Timer
}

func newJobController(transport Transport, after scheduler, emit func(Event), clk clock.Clock, dwell time.Duration, logger *slog.Logger) *JobController {
	if dwell <= 0 {
		dwell = defaultCompletionDwell
	}
	return &JobController{
		transport: transport,
		after:     after,
		emit:      emit,
		logger:    logger,
		clock:     clk,
		dwell:     dwell,
	}
}

// Job returns a copy of the current job, or nil.
func (j *JobController) Job() *models.DownloadJob {
	if j.job == nil {
		return nil
	}
	cp := *j.job
	return &cp
}

// Start replaces any current job with a new one and requests the download.
// The job is shown as initializing before the backend has answered.
func (j *JobController) Start(url, formatID, destination string) {
	if destination == "" {
		destination = models.DefaultDestination
	}
	stopTimer(j.dwellTimer)
	j.dwellTimer = nil
	j.seq++

	if j.job != nil && !j.job.Phase.IsTerminal() {
		j.logger.Info("replacing active download", "format_id", j.job.FormatID, "phase", j.job.Phase)
	}
	j.job = &models.DownloadJob{
		FormatID:        formatID,
		URL:             url,
		DestinationPath: destination,
		Phase:           models.PhaseInitializing,
		Message:         "Initializing Download...",
		StartedAt:       j.clock.Now(),
	}
	j.unsent = true
	j.publish()
	j.flush()
}

// ConnectionOpened sends a download request that could not go out earlier.
func (j *JobController) ConnectionOpened() {
	if j.unsent {
		j.flush()
	}
}

func (j *JobController) flush() {
	if j.job == nil || j.job.Phase.IsTerminal() {
		j.unsent = false
		return
	}
	req := models.DownloadRequest{
		Action:       models.ActionDownload,
		URL:          j.job.URL,
		FormatID:     j.job.FormatID,
		DownloadPath: j.job.DestinationPath,
	}
	if err := j.transport.Send(req); err != nil {
		j.logger.Warn("download request deferred until connected", "format_id", req.FormatID, "error", err)
		j.transport.Connect()
		return
	}
	j.unsent = false
	j.logger.Info("download requested", "url", req.URL, "format_id", req.FormatID, "path", req.DownloadPath)
}

// Cancel asks the backend to stop and closes the job locally.
func (j *JobController) Cancel() error {
	if j.job == nil || j.job.Phase.IsTerminal() {
		return ErrNoActiveJob
	}
	if !j.unsent {
		req := models.CancelRequest{Action: models.ActionCancel, URL: j.job.URL, FormatID: j.job.FormatID}
		if err := j.transport.Send(req); err != nil {
			j.logger.Warn("cancel request not delivered", "format_id", req.FormatID, "error", err)
		}
	}
	j.unsent = false
	j.finish(models.PhaseCancelled, "Download cancelled")
	return nil
}

// HandleProgress applies a progress message. It reports whether the state
// was one the controller understands.
func (j *JobController) HandleProgress(msg models.Inbound) bool {
	switch msg.State {
	case models.StateStarting, models.StateProcessing, models.StateConverting, models.StateCompleted, models.StateError:
	default:
		return false
	}
	if j.job == nil || j.job.Phase.IsTerminal() {
		j.logger.Debug("ignoring progress with no open job", "state", msg.State)
		return true
	}

	switch msg.State {
	case models.StateStarting:
		if j.job.Phase != models.PhaseInitializing {
			j.logger.Debug("ignoring late starting message", "phase", j.job.Phase)
			return true
		}
		if msg.Message != "" {
			j.job.Message = msg.Message
		}
		j.publish()
	case models.StateProcessing:
		j.job.Phase = models.PhaseProcessing
		if pct, ok := progressPercent(msg); ok {
			j.job.Percent = pct
		}
		if msg.Message != "" {
			j.job.Message = msg.Message
		}
		j.publish()
	case models.StateConverting:
		j.job.Phase = models.PhaseConverting
		j.job.Percent = 100
		j.job.Message = "Merging/Converting..."
		j.publish()
	case models.StateCompleted:
		j.job.Percent = 100
		j.logger.Info("download completed", "format_id", j.job.FormatID, "elapsed", j.clock.Now().Sub(j.job.StartedAt))
		j.finish(models.PhaseCompleted, "Download Complete!")
	case models.StateError:
		message := msg.Message
		if message == "" {
			message = "Download failed"
		}
		j.logger.Warn("download failed", "format_id", j.job.FormatID, "message", message)
		j.finish(models.PhaseErrored, message)
	}
	return true
}

// Stop cancels the retraction timer.
func (j *JobController) Stop() {
	stopTimer(j.dwellTimer)
	j.dwellTimer = nil
}

func (j *JobController) finish(phase models.JobPhase, message string) {
	j.job.Phase = phase
	j.job.Message = message
	j.publish()

	seq := j.seq
	j.dwellTimer = j.after(j.dwell, func() {
		if seq != j.seq || j.job == nil {
			return
		}
		j.job = nil
		j.dwellTimer = nil
		j.emit(Event{Kind: EventJobCleared})
	})
}

func (j *JobController) publish() {
	j.emit(Event{Kind: EventJob, Job: j.Job(), Message: j.job.Message})
}

func progressPercent(msg models.Inbound) (float64, bool) {
	if msg.Progress != nil {
		return *msg.Progress, true
	}
	m := percentPattern.FindStringSubmatch(msg.Message)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
