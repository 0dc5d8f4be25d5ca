package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mediagrab/internal/config"
	"mediagrab/internal/models"
	"mediagrab/internal/session"
)

const eventBuffer = 64

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	timeoutFlag  *time.Duration

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string, timeoutFlag *time.Duration) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		timeoutFlag:  timeoutFlag,
	}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && *c.logLevelFlag != "" {
			cfg.LogLevel = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
			if err := cfg.Validate(); err != nil {
				c.configErr = err
				return
			}
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// deadline bounds parent by --timeout.
func (c *commandContext) deadline(parent context.Context) (context.Context, context.CancelFunc) {
	if c.timeoutFlag == nil || *c.timeoutFlag <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, *c.timeoutFlag)
}

// run is one CLI session: an orchestrator plus the channel its events land on.
type run struct {
	orch   *session.Orchestrator
	events <-chan session.Event
	stop   func()
	logger *slog.Logger
}

func (c *commandContext) startSession(stderr io.Writer) (*run, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	events, send, stop := session.Channel(eventBuffer)
	orch := session.New(session.Options{
		BackendURL:         cfg.BackendURL,
		Debounce:           cfg.Debounce(),
		ScanRetry:          cfg.ScanRetry(),
		ReconnectDelay:     cfg.ReconnectDelay(),
		CompletionDwell:    cfg.CompletionDwell(),
		MaxConnectAttempts: cfg.MaxConnectAttempts,
		Logger:             logger,
		OnEvent:            send,
	})
	orch.Start()
	return &run{orch: orch, events: events, stop: stop, logger: logger}, nil
}

func (r *run) close() {
	r.stop()
	if err := r.orch.Close(); err != nil {
		r.logger.Debug("close session", "error", err)
	}
}

// scan resolves url and returns the catalog rendered for category.
func (r *run) scan(ctx context.Context, url string, category models.Category) (session.Snapshot, error) {
	if err := r.orch.SwitchCategory(category); err != nil {
		return session.Snapshot{}, err
	}
	if err := r.orch.ForceScan(url); err != nil {
		return session.Snapshot{}, err
	}
	ev, err := session.Await(ctx, r.events, nil, func(ev session.Event) bool {
		return ev.Kind == session.EventScanResolved || ev.Kind == session.EventScanFailed
	})
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("scan %s: %w", url, err)
	}
	if ev.Kind == session.EventScanFailed {
		return session.Snapshot{}, fmt.Errorf("scan %s: %s", url, ev.Message)
	}
	return r.orch.Snapshot(), nil
}
