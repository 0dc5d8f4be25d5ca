// Package pathchooser asks the backend's folder picker for a download directory.
package pathchooser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mediagrab/internal/models"
)

// ErrUnexpectedStatus is returned for non-200 chooser responses.
var ErrUnexpectedStatus = errors.New("unexpected chooser status")

type response struct {
	Path string `json:"path"`
}

// Client calls the chooser endpoint.
type Client struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

// New builds a Client. The picker is interactive, so the default timeout is generous.
func New(url string, hc *http.Client, logger *slog.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Minute}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{url: url, http: hc, logger: logger}
}

// Choose returns the selected path, or models.DefaultDestination when the
// user picked nothing.
func (c *Client) Choose(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("build chooser request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call chooser: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode chooser response: %w", err)
	}
	path := strings.TrimSpace(body.Path)
	if path == "" {
		path = models.DefaultDestination
	}
	c.logger.Info("destination chosen", "path", path)
	return path, nil
}
