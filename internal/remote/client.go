// Package remote talks to the shared cloud document that every device reads and overwrites, to
// the secondary backup target, and to the public IP echo service.
package remote

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/notenest/internal/notes"
	"go.uber.org/zap"
)

// ClientConfig wires the dependencies of Client.
type ClientConfig struct {
	Endpoint   string
	HTTPClient *http.Client
	Sanitizer  *notes.Sanitizer
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Client reads and writes the whole shared document. There is no partial update and no
// concurrency token: the last writer wins.
type Client struct {
	endpoint   string
	httpClient *http.Client
	sanitizer  *notes.Sanitizer
	clock      func() time.Time
	logger     *zap.Logger
}

// NewClient validates the configuration and returns a Client. An empty endpoint is allowed;
// every call then fails with ErrNotConfigured wrapped in *Error.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Sanitizer == nil {
		return nil, errors.New("remote: sanitizer is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: defaultHTTPClient(cfg.HTTPClient),
		sanitizer:  cfg.Sanitizer,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Read fetches and normalizes the shared document. Legacy documents holding a flat notes map
// are upgraded in memory.
func (c *Client) Read(ctx context.Context) (notes.CloudState, error) {
	raw, err := getJSON(ctx, c.httpClient, c.endpoint, OpLoad)
	if err != nil {
		c.logger.Debug("cloud read failed", zap.String("operation", "remote.read"), zap.Error(err))
		return notes.CloudState{}, err
	}
	return c.sanitizer.CloudState(raw), nil
}

// Write replaces the shared document. UpdatedAt is always stamped with the client clock.
func (c *Client) Write(ctx context.Context, state notes.CloudState) error {
	payload := notes.CloudState{
		Notes:     state.Notes,
		Users:     state.Users,
		UpdatedAt: notes.FormatTimestamp(c.clock()),
	}
	if payload.Notes == nil {
		payload.Notes = notes.NoteMap{}
	}
	if payload.Users == nil {
		payload.Users = []notes.UserLogin{}
	}
	if err := putJSON(ctx, c.httpClient, c.endpoint, payload, OpSave); err != nil {
		c.logger.Debug("cloud write failed", zap.String("operation", "remote.write"), zap.Error(err))
		return err
	}
	return nil
}
