package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// Volume Backend
// ============================================================================
// The daemon never owns audio itself; it drives an external volume service.
// Two drivers are provided:
//
//   - cli:  shells out to the player's command-line tool
//           ("volumio volume plus", "volumio volume 42", bare query prints
//           the current volume as an integer)
//   - http: the player's REST command endpoint
//           (GET /api/v1/commands?cmd=volume&volume=plus|minus|toggle|<n>,
//           state via GET /api/v1/getState)
//
// Both are synchronous, fire-one-command surfaces. Failures are transient by
// policy: callers log and move on.
// ============================================================================

// VolumeBackend abstracts the external volume service.
// This allows for mocking in tests.
type VolumeBackend interface {
	// GetVolume queries the current absolute volume.
	GetVolume(ctx context.Context) (int, error)

	// SetVolume sets the absolute volume.
	SetVolume(ctx context.Context, volume int) error

	// Adjust nudges the volume one step up (+1) or down (-1).
	Adjust(ctx context.Context, delta int) error

	// ToggleMute toggles the backend's mute state. Mute state is owned by
	// the backend; the daemon never tracks it.
	ToggleMute(ctx context.Context) error

	Close() error
}

// ============================================================================
// CLI backend
// ============================================================================

// CLIBackend invokes an external volume command-line tool.
type CLIBackend struct {
	bin     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCLIBackend creates a CLI backend for the given binary.
func NewCLIBackend(bin string, timeout time.Duration, logger *slog.Logger) *CLIBackend {
	return &CLIBackend{
		bin:     bin,
		timeout: timeout,
		logger:  logger,
	}
}

// run executes one invocation and returns its trimmed stdout.
func (b *CLIBackend) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, b.bin, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", b.bin, strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (b *CLIBackend) GetVolume(ctx context.Context) (int, error) {
	out, err := b.run(ctx, "volume")
	if err != nil {
		return 0, err
	}

	// Some player CLIs print a bare integer, others prefix it ("Volume: 42").
	// Take the last integer-looking field.
	fields := strings.Fields(out)
	for i := len(fields) - 1; i >= 0; i-- {
		if n, convErr := strconv.Atoi(fields[i]); convErr == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("no volume in output %q", out)
}

func (b *CLIBackend) SetVolume(ctx context.Context, volume int) error {
	_, err := b.run(ctx, "volume", strconv.Itoa(volume))
	return err
}

func (b *CLIBackend) Adjust(ctx context.Context, delta int) error {
	word := "plus"
	if delta < 0 {
		word = "minus"
	}
	_, err := b.run(ctx, "volume", word)
	return err
}

func (b *CLIBackend) ToggleMute(ctx context.Context) error {
	_, err := b.run(ctx, "volume", "toggle")
	return err
}

func (b *CLIBackend) Close() error { return nil }

// ============================================================================
// HTTP backend
// ============================================================================

// HTTPBackend drives the player's REST command endpoint.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPBackend creates an HTTP backend against baseURL
// (e.g. "http://127.0.0.1:3000").
func NewHTTPBackend(baseURL string, timeout time.Duration, logger *slog.Logger) (*HTTPBackend, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// get performs one GET and returns the response body.
func (b *HTTPBackend) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned %s", resp.Status)
	}
	return body, nil
}

func (b *HTTPBackend) command(ctx context.Context, volumeArg string) error {
	path := "/api/v1/commands?cmd=volume&volume=" + url.QueryEscape(volumeArg)
	_, err := b.get(ctx, path)
	return err
}

func (b *HTTPBackend) GetVolume(ctx context.Context) (int, error) {
	body, err := b.get(ctx, "/api/v1/getState")
	if err != nil {
		return 0, err
	}

	var state struct {
		Volume int `json:"volume"`
	}
	if err := json.Unmarshal(body, &state); err != nil {
		return 0, fmt.Errorf("parse getState response: %w", err)
	}
	return state.Volume, nil
}

func (b *HTTPBackend) SetVolume(ctx context.Context, volume int) error {
	return b.command(ctx, strconv.Itoa(volume))
}

func (b *HTTPBackend) Adjust(ctx context.Context, delta int) error {
	word := "plus"
	if delta < 0 {
		word = "minus"
	}
	return b.command(ctx, word)
}

func (b *HTTPBackend) ToggleMute(ctx context.Context) error {
	return b.command(ctx, "toggle")
}

func (b *HTTPBackend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
