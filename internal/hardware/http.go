package hardware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/pacemaker-panel/internal/pacing"
)

// HTTPClient is a Client for the adapter's REST surface.
type HTTPClient struct {
	http *http.Client

	mu   sync.RWMutex
	base string
}

// NewHTTPClient creates a client for the adapter at base.
func NewHTTPClient(base string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		http: &http.Client{Timeout: timeout},
		base: strings.TrimRight(base, "/"),
	}
}

// BaseURL returns the adapter URL currently in use.
func (c *HTTPClient) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base
}

// Discover probes each candidate's health endpoint in order and switches to
// the first one that answers.
func (c *HTTPClient) Discover(ctx context.Context, candidates []string) (string, error) {
	var lastErr error
	for _, base := range candidates {
		base = strings.TrimRight(base, "/")
		if _, err := c.health(ctx, base); err != nil {
			lastErr = err
			continue
		}
		c.mu.Lock()
		changed := c.base != base
		c.base = base
		c.mu.Unlock()
		if changed {
			log.Printf("hardware: using adapter at %s", base)
		}
		return base, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no candidates")
	}
	return "", fmt.Errorf("discover adapter: %w", lastErr)
}

// Health fetches the adapter status.
func (c *HTTPClient) Health(ctx context.Context) (Status, error) {
	return c.health(ctx, c.BaseURL())
}

func (c *HTTPClient) health(ctx context.Context, base string) (Status, error) {
	var st Status
	if err := c.do(ctx, base, http.MethodGet, "/api/health", nil, &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// SetValue writes a numeric field. A non-empty control is sent as the
// active-control hint.
func (c *HTTPClient) SetValue(ctx context.Context, field pacing.Field, value float64, control pacing.ActiveControl) error {
	if _, ok := pacing.RangeFor(field); !ok {
		return fmt.Errorf("set %s: %w", field, pacing.ErrUnknownField)
	}
	body := ValueRequest{Value: value, ActiveControl: control}
	return c.do(ctx, c.BaseURL(), http.MethodPost, "/api/"+string(field)+"/set", body, nil)
}

// SetMode writes the pacing mode index.
func (c *HTTPClient) SetMode(ctx context.Context, mode pacing.Mode) error {
	return c.do(ctx, c.BaseURL(), http.MethodPost, "/api/mode/set", ModeRequest{Mode: mode.Index()}, nil)
}

// SetActiveControl tells the adapter which field the encoder drives.
func (c *HTTPClient) SetActiveControl(ctx context.Context, control pacing.ActiveControl) error {
	return c.do(ctx, c.BaseURL(), http.MethodPost, "/api/active_control/set", ActiveControlRequest{ActiveControl: control}, nil)
}

// ToggleLock flips the device lock and returns the resulting state.
func (c *HTTPClient) ToggleLock(ctx context.Context) (bool, error) {
	var resp LockResponse
	if err := c.do(ctx, c.BaseURL(), http.MethodPost, "/api/lock/toggle", nil, &resp); err != nil {
		return false, err
	}
	return resp.Locked, nil
}

// Lock reads the device lock state.
func (c *HTTPClient) Lock(ctx context.Context) (bool, error) {
	var resp LockResponse
	if err := c.do(ctx, c.BaseURL(), http.MethodGet, "/api/lock", nil, &resp); err != nil {
		return false, err
	}
	return resp.Locked, nil
}

func (c *HTTPClient) do(ctx context.Context, base, method, path string, in, out any) error {
	op := method + " " + path

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return &UnreachableError{Op: op, Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &UnreachableError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return ErrDeviceLocked
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UnreachableError{Op: op, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UnreachableError{Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}
