// Package telemetry fetches runtime snapshots and semantic signals from the
// MES runtime API. It is a read-only adapter and does not interpret signals.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrSnapshotUnavailable means the runtime source was unreachable or
	// returned no usable data.
	ErrSnapshotUnavailable = errors.New("runtime snapshot unavailable")

	// ErrEquipmentNotFound means the requested line or station is not in the
	// snapshot.
	ErrEquipmentNotFound = errors.New("equipment not found")
)

const (
	DefaultSnapshotPath = "/api/runtime/snapshot"
	DefaultSignalsPath  = "/api/semantic/signals"
	DefaultTimeout      = 10 * time.Second
)

// Options configures a Client.
type Options struct {
	BaseURL      string
	SnapshotPath string
	SignalsPath  string
	APIKey       string
	Timeout      time.Duration
	Retries      int
	Debug        bool
}

// Client is the HTTP adapter for the runtime snapshot and semantic-signal
// endpoints.
type Client struct {
	baseURL      string
	snapshotPath string
	signalsPath  string
	apiKey       string
	timeout      time.Duration
	retries      int
	backoff      []time.Duration
	httpClient   *http.Client
	debug        bool
}

// NewClient creates a runtime client. Every fetch, retries included, is
// bounded by opts.Timeout.
func NewClient(opts Options) *Client {
	if opts.SnapshotPath == "" {
		opts.SnapshotPath = DefaultSnapshotPath
	}
	if opts.SignalsPath == "" {
		opts.SignalsPath = DefaultSignalsPath
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		snapshotPath: opts.SnapshotPath,
		signalsPath:  opts.SignalsPath,
		apiKey:       opts.APIKey,
		timeout:      opts.Timeout,
		retries:      opts.Retries,
		backoff:      []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second},
		httpClient:   &http.Client{Timeout: opts.Timeout},
		debug:        opts.Debug,
	}
}

// FetchSnapshot returns the full plant state.
func (c *Client) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	body, err := c.get(ctx, c.snapshotPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot: %v", ErrSnapshotUnavailable, err)
	}
	if len(snap.Lines) == 0 {
		return nil, fmt.Errorf("%w: snapshot has no lines", ErrSnapshotUnavailable)
	}
	return &snap, nil
}

// FetchSemanticSignals returns the signal view for a line or station. The
// equipment id is resolved against snap first; station ids go through
// three-tier matching.
func (c *Client) FetchSemanticSignals(ctx context.Context, snap *Snapshot, scope Scope, equipmentID string) (*SignalSet, error) {
	lineID, stationID, err := ResolveEquipment(snap, scope, equipmentID, c.debug)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("line_id", lineID)
	if stationID != "" {
		query.Set("station_id", stationID)
	}

	body, err := c.get(ctx, c.signalsPath, query)
	if err != nil {
		return nil, fmt.Errorf("%w: semantic signals: %v", ErrSnapshotUnavailable, err)
	}

	var set SignalSet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("%w: decode semantic signals: %v", ErrSnapshotUnavailable, err)
	}
	set.Scope = scope
	set.LineID = lineID
	set.StationID = stationID
	return &set, nil
}

// ResolveEquipment maps a requested equipment id to concrete line and
// station ids in snap. Fuzzy station matches are always logged.
func ResolveEquipment(snap *Snapshot, scope Scope, equipmentID string, debug bool) (lineID, stationID string, err error) {
	switch scope {
	case ScopeLine:
		id, _, ok := snap.FindLine(equipmentID)
		if !ok {
			return "", "", fmt.Errorf("%w: line %q", ErrEquipmentNotFound, equipmentID)
		}
		return id, "", nil
	case ScopeStation:
		ref, ok := snap.FindStation(equipmentID)
		if !ok {
			return "", "", fmt.Errorf("%w: station %q", ErrEquipmentNotFound, equipmentID)
		}
		if ref.Match != MatchExact {
			log.Printf("[telemetry] station %q resolved to %s/%s via %s match", equipmentID, ref.LineID, ref.StationID, ref.Match)
		} else if debug {
			log.Printf("[telemetry] station %q resolved to line %s", equipmentID, ref.LineID)
		}
		return ref.LineID, ref.StationID, nil
	}
	return "", "", fmt.Errorf("%w: unsupported scope %q", ErrEquipmentNotFound, scope)
}

// get performs a GET with bounded retries on transport errors, 429 and 5xx.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("runtime base URL not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff[min(attempt-1, len(c.backoff)-1)]
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%v (last error: %v)", ctx.Err(), lastErr)
			case <-time.After(delay):
			}
			if c.debug {
				log.Printf("[telemetry] retrying GET %s (attempt=%d): %v", path, attempt+1, lastErr)
			}
		}

		body, retryable, err := c.doRequest(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	if c.debug {
		log.Printf("[telemetry] GET %s", endpoint)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, false, fmt.Errorf("unauthorized: invalid API key")
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("API error: status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, false, nil
}
