package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"brainlink/internal/model"
)

// Sentinel errors surfaced by the HTTP lifecycle client.
var (
	ErrMissingBaseURL   = errors.New("session: base url is required")
	ErrMissingProjectID = errors.New("session: project id is required")
	ErrNoRunID          = errors.New("session: backend returned no runId")
)

// ClientConfig configures the lifecycle client. BaseURL may point at the
// server root or at the /api prefix; it is normalized either way.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	Namespace string
	Timeout   time.Duration
	Policy    ReconnectPolicy
	Hooks     Hooks

	// HTTPClient and Dial are injectable for tests. Nil selects the
	// production defaults.
	HTTPClient *http.Client
	Dial       func(ctx context.Context, cfg ChannelConfig) (Conn, error)
}

// Client drives the run lifecycle over HTTP and opens the event channel
// on Start.
type Client struct {
	baseURL   string
	apiKey    string
	namespace string
	hc        *http.Client
	policy    ReconnectPolicy
	hooks     Hooks
	dial      func(ctx context.Context, cfg ChannelConfig) (Conn, error)
}

// NewClient validates and normalizes the configuration.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrMissingBaseURL
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if !strings.HasSuffix(base, "/api") {
		base += "/api"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	dial := cfg.Dial
	if dial == nil {
		dial = func(ctx context.Context, chCfg ChannelConfig) (Conn, error) {
			return DialChannel(ctx, chCfg)
		}
	}
	return &Client{
		baseURL:   base,
		apiKey:    cfg.APIKey,
		namespace: namespace,
		hc:        hc,
		policy:    normalizeReconnectPolicy(cfg.Policy),
		hooks:     cfg.Hooks,
		dial:      dial,
	}, nil
}

// Start begins a run for the project, connects the event channel, joins
// the run room, and returns the live Run. The channel survives the ctx
// passed here; cancel it through Run.Close.
func (c *Client) Start(ctx context.Context, projectID string, opts map[string]any) (*Run, error) {
	contract, err := c.StartContract(ctx, projectID, opts)
	if err != nil {
		return nil, err
	}

	wsURL, err := c.eventURL(contract.Realtime.URL)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	c.authorize(header)

	// The reader goroutine can deliver events before the Run exists, so
	// the handoff goes through a guarded slot.
	var slot struct {
		mu  sync.Mutex
		run *Run
	}
	conn, err := c.dial(ctx, ChannelConfig{
		URL:    wsURL,
		Header: header,
		Policy: c.policy,
		Hooks:  c.hooks,
		OnEvent: func(event string, payload json.RawMessage) {
			slot.mu.Lock()
			run := slot.run
			slot.mu.Unlock()
			if run != nil {
				run.Dispatch(event, payload)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("run %s started but event channel failed: %w", contract.RunID, err)
	}

	run := NewRun(conn, projectID, contract, c.namespace, c.hooks)
	slot.mu.Lock()
	slot.run = run
	slot.mu.Unlock()
	join := map[string]any{"runId": contract.RunID, "projectId": projectID}
	if ch, ok := conn.(*Channel); ok {
		if err := ch.SetRejoin(EventRunJoin, join); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	if err := conn.Emit(EventRunJoin, join); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("join run %s: %w", contract.RunID, err)
	}
	return run, nil
}

// StartContract performs the start call only, without opening the event
// channel. Useful for contract scaffolding and dry runs.
func (c *Client) StartContract(ctx context.Context, projectID string, opts map[string]any) (model.Contract, error) {
	var contract model.Contract
	if strings.TrimSpace(projectID) == "" {
		return contract, ErrMissingProjectID
	}
	body := opts
	if body == nil {
		body = map[string]any{}
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf(startRunPath, projectID), body, &contract); err != nil {
		return contract, fmt.Errorf("start run for project %s: %w", projectID, err)
	}
	if contract.RunID == "" {
		return contract, ErrNoRunID
	}
	contract.Constants.ApplyDefaults()
	return contract, nil
}

// Stop ends the named run.
func (c *Client) Stop(ctx context.Context, projectID, runID string) error {
	if strings.TrimSpace(projectID) == "" {
		return ErrMissingProjectID
	}
	body := map[string]any{"runId": runID}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf(stopRunPath, projectID), body, nil); err != nil {
		return fmt.Errorf("stop run %s: %w", runID, err)
	}
	return nil
}

// Contract fetches the current run contract without starting a run.
func (c *Client) Contract(ctx context.Context, projectID string) (model.Contract, error) {
	var contract model.Contract
	if strings.TrimSpace(projectID) == "" {
		return contract, ErrMissingProjectID
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf(contractPath, projectID), nil, &contract); err != nil {
		return contract, fmt.Errorf("fetch contract for project %s: %w", projectID, err)
	}
	contract.Constants.ApplyDefaults()
	return contract, nil
}

// IOState fetches the server-side ingest state of the run's inputs.
func (c *Client) IOState(ctx context.Context, projectID string) (map[string]any, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, ErrMissingProjectID
	}
	var state map[string]any
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf(ioStatePath, projectID), nil, &state); err != nil {
		return nil, fmt.Errorf("fetch io state for project %s: %w", projectID, err)
	}
	return state, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req.Header)

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, truncate(string(raw), 256))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response for %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) authorize(header http.Header) {
	if c.apiKey == "" {
		return
	}
	header.Set("x-api-key", c.apiKey)
	header.Set("Authorization", "Bearer "+c.apiKey)
}

// eventURL derives the websocket address from the contract's realtime URL
// when present, else from the base URL with the scheme flipped to ws.
func (c *Client) eventURL(realtime string) (string, error) {
	raw := realtime
	if raw == "" {
		raw = strings.TrimSuffix(c.baseURL, "/api")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse realtime url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("realtime url %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = c.namespace
	}
	return u.String(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
