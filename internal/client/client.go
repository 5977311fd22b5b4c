// Package client talks to a running shortcut-sage daemon over HTTP.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Coldaine/ShortcutSage/internal/daemon"
	"github.com/Coldaine/ShortcutSage/internal/engine"
	"github.com/Coldaine/ShortcutSage/internal/model"
)

const (
	defaultServerURL = "http://127.0.0.1:37778"
	httpTimeout      = 5 * time.Second
)

// Client talks to the shortcut-sage server.
type Client struct {
	http      *http.Client
	stream    *http.Client
	serverURL string
}

// New creates a client for serverURL. An empty URL falls back to $SAGE_URL,
// then http://127.0.0.1:37778.
func New(serverURL string) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("SAGE_URL")
	}
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		stream:    &http.Client{},
		serverURL: strings.TrimRight(serverURL, "/"),
	}
}

// URL returns the server base URL.
func (c *Client) URL() string { return c.serverURL }

// Post sends a POST request with JSON body. Returns response body.
func (c *Client) Post(path string, body []byte) ([]byte, error) {
	resp, err := c.http.Post(c.serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	return readBody("POST", path, resp)
}

// Get sends a GET request. Returns response body.
func (c *Client) Get(path string) ([]byte, error) {
	resp, err := c.http.Get(c.serverURL + path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return readBody("GET", path, resp)
}

func readBody(method, path string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

// StatusError is returned for 4xx and 5xx responses.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
}

func errorMessage(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy() bool {
	resp, err := c.http.Get(c.serverURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Health is the /api/health response.
type Health struct {
	Status    string       `json:"status"`
	Ping      string       `json:"ping"`
	Version   string       `json:"version"`
	Uptime    float64      `json:"uptime"`
	ConfigDir string       `json:"config_dir"`
	Engine    engine.Stats `json:"engine"`
	DB        bool         `json:"db"`
	DBPath    string       `json:"db_path"`
}

// Health fetches the server status.
func (c *Client) Health() (Health, error) {
	var h Health
	err := c.getJSON("/api/health", &h)
	return h, err
}

// SendEvent posts an event and returns the suggestions it produced.
func (c *Client) SendEvent(req daemon.EventRequest) ([]model.SuggestionResult, error) {
	var resp struct {
		Suggestions []model.SuggestionResult `json:"suggestions"`
	}
	if err := c.postJSON("/api/events", req, &resp); err != nil {
		return nil, err
	}
	return resp.Suggestions, nil
}

// SendEventJSON posts a raw JSON event.
func (c *Client) SendEventJSON(data []byte) ([]model.SuggestionResult, error) {
	body, err := c.Post("/api/events", data)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Suggestions []model.SuggestionResult `json:"suggestions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	return resp.Suggestions, nil
}

// Accept reports that action, suggested by rule, was taken. Returns the
// updated acceptance count.
func (c *Client) Accept(action, rule string) (int, error) {
	var resp struct {
		Acceptances int `json:"acceptances"`
	}
	err := c.postJSON("/api/accept", map[string]string{"action": action, "rule": rule}, &resp)
	return resp.Acceptances, err
}

// Acceptances returns the acceptance count for action.
func (c *Client) Acceptances(action string) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	err := c.getJSON("/api/acceptances/"+action, &resp)
	return resp.Count, err
}

// Buffer returns the daemon's buffered events.
func (c *Client) Buffer() ([]model.Event, error) {
	var resp struct {
		Events []model.Event `json:"events"`
	}
	err := c.getJSON("/api/buffer", &resp)
	return resp.Events, err
}

// Reload asks the daemon to re-read both table files.
func (c *Client) Reload() error {
	_, err := c.Post("/api/reload", nil)
	return err
}

// Metrics returns the raw /api/metrics document.
func (c *Client) Metrics() (json.RawMessage, error) {
	return c.Get("/api/metrics")
}

// Stream calls fn for every notification until ctx is done, the server
// closes the stream, or fn returns an error.
func (c *Client) Stream(ctx context.Context, fn func(daemon.Notification) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/api/suggestions/stream", nil)
	if err != nil {
		return fmt.Errorf("stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("GET stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return &StatusError{Method: "GET", Path: "/api/suggestions/stream", Code: resp.StatusCode, Message: errorMessage(data)}
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var n daemon.Notification
		if err := json.Unmarshal([]byte(data), &n); err != nil {
			return fmt.Errorf("decode notification: %w", err)
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

func (c *Client) getJSON(path string, out any) error {
	data, err := c.Get(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	data, err := c.Post(path, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
