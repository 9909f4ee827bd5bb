// Package worker talks to the external match-execution worker.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"battlebots/models"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	// ErrIncompleteResponse means the worker answered without a token, secret or match handle.
	ErrIncompleteResponse = errors.New("worker: incomplete response")
	ErrUnavailable        = errors.New("worker: unavailable")
)

// Match is what the worker hands back for a started game.
type Match struct {
	Token  string `json:"token"`
	Secret string `json:"secret"`
	// Game is the worker's match handle, tied to the game id.
	Game json.RawMessage `json:"game"`
}

// Complete reports whether the match carries a token, a secret and a match handle.
func (m *Match) Complete() bool {
	if m == nil || m.Token == "" || m.Secret == "" {
		return false
	}
	h := strings.TrimSpace(string(m.Game))
	return h != "" && h != "null" && h != `""`
}

// Client is the contract the orchestrator relies on.
type Client interface {
	StartMatch(ctx context.Context, game *models.GameResource) (*Match, error)
	JoinMatch(ctx context.Context, gameID, playerID uint) error
	DeleteMatch(ctx context.Context, gameID uint) error
}

// HTTPClient calls the worker's JSON API.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

func (c *HTTPClient) StartMatch(ctx context.Context, game *models.GameResource) (*Match, error) {
	var m Match
	if err := c.do(ctx, http.MethodPost, "/games", game, &m); err != nil {
		return nil, err
	}
	if !m.Complete() {
		return nil, ErrIncompleteResponse
	}
	return &m, nil
}

func (c *HTTPClient) JoinMatch(ctx context.Context, gameID, playerID uint) error {
	body := map[string]uint{"userId": playerID}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/games/%d/join", gameID), body, nil)
}

func (c *HTTPClient) DeleteMatch(ctx context.Context, gameID uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/games/%d", gameID), nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("worker: %s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrIncompleteResponse, err)
	}
	return nil
}
