// Package timerclient talks to the timer REST API and its WebSocket event
// stream on behalf of one authenticated user.
package timerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"focus-timer/internal/models"
)

const apiPrefix = "/api/v1"

// ErrConflict matches any *APIError with status 409.
var ErrConflict = errors.New("timerclient: conflict")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Fields    map[string]string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

func (e *APIError) Is(target error) bool {
	return target == ErrConflict && e.Status == http.StatusConflict
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		dialer:     &websocket.Dialer{HandshakeTimeout: timeout},
	}
}

func (c *Client) Start(ctx context.Context, req models.StartTimerRequest) (*models.TimerSession, error) {
	var session models.TimerSession
	if err := c.do(ctx, http.MethodPost, "/timer/start", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) Pause(ctx context.Context, id int64) (*models.TimerSession, error) {
	return c.transition(ctx, id, "pause", nil)
}

func (c *Client) Resume(ctx context.Context, id int64) (*models.TimerSession, error) {
	return c.transition(ctx, id, "resume", nil)
}

func (c *Client) Stop(ctx context.Context, id int64, notes *string) (*models.TimerSession, error) {
	return c.transition(ctx, id, "stop", models.StopTimerRequest{Notes: notes})
}

func (c *Client) Discard(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/timer/"+strconv.FormatInt(id, 10), nil, nil)
}

// Running returns the active session, or nil when there is none.
func (c *Client) Running(ctx context.Context) (*models.TimerSession, error) {
	var session *models.TimerSession
	if err := c.do(ctx, http.MethodGet, "/timer/running", nil, &session); err != nil {
		return nil, err
	}
	return session, nil
}

func (c *Client) Sessions(ctx context.Context, f models.SessionFilter) ([]*models.TimerSession, error) {
	q := url.Values{}
	if f.PlanID != nil {
		q.Set("plan_id", strconv.FormatInt(*f.PlanID, 10))
	}
	if f.ProjectID != nil {
		q.Set("project_id", strconv.FormatInt(*f.ProjectID, 10))
	}
	if f.Date != nil {
		q.Set("date", f.Date.Format("2006-01-02"))
	}
	if f.Skip > 0 {
		q.Set("skip", strconv.Itoa(f.Skip))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	path := "/timer/sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var sessions []*models.TimerSession
	if err := c.do(ctx, http.MethodGet, path, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (c *Client) Today(ctx context.Context) (*models.TodayStats, error) {
	var stats models.TodayStats
	if err := c.do(ctx, http.MethodGet, "/timer/today", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Subscribe opens the event stream. The channel is closed when ctx is done
// or the connection drops.
func (c *Client) Subscribe(ctx context.Context) (<-chan models.WSMessage, error) {
	wsURL, err := c.websocketURL()
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "websocket handshake rejected"}
		}
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}

	events := make(chan models.WSMessage, 16)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	go func() {
		defer close(events)
		defer close(done)
		for {
			var msg models.WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case events <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

func (c *Client) transition(ctx context.Context, id int64, action string, body interface{}) (*models.TimerSession, error) {
	var session models.TimerSession
	path := fmt.Sprintf("/timer/%d/%s", id, action)
	if err := c.do(ctx, http.MethodPost, path, body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var envelope models.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Fields = envelope.Error.Fields
		apiErr.RequestID = envelope.Error.RequestID
	}
	return apiErr
}

func (c *Client) websocketURL() (string, error) {
	u, err := url.Parse(c.baseURL + apiPrefix + "/ws")
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
