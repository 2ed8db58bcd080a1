package httpremote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/oauth2"

	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/remote"
)

const (
	minRedial = 500 * time.Millisecond
	maxRedial = 30 * time.Second
)

// StatusError is a non-success HTTP response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned %d: %s", e.Code, e.Message)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client. It replaces the token-carrying
// client built from the token argument of NewClient.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithClientLogger sets the logger. Defaults to slog.Default().
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// Client is a remote.Store over the snapshot protocol.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

var _ remote.Store = (*Client)(nil)

// NewClient creates a client for the server at baseURL. A non-empty token is
// sent as a bearer token on every request, including the WebSocket
// handshake.
func NewClient(baseURL, token string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote url %q: scheme must be http or https", baseURL)
	}

	c := &Client{base: u, http: &http.Client{}, logger: slog.Default()}
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		c.http = oauth2.NewClient(context.Background(), src)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(userID, leaf string) string {
	u := *c.base
	u.Path = u.Path + "/v1/users/" + url.PathEscape(userID) + "/" + leaf
	return u.String()
}

// UploadSnapshot replaces the user's remote document.
func (c *Client) UploadSnapshot(ctx context.Context, userID string, snap *model.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint(userID, "snapshot"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return readStatusError(resp)
	}
	return nil
}

// FetchSnapshot reads the user's remote document.
func (c *Client) FetchSnapshot(ctx context.Context, userID string) (*model.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(userID, "snapshot"), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, remote.ErrNoSnapshot
	}
	if resp.StatusCode != http.StatusOK {
		return nil, readStatusError(resp)
	}

	var snap model.Snapshot
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxSnapshotBytes)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Subscribe opens the change stream for userID. The first dial happens
// before Subscribe returns, and a rejected request (4xx) is returned as an
// error. An unreachable remote is not an error: the stream is redialed with
// exponential backoff until ctx is done, when the channel closes.
func (c *Client) Subscribe(ctx context.Context, userID string) (<-chan remote.Change, error) {
	conn, err := c.dial(ctx, userID)
	if err != nil {
		if ctx.Err() != nil || isRejected(err) {
			return nil, err
		}
		c.logger.Warn("change stream unavailable, retrying",
			slog.String("user", userID), slog.String("error", err.Error()))
	}

	ch := make(chan remote.Change)
	go func() {
		defer close(ch)
		delay := minRedial
		for {
			if conn != nil {
				err := c.pump(ctx, conn, ch)
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("change stream lost", slog.String("user", userID), slog.String("error", err.Error()))
				conn = nil
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			conn, err = c.dial(ctx, userID)
			if err != nil {
				c.logger.Debug("redial failed", slog.String("user", userID), slog.String("error", err.Error()))
				delay = min(delay*2, maxRedial)
				continue
			}
			delay = minRedial
		}
	}()
	return ch, nil
}

// isRejected reports whether err is a 4xx answer from the remote.
func isRejected(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code/100 == 4
}

func (c *Client) dial(ctx context.Context, userID string) (*websocket.Conn, error) {
	u, err := url.Parse(c.endpoint(userID, "changes"))
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPClient: c.http})
	if err != nil {
		if resp != nil && resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, &StatusError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("dial changes: %w", err)
	}
	conn.SetReadLimit(MaxSnapshotBytes)
	return conn, nil
}

// pump forwards changes from conn to ch until the connection or ctx ends.
func (c *Client) pump(ctx context.Context, conn *websocket.Conn, ch chan<- remote.Change) error {
	defer conn.CloseNow()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "")
			}
			return err
		}

		var change remote.Change
		if err := json.Unmarshal(data, &change); err != nil {
			c.logger.Warn("undecodable change", slog.String("error", err.Error()))
			continue
		}

		select {
		case ch <- change:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func readStatusError(resp *http.Response) error {
	var body errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
