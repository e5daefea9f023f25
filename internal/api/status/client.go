package status

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/guildbox/internal/app/notification"
	"github.com/osa030/guildbox/internal/app/session/state"
)

// Client reads the status API of a running server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a status API client. httpClient may be nil.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// Info returns the service state.
func (c *Client) Info(ctx context.Context) (state.Info, error) {
	var info state.Info
	err := c.getJSON(ctx, "/api/info", &info)
	return info, err
}

// Sessions returns the active guild sessions.
func (c *Client) Sessions(ctx context.Context) ([]SessionView, error) {
	var resp SessionsResponse
	if err := c.getJSON(ctx, "/api/sessions", &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// Subscribe calls fn for every notification until ctx is done or the stream ends.
func (c *Client) Subscribe(ctx context.Context, fn func(notification.Notification)) error {
	resp, err := c.do(ctx, "/api/notifications")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var n notification.Notification
		if err := json.Unmarshal([]byte(data), &n); err != nil {
			return errors.Wrap(err, "failed to decode notification")
		}
		fn(n)
	}
	if ctx.Err() != nil {
		return nil
	}
	return errors.Wrap(sc.Err(), "notification stream ended")
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrapf(err, "failed to decode %s", path)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request %s failed", path)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Newf("request %s failed: %s", path, resp.Status)
	}
	return resp, nil
}
