// Package gateway implements channel.Client against an HTTP messaging
// gateway (the process that owns the actual device session and pairing).
// The bot stays a thin policy layer; all protocol work lives behind the
// gateway's JSON API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"blastbot/internal/channel"
	"blastbot/pkg/logx"
)

type Config struct {
	BaseURL string
	Token   string

	// PollInterval controls how often the connectivity poller queries the
	// gateway state. Zero means 5s.
	PollInterval time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("gateway base url is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  log,
	}, nil
}

type sendRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type sendResponse struct {
	ID string `json:"id"`
}

func (c *Client) SendMessage(ctx context.Context, identifier, text string) (channel.MessageID, error) {
	var resp sendResponse
	err := c.do(ctx, http.MethodPost, "/api/send", sendRequest{To: identifier, Text: text}, &resp)
	if err != nil {
		return "", err
	}
	return channel.MessageID(resp.ID), nil
}

func (c *Client) Lookup(ctx context.Context, identifier string) (bool, error) {
	var resp struct {
		Exists bool `json:"exists"`
	}
	path := "/api/contacts/" + identifier + "/exists"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

func (c *Client) AckLevel(ctx context.Context, id channel.MessageID) (channel.AckLevel, error) {
	var resp struct {
		Ack int `json:"ack"`
	}
	path := "/api/messages/" + string(id) + "/ack"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return channel.AckError, err
	}
	return channel.AckLevel(resp.Ack), nil
}

type statusResponse struct {
	State  string `json:"state"`
	Detail string `json:"detail"`
}

// Poll runs the connectivity poller until ctx is canceled, translating the
// gateway's reported state into Connectivity transitions. On pairing it
// fetches the current QR challenge so the control router can forward it.
func (c *Client) Poll(ctx context.Context, conn *channel.Connectivity) {
	interval := c.cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.pollOnce(ctx, conn)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, conn *channel.Connectivity) {
	var st statusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &st); err != nil {
		conn.OnDisconnected("gateway unreachable: " + err.Error())
		return
	}
	switch st.State {
	case "ready":
		conn.OnReady()
	case "authenticated":
		conn.OnAuthenticated()
	case "pairing":
		if conn.State() == channel.StatePairingRequested {
			return // QR already forwarded; wait for a scan or a new code
		}
		qr, err := c.fetchQR(ctx)
		if err != nil {
			c.log.Warn("qr fetch failed", logx.Err(err))
		}
		conn.OnPairingChallenge(qr)
	case "auth_failed":
		conn.OnAuthFailure(st.Detail)
	default:
		conn.OnDisconnected(st.Detail)
	}
}

func (c *Client) fetchQR(ctx context.Context) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/qr", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway qr: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return channel.ErrNotReady
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	return req, nil
}
