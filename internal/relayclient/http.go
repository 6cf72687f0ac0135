// Package relayclient is ratchetctl's HTTP client for cmd/relaydemo: it
// only moves opaque bundle and envelope bytes, never cryptographic state.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// QueuedEnvelope pairs an opaque envelope blob with the sender's contact id.
type QueuedEnvelope struct {
	From     string `json:"from"`
	Envelope []byte `json:"envelope"`
}

// HTTP is a relayclient over HTTP.
type HTTP struct {
	Base   string
	client *http.Client
}

// New constructs an HTTP relay client with sensible connection timeouts.
func New(base string) *HTTP {
	return &HTTP{
		Base: base,
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   5 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

// PutBundle publishes a registration bundle's raw bytes for username.
func (c *HTTP) PutBundle(ctx context.Context, username string, bundle []byte) error {
	return c.postBytes(ctx, "/bundle/"+url.PathEscape(username), bundle)
}

// FetchBundle retrieves the registration bundle for username.
func (c *HTTP) FetchBundle(ctx context.Context, username string) ([]byte, error) {
	return c.getBytes(ctx, "/bundle/"+url.PathEscape(username))
}

// SendEnvelope posts an envelope's raw bytes to recipient, tagged with from.
func (c *HTTP) SendEnvelope(ctx context.Context, from, to string, envelope []byte) error {
	path := "/msg/" + url.PathEscape(to) + "?from=" + url.QueryEscape(from)
	return c.postBytes(ctx, path, envelope)
}

// FetchEnvelopes GETs up to limit queued envelopes for username.
func (c *HTTP) FetchEnvelopes(ctx context.Context, username string, limit int) ([]QueuedEnvelope, error) {
	u := c.Base + "/msg/" + url.PathEscape(username)
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("relay get %s: %s", u, resp.Status)
	}
	var out []QueuedEnvelope
	return out, json.NewDecoder(resp.Body).Decode(&out)
}

// AckEnvelopes drops the first count queued envelopes for username.
func (c *HTTP) AckEnvelopes(ctx context.Context, username string, count int) error {
	payload := struct {
		Count int `json:"count"`
	}{Count: count}
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+"/msg/"+url.PathEscape(username)+"/ack", buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("relay ack: %s", resp.Status)
	}
	return nil
}

func (c *HTTP) postBytes(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("relay post %s: %s", path, resp.Status)
	}
	return nil
}

func (c *HTTP) getBytes(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("relay get %s: %s", path, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
