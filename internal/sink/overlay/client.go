package overlay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"quotefeed/internal/httpx"
)

// Client drives the SetText function of a vMix-compatible overlay device.
type Client struct {
	baseURL    string
	input      string
	httpClient httpx.Doer
}

// NewClient targets http://host:port and the given title input.
func NewClient(host string, port int, input string, d httpx.Doer) *Client {
	if d == nil {
		d = httpx.New(DefaultTimeout)
	}
	return &Client{
		baseURL:    "http://" + host + ":" + strconv.Itoa(port),
		input:      input,
		httpClient: d,
	}
}

// URL returns the request that sets field to text.
func (c *Client) URL(field, text string) string {
	return fmt.Sprintf("%s/API/?Function=SetText&Input=%s&SelectedName=%s&Value=%s",
		c.baseURL, escape(c.input), escape(field), escape(text))
}

// SetText sends text to field.
func (c *Client) SetText(ctx context.Context, field, text string) error {
	u := c.URL(field, text)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &httpx.StatusError{URL: u, Code: res.StatusCode}
	}
	return nil
}

// escape percent-encodes s with spaces as %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
