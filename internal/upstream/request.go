package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// GetJSON issues a GET with the given headers and decodes the body.
func (c *Client) GetJSON(ctx context.Context, op, rawURL string, hdr http.Header, out any) error {
	return c.Do(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		copyHeader(req.Header, hdr)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

// PostJSON encodes body as JSON and decodes the response.
func (c *Client) PostJSON(ctx context.Context, op, rawURL string, hdr http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.Do(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		copyHeader(req.Header, hdr)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

// PostForm sends an application/x-www-form-urlencoded body, which is what
// every OAuth token endpoint we talk to expects.
func (c *Client) PostForm(ctx context.Context, op, rawURL string, form url.Values, out any) error {
	encoded := form.Encode()
	return c.Do(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
