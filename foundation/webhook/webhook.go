// Package webhook posts JSON payloads to an operator configured HTTP
// endpoint. Delivery of queued notifications goes through here.
package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client posts payloads to a single endpoint.
type Client struct {
	rest *resty.Client
	url  string
}

// New constructs a client for the given endpoint.
func New(url string, timeout time.Duration) *Client {
	rest := resty.New()
	rest.SetTimeout(timeout)

	return &Client{
		rest: rest,
		url:  url,
	}
}

// Send posts the payload as JSON. Any non-2xx response is an error.
func (c *Client) Send(ctx context.Context, payload any) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("post: status[%d]", resp.StatusCode())
	}

	return nil
}
