// Package api implements the wire contract between turntable and a view
// synthesis runner.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/ollama/turntable/envconfig"
)

// Client talks to a runner over HTTP.
type Client struct {
	base      *url.URL
	http      *http.Client
	mediaType string
}

// ClientFromEnvironment creates a client for the runner named by
// TURNTABLE_HOST.
func ClientFromEnvironment() (*Client, error) {
	mediaType := MediaTypeJSON
	if envconfig.CBOR() {
		mediaType = MediaTypeCBOR
	}

	return &Client{
		base:      envconfig.Host(),
		http:      http.DefaultClient,
		mediaType: mediaType,
	}, nil
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{
		base:      base,
		http:      http,
		mediaType: MediaTypeJSON,
	}
}

// WithMediaType returns a copy of c that encodes request bodies as
// mediaType.
func (c *Client) WithMediaType(mediaType string) *Client {
	cc := *c
	cc.mediaType = MediaType(mediaType)
	return &cc
}

func (c *Client) Base() *url.URL {
	return c.base
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var reqBody io.Reader
	if reqData != nil {
		data, err := Marshal(c.mediaType, reqData)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	requestURL := c.base.JoinPath(path)
	request, err := http.NewRequestWithContext(ctx, method, requestURL.String(), reqBody)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", c.mediaType)
	request.Header.Set("Accept", c.mediaType)
	request.Header.Set("X-Request-Id", uuid.NewString())

	respObj, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer respObj.Body.Close()

	respBody, err := io.ReadAll(respObj.Body)
	if err != nil {
		return err
	}

	mediaType := respObj.Header.Get("Content-Type")
	if respObj.StatusCode >= http.StatusBadRequest {
		var errorResponse ErrorResponse
		if err := Unmarshal(mediaType, respBody, &errorResponse); err != nil || errorResponse.Message == "" {
			errorResponse.Message = string(bytes.TrimSpace(respBody))
		}
		return StatusError{
			StatusCode:   respObj.StatusCode,
			Status:       respObj.Status,
			ErrorMessage: errorResponse.Message,
		}
	}

	if len(respBody) > 0 && respData != nil {
		if err := Unmarshal(mediaType, respBody, respData); err != nil {
			return err
		}
	}
	return nil
}

// Health reports the runner status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Heartbeat checks if the runner has started and is responsive.
func (c *Client) Heartbeat(ctx context.Context) error {
	resp, err := c.Health(ctx)
	if err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("runner not ready: %s", resp.Status)
	}
	return nil
}

// Synthesize requests one new view.
func (c *Client) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	var resp SynthesizeResponse
	if err := c.do(ctx, http.MethodPost, "/synthesize", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Release asks the runner to free cached accelerator memory.
func (c *Client) Release(ctx context.Context) error {
	var resp ReleaseResponse
	return c.do(ctx, http.MethodPost, "/release", nil, &resp)
}
