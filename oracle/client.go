package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdevine/tensor"
	"golang.org/x/sync/semaphore"

	"github.com/ollama/turntable/api"
	"github.com/ollama/turntable/envconfig"
	"github.com/ollama/turntable/view"
)

// Client is an Oracle backed by a runner reached over HTTP.
type Client struct {
	api     *api.Client
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewClient bounds in-flight requests to parallel and each request to
// timeout. A zero timeout means no limit.
func NewClient(c *api.Client, parallel int, timeout time.Duration) *Client {
	return &Client{
		api:     c,
		sem:     semaphore.NewWeighted(int64(max(parallel, 1))),
		timeout: timeout,
	}
}

func ClientFromEnvironment() (*Client, error) {
	c, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, err
	}
	return NewClient(c, int(envconfig.RunnerParallel()), envconfig.RequestTimeout()), nil
}

// WaitUntilRunning polls the runner until it reports ready or timeout
// elapses.
func (c *Client) WaitUntilRunning(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastErr error
	for {
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.api.Heartbeat(pingCtx)
		pingCancel()
		if err == nil {
			slog.Info("runner is ready", "host", c.api.Base().Host)
			return nil
		}

		if lastErr == nil || lastErr.Error() != err.Error() {
			slog.Debug("waiting for runner", "host", c.api.Base().Host, "error", err)
		}
		lastErr = err

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("timed out waiting for runner at %s: %w", c.api.Base().Host, lastErr)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) Synthesize(ctx context.Context, req *Request) (*tensor.Dense, error) {
	h, w, err := req.Validate()
	if err != nil {
		return nil, err
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("aborting synthesize request due to cancellation")
		}
		return nil, err
	}
	defer c.sem.Release(1)

	wire, err := encodeRequest(req, h, w)
	if err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.api.Synthesize(ctx, wire)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	return decodeImage(resp.Image, h, w)
}

// Release asks the runner to free cached memory between items.
func (c *Client) Release(ctx context.Context) error {
	return c.api.Release(ctx)
}

func encodeRequest(req *Request, h, w int) (*api.SynthesizeRequest, error) {
	dtype := req.Options.Precision.DType()

	wire := api.SynthesizeRequest{
		Anchors:   make([]api.Tensor, len(req.Anchors)),
		Rotations: make([][4]float32, len(req.Rotations)),
		Weights:   make([]float32, len(req.Weights)),
		Options:   req.Options.Map(),
	}

	for i, a := range req.Anchors {
		data, err := view.Pixels(a)
		if err != nil {
			return nil, err
		}

		wire.Anchors[i], err = api.NewTensor([]int{view.Channels, h, w}, data, dtype)
		if err != nil {
			return nil, err
		}
	}

	for i, r := range req.Rotations {
		wire.Rotations[i] = r
	}

	for i, weight := range req.Weights {
		wire.Weights[i] = float32(weight)
	}

	return &wire, nil
}

func decodeImage(t api.Tensor, h, w int) (*tensor.Dense, error) {
	data, err := t.Float32s()
	if err != nil {
		return nil, err
	}

	img, err := view.Squeeze(tensor.New(tensor.WithShape(t.Shape...), tensor.WithBacking(data)))
	if err != nil {
		return nil, err
	}

	if ih, iw, _ := view.Size(img); ih != h || iw != w {
		return nil, fmt.Errorf("%w: runner returned %dx%d, want %dx%d", ErrShape, ih, iw, h, w)
	}
	return img, nil
}
