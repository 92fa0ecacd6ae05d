// Package oracle defines the contract turntable consumes from a view
// synthesis model and provides implementations of it.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/pdevine/tensor"

	"github.com/ollama/turntable/api"
	"github.com/ollama/turntable/schedule"
	"github.com/ollama/turntable/view"
)

var ErrShape = errors.New("oracle: malformed request")

// Request is one call to the model: the eligible anchors, in pool order,
// with their relative rotation and interpolation weight.
type Request struct {
	Anchors   []*tensor.Dense
	Rotations []schedule.Rotation
	Weights   []float64
	Options   api.Options
}

// Validate checks that anchors, rotations and weights line up and that every
// anchor has the same size. It returns that size.
func (r *Request) Validate() (h, w int, err error) {
	if len(r.Anchors) == 0 {
		return 0, 0, fmt.Errorf("%w: no anchors", ErrShape)
	}
	if len(r.Rotations) != len(r.Anchors) || len(r.Weights) != len(r.Anchors) {
		return 0, 0, fmt.Errorf("%w: %d anchors, %d rotations, %d weights", ErrShape, len(r.Anchors), len(r.Rotations), len(r.Weights))
	}

	for i, a := range r.Anchors {
		ah, aw, err := view.Size(a)
		if err != nil {
			return 0, 0, fmt.Errorf("anchor %d: %w", i, err)
		}
		if i == 0 {
			h, w = ah, aw
		} else if ah != h || aw != w {
			return 0, 0, fmt.Errorf("%w: anchor %d is %dx%d, want %dx%d", ErrShape, i, ah, aw, h, w)
		}
	}

	for i, weight := range r.Weights {
		if weight < 0 {
			return 0, 0, fmt.Errorf("%w: negative weight %v at %d", ErrShape, weight, i)
		}
	}

	return h, w, nil
}

// Oracle synthesizes exactly one [3, H, W] view in [-1, 1] per call.
type Oracle interface {
	Synthesize(ctx context.Context, req *Request) (*tensor.Dense, error)
}

// Releaser is implemented by oracles that hold accelerator memory which can
// be reclaimed between items.
type Releaser interface {
	Release(ctx context.Context) error
}

// Func adapts an ordinary function to the Oracle interface.
type Func func(ctx context.Context, req *Request) (*tensor.Dense, error)

func (f Func) Synthesize(ctx context.Context, req *Request) (*tensor.Dense, error) {
	return f(ctx, req)
}

// Counting wraps an Oracle and counts the calls made through it.
type Counting struct {
	Oracle
	calls atomic.Int64
}

func NewCounting(o Oracle) *Counting {
	return &Counting{Oracle: o}
}

func (c *Counting) Synthesize(ctx context.Context, req *Request) (*tensor.Dense, error) {
	c.calls.Add(1)
	return c.Oracle.Synthesize(ctx, req)
}

// Release forwards to the wrapped oracle when it supports it.
func (c *Counting) Release(ctx context.Context) error {
	if r, ok := c.Oracle.(Releaser); ok {
		return r.Release(ctx)
	}
	return nil
}

func (c *Counting) Calls() int64 {
	return c.calls.Load()
}
