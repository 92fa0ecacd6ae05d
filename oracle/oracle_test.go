package oracle

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/pdevine/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/turntable/api"
	"github.com/ollama/turntable/schedule"
	"github.com/ollama/turntable/view"
)

func ramp(h, w int) *tensor.Dense {
	data := make([]float32, view.Channels*h*w)
	for c := range view.Channels {
		for y := range h {
			for x := range w {
				data[c*h*w+y*w+x] = float32(x)/float32(w) - 0.5
			}
		}
	}
	img, _ := view.NewImage(h, w, data)
	return img
}

func request(anchors []*tensor.Dense, deltas, weights []float64) *Request {
	req := &Request{Anchors: anchors, Weights: weights, Options: api.DefaultOptions()}
	for _, d := range deltas {
		req.Rotations = append(req.Rotations, schedule.NewRotation(d))
	}
	return req
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		req  *Request
		err  error
	}{
		{"ok", request([]*tensor.Dense{view.Blank(4, 6, 0), view.Blank(4, 6, 0)}, []float64{0, 0}, []float64{0.5, 0.5}), nil},
		{"empty", request(nil, nil, nil), ErrShape},
		{"rotations", request([]*tensor.Dense{view.Blank(4, 6, 0)}, nil, []float64{1}), ErrShape},
		{"weights", request([]*tensor.Dense{view.Blank(4, 6, 0)}, []float64{0}, []float64{1, 0}), ErrShape},
		{"sizes", request([]*tensor.Dense{view.Blank(4, 6, 0), view.Blank(6, 4, 0)}, []float64{0, 0}, []float64{0.5, 0.5}), ErrShape},
		{"negative", request([]*tensor.Dense{view.Blank(4, 6, 0)}, []float64{0}, []float64{-1}), ErrShape},
		{"nil image", request([]*tensor.Dense{nil}, []float64{0}, []float64{1}), view.ErrShape},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			h, w, err := tt.req.Validate()
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, 4, h)
			assert.Equal(t, 6, w)
		})
	}
}

func TestBlendIdentity(t *testing.T) {
	in := ramp(4, 8)
	out, err := Blend{}.Synthesize(context.Background(), request([]*tensor.Dense{in}, []float64{0}, []float64{1}))
	require.NoError(t, err)

	assert.Equal(t, []int{view.Channels, 4, 8}, []int(out.Shape()))
	assert.Equal(t, in.Data(), out.Data())
}

func TestBlendRoll(t *testing.T) {
	in := ramp(2, 8)
	out, err := Blend{}.Synthesize(context.Background(), request([]*tensor.Dense{in}, []float64{math.Pi / 2}, []float64{1}))
	require.NoError(t, err)

	src, err := view.Pixels(in)
	require.NoError(t, err)
	dst, err := view.Pixels(out)
	require.NoError(t, err)

	// a quarter turn on a width of 8 rolls the image by 2 columns
	for x := range 8 {
		assert.Equal(t, src[(x+6)%8], dst[x], "column %d", x)
	}
}

func TestBlendWeights(t *testing.T) {
	anchors := []*tensor.Dense{view.Blank(2, 2, -1), view.Blank(2, 2, 1)}

	cases := []struct {
		name    string
		weights []float64
		want    float32
	}{
		{"normalized", []float64{0.25, 0.75}, 0.5},
		{"unnormalized", []float64{1, 3}, 0.5},
		{"zero", []float64{0, 0}, 0},
		{"input only", []float64{1, 0}, -1},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Blend{}.Synthesize(context.Background(), request(anchors, []float64{0, 0}, tt.weights))
			require.NoError(t, err)

			data, err := view.Pixels(out)
			require.NoError(t, err)
			for _, v := range data {
				assert.InDelta(t, tt.want, v, 1e-6)
			}
		})
	}
}

func TestBlendCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Blend{}.Synthesize(ctx, request([]*tensor.Dense{view.Blank(2, 2, 0)}, []float64{0}, []float64{1}))
	assert.ErrorIs(t, err, context.Canceled)
}

type releaser struct {
	Blend
	released int
}

func (r *releaser) Release(context.Context) error {
	r.released++
	return nil
}

func TestCounting(t *testing.T) {
	inner := &releaser{}
	c := NewCounting(inner)

	req := request([]*tensor.Dense{view.Blank(2, 2, 0)}, []float64{0}, []float64{1})
	for range 3 {
		_, err := c.Synthesize(context.Background(), req)
		require.NoError(t, err)
	}

	assert.EqualValues(t, 3, c.Calls())
	require.NoError(t, c.Release(context.Background()))
	assert.Equal(t, 1, inner.released)

	// oracles without Release are fine
	require.NoError(t, NewCounting(Blend{}).Release(context.Background()))
}

func TestFunc(t *testing.T) {
	boom := errors.New("boom")
	var o Oracle = Func(func(context.Context, *Request) (*tensor.Dense, error) {
		return nil, boom
	})

	_, err := o.Synthesize(context.Background(), &Request{})
	assert.ErrorIs(t, err, boom)
}
