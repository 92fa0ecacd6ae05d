// Package view holds the images a turntable is built from and the
// append-only pool of anchors they accumulate in.
package view

import (
	"errors"
	"fmt"

	"github.com/pdevine/tensor"
)

// Channels is the number of color channels of every view.
const Channels = 3

var ErrShape = errors.New("view: unexpected image shape")

// View is one image of the object and the azimuth, in radians, it was
// generated at. Image has shape [3, H, W] with values in [-1, 1].
type View struct {
	Image *tensor.Dense
	Angle float64
}

// NewImage wraps pixel data laid out as [3, h, w].
func NewImage(h, w int, data []float32) (*tensor.Dense, error) {
	if len(data) != Channels*h*w {
		return nil, fmt.Errorf("%w: %d values for %dx%dx%d", ErrShape, len(data), Channels, h, w)
	}
	return tensor.New(tensor.WithShape(Channels, h, w), tensor.WithBacking(data)), nil
}

// Blank returns an image filled with v.
func Blank(h, w int, v float32) *tensor.Dense {
	data := make([]float32, Channels*h*w)
	for i := range data {
		data[i] = v
	}
	return tensor.New(tensor.WithShape(Channels, h, w), tensor.WithBacking(data))
}

// Size returns the height and width of an image, checking its layout.
func Size(t *tensor.Dense) (h, w int, err error) {
	if t == nil {
		return 0, 0, fmt.Errorf("%w: nil image", ErrShape)
	}

	shape := t.Shape()
	switch {
	case len(shape) == 3 && shape[0] == Channels:
		return shape[1], shape[2], nil
	case len(shape) == 4 && shape[0] == 1 && shape[1] == Channels:
		// a batch of one, as the model returns it
		return shape[2], shape[3], nil
	}
	return 0, 0, fmt.Errorf("%w: %v", ErrShape, shape)
}

// Pixels returns the backing data of an image, laid out channel-major.
func Pixels(t *tensor.Dense) ([]float32, error) {
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("%w: dtype %v", ErrShape, t.Dtype())
	}
	return data, nil
}

// Squeeze drops a leading batch dimension of one, if present.
func Squeeze(t *tensor.Dense) (*tensor.Dense, error) {
	h, w, err := Size(t)
	if err != nil {
		return nil, err
	}

	data, err := Pixels(t)
	if err != nil {
		return nil, err
	}
	return NewImage(h, w, data)
}
