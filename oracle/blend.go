package oracle

import (
	"context"
	"math"

	"github.com/pdevine/tensor"

	"github.com/ollama/turntable/view"
)

// Blend is a reference oracle with no model behind it. It fuses the anchors
// as the model fuses its conditioning, a weighted mean over the batch, after
// rolling each anchor horizontally by its relative rotation. The output is a
// deterministic function of the request.
type Blend struct{}

func (Blend) Name() string { return "blend" }

func (Blend) Synthesize(ctx context.Context, req *Request) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, w, err := req.Validate()
	if err != nil {
		return nil, err
	}

	var total float64
	for _, weight := range req.Weights {
		total += weight
	}

	plane := h * w
	out := make([]float32, view.Channels*plane)
	for i, anchor := range req.Anchors {
		weight := 1 / float64(len(req.Anchors))
		if total > 0 {
			weight = req.Weights[i] / total
		}
		if weight == 0 {
			continue
		}

		data, err := view.Pixels(anchor)
		if err != nil {
			return nil, err
		}

		shift := int(math.Round(req.Rotations[i].Delta() / (2 * math.Pi) * float64(w)))
		for c := range view.Channels {
			for y := range h {
				row := c*plane + y*w
				for x := range w {
					src := ((x-shift)%w + w) % w
					out[row+x] += float32(weight) * data[row+src]
				}
			}
		}
	}

	for i, v := range out {
		out[i] = max(-1, min(1, v))
	}

	return view.NewImage(h, w, out)
}
