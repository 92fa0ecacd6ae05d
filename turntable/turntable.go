// Package turntable grows a full turn of views around an object from a
// single photo, one view at a time, each conditioned on those before it.
package turntable

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdevine/tensor"

	"github.com/ollama/turntable/api"
	"github.com/ollama/turntable/logutil"
	"github.com/ollama/turntable/oracle"
	"github.com/ollama/turntable/schedule"
	"github.com/ollama/turntable/view"
)

type Options struct {
	Schedule schedule.Params
	Sampler  api.Options

	// OnStep, if set, is called after every generated view.
	OnStep func(step int, plan schedule.StepPlan)
}

func DefaultOptions() Options {
	return Options{
		Schedule: schedule.DefaultParams(),
		Sampler:  api.DefaultOptions(),
	}
}

// Result is a completed turn.
type Result struct {
	Input view.View

	// Frames holds the input and every generated view, ordered by azimuth
	// in [0, 2π). Frames[0] is the input.
	Frames []view.View

	Duration time.Duration
}

// Generate runs every step of the schedule against o, starting from input.
// The input is placed at azimuth 0. An error from o aborts the turn.
func Generate(ctx context.Context, o oracle.Oracle, input view.View, opts Options) (*Result, error) {
	if err := opts.Schedule.Validate(); err != nil {
		return nil, err
	}

	img, err := view.Squeeze(input.Image)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	h, w, _ := view.Size(img)

	input = view.View{Image: img, Angle: 0}
	pool := view.NewPool(input)

	start := time.Now()
	for step := range schedule.Steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}

		plan, err := schedule.Plan(step, pool.Angles(), opts.Schedule)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}

		slog.Debug("synthesizing view", "step", step, logutil.Degrees("target", plan.Target), "anchors", len(plan.Anchors), "weights", plan.Weights)
		logutil.Trace("anchor distances", "step", step, "anchors", plan.Anchors, logutil.Degrees("distances", plan.Distances...))

		req := oracle.Request{
			Anchors:   make([]*tensor.Dense, len(plan.Anchors)),
			Rotations: plan.Rotations,
			Weights:   plan.Weights,
			Options:   opts.Sampler,
		}
		for i, v := range pool.Select(plan.Anchors) {
			req.Anchors[i] = v.Image
		}

		out, err := o.Synthesize(ctx, &req)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}

		out, err = view.Squeeze(out)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
		if oh, ow, _ := view.Size(out); oh != h || ow != w {
			return nil, fmt.Errorf("step %d: %w: view is %dx%d, want %dx%d", step, oracle.ErrShape, oh, ow, h, w)
		}

		pool.Append(view.View{Image: out, Angle: plan.Target})

		if opts.OnStep != nil {
			opts.OnStep(step, plan)
		}
	}

	return &Result{
		Input:    input,
		Frames:   Assemble(pool.Views()),
		Duration: time.Since(start),
	}, nil
}
