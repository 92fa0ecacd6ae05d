// Package pipeline turns every item of a dataset, several at a time, while
// keeping one failing item from affecting the rest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ollama/turntable/dataset"
	"github.com/ollama/turntable/format"
	"github.com/ollama/turntable/oracle"
	"github.com/ollama/turntable/output"
	"github.com/ollama/turntable/progress"
	"github.com/ollama/turntable/schedule"
	"github.com/ollama/turntable/turntable"
)

type Options struct {
	Turntable turntable.Options

	// Height and Width are the resolution inputs are scaled to.
	Height, Width int

	NumParallel int

	// Progress, if set, receives a bar counting finished items and one
	// step bar per item.
	Progress *progress.Progress
}

// Summary counts how every item of a run ended.
type Summary struct {
	Done    int
	Skipped int
	Failed  int

	// Errors holds the error of every failed item.
	Errors map[string]error
}

func (s Summary) Total() int {
	return s.Done + s.Skipped + s.Failed
}

// Err joins the item errors, if any.
func (s Summary) Err() error {
	if s.Failed == 0 {
		return nil
	}

	errs := make([]error, 0, len(s.Errors))
	for name, err := range s.Errors {
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return errors.Join(errs...)
}

type status int

const (
	statusDone status = iota
	statusSkipped
	statusFailed
)

func (s status) String() string {
	switch s {
	case statusSkipped:
		return "skipped"
	case statusFailed:
		return "failed"
	default:
		return "done"
	}
}

// Run turns items into run, up to opts.NumParallel at once. Item failures
// are recorded in the summary; only cancellation of ctx is returned as an
// error.
func Run(ctx context.Context, o oracle.Oracle, run *output.Run, items []dataset.Item, opts Options) (Summary, error) {
	summary := Summary{Errors: make(map[string]error)}
	if err := opts.Turntable.Schedule.Validate(); err != nil {
		return summary, err
	}

	var total *progress.Bar
	if opts.Progress != nil {
		total = progress.NewBar("items", int64(len(items)))
		opts.Progress.Add("items", total)
	}

	var mu sync.Mutex
	record := func(it dataset.Item, s status, err error) {
		mu.Lock()
		defer mu.Unlock()

		if total != nil {
			total.Add(1)
		}

		switch s {
		case statusDone:
			summary.Done++
		case statusSkipped:
			summary.Skipped++
		case statusFailed:
			summary.Failed++
			summary.Errors[label(it)] = err
		}
	}

	if partial, err := run.Partial(); err != nil {
		slog.Warn("could not look for incomplete items", "dir", run.Dir, "error", err)
	} else if len(partial) > 0 {
		slog.Warn("found incomplete items from an earlier run, they will be redone", "count", len(partial), "dirs", partial)
	}

	var g errgroup.Group
	g.SetLimit(max(opts.NumParallel, 1))

	for _, it := range items {
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			s, err := process(ctx, o, run, it, opts)
			if ctx.Err() != nil && err != nil {
				// interrupted, not failed
				return nil
			}

			if err != nil {
				slog.Error("item failed", "item", it.Name, "index", it.Index, "error", err)
			}
			record(it, s, err)
			return nil
		})
	}

	g.Wait()
	return summary, ctx.Err()
}

func label(it dataset.Item) string {
	return fmt.Sprintf("%s/%d", it.Name, it.Index)
}

func process(ctx context.Context, o oracle.Oracle, run *output.Run, it dataset.Item, opts Options) (s status, err error) {
	var bar *progress.StepBar
	// registered first so it runs after the staging directory is aborted
	defer func() {
		if r := recover(); r != nil {
			s, err = statusFailed, fmt.Errorf("panic: %v", r)
		}
		if bar != nil {
			bar.Finish(s.String())
		}
	}()

	if run.Exists(it.Name, it.Index) {
		slog.Info("output exists, skipping", "item", it.Name, "index", it.Index)
		return statusSkipped, nil
	}

	if opts.Progress != nil {
		bar = progress.NewStepBar(label(it), schedule.Steps)
		opts.Progress.Add(label(it), bar)
	}

	input, err := it.Load(opts.Height, opts.Width)
	if err != nil {
		return statusFailed, err
	}

	w, err := run.Begin(it.Name, it.Index)
	if errors.Is(err, output.ErrExists) {
		return statusSkipped, nil
	} else if err != nil {
		return statusFailed, err
	}
	defer w.Abort()

	topts := opts.Turntable
	topts.OnStep = func(step int, plan schedule.StepPlan) {
		if bar != nil {
			bar.Set(step + 1)
		}
		if opts.Turntable.OnStep != nil {
			opts.Turntable.OnStep(step, plan)
		}
	}

	result, err := turntable.Generate(ctx, o, input, topts)
	release(ctx, o)
	if err != nil {
		return statusFailed, err
	}

	if err := w.WriteFrames(result.Frames); err != nil {
		return statusFailed, err
	}
	if err := w.WriteCondition(result.Input); err != nil {
		return statusFailed, err
	}
	if err := w.Commit(); err != nil {
		return statusFailed, err
	}

	slog.Info("item done", "item", it.Name, "index", it.Index, "path", w.Dir(), "duration", format.ExactDuration(result.Duration))
	return statusDone, nil
}

// release lets the oracle reclaim memory held for the finished item.
func release(ctx context.Context, o oracle.Oracle) {
	r, ok := o.(oracle.Releaser)
	if !ok {
		return
	}

	if err := r.Release(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("failed to release oracle memory", "error", err)
	}
}
