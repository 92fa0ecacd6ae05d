package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ollama/turntable/api"
	"github.com/ollama/turntable/dataset"
	"github.com/ollama/turntable/envconfig"
	"github.com/ollama/turntable/format"
	"github.com/ollama/turntable/oracle"
	"github.com/ollama/turntable/output"
	"github.com/ollama/turntable/pipeline"
	"github.com/ollama/turntable/progress"
	"github.com/ollama/turntable/turntable"
)

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run (--images DIR | --manifest FILE)",
		Short: "Generate turntables for a set of photos",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if local, _ := cmd.Flags().GetBool("local"); local {
				return nil
			}
			return checkRunnerHeartbeat(cmd, args)
		},
		RunE: runHandler,
	}

	cmd.Flags().String("images", "", "Directory of photos, matted on their alpha channel")
	cmd.Flags().String("manifest", "", "JSON or YAML map of rendered object name to condition index")
	cmd.Flags().String("pattern", dataset.DefaultPattern, "Path template of manifest images")
	cmd.Flags().StringP("output", "o", "", "Directory runs are written under")
	cmd.Flags().Float64("inference-temp", 0, "Decay temperature of the input view weight")
	cmd.Flags().Float64("auto-temp", 0, "Softmax temperature among generated anchors")
	cmd.Flags().Float64("scale", 0, "Guidance scale")
	cmd.Flags().Int("steps", 0, "Sampling steps per view")
	cmd.Flags().Float64("eta", 0, "Sampler noise parameter")
	cmd.Flags().String("precision", "", "fp32, autocast, fp16 or bf16")
	cmd.Flags().Int64("seed", 0, "Sampler seed")
	cmd.Flags().Int("height", 0, "Input height in pixels")
	cmd.Flags().Int("width", 0, "Input width in pixels")
	cmd.Flags().IntP("parallel", "p", 0, "Items processed in parallel")
	cmd.Flags().Bool("local", false, "Use the built-in blend oracle instead of a runner")
	cmd.MarkFlagsMutuallyExclusive("images", "manifest")

	appendEnvDocs(cmd, envDocs(
		"TURNTABLE_HOST",
		"TURNTABLE_OUTPUT",
		"TURNTABLE_INFERENCE_TEMP",
		"TURNTABLE_AUTO_TEMP",
		"TURNTABLE_SCALE",
		"TURNTABLE_STEPS",
		"TURNTABLE_ETA",
		"TURNTABLE_PRECISION",
		"TURNTABLE_SEED",
		"TURNTABLE_HEIGHT",
		"TURNTABLE_WIDTH",
		"TURNTABLE_NUM_PARALLEL",
		"TURNTABLE_RUNNER_PARALLEL",
		"TURNTABLE_CBOR",
		"TURNTABLE_LOAD_TIMEOUT",
		"TURNTABLE_REQUEST_TIMEOUT",
	))

	return cmd
}

// runOptions resolves flags over the environment and configuration file.
func runOptions(cmd *cobra.Command) (pipeline.Options, error) {
	flags := cmd.Flags()
	opts := pipeline.Options{Turntable: turntable.DefaultOptions()}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	opts.Turntable.Schedule.InferenceTemp, err = flagOr(cmd, "inference-temp", flags.GetFloat64, envconfig.InferenceTemp())
	collect(err)
	opts.Turntable.Schedule.AutoTemp, err = flagOr(cmd, "auto-temp", flags.GetFloat64, envconfig.AutoTemp())
	collect(err)
	collect(opts.Turntable.Schedule.Validate())

	sampler := &opts.Turntable.Sampler
	sampler.Scale, err = flagOr(cmd, "scale", flags.GetFloat64, envconfig.Scale())
	collect(err)
	sampler.Steps, err = flagOr(cmd, "steps", flags.GetInt, int(envconfig.SamplingSteps()))
	collect(err)
	sampler.Eta, err = flagOr(cmd, "eta", flags.GetFloat64, envconfig.Eta())
	collect(err)
	sampler.Seed, err = flagOr(cmd, "seed", flags.GetInt64, envconfig.Seed())
	collect(err)

	precision, err := flagOr(cmd, "precision", flags.GetString, envconfig.Precision())
	collect(err)
	sampler.Precision, err = api.ParsePrecision(precision)
	collect(err)

	opts.Height, err = flagOr(cmd, "height", flags.GetInt, int(envconfig.Height()))
	collect(err)
	opts.Width, err = flagOr(cmd, "width", flags.GetInt, int(envconfig.Width()))
	collect(err)
	opts.NumParallel, err = flagOr(cmd, "parallel", flags.GetInt, int(envconfig.NumParallel()))
	collect(err)

	if sampler.Steps <= 0 {
		errs = append(errs, errors.New("steps must be greater than zero"))
	}
	if opts.Height <= 0 || opts.Width <= 0 {
		errs = append(errs, fmt.Errorf("invalid resolution %dx%d", opts.Width, opts.Height))
	}
	if opts.NumParallel <= 0 {
		errs = append(errs, errors.New("parallel must be greater than zero"))
	}

	return opts, errors.Join(errs...)
}

func loadItems(cmd *cobra.Command) ([]dataset.Item, error) {
	if dir, _ := cmd.Flags().GetString("images"); dir != "" {
		return dataset.Directory(dir)
	}

	manifest, _ := cmd.Flags().GetString("manifest")
	if manifest == "" {
		return nil, errors.New("one of --images or --manifest is required")
	}

	pattern, _ := cmd.Flags().GetString("pattern")
	return dataset.Manifest(manifest, pattern)
}

func runHandler(cmd *cobra.Command, args []string) error {
	opts, err := runOptions(cmd)
	if err != nil {
		return err
	}

	items, err := loadItems(cmd)
	if err != nil {
		return err
	}

	root, err := flagOr(cmd, "output", cmd.Flags().GetString, envconfig.Output())
	if err != nil {
		return err
	}

	run, err := output.Open(root, opts.Turntable.Schedule)
	if err != nil {
		return err
	}

	var o oracle.Oracle = oracle.Blend{}
	if local, _ := cmd.Flags().GetBool("local"); !local {
		client, err := oracle.ClientFromEnvironment()
		if err != nil {
			return err
		}
		o = client
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting run",
		"id", uuid.NewString(),
		"dir", run.Dir,
		"items", len(items),
		"inference_temp", opts.Turntable.Schedule.InferenceTemp,
		"auto_temp", opts.Turntable.Schedule.AutoTemp,
		"precision", opts.Turntable.Sampler.Precision,
		"parallel", opts.NumParallel)

	var p *progress.Progress
	if term.IsTerminal(int(os.Stderr.Fd())) {
		p = progress.NewProgress(os.Stderr)
		opts.Progress = p
	}

	start := time.Now()
	summary, err := pipeline.Run(ctx, o, run, items, opts)
	if p != nil {
		p.Stop()
	}

	fmt.Fprintf(os.Stderr, "%d done, %d skipped, %d failed in %s\n",
		summary.Done, summary.Skipped, summary.Failed, format.HumanDurationWithCase(time.Since(start), false))

	if errors.Is(err, context.Canceled) {
		return errors.New("run interrupted")
	} else if err != nil {
		return err
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d items failed", summary.Failed, summary.Total())
	}
	return nil
}

// checkRunnerHeartbeat waits for the runner to come up, showing a spinner
// while it loads.
func checkRunnerHeartbeat(cmd *cobra.Command, _ []string) error {
	client, err := oracle.ClientFromEnvironment()
	if err != nil {
		return err
	}

	spinner := progress.NewSpinner("waiting for runner")
	p := progress.NewProgress(os.Stderr)
	p.Add("", spinner)
	defer p.StopAndClear()

	if err := client.WaitUntilRunning(cmd.Context(), envconfig.LoadTimeout()); err != nil {
		return fmt.Errorf("runner at %s is not responding, start it with `turntable runner`: %w", envconfig.Host().Host, err)
	}
	return nil
}
