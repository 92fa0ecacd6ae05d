package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ollama/turntable/envconfig"
	"github.com/ollama/turntable/format"
	"github.com/ollama/turntable/schedule"
)

func NewPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the schedule of targets, anchors and weights",
		Args:  cobra.NoArgs,
		RunE:  planHandler,
	}

	cmd.Flags().Float64("inference-temp", 0, "Decay temperature of the input view weight")
	cmd.Flags().Float64("auto-temp", 0, "Softmax temperature among generated anchors")

	appendEnvDocs(cmd, envDocs("TURNTABLE_INFERENCE_TEMP", "TURNTABLE_AUTO_TEMP"))
	return cmd
}

func planHandler(cmd *cobra.Command, args []string) error {
	var p schedule.Params
	var err error
	p.InferenceTemp, err = flagOr(cmd, "inference-temp", cmd.Flags().GetFloat64, envconfig.InferenceTemp())
	if err != nil {
		return err
	}
	p.AutoTemp, err = flagOr(cmd, "auto-temp", cmd.Flags().GetFloat64, envconfig.AutoTemp())
	if err != nil {
		return err
	}

	plans, err := simulate(p)
	if err != nil {
		return err
	}

	writePlan(cmd.OutOrStdout(), plans)
	return nil
}

// simulate plans every step the way a run would, growing the pool by each
// target in turn.
func simulate(p schedule.Params) ([]schedule.StepPlan, error) {
	pool := []float64{0}
	plans := make([]schedule.StepPlan, 0, schedule.Steps)
	for step := range schedule.Steps {
		plan, err := schedule.Plan(step, pool, p)
		if err != nil {
			return nil, err
		}

		plans = append(plans, plan)
		pool = append(pool, plan.Target)
	}
	return plans, nil
}

func writePlan(w io.Writer, plans []schedule.StepPlan) {
	var data [][]string
	for _, plan := range plans {
		anchors := make([]float64, len(plan.Anchors))
		for i, k := range plan.Anchors {
			// pool index k > 0 holds the view generated at step k-1
			if k > 0 {
				anchors[i] = plans[k-1].Target
			}
		}

		weights := make([]string, len(plan.Weights)-1)
		for i, wt := range plan.Weights[1:] {
			weights[i] = strconv.FormatFloat(wt, 'f', 3, 64)
		}

		data = append(data, []string{
			strconv.Itoa(plan.Step),
			format.Degrees(plan.Target),
			format.DegreesList(anchors),
			strconv.FormatFloat(plan.Weights[0], 'f', 3, 64),
			strings.Join(weights, " "),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"STEP", "TARGET", "ANCHORS", "INPUT WEIGHT", "WEIGHTS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(w, "\n%d views from 1 input\n", len(plans))
}
