// Package schedule decides, for each step of a 360° turntable, which target
// angle to synthesize, which previously available views to condition on, and
// how strongly each of them should be weighted.
//
// Everything in this package is pure and allocation-light so it can be tested
// without a model or an accelerator.
package schedule

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// Divisions is the number of evenly spaced azimuths in a full turn.
	Divisions = 36

	// Steps is the number of views that are generated. The input view
	// occupies the remaining azimuth.
	Steps = Divisions - 1
)

// MaxAnchorDistance is the largest cyclic distance, in radians, at which a
// generated anchor is still used for conditioning.
const MaxAnchorDistance = 125.0 / 180.0 * math.Pi

var (
	ErrInvalidTemperature = errors.New("temperature must be greater than zero")
	ErrEmptyPool          = errors.New("anchor pool is empty")
)

// Params are the tunable temperatures of the weighting policy.
type Params struct {
	// InferenceTemp controls how fast the input view loses weight as more
	// views are generated.
	InferenceTemp float64

	// AutoTemp controls how sharply weight concentrates on the nearest
	// generated anchor.
	AutoTemp float64
}

func DefaultParams() Params {
	return Params{InferenceTemp: 0.5, AutoTemp: 0.5}
}

func (p Params) Validate() error {
	if !(p.InferenceTemp > 0) || math.IsInf(p.InferenceTemp, 0) {
		return fmt.Errorf("inference_temp %v: %w", p.InferenceTemp, ErrInvalidTemperature)
	}
	if !(p.AutoTemp > 0) || math.IsInf(p.AutoTemp, 0) {
		return fmt.Errorf("auto_temp %v: %w", p.AutoTemp, ErrInvalidTemperature)
	}
	return nil
}

// TargetAngle returns the azimuth generated at step. Steps zig-zag outward
// from the input: +10°, -10°, +20°, -20°, ... so every new view has close
// anchors on both sides.
func TargetAngle(step int) float64 {
	k := float64(step/2 + 1)
	if step&1 == 1 {
		return -2 * math.Pi / Divisions * k
	}
	return 2 * math.Pi / Divisions * k
}

// Targets returns the target angle of every step in traversal order.
func Targets() []float64 {
	targets := make([]float64, Steps)
	for i := range targets {
		targets[i] = TargetAngle(i)
	}
	return targets
}

// Normalize maps an angle into [0, 2π).
func Normalize(angle float64) float64 {
	a := math.Mod(angle, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	if a >= 2*math.Pi {
		a = 0
	}
	return a
}

// CyclicDistance is the absolute angular distance between a and b accounting
// for wraparound, so 350° and 10° are 20° apart. The result is in [0, π].
func CyclicDistance(a, b float64) float64 {
	d := math.Abs(math.Mod(a-b, 2*math.Pi))
	if d < math.Pi {
		return d
	}
	return 2*math.Pi - d
}

// Eligible reports which anchors may condition the view at target. The first
// anchor is the input view and is always eligible.
func Eligible(target float64, anchors []float64) []bool {
	mask := make([]bool, len(anchors))
	for i, a := range anchors {
		mask[i] = CyclicDistance(target, a) < MaxAnchorDistance
	}
	if len(mask) > 0 {
		mask[0] = true
	}
	return mask
}

// InferenceWeight is the weight given to the input view at step. It decays
// from just under 1 toward 0 as step grows.
func InferenceWeight(step int, inferenceTemp float64) float64 {
	return math.Exp(-float64(step+1) / Divisions / inferenceTemp)
}

// Weights computes the interpolation weight of every eligible anchor from
// its cyclic distance to the target. dists[0] must belong to the input view.
//
// The input view gets InferenceWeight. Generated anchors share the rest via
// a softmax over their negated distances, normalized by the largest distance
// among them.
func Weights(step int, dists []float64, p Params) []float64 {
	weights := make([]float64, len(dists))
	if len(dists) == 0 {
		return weights
	}

	if step == 0 {
		weights[0] = 1
		return weights
	}

	inference := InferenceWeight(step, p.InferenceTemp)
	weights[0] = inference

	generated := dists[1:]
	if len(generated) == 0 {
		return weights
	}

	scale := floats.Max(generated)
	logits := make([]float64, len(generated))
	for i, d := range generated {
		if scale > 0 {
			logits[i] = -d / scale / p.AutoTemp
		}
	}

	copy(weights[1:], softmax(logits))
	floats.Scale(1-inference, weights[1:])
	return weights
}

func softmax(logits []float64) []float64 {
	maxLogit := floats.Max(logits)
	tt := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		tt[i] = math.Exp(v - maxLogit)
		sum += tt[i]
	}
	floats.Scale(1/sum, tt)
	return tt
}
