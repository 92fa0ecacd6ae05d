package schedule

import (
	"fmt"
	"math"
)

// Rotation is the relative camera encoding passed with each anchor:
// polar offset, sine and cosine of the azimuth offset, radius offset. Only
// the azimuth terms vary on a turntable.
type Rotation [4]float32

// NewRotation encodes the signed azimuth offset from an anchor to a target.
func NewRotation(delta float64) Rotation {
	return Rotation{0, float32(math.Sin(delta)), float32(math.Cos(delta)), 0}
}

// Delta recovers the azimuth offset from r.
func (r Rotation) Delta() float64 {
	return math.Atan2(float64(r[1]), float64(r[2]))
}

// StepPlan is everything the oracle needs to know about one step, apart from
// the anchor images themselves.
type StepPlan struct {
	Step   int
	Target float64

	// Anchors are indices into the pool, in pool order.
	Anchors   []int
	Distances []float64
	Weights   []float64
	Rotations []Rotation
}

// WeightSum is the total interpolation weight of the plan.
func (sp StepPlan) WeightSum() float64 {
	var sum float64
	for _, w := range sp.Weights {
		sum += w
	}
	return sum
}

// Plan computes the conditioning set for step given the angles of the
// current pool, in insertion order.
func Plan(step int, pool []float64, p Params) (StepPlan, error) {
	if err := p.Validate(); err != nil {
		return StepPlan{}, err
	}
	if len(pool) == 0 {
		return StepPlan{}, ErrEmptyPool
	}
	if step < 0 || step >= Steps {
		return StepPlan{}, fmt.Errorf("step %d out of range [0, %d)", step, Steps)
	}

	target := TargetAngle(step)
	mask := Eligible(target, pool)

	sp := StepPlan{Step: step, Target: target}
	for i, ok := range mask {
		if !ok {
			continue
		}

		sp.Anchors = append(sp.Anchors, i)
		sp.Distances = append(sp.Distances, CyclicDistance(target, pool[i]))
		sp.Rotations = append(sp.Rotations, NewRotation(target-pool[i]))
	}

	sp.Weights = Weights(step, sp.Distances, p)
	return sp, nil
}
