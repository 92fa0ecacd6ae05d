package schedule

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deg(d float64) float64 { return d / 180 * math.Pi }

func toDeg(r float64) float64 { return r * 180 / math.Pi }

func TestTargetAngle(t *testing.T) {
	cases := map[int]float64{
		0:  10,
		1:  -10,
		2:  20,
		3:  -20,
		32: 170,
		33: -170,
		34: 180,
	}

	for step, want := range cases {
		assert.InDelta(t, want, toDeg(TargetAngle(step)), 1e-9, "step %d", step)
	}
}

func TestTargetsZigZag(t *testing.T) {
	targets := Targets()
	require.Len(t, targets, Steps)

	for i := 1; i < len(targets); i++ {
		assert.NotEqual(t, math.Signbit(targets[i-1]), math.Signbit(targets[i]), "step %d should flip sign", i)
		if i%2 == 0 {
			assert.Greater(t, math.Abs(targets[i]), math.Abs(targets[i-1]), "step %d should grow", i)
		} else {
			assert.InDelta(t, math.Abs(targets[i-1]), math.Abs(targets[i]), 1e-12, "step %d should mirror", i)
		}
	}
}

func TestTargetsCoverTurn(t *testing.T) {
	seen := map[int]bool{0: true}
	for _, a := range Targets() {
		d := int(math.Round(toDeg(Normalize(a))))
		require.False(t, seen[d], "duplicate azimuth %d", d)
		seen[d] = true
	}

	require.Len(t, seen, Divisions)
	for d := 0; d < 360; d += 10 {
		assert.True(t, seen[d], "missing azimuth %d", d)
	}
}

func TestNormalize(t *testing.T) {
	assert.InDelta(t, deg(350), Normalize(deg(-10)), 1e-12)
	assert.InDelta(t, deg(10), Normalize(deg(370)), 1e-12)
	assert.Equal(t, 0.0, Normalize(0))
	assert.Equal(t, 0.0, Normalize(2*math.Pi))
}

func TestCyclicDistance(t *testing.T) {
	cases := []struct {
		name string
		a, b float64
		want float64
	}{
		{"wraparound", 350, 10, 20},
		{"opposite", 0, 180, 180},
		{"negative", -10, 10, 20},
		{"across zero", -170, 180, 10},
		{"near", 30, 50, 20},
		{"wide", 0, 200, 160},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, toDeg(CyclicDistance(deg(tt.a), deg(tt.b))), 1e-9)
			assert.InDelta(t, tt.want, toDeg(CyclicDistance(deg(tt.b), deg(tt.a))), 1e-9)
		})
	}

	for _, a := range []float64{0, 1, math.Pi, -2.5, 6} {
		assert.Equal(t, 0.0, CyclicDistance(a, a))
	}
}

func TestEligible(t *testing.T) {
	t.Run("first step", func(t *testing.T) {
		assert.Equal(t, []bool{true}, Eligible(TargetAngle(0), []float64{0}))
	})

	t.Run("input always kept", func(t *testing.T) {
		mask := Eligible(deg(180), []float64{0, deg(170), deg(40)})
		assert.Equal(t, []bool{true, true, false}, mask)
	})

	t.Run("threshold is exclusive", func(t *testing.T) {
		mask := Eligible(0, []float64{deg(90), deg(124), deg(126), deg(-124)})
		assert.Equal(t, []bool{true, true, false, true}, mask)
	})

	t.Run("empty pool", func(t *testing.T) {
		assert.Empty(t, Eligible(0, nil))
	})
}

func TestInferenceWeight(t *testing.T) {
	assert.InDelta(t, math.Exp(-1.0/36/0.5), InferenceWeight(0, 0.5), 1e-12)

	last := math.Inf(1)
	for step := range Steps {
		w := InferenceWeight(step, 0.5)
		assert.Greater(t, w, 0.0)
		assert.LessOrEqual(t, w, 1.0)
		assert.Less(t, w, last, "step %d", step)
		last = w
	}
}

func TestWeightsFirstStep(t *testing.T) {
	w := Weights(0, []float64{deg(10)}, DefaultParams())
	require.Equal(t, []float64{1}, w)
}

func TestWeights(t *testing.T) {
	p := DefaultParams()

	t.Run("single generated anchor", func(t *testing.T) {
		w := Weights(1, []float64{deg(10), deg(20)}, p)
		w0 := math.Exp(-2.0 / 36 / 0.5)
		if diff := cmp.Diff([]float64{w0, 1 - w0}, w, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Errorf("weights mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("closer anchor dominates", func(t *testing.T) {
		w := Weights(2, []float64{deg(20), deg(10), deg(30)}, p)
		w0 := math.Exp(-3.0 / 36 / 0.5)
		near := (1 - w0) / (1 + math.Exp(-4.0/3))
		want := []float64{w0, near, 1 - w0 - near}
		if diff := cmp.Diff(want, w, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Errorf("weights mismatch (-want +got):\n%s", diff)
		}
		assert.Greater(t, w[1], w[2])
	})

	t.Run("only input eligible", func(t *testing.T) {
		w := Weights(5, []float64{deg(60)}, p)
		assert.Equal(t, []float64{InferenceWeight(5, 0.5)}, w)
	})

	t.Run("coincident anchors share equally", func(t *testing.T) {
		w := Weights(3, []float64{deg(20), 0, 0}, p)
		assert.InDelta(t, w[1], w[2], 1e-12)
	})

	t.Run("sharper temperature concentrates", func(t *testing.T) {
		dists := []float64{deg(40), deg(10), deg(30), deg(50)}
		soft := Weights(4, dists, Params{InferenceTemp: 0.5, AutoTemp: 2})
		sharp := Weights(4, dists, Params{InferenceTemp: 0.5, AutoTemp: 0.1})
		assert.Greater(t, sharp[1], soft[1])
	})
}

func TestWeightsPartition(t *testing.T) {
	p := Params{InferenceTemp: 0.7, AutoTemp: 0.3}
	for step := 1; step < Steps; step++ {
		dists := []float64{deg(float64(step * 7 % 180))}
		for j := 1; j <= step%6+1; j++ {
			dists = append(dists, deg(float64(10*j)))
		}

		w := Weights(step, dists, p)
		inference := InferenceWeight(step, p.InferenceTemp)
		require.Equal(t, inference, w[0])

		var rest float64
		for _, v := range w[1:] {
			assert.GreaterOrEqual(t, v, 0.0)
			rest += v
		}
		assert.InDelta(t, 1-inference, rest, 1e-9, "step %d", step)
	}
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	for _, p := range []Params{
		{InferenceTemp: 0, AutoTemp: 0.5},
		{InferenceTemp: 0.5, AutoTemp: -1},
		{InferenceTemp: math.NaN(), AutoTemp: 0.5},
		{InferenceTemp: 0.5, AutoTemp: math.Inf(1)},
	} {
		assert.ErrorIs(t, p.Validate(), ErrInvalidTemperature)
	}
}
