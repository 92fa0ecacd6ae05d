package api

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTensorPacking(t *testing.T) {
	values := []float32{-1, -0.5, 0, 0.25, 0.5, 1}

	cases := []struct {
		dtype DType
		size  int
		tol   float64
	}{
		{DTypeF32, 24, 0},
		{DTypeF16, 12, 1e-3},
		{DTypeBF16, 12, 1e-2},
	}

	for _, tt := range cases {
		t.Run(string(tt.dtype), func(t *testing.T) {
			packed, err := NewTensor([]int{1, 2, 3}, values, tt.dtype)
			require.NoError(t, err)
			assert.Len(t, packed.Data, tt.size)

			got, err := packed.Float32s()
			require.NoError(t, err)
			if diff := cmp.Diff(values, got, cmpopts.EquateApprox(0, tt.tol)); diff != "" {
				t.Errorf("values mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTensorErrors(t *testing.T) {
	_, err := NewTensor([]int{2, 2}, []float32{1, 2, 3}, DTypeF32)
	assert.Error(t, err)

	_, err = NewTensor([]int{1}, []float32{1}, "f8")
	assert.Error(t, err)

	_, err = Tensor{Shape: []int{2}, DType: DTypeF16, Data: []byte{1, 2}}.Float32s()
	assert.Error(t, err)

	_, err = Tensor{Shape: []int{-1, -2}, DType: DTypeF16, Data: []byte{1, 2, 3, 4}}.Float32s()
	assert.Error(t, err)

	_, err = Tensor{DType: DTypeF32, Data: []byte{1, 2, 3, 4}}.Float32s()
	assert.Error(t, err)
}

func TestParsePrecision(t *testing.T) {
	cases := map[string]Precision{
		"":         PrecisionFP32,
		"fp32":     PrecisionFP32,
		" FP16 ":   PrecisionFP16,
		"autocast": PrecisionAutocast,
		"bf16":     PrecisionBF16,
	}
	for in, want := range cases {
		got, err := ParsePrecision(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParsePrecision("int8")
	assert.Error(t, err)

	assert.Equal(t, DTypeF16, PrecisionAutocast.DType())
	assert.Equal(t, DTypeBF16, PrecisionBF16.DType())
	assert.Equal(t, DTypeF32, PrecisionFP32.DType())
}

func TestOptionsFromMap(t *testing.T) {
	opts := DefaultOptions()
	require.NoError(t, opts.FromMap(map[string]any{
		"scale":     1.5,
		"steps":     float64(20),
		"precision": "fp16",
		"seed":      uint64(7),
	}))

	assert.Equal(t, Options{Scale: 1.5, Steps: 20, Eta: 1, Precision: PrecisionFP16, Seed: 7}, opts)

	opts = DefaultOptions()
	assert.Error(t, opts.FromMap(map[string]any{"guidance": 2}))

	opts = DefaultOptions()
	assert.Error(t, opts.FromMap(map[string]any{"precision": "int4"}))

	var round Options
	require.NoError(t, round.FromMap(DefaultOptions().Map()))
	assert.Equal(t, DefaultOptions(), round)
}

func TestCodec(t *testing.T) {
	req := SynthesizeRequest{
		Rotations: [][4]float32{{0, 0.5, 0.75, 0}},
		Weights:   []float32{1},
		Options:   map[string]any{"steps": 3},
	}
	packed, err := NewTensor([]int{3, 1, 1}, []float32{0, 1, -1}, DTypeF16)
	require.NoError(t, err)
	req.Anchors = append(req.Anchors, packed)

	for _, mt := range []string{MediaTypeJSON, MediaTypeCBOR} {
		t.Run(mt, func(t *testing.T) {
			data, err := Marshal(mt, req)
			require.NoError(t, err)

			var got SynthesizeRequest
			require.NoError(t, Unmarshal(mt, data, &got))
			assert.Equal(t, req.Rotations, got.Rotations)
			assert.Equal(t, req.Weights, got.Weights)
			assert.Equal(t, req.Anchors, got.Anchors)

			var opts Options
			require.NoError(t, opts.FromMap(got.Options))
			assert.Equal(t, 3, opts.Steps)
		})
	}

	assert.Equal(t, MediaTypeCBOR, MediaType("application/cbor; charset=binary"))
	assert.Equal(t, MediaTypeJSON, MediaType("text/plain"))
	assert.Equal(t, MediaTypeJSON, MediaType(""))
}
