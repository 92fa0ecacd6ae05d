package api

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/d4l3k/go-bfloat16"
	"github.com/mitchellh/mapstructure"
	"github.com/x448/float16"
)

// Precision selects the numeric format images travel in and the model runs
// at.
type Precision string

const (
	PrecisionFP32     Precision = "fp32"
	PrecisionAutocast Precision = "autocast"
	PrecisionFP16     Precision = "fp16"
	PrecisionBF16     Precision = "bf16"
)

func ParsePrecision(s string) (Precision, error) {
	switch p := Precision(strings.ToLower(strings.TrimSpace(s))); p {
	case PrecisionFP32, PrecisionAutocast, PrecisionFP16, PrecisionBF16:
		return p, nil
	case "":
		return PrecisionFP32, nil
	default:
		return "", fmt.Errorf("unknown precision %q", s)
	}
}

// DType is the element type of a tensor on the wire.
func (p Precision) DType() DType {
	switch p {
	case PrecisionFP16, PrecisionAutocast:
		return DTypeF16
	case PrecisionBF16:
		return DTypeBF16
	default:
		return DTypeF32
	}
}

type DType string

const (
	DTypeF32  DType = "f32"
	DTypeF16  DType = "f16"
	DTypeBF16 DType = "bf16"
)

func (d DType) size() int {
	switch d {
	case DTypeF16, DTypeBF16:
		return 2
	default:
		return 4
	}
}

// Tensor is a dense little-endian tensor on the wire.
type Tensor struct {
	Shape []int  `json:"shape"`
	DType DType  `json:"dtype"`
	Data  []byte `json:"data"`
}

// NewTensor packs f32 values of the given shape as dtype.
func NewTensor(shape []int, values []float32, dtype DType) (Tensor, error) {
	n, err := elements(shape)
	if err != nil {
		return Tensor{}, err
	}
	if n != len(values) {
		return Tensor{}, fmt.Errorf("shape %v holds %d values, got %d", shape, n, len(values))
	}

	t := Tensor{Shape: append([]int(nil), shape...), DType: dtype}
	switch dtype {
	case DTypeF32:
		t.Data = make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(t.Data[4*i:], math.Float32bits(v))
		}
	case DTypeF16:
		t.Data = make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(t.Data[2*i:], float16.Fromfloat32(v).Bits())
		}
	case DTypeBF16:
		t.Data = bfloat16.EncodeFloat32(values)
	default:
		return Tensor{}, fmt.Errorf("unknown dtype %q", dtype)
	}

	return t, nil
}

// Float32s unpacks the tensor values.
func (t Tensor) Float32s() ([]float32, error) {
	n, err := elements(t.Shape)
	if err != nil {
		return nil, err
	}
	if len(t.Data) != n*t.DType.size() {
		return nil, fmt.Errorf("tensor %v %s: expected %d bytes, got %d", t.Shape, t.DType, n*t.DType.size(), len(t.Data))
	}

	switch t.DType {
	case DTypeF32:
		f32s := make([]float32, n)
		for i := range f32s {
			f32s[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.Data[4*i:]))
		}
		return f32s, nil
	case DTypeF16:
		f32s := make([]float32, n)
		for i := range f32s {
			f32s[i] = float16.Frombits(binary.LittleEndian.Uint16(t.Data[2*i:])).Float32()
		}
		return f32s, nil
	case DTypeBF16:
		return bfloat16.DecodeFloat32(t.Data), nil
	default:
		return nil, fmt.Errorf("unknown dtype %q", t.DType)
	}
}

func elements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, errors.New("tensor has no shape")
	}

	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("invalid tensor shape %v", shape)
		}
		n *= d
	}
	return n, nil
}

// Options are the sampler settings forwarded to the model.
type Options struct {
	// Scale is the classifier-free guidance scale. 1 disables guidance.
	Scale     float64   `json:"scale,omitempty" mapstructure:"scale"`
	Steps     int       `json:"steps,omitempty" mapstructure:"steps"`
	Eta       float64   `json:"eta" mapstructure:"eta"`
	Precision Precision `json:"precision,omitempty" mapstructure:"precision"`
	Seed      int64     `json:"seed,omitempty" mapstructure:"seed"`
}

func DefaultOptions() Options {
	return Options{
		Scale:     3.0,
		Steps:     75,
		Eta:       1.0,
		Precision: PrecisionFP32,
		Seed:      8007,
	}
}

// FromMap overrides o with the recognized keys of m. Unknown keys are an
// error.
func (o *Options) FromMap(m map[string]any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           o,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}

	if err := dec.Decode(m); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	if _, err := ParsePrecision(string(o.Precision)); err != nil {
		return err
	}
	return nil
}

// Map is the inverse of FromMap.
func (o Options) Map() map[string]any {
	return map[string]any{
		"scale":     o.Scale,
		"steps":     o.Steps,
		"eta":       o.Eta,
		"precision": string(o.Precision),
		"seed":      o.Seed,
	}
}

// SynthesizeRequest asks a runner for one new view of the object.
type SynthesizeRequest struct {
	// Anchors are the conditioning images, each [3, H, W].
	Anchors []Tensor `json:"anchors"`

	// Rotations holds one relative camera encoding per anchor.
	Rotations [][4]float32 `json:"rotations"`

	// Weights holds one interpolation weight per anchor.
	Weights []float32      `json:"weights"`
	Options map[string]any `json:"options,omitempty"`
}

type SynthesizeResponse struct {
	Image    Tensor        `json:"image"`
	Duration time.Duration `json:"duration,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend,omitempty"`
}

type ReleaseResponse struct {
	Released bool `json:"released"`
}
