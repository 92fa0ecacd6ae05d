package turntable

import (
	"cmp"

	"github.com/emirpasic/gods/maps/treemap"

	"github.com/ollama/turntable/schedule"
	"github.com/ollama/turntable/view"
)

type frameKey struct {
	angle float64
	seq   int
}

func compareFrames(a, b any) int {
	ka, kb := a.(frameKey), b.(frameKey)
	if c := cmp.Compare(ka.angle, kb.angle); c != 0 {
		return c
	}
	return cmp.Compare(ka.seq, kb.seq)
}

// Assemble orders views by azimuth in [0, 2π). Views at the same azimuth keep
// their relative order. The views themselves are not modified.
func Assemble(views []view.View) []view.View {
	frames := treemap.NewWith(compareFrames)
	for i, v := range views {
		frames.Put(frameKey{angle: schedule.Normalize(v.Angle), seq: i}, v)
	}

	sorted := make([]view.View, 0, frames.Size())
	it := frames.Iterator()
	for it.Next() {
		sorted = append(sorted, it.Value().(view.View))
	}
	return sorted
}

// Angles returns the normalized azimuth of each frame.
func (r *Result) Angles() []float64 {
	angles := make([]float64, len(r.Frames))
	for i, f := range r.Frames {
		angles[i] = schedule.Normalize(f.Angle)
	}
	return angles
}
