package view

// Pool is the ordered collection of views available as anchors. It starts
// with the input view and only ever grows; order is generation order.
type Pool struct {
	views []View
}

func NewPool(input View) *Pool {
	return &Pool{views: []View{input}}
}

func (p *Pool) Append(v View) {
	p.views = append(p.views, v)
}

func (p *Pool) Len() int {
	return len(p.views)
}

func (p *Pool) At(i int) View {
	return p.views[i]
}

// Input is the view the pool was seeded with.
func (p *Pool) Input() View {
	return p.views[0]
}

// Angles returns the azimuth of every view in insertion order.
func (p *Pool) Angles() []float64 {
	angles := make([]float64, len(p.views))
	for i, v := range p.views {
		angles[i] = v.Angle
	}
	return angles
}

// Select returns the views at the given indices.
func (p *Pool) Select(indices []int) []View {
	views := make([]View, len(indices))
	for i, idx := range indices {
		views[i] = p.views[idx]
	}
	return views
}

// Views returns a copy of the pool contents.
func (p *Pool) Views() []View {
	return append([]View(nil), p.views...)
}
