package history

// Rect is an axis-aligned region in the redraw target's coordinates.
// Width or height <= 0 means empty.
type Rect struct {
	X, Y, W, H int
}

// Empty reports whether the rectangle covers no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Union returns the smallest rectangle containing r and o.
// An empty operand is ignored.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	x0, y0 := min(r.X, o.X), min(r.Y, o.Y)
	x1, y1 := max(r.X+r.W, o.X+o.W), max(r.Y+r.H, o.Y+o.H)
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Grow returns r expanded by n units on every side.
// Empty rectangles stay empty.
func (r Rect) Grow(n int) Rect {
	if r.Empty() {
		return r
	}
	return Rect{X: r.X - n, Y: r.Y - n, W: r.W + 2*n, H: r.H + 2*n}
}

// RedrawTarget is the display surface a command affects. The engine only
// reads its bounds and asks it to invalidate a region.
type RedrawTarget interface {
	Bounds() Rect
	Invalidate(r Rect)
}
