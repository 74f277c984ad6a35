// Package geometry computes areas of simple shapes.
package geometry

// Square is an axis-aligned square.
type Square struct {
	Side float64
}

func (s Square) Area() float64 {
	return s.Side * s.Side
}

// NewSquare returns a square with the given side length.
func NewSquare(side float64) Square {
	return Square{Side: side}
}
