// Package classify assigns overload severity to grid points.
package classify

import "github.com/jgoulah/gridview/pkg/models"

// Category is the overload severity of a grid point
type Category int

const (
	Normal Category = iota
	// OverloadedUnderCapacity means demand exceeds supply but rated capacity has headroom.
	OverloadedUnderCapacity
	// OverloadedAtOrOverCapacity means rated capacity itself is exhausted.
	OverloadedAtOrOverCapacity
)

// Classify returns the category of p. Rules are evaluated in order, first match wins.
func Classify(p models.GridPoint) Category {
	if !p.IsOverloaded {
		return Normal
	}
	if p.BaseLoad < p.MaxLoad {
		return OverloadedUnderCapacity
	}
	return OverloadedAtOrOverCapacity
}

// Overloaded reports whether c is either overloaded variant
func (c Category) Overloaded() bool {
	return c == OverloadedUnderCapacity || c == OverloadedAtOrOverCapacity
}

func (c Category) String() string {
	switch c {
	case Normal:
		return "normal"
	case OverloadedUnderCapacity:
		return "overloaded"
	case OverloadedAtOrOverCapacity:
		return "over-capacity"
	default:
		return "unknown"
	}
}
