package layout

import (
	"math"

	"github.com/firmscope/core/internal/models"
)

// Collision defaults.
const (
	DefaultPadding     = 3.0
	DefaultMaxAttempts = 100

	// epsilon absorbs rounding after a push lands exactly on the boundary.
	epsilon = 1e-9
)

// Circle is a node already fixed on the plane.
type Circle struct {
	models.Position
	Radius float64
}

// Resolution is the outcome of resolving one candidate.
type Resolution struct {
	Position  models.Position
	Attempts  int
	Exhausted bool
}

// Resolve pushes candidate away from every placed circle it overlaps until it
// clears all of them by padding, restarting the scan after each push. The budget
// is best effort: when maxAttempts passes do not clear every overlap the last
// position is returned with Exhausted set.
func Resolve(candidate models.Position, radius float64, placed []Circle, padding float64, maxAttempts int) Resolution {
	pos := candidate
	attempts := 0
	resolved := false

	for !resolved && attempts < maxAttempts {
		resolved = true

		for _, c := range placed {
			dx := pos.X - c.X
			dy := pos.Y - c.Y
			dist := math.Hypot(dx, dy)
			minDist := radius + c.Radius + padding

			if dist < minDist-epsilon {
				angle := math.Atan2(dy, dx)
				if dist == 0 {
					angle = escapeAngle(pos)
				}
				overlap := minDist - dist
				pos.X += math.Cos(angle) * overlap
				pos.Y += math.Sin(angle) * overlap

				resolved = false
				break
			}
		}

		attempts++
	}

	return Resolution{
		Position:  pos,
		Attempts:  attempts,
		Exhausted: overlapsAny(pos, radius, placed, padding),
	}
}

// escapeAngle picks the push direction for coincident centers: radially away
// from the origin, or along +x at the origin.
func escapeAngle(p models.Position) float64 {
	if p.X == 0 && p.Y == 0 {
		return 0
	}
	return math.Atan2(p.Y, p.X)
}

func overlapsAny(pos models.Position, radius float64, placed []Circle, padding float64) bool {
	for _, c := range placed {
		if math.Hypot(pos.X-c.X, pos.Y-c.Y) < radius+c.Radius+padding-epsilon {
			return true
		}
	}
	return false
}
