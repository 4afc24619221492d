// Package layout computes node positions: a size-driven initial placement, a
// ForceAtlas2 relaxation and a deterministic collision pass, then freezes the
// result as the rest layout.
package layout

import (
	"math"
	"unicode/utf16"

	"github.com/firmscope/core/internal/models"
)

// Ring radii of the initial placement. Bigger nodes sit closer to MinRadius,
// outliers sit on OuterRadius.
const (
	MinRadius   = 100.0
	MaxRadius   = 200.0
	OuterRadius = 250.0
)

// Rings configures the initial placement radii.
type Rings struct {
	Min   float64 `mapstructure:"min_radius" yaml:"min_radius"`
	Max   float64 `mapstructure:"max_radius" yaml:"max_radius"`
	Outer float64 `mapstructure:"outer_radius" yaml:"outer_radius"`
}

// DefaultRings returns the standard radii.
func DefaultRings() Rings {
	return Rings{Min: MinRadius, Max: MaxRadius, Outer: OuterRadius}
}

// HashID is the 32-bit (h<<5)-h+c hash over the UTF-16 units of id, returned as
// its absolute value. It fixes the angle of non-outlier nodes across runs.
func HashID(id string) int64 {
	var h int32
	for _, unit := range utf16.Encode([]rune(id)) {
		h = (h << 5) - h + int32(unit)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// InitialPosition places a node before relaxation. outlierIndex is the node's
// rank among outliers, or -1 for a regular node.
func (r Rings) InitialPosition(id string, size, maxSize float64, outlierIndex, outlierCount int) models.Position {
	if outlierIndex >= 0 && outlierCount > 0 {
		angle := 2 * math.Pi * float64(outlierIndex) / float64(outlierCount)
		return polar(r.Outer, angle)
	}

	if maxSize <= 0 {
		maxSize = 1
	}
	normalized := size / maxSize
	radius := r.Max - normalized*(r.Max-r.Min)
	if radius > r.Max {
		radius = r.Max
	}

	angle := float64(HashID(id)%360) * math.Pi / 180
	return polar(radius, angle)
}

func polar(radius, angle float64) models.Position {
	return models.Position{
		X: radius * math.Cos(angle),
		Y: radius * math.Sin(angle),
	}
}
