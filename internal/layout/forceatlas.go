package layout

import (
	"context"
	"math"
)

// ForceAtlas configures the relaxation pass. The zero value is not useful; start
// from DefaultForceAtlas.
type ForceAtlas struct {
	Iterations                     int     `mapstructure:"iterations" yaml:"iterations"`
	Gravity                        float64 `mapstructure:"gravity" yaml:"gravity"`
	ScalingRatio                   float64 `mapstructure:"scaling_ratio" yaml:"scaling_ratio"`
	StrongGravity                  bool    `mapstructure:"strong_gravity" yaml:"strong_gravity"`
	EdgeWeightInfluence            float64 `mapstructure:"edge_weight_influence" yaml:"edge_weight_influence"`
	OutboundAttractionDistribution bool    `mapstructure:"outbound_attraction_distribution" yaml:"outbound_attraction_distribution"`
	SlowDown                       float64 `mapstructure:"slow_down" yaml:"slow_down"`
}

// DefaultForceAtlas matches the tuning the viewer has always shipped with.
func DefaultForceAtlas() ForceAtlas {
	return ForceAtlas{
		Iterations:                     500,
		Gravity:                        5,
		ScalingRatio:                   10,
		StrongGravity:                  true,
		EdgeWeightInfluence:            1.2,
		OutboundAttractionDistribution: true,
		SlowDown:                       1,
	}
}

// Body is a node taking part in the relaxation.
type Body struct {
	X, Y float64
	Mass float64

	dx, dy       float64
	oldDx, oldDy float64
	convergence  float64
}

// Spring is an edge between two bodies, by index.
type Spring struct {
	Source, Target int
	Weight         float64
}

// Relax runs the ForceAtlas2 iterations in place: linear attraction along
// springs scaled by weight^EdgeWeightInfluence, mass-product repulsion over
// distance, and gravity toward the origin. There is no randomness, so equal
// inputs give equal outputs. Cancellation is checked once per iteration.
func (fa ForceAtlas) Relax(ctx context.Context, bodies []Body, springs []Spring) error {
	if len(bodies) == 0 {
		return nil
	}
	slowDown := fa.SlowDown
	if slowDown <= 0 {
		slowDown = 1
	}
	for i := range bodies {
		if bodies[i].Mass <= 0 {
			bodies[i].Mass = 1
		}
		bodies[i].convergence = 1
		bodies[i].dx, bodies[i].dy = 0, 0
	}

	outboundCompensation := 1.0
	if fa.OutboundAttractionDistribution {
		total := 0.0
		for _, b := range bodies {
			total += b.Mass
		}
		outboundCompensation = total / float64(len(bodies))
	}

	for iter := 0; iter < fa.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		for i := range bodies {
			b := &bodies[i]
			b.oldDx, b.oldDy = b.dx, b.dy
			b.dx, b.dy = 0, 0
		}

		fa.repulse(bodies)
		fa.gravitate(bodies)
		fa.attract(bodies, springs, outboundCompensation)
		applyForces(bodies, slowDown)
	}
	return nil
}

func (fa ForceAtlas) repulse(bodies []Body) {
	for i := 0; i < len(bodies); i++ {
		for j := i + 1; j < len(bodies); j++ {
			a, b := &bodies[i], &bodies[j]
			xDist := a.X - b.X
			yDist := a.Y - b.Y
			distSq := xDist*xDist + yDist*yDist
			if distSq == 0 {
				continue
			}

			factor := fa.ScalingRatio * a.Mass * b.Mass / distSq
			a.dx += xDist * factor
			a.dy += yDist * factor
			b.dx -= xDist * factor
			b.dy -= yDist * factor
		}
	}
}

func (fa ForceAtlas) gravitate(bodies []Body) {
	if fa.ScalingRatio == 0 {
		return
	}
	g := fa.Gravity / fa.ScalingRatio

	for i := range bodies {
		b := &bodies[i]
		distance := math.Hypot(b.X, b.Y)
		if distance == 0 {
			continue
		}

		var factor float64
		if fa.StrongGravity {
			factor = fa.ScalingRatio * b.Mass * g
		} else {
			factor = fa.ScalingRatio * b.Mass * g / distance
		}
		b.dx -= b.X * factor
		b.dy -= b.Y * factor
	}
}

func (fa ForceAtlas) attract(bodies []Body, springs []Spring, outboundCompensation float64) {
	coefficient := outboundCompensation

	for _, s := range springs {
		if s.Source == s.Target || s.Source < 0 || s.Target < 0 || s.Source >= len(bodies) || s.Target >= len(bodies) {
			continue
		}
		src, dst := &bodies[s.Source], &bodies[s.Target]

		weight := s.Weight
		switch fa.EdgeWeightInfluence {
		case 0:
			weight = 1
		case 1:
		default:
			weight = math.Pow(weight, fa.EdgeWeightInfluence)
		}

		xDist := src.X - dst.X
		yDist := src.Y - dst.Y

		factor := -coefficient * weight
		if fa.OutboundAttractionDistribution {
			factor /= src.Mass
		}

		src.dx += xDist * factor
		src.dy += yDist * factor
		dst.dx -= xDist * factor
		dst.dy -= yDist * factor
	}
}

// applyForces moves every body with its own adaptive speed: swinging (force
// changing direction between iterations) slows a body down, traction lets it
// keep moving.
func applyForces(bodies []Body, slowDown float64) {
	for i := range bodies {
		b := &bodies[i]

		swinging := b.Mass * math.Hypot(b.oldDx-b.dx, b.oldDy-b.dy)
		traction := math.Hypot(b.oldDx+b.dx, b.oldDy+b.dy) / 2
		speed := b.convergence * math.Log(1+traction) / (1 + math.Sqrt(swinging))

		b.convergence = math.Min(1, math.Sqrt(speed*(b.dx*b.dx+b.dy*b.dy)/(1+math.Sqrt(swinging))))

		x := b.X + b.dx*(speed/slowDown)
		y := b.Y + b.dy*(speed/slowDown)
		if finite(x) && finite(y) {
			b.X, b.Y = x, y
		}
		if !finite(b.convergence) {
			b.convergence = 1
		}
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
