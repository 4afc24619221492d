// Package sizing maps node importance to visual radius and picks the marginal
// nodes that get placed on the outer ring.
package sizing

import (
	"fmt"
	"strings"

	"github.com/firmscope/core/internal/models"
)

// BaseSize is the radius of a node with zero importance.
const BaseSize = 5.0

// Scale selects the denominator used to normalise the importance metric.
type Scale int

const (
	// ScaleDatasetMax divides by the largest metric in the dataset.
	ScaleDatasetMax Scale = iota
	// ScaleUnit treats metrics as already normalised to [0,1] and divides by
	// max(1, largest metric).
	ScaleUnit
)

// ParseScale maps a config value onto a Scale.
func ParseScale(s string) (Scale, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dataset_max":
		return ScaleDatasetMax, nil
	case "unit":
		return ScaleUnit, nil
	default:
		return ScaleDatasetMax, fmt.Errorf("unknown metric scale %q", s)
	}
}

func (s Scale) String() string {
	if s == ScaleUnit {
		return "unit"
	}
	return "dataset_max"
}

// Sizes returns the radius of every node: BaseSize + factor * metric/maxMetric,
// with maxMetric the dataset maximum (1 when every metric is zero).
func Sizes(nodes []models.Node, factor float64) map[string]float64 {
	return SizesWithScale(nodes, factor, ScaleDatasetMax)
}

// SizesWithScale is Sizes with an explicit normalisation.
func SizesWithScale(nodes []models.Node, factor float64, scale Scale) map[string]float64 {
	maxMetric := MaxMetric(nodes)
	if scale == ScaleUnit && maxMetric < 1 {
		maxMetric = 1
	}

	sizes := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		sizes[n.ID] = Size(n.Importance(), maxMetric, factor)
	}
	return sizes
}

// MaxMetric returns the largest importance metric, or 1 when all are zero.
func MaxMetric(nodes []models.Node) float64 {
	maxMetric := 0.0
	for _, n := range nodes {
		if m := n.Importance(); m > maxMetric {
			maxMetric = m
		}
	}
	if maxMetric == 0 {
		return 1
	}
	return maxMetric
}

// Size computes a single radius against a known maximum. Metrics above
// maxMetric are clamped, so the result stays within [BaseSize, BaseSize+factor].
func Size(metric, maxMetric, factor float64) float64 {
	if maxMetric <= 0 {
		maxMetric = 1
	}
	if metric > maxMetric {
		metric = maxMetric
	}
	return BaseSize + factor*(metric/maxMetric)
}

// MaxSize returns the largest value in sizes, or 1 for an empty map.
func MaxSize(sizes map[string]float64) float64 {
	maxSize := 0.0
	for _, s := range sizes {
		if s > maxSize {
			maxSize = s
		}
	}
	if maxSize == 0 {
		return 1
	}
	return maxSize
}
