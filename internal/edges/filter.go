// Package edges turns raw weighted relationships into rendered edges: duplicate
// collapsing in ascending weight order, thickness, visibility and fade color.
package edges

import (
	"fmt"
	"sort"

	"github.com/firmscope/core/internal/models"
	"github.com/firmscope/core/internal/palette"
)

// Rendering constants.
const (
	MinThickness = 1.0
	MaxThickness = 25.0
	Curvature    = 0.25

	// fadeStrength caps how far an edge color is pulled toward black.
	fadeStrength = 0.8
)

// Thickness maps a weight linearly onto [MinThickness, MaxThickness].
func Thickness(weight, maxWeight float64) float64 {
	if maxWeight <= 0 {
		maxWeight = 1
	}
	return MinThickness + (weight/maxWeight)*(MaxThickness-MinThickness)
}

// MaxWeight returns the largest effective weight, or 1 when there is none.
func MaxWeight(raw []models.RawEdge) float64 {
	maxWeight := 0.0
	for _, e := range raw {
		if w := e.EffectiveWeight(); w > maxWeight {
			maxWeight = w
		}
	}
	if maxWeight == 0 {
		return 1
	}
	return maxWeight
}

// Candidate is an edge that survived endpoint validation and pair collapsing.
// Ordinal is its position in the ascending weight scan.
type Candidate struct {
	Ordinal int
	Source  string
	Target  string
	Weight  float64
}

// ID is the synthetic edge key.
func (c Candidate) ID() string {
	return fmt.Sprintf("e%d", c.Ordinal)
}

// PairKey identifies the unordered {a,b} pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}

// Collapse scans raw edges in stable ascending weight order, starting ordinals at
// start. Edges whose endpoints fail exists, and self loops, are dropped. When a
// pair repeats, the later (heavier) occurrence replaces the earlier one. The
// result is ordered by ordinal.
func Collapse(raw []models.RawEdge, exists func(id string) bool, start int) ([]Candidate, int) {
	sorted := make([]models.RawEdge, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EffectiveWeight() < sorted[j].EffectiveWeight()
	})

	kept := make(map[string]Candidate, len(sorted))
	dropped := 0
	for i, e := range sorted {
		source, target := string(e.Source), string(e.Target)
		if source == target || !exists(source) || !exists(target) {
			dropped++
			continue
		}

		key := PairKey(source, target)
		if _, dup := kept[key]; dup {
			dropped++
		}
		kept[key] = Candidate{
			Ordinal: start + i,
			Source:  source,
			Target:  target,
			Weight:  e.EffectiveWeight(),
		}
	}

	out := make([]Candidate, 0, len(kept))
	for _, c := range kept {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, dropped
}

// Filter styles candidates for rendering.
type Filter struct {
	Threshold float64
	MaxWeight float64
	MaxMetric float64
}

// Visible reports whether an edge of this weight is drawn at all.
func (f Filter) Visible(weight float64) bool {
	return Thickness(weight, f.MaxWeight) > f.Threshold
}

// Color darkens the color of the more central endpoint. The pull toward black
// grows as the less central endpoint becomes more peripheral.
func (f Filter) Color(source, target *models.Node) string {
	maxMetric := f.MaxMetric
	if maxMetric <= 0 {
		maxMetric = 1
	}

	cs, ct := source.Importance(), target.Importance()
	base := source
	if ct > cs {
		base = target
	}

	weakest := cs
	if ct < weakest {
		weakest = ct
	}
	return palette.BlendWithBlack(base.Color, fadeStrength*(1-weakest/maxMetric))
}

// Style returns the visible edges in ordinal order and the number hidden by
// the threshold. lookup must resolve every candidate endpoint.
func (f Filter) Style(candidates []Candidate, lookup func(id string) *models.Node) ([]models.Edge, int) {
	visible := make([]models.Edge, 0, len(candidates))
	hidden := 0
	for _, c := range candidates {
		if !f.Visible(c.Weight) {
			hidden++
			continue
		}
		visible = append(visible, f.Render(c, lookup(c.Source), lookup(c.Target)))
	}
	return visible, hidden
}

// Render builds the rendered edge for one candidate, ignoring the threshold.
func (f Filter) Render(c Candidate, source, target *models.Node) models.Edge {
	return models.Edge{
		ID:        c.ID(),
		Source:    c.Source,
		Target:    c.Target,
		Weight:    c.Weight,
		Size:      Thickness(c.Weight, f.MaxWeight),
		Color:     f.Color(source, target),
		Curvature: Curvature,
	}
}
