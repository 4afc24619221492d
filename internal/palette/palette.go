// Package palette assigns deterministic colors to industry codes and derives the
// fallback gradient and faded edge colors.
package palette

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf16"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Colors is the fixed, order-preserving category palette.
var Colors = []string{
	"#e41a1c", // red
	"#377eb8", // blue
	"#4daf4a", // green
	"#984ea3", // purple
	"#ff7f00", // orange
	"#ffff33", // yellow
	"#a65628", // brown
	"#f781bf", // pink
	"#999999", // gray
	"#66c2a5", // aqua
	"#fc8d62", // coral
	"#8da0cb", // periwinkle
	"#e78ac3", // magenta
	"#a6d854", // lime
	"#ffd92f", // bright yellow
	"#e5c494", // beige
	"#b3b3b3", // silver
}

// Endpoints of the size gradient used for nodes without a meaningful industry.
const (
	GradientLow  = "#b0d0ff"
	GradientHigh = "#003399"
)

// fallbackColor is used when an override is not a parseable hex color.
const fallbackColor = "#999999"

var gradientLow, gradientHigh = mustHex(GradientLow), mustHex(GradientHigh)

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(fmt.Sprintf("palette: bad built-in color %q: %v", s, err))
	}
	return c
}

// HashString is a polynomial rolling hash (h*31 + unit) over the UTF-16 code
// units of s, wrapped to 32 bits. It is stable across runs and processes.
func HashString(s string) uint32 {
	var h uint32
	for _, unit := range utf16.Encode([]rune(s)) {
		h = h*31 + uint32(unit)
	}
	return h
}

// Assigner resolves industry codes to colors.
type Assigner struct {
	overrides map[string]string
}

// NewAssigner copies overrides; later changes to the map do not leak in.
func NewAssigner(overrides map[string]string) *Assigner {
	a := &Assigner{overrides: make(map[string]string, len(overrides))}
	for k, v := range overrides {
		a.overrides[k] = v
	}
	return a
}

// Color returns the override for key if present, else its palette slot.
func (a *Assigner) Color(key string) string {
	if a != nil {
		if c, ok := a.overrides[key]; ok {
			return c
		}
	}
	return Colors[HashString(key)%uint32(len(Colors))]
}

// NodeColor colors a node by industry, falling back to the size gradient for
// nodes without a meaningful category.
func (a *Assigner) NodeColor(industry string, size, maxSize float64) string {
	if Meaningful(industry) {
		return a.Color(industry)
	}
	if maxSize <= 0 {
		maxSize = 1
	}
	return Gradient(size / maxSize)
}

// Meaningful reports whether an industry code should select a category color.
func Meaningful(industry string) bool {
	industry = strings.TrimSpace(industry)
	return industry != "" && !strings.EqualFold(industry, "unknown")
}

// Gradient interpolates the blue scale in Lab space, t clamped to [0,1].
func Gradient(t float64) string {
	t = clamp01(t)
	return gradientLow.BlendLab(gradientHigh, t).Clamped().Hex()
}

// BlendWithBlack darkens a hex color; amount 0 keeps it, 1 yields black.
// The result is formatted as "rgb(r, g, b)".
func BlendWithBlack(hex string, amount float64) string {
	c, err := colorful.Hex(hex)
	if err != nil {
		c = mustHex(fallbackColor)
	}
	r, g, b := c.RGB255()
	keep := 1 - clamp01(amount)
	blend := func(channel uint8) int {
		return int(math.Round(float64(channel) * keep))
	}
	return fmt.Sprintf("rgb(%d, %d, %d)", blend(r), blend(g), blend(b))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
