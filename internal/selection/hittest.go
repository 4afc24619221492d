package selection

import (
	"math"

	"github.com/firmscope/core/internal/layout"
	"github.com/firmscope/core/internal/models"
)

// HitTester resolves a point on the layout plane to the node drawn there.
type HitTester interface {
	HitTest(nodes []models.Node, point models.Position) (string, bool)
}

// CircleHitTester hits nodes by their collision footprint at the rest layout.
// When footprints overlap the largest node wins, then the smallest id.
type CircleHitTester struct {
	// Slack widens every footprint, for coarse pointers.
	Slack float64
}

func (h CircleHitTester) HitTest(nodes []models.Node, point models.Position) (string, bool) {
	hit := ""
	hitSize := -1.0
	for _, n := range nodes {
		d := math.Hypot(point.X-n.InitialPosition.X, point.Y-n.InitialPosition.Y)
		if d > layout.Footprint(n.Size)+h.Slack {
			continue
		}
		if n.Size > hitSize || (n.Size == hitSize && n.ID < hit) {
			hit, hitSize = n.ID, n.Size
		}
	}
	return hit, hit != ""
}
