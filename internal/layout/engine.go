package layout

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/firmscope/core/internal/models"
	"github.com/firmscope/core/internal/sizing"
)

// State is the stage an Engine has reached.
type State int

const (
	StateIdle State = iota
	StateInitial
	StateRelaxed
	StateResolved
	StateFrozen
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateRelaxed:
		return "relaxed"
	case StateResolved:
		return "resolved"
	case StateFrozen:
		return "frozen"
	default:
		return "idle"
	}
}

// Settings configures the whole placement pipeline.
type Settings struct {
	Rings       Rings      `mapstructure:"rings" yaml:"rings"`
	ForceAtlas  ForceAtlas `mapstructure:"force_atlas" yaml:"force_atlas"`
	Padding     float64    `mapstructure:"padding" yaml:"padding"`
	MaxAttempts int        `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// DefaultSettings returns the standard layout tuning.
func DefaultSettings() Settings {
	return Settings{
		Rings:       DefaultRings(),
		ForceAtlas:  DefaultForceAtlas(),
		Padding:     DefaultPadding,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Engine lays out one graph. It is not reusable across builds.
type Engine struct {
	settings  Settings
	logger    *zap.Logger
	state     State
	exhausted []string
}

// NewEngine creates an engine; a nil logger is replaced by a no-op logger.
func NewEngine(settings Settings, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{settings: settings, logger: logger.Named("layout")}
}

// State reports how far the engine got.
func (e *Engine) State() State { return e.state }

// Exhausted lists the nodes whose collision budget ran out, in resolution order.
// A node can appear twice if it ran out in both passes.
func (e *Engine) Exhausted() []string { return append([]string(nil), e.exhausted...) }

// Run places, relaxes, resolves and freezes nodes in slice order. Node sizes must
// already be set; mass is taken from size. springs index into nodes.
func (e *Engine) Run(ctx context.Context, nodes []*models.Node, outliers *sizing.OutlierSet, springs []Spring) error {
	if e.state != StateIdle {
		return fmt.Errorf("layout engine already used (state %s)", e.state)
	}

	maxSize := 0.0
	for _, n := range nodes {
		if n.Size > maxSize {
			maxSize = n.Size
		}
	}

	placed := make([]Circle, 0, len(nodes))
	for _, n := range nodes {
		pos := e.settings.Rings.InitialPosition(n.ID, n.Size, maxSize, outliers.Index(n.ID), outliers.Len())
		pos = e.resolve(n.ID, pos, Footprint(n.Size), placed)
		placed = append(placed, Circle{Position: pos, Radius: Footprint(n.Size)})
		n.X, n.Y = pos.X, pos.Y
		n.Mass = n.Size
	}
	e.state = StateInitial

	bodies := make([]Body, len(nodes))
	for i, n := range nodes {
		bodies[i] = Body{X: n.X, Y: n.Y, Mass: n.Mass}
	}
	if err := e.settings.ForceAtlas.Relax(ctx, bodies, springs); err != nil {
		return fmt.Errorf("relaxation interrupted: %w", err)
	}
	for i, n := range nodes {
		n.X, n.Y = bodies[i].X, bodies[i].Y
	}
	e.state = StateRelaxed

	placed = placed[:0]
	for _, n := range nodes {
		pos := e.resolve(n.ID, n.Position(), Footprint(n.Size), placed)
		placed = append(placed, Circle{Position: pos, Radius: Footprint(n.Size)})
		n.X, n.Y = pos.X, pos.Y
	}
	e.state = StateResolved

	Freeze(nodes)
	e.state = StateFrozen

	e.logger.Debug("layout finished",
		zap.Int("nodes", len(nodes)),
		zap.Int("springs", len(springs)),
		zap.Int("exhausted", len(e.exhausted)))
	return nil
}

// PlaceNode positions a node added to an already frozen layout without moving
// the existing ones: initial placement against maxSize, then collision
// resolution against existing. It returns whether the budget ran out.
func (e *Engine) PlaceNode(n *models.Node, maxSize float64, existing []Circle) bool {
	before := len(e.exhausted)
	pos := e.settings.Rings.InitialPosition(n.ID, n.Size, maxSize, -1, 0)
	pos = e.resolve(n.ID, pos, Footprint(n.Size), existing)
	n.X, n.Y = pos.X, pos.Y
	n.Mass = n.Size
	n.InitialPosition = pos
	return len(e.exhausted) > before
}

func (e *Engine) resolve(id string, pos models.Position, radius float64, placed []Circle) models.Position {
	r := Resolve(pos, radius, placed, e.settings.Padding, e.settings.MaxAttempts)
	if r.Exhausted {
		e.exhausted = append(e.exhausted, id)
		e.logger.Debug("collision budget exhausted",
			zap.String("node", id),
			zap.Int("attempts", r.Attempts))
	}
	return r.Position
}

// Freeze snapshots the live coordinates as the rest layout.
func Freeze(nodes []*models.Node) {
	for _, n := range nodes {
		n.InitialPosition = n.Position()
	}
}

// Circles returns the frozen footprint of nodes, for PlaceNode.
func Circles(nodes []*models.Node) []Circle {
	out := make([]Circle, len(nodes))
	for i, n := range nodes {
		out[i] = Circle{Position: n.InitialPosition, Radius: Footprint(n.Size)}
	}
	return out
}

// Footprint is the collision radius of a node of the given size.
func Footprint(size float64) float64 {
	return size / 2
}
