// Package graph owns the live attributed graph: the node and edge tables, the
// assembler that builds them from a dataset, and the two patch operations.
package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/firmscope/core/internal/edges"
	"github.com/firmscope/core/internal/layout"
	"github.com/firmscope/core/internal/models"
	"github.com/firmscope/core/internal/palette"
	"github.com/firmscope/core/internal/sizing"
)

var (
	ErrDuplicateNode = errors.New("node already exists")
	ErrInvalidNode   = errors.New("invalid node")
	ErrInvalidParams = errors.New("invalid parameters")
)

// Default tunables.
const (
	DefaultNodeSizeFactor         = 25.0
	DefaultEdgeThicknessThreshold = 1.0
)

// Params are the build inputs besides the dataset.
type Params struct {
	NodeSizeFactor         float64
	EdgeThicknessThreshold float64
	MetricScale            sizing.Scale
	Layout                 layout.Settings
	// Colors are industry color overrides, already merged over the defaults.
	Colors map[string]string
}

// DefaultParams returns the standard tunables with the built-in colors.
func DefaultParams() Params {
	return Params{
		NodeSizeFactor:         DefaultNodeSizeFactor,
		EdgeThicknessThreshold: DefaultEdgeThicknessThreshold,
		MetricScale:            sizing.ScaleDatasetMax,
		Layout:                 layout.DefaultSettings(),
		Colors:                 palette.DefaultOverrides(),
	}
}

// Validate rejects tunables the pipeline cannot honour.
func (p Params) Validate() error {
	if !finite(p.NodeSizeFactor) {
		return fmt.Errorf("%w: node size factor must be a finite number, got %v", ErrInvalidParams, p.NodeSizeFactor)
	}
	if !finite(p.EdgeThicknessThreshold) {
		return fmt.Errorf("%w: edge thickness threshold must be a finite number, got %v", ErrInvalidParams, p.EdgeThicknessThreshold)
	}
	if p.NodeSizeFactor < 0 {
		return fmt.Errorf("%w: node size factor must be non-negative, got %v", ErrInvalidParams, p.NodeSizeFactor)
	}
	if p.EdgeThicknessThreshold < 0 {
		return fmt.Errorf("%w: edge thickness threshold must be non-negative, got %v", ErrInvalidParams, p.EdgeThicknessThreshold)
	}
	if err := palette.ValidateOverrides(p.Colors); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Graph is an arena of nodes and edges keyed by id. Nodes keep insertion order;
// edges keep ordinal order. A Graph is not safe for concurrent use.
type Graph struct {
	params   Params
	assigner *palette.Assigner
	logger   *zap.Logger

	nodes map[string]*models.Node
	order []string

	// candidates holds every retained edge, visible or not, in ordinal order.
	candidates  []edges.Candidate
	pairs       map[string]int
	visible     []models.Edge
	nextOrdinal int

	maxWeight float64
	maxMetric float64
	stats     models.Stats
}

func newGraph(params Params, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{
		params:   params,
		assigner: palette.NewAssigner(params.Colors),
		logger:   logger,
		nodes:    make(map[string]*models.Node),
		pairs:    make(map[string]int),
	}
}

// Params returns the tunables the graph was built with.
func (g *Graph) Params() Params { return g.params }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// Has reports whether id is in the node table.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (models.Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return models.Node{}, false
	}
	return *n, true
}

// Nodes returns copies of all nodes in insertion order.
func (g *Graph) Nodes() []models.Node {
	out := make([]models.Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.nodes[id])
	}
	return out
}

// Edges returns the rendered edges in ordinal order.
func (g *Graph) Edges() []models.Edge {
	return append([]models.Edge(nil), g.visible...)
}

// IncidentEdges returns the rendered edges touching id, in ordinal order.
func (g *Graph) IncidentEdges(id string) []models.Edge {
	var out []models.Edge
	for _, e := range g.visible {
		if e.Source == id || e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// SetHighlighted toggles the transient highlight flag. Unknown ids are ignored.
func (g *Graph) SetHighlighted(id string, on bool) bool {
	n, ok := g.nodes[id]
	if !ok {
		return false
	}
	n.Highlighted = on
	return true
}

// Stats returns a copy of the build statistics, kept current across patches.
func (g *Graph) Stats() models.Stats {
	s := g.stats
	s.NodesByIndustry = make(map[string]int, len(g.stats.NodesByIndustry))
	for k, v := range g.stats.NodesByIndustry {
		s.NodesByIndustry[k] = v
	}
	return s
}

// Snapshot returns the wire form of the graph. Positions are read from the
// frozen rest layout.
func (g *Graph) Snapshot() *models.Graph {
	nodes := g.Nodes()
	for i := range nodes {
		nodes[i].X, nodes[i].Y = nodes[i].InitialPosition.X, nodes[i].InitialPosition.Y
	}
	stats := g.Stats()
	return &models.Graph{
		Nodes: nodes,
		Edges: g.Edges(),
		Stats: &stats,
	}
}

// RemoveNode deletes a node and every edge touching it. Unknown ids are a no-op.
func (g *Graph) RemoveNode(id string) bool {
	n, ok := g.nodes[id]
	if !ok {
		return false
	}

	delete(g.nodes, id)
	for i, nid := range g.order {
		if nid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}

	kept := g.candidates[:0]
	for _, c := range g.candidates {
		if c.Source != id && c.Target != id {
			kept = append(kept, c)
		}
	}
	g.candidates = kept
	g.reindexPairs()

	visible := g.visible[:0]
	for _, e := range g.visible {
		if e.Source != id && e.Target != id {
			visible = append(visible, e)
		}
	}
	g.visible = visible

	g.stats.TotalNodes = len(g.order)
	g.stats.TotalEdges = len(g.visible)
	g.stats.HiddenEdges = len(g.candidates) - len(g.visible)
	g.decIndustry(n.Industry)

	g.logger.Debug("node removed", zap.String("node", id), zap.Int("edges", len(g.visible)))
	return true
}

// AddNodeWithEdges appends a node and its edges to a laid-out graph. Existing
// nodes keep their positions and sizes; the new node is placed against them.
// Edges are collapsed with the same rules as a build, except that a pair
// already in the graph keeps its edge. Every edge is then restyled against
// the new max weight.
func (g *Graph) AddNodeWithEdges(raw models.RawNode, rawEdges []models.RawEdge) (models.Node, error) {
	id := string(raw.ID)
	if id == "" {
		return models.Node{}, fmt.Errorf("%w: missing id", ErrInvalidNode)
	}
	if raw.Label == "" {
		return models.Node{}, fmt.Errorf("%w: node %q has no label", ErrInvalidNode, id)
	}
	if g.Has(id) {
		return models.Node{}, fmt.Errorf("%w: %q", ErrDuplicateNode, id)
	}

	existing := layout.Circles(g.nodePtrs())
	n := toNode(raw)
	n.Size = sizing.Size(n.Importance(), g.maxMetric, g.params.NodeSizeFactor)

	g.nodes[id] = &n
	g.order = append(g.order, id)

	maxSize := g.maxSize()
	n.Color = g.assigner.NodeColor(n.Industry, n.Size, maxSize)

	engine := layout.NewEngine(g.params.Layout, g.logger)
	if engine.PlaceNode(&n, maxSize, existing) {
		g.stats.CollisionExhausted++
	}

	added, dropped := edges.Collapse(rawEdges, g.Has, g.nextOrdinal)
	g.nextOrdinal += len(rawEdges)
	for _, c := range added {
		if _, dup := g.pairs[edges.PairKey(c.Source, c.Target)]; dup {
			dropped++
			continue
		}
		g.candidates = append(g.candidates, c)
	}
	g.reindexPairs()

	g.maxWeight = candidateMaxWeight(g.candidates)
	g.restyle()

	g.stats.TotalNodes = len(g.order)
	g.stats.DroppedEdges += dropped
	g.stats.MaxWeight = g.maxWeight
	g.incIndustry(n.Industry)

	g.logger.Debug("node added",
		zap.String("node", id),
		zap.Int("edges", len(added)),
		zap.Int("dropped", dropped))
	return n, nil
}

func (g *Graph) restyle() {
	filter := edges.Filter{
		Threshold: g.params.EdgeThicknessThreshold,
		MaxWeight: g.maxWeight,
		MaxMetric: g.maxMetric,
	}
	visible, hidden := filter.Style(g.candidates, func(id string) *models.Node { return g.nodes[id] })
	g.visible = visible
	g.stats.TotalEdges = len(visible)
	g.stats.HiddenEdges = hidden
}

func (g *Graph) reindexPairs() {
	g.pairs = make(map[string]int, len(g.candidates))
	for i, c := range g.candidates {
		g.pairs[edges.PairKey(c.Source, c.Target)] = i
	}
}

func (g *Graph) nodePtrs() []*models.Node {
	out := make([]*models.Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

func (g *Graph) maxSize() float64 {
	maxSize := 0.0
	for _, n := range g.nodes {
		if n.Size > maxSize {
			maxSize = n.Size
		}
	}
	if maxSize == 0 {
		return 1
	}
	return maxSize
}

func (g *Graph) incIndustry(industry string) {
	if g.stats.NodesByIndustry == nil {
		g.stats.NodesByIndustry = make(map[string]int)
	}
	g.stats.NodesByIndustry[industryKey(industry)]++
}

func (g *Graph) decIndustry(industry string) {
	key := industryKey(industry)
	g.stats.NodesByIndustry[key]--
	if g.stats.NodesByIndustry[key] <= 0 {
		delete(g.stats.NodesByIndustry, key)
	}
}

func industryKey(industry string) string {
	if !palette.Meaningful(industry) {
		return "unknown"
	}
	return industry
}

func candidateMaxWeight(candidates []edges.Candidate) float64 {
	maxWeight := 0.0
	for _, c := range candidates {
		if c.Weight > maxWeight {
			maxWeight = c.Weight
		}
	}
	if maxWeight == 0 {
		return 1
	}
	return maxWeight
}

func toNode(raw models.RawNode) models.Node {
	return models.Node{
		ID:         string(raw.ID),
		Label:      raw.Label,
		Industry:   raw.Industry,
		Centrality: raw.Centrality,
	}
}

// Industries returns the distinct meaningful industries in first-seen order.
func (g *Graph) Industries() []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range g.order {
		ind := g.nodes[id].Industry
		if palette.Meaningful(ind) && !seen[ind] {
			seen[ind] = true
			out = append(out, ind)
		}
	}
	return out
}

// Legend maps every meaningful industry in the graph to its color, sorted by name.
func (g *Graph) Legend() []LegendEntry {
	inds := g.Industries()
	sort.Strings(inds)
	out := make([]LegendEntry, len(inds))
	for i, ind := range inds {
		out[i] = LegendEntry{Industry: ind, Color: g.assigner.Color(ind), Nodes: g.stats.NodesByIndustry[ind]}
	}
	return out
}

// LegendEntry is one industry swatch.
type LegendEntry struct {
	Industry string `json:"industry"`
	Color    string `json:"color"`
	Nodes    int    `json:"nodes"`
}
