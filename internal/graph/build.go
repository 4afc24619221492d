// Package graph owns the live attributed graph: the node and edge tables, the
// assembler that builds them from a dataset, and the two patch operations.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/firmscope/core/internal/edges"
	"github.com/firmscope/core/internal/layout"
	"github.com/firmscope/core/internal/models"
	"github.com/firmscope/core/internal/sizing"
)

// Build turns a dataset into a laid-out, colored graph. Nodes are sized, the
// outliers picked, edges collapsed in ascending weight order, the layout run
// against the retained edges, and finally every edge styled. Duplicate node ids
// keep the first occurrence.
func Build(ctx context.Context, ds *models.Dataset, params Params, logger *zap.Logger) (*Graph, error) {
	if ds == nil {
		return nil, fmt.Errorf("nil dataset")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid build parameters: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("graph")
	start := time.Now()

	g := newGraph(params, logger)
	// plain is never grown past its capacity, so the table can point into it.
	plain := make([]models.Node, 0, len(ds.Nodes))
	for _, raw := range ds.Nodes {
		id := string(raw.ID)
		if g.Has(id) {
			logger.Debug("duplicate node ignored", zap.String("node", id))
			continue
		}
		n := toNode(raw)
		plain = append(plain, n)
		g.nodes[id] = &plain[len(plain)-1]
		g.order = append(g.order, id)
	}

	g.maxMetric = sizing.MaxMetric(plain)
	if params.MetricScale == sizing.ScaleUnit && g.maxMetric < 1 {
		g.maxMetric = 1
	}
	sizes := sizing.SizesWithScale(plain, params.NodeSizeFactor, params.MetricScale)
	for i := range plain {
		plain[i].Size = sizes[plain[i].ID]
	}
	outliers := sizing.Outliers(plain, sizes)

	candidates, dropped := edges.Collapse(ds.Edges, g.Has, 0)
	g.candidates = candidates
	g.nextOrdinal = len(ds.Edges)
	g.reindexPairs()

	nodes := g.nodePtrs()
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}
	springs := make([]layout.Spring, len(candidates))
	for i, c := range candidates {
		springs[i] = layout.Spring{Source: index[c.Source], Target: index[c.Target], Weight: c.Weight}
	}

	engine := layout.NewEngine(params.Layout, logger)
	if err := engine.Run(ctx, nodes, outliers, springs); err != nil {
		return nil, fmt.Errorf("layout failed: %w", err)
	}

	maxSize := sizing.MaxSize(sizes)
	for _, n := range nodes {
		n.Color = g.assigner.NodeColor(n.Industry, n.Size, maxSize)
	}

	g.maxWeight = edges.MaxWeight(ds.Edges)
	g.restyle()

	g.stats.BuildID = uuid.NewString()
	g.stats.TotalNodes = len(nodes)
	g.stats.DroppedEdges = dropped
	g.stats.Outliers = outliers.Len()
	g.stats.MaxWeight = g.maxWeight
	g.stats.CollisionExhausted = len(engine.Exhausted())
	g.stats.NodeSizeFactor = params.NodeSizeFactor
	g.stats.EdgeThicknessCutoff = params.EdgeThicknessThreshold
	for _, n := range nodes {
		g.incIndustry(n.Industry)
	}

	logger.Info("graph built",
		zap.String("build_id", g.stats.BuildID),
		zap.Int("nodes", g.stats.TotalNodes),
		zap.Int("edges", g.stats.TotalEdges),
		zap.Int("hidden", g.stats.HiddenEdges),
		zap.Int("dropped", dropped),
		zap.Duration("took", time.Since(start)))
	return g, nil
}
