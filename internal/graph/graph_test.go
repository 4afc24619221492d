package graph

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/firmscope/core/internal/edges"
	"github.com/firmscope/core/internal/layout"
	"github.com/firmscope/core/internal/models"
	"github.com/firmscope/core/internal/palette"
	"github.com/firmscope/core/internal/sizing"
)

func scenarioDataset() *models.Dataset {
	return &models.Dataset{
		Nodes: []models.RawNode{
			{ID: "A", Label: "Alpha", Industry: "Chips", Centrality: models.Centrality{Eigenvector: models.Float(0.9)}},
			{ID: "B", Label: "Beta", Industry: "Fun", Centrality: models.Centrality{Eigenvector: models.Float(0.5)}},
			{ID: "C", Label: "Gamma", Centrality: models.Centrality{Eigenvector: models.Float(0.1)}},
		},
		Edges: []models.RawEdge{
			{Source: "A", Target: "B", Weight: models.Float(10)},
			{Source: "B", Target: "C", Weight: models.Float(1)},
		},
	}
}

func scenarioParams(threshold float64) Params {
	p := DefaultParams()
	p.NodeSizeFactor = 20
	p.EdgeThicknessThreshold = threshold
	p.MetricScale = sizing.ScaleUnit
	return p
}

func edgeByID(t *testing.T, g *Graph, id string) models.Edge {
	t.Helper()
	for _, e := range g.Edges() {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("edge %s not found", id)
	return models.Edge{}
}

func TestBuild(t *testing.T) {
	t.Run("scenario sizes and thickness", func(t *testing.T) {
		g, err := Build(context.Background(), scenarioDataset(), scenarioParams(1), nil)
		require.NoError(t, err)

		sizes := map[string]float64{}
		for _, n := range g.Nodes() {
			sizes[n.ID] = n.Size
		}
		assert.InDelta(t, 23, sizes["A"], 1e-9)
		assert.InDelta(t, 15, sizes["B"], 1e-9)
		assert.InDelta(t, 7, sizes["C"], 1e-9)

		require.Len(t, g.Edges(), 2)
		assert.InDelta(t, 3.4, edgeByID(t, g, "e0").Size, 1e-9)
		assert.InDelta(t, 25, edgeByID(t, g, "e1").Size, 1e-9)
		assert.Equal(t, "B", edgeByID(t, g, "e0").Source)
	})

	t.Run("threshold hides thin edges", func(t *testing.T) {
		g, err := Build(context.Background(), scenarioDataset(), scenarioParams(5), nil)
		require.NoError(t, err)

		got := g.Edges()
		require.Len(t, got, 1)
		assert.Equal(t, "e1", got[0].ID)
		assert.Equal(t, "A", got[0].Source)
		assert.Equal(t, "B", got[0].Target)
		assert.Equal(t, edges.Curvature, got[0].Curvature)

		stats := g.Stats()
		assert.Equal(t, 1, stats.TotalEdges)
		assert.Equal(t, 1, stats.HiddenEdges)
		assert.Equal(t, 10.0, stats.MaxWeight)
	})

	t.Run("node colors", func(t *testing.T) {
		g, err := Build(context.Background(), scenarioDataset(), scenarioParams(1), nil)
		require.NoError(t, err)

		a, _ := g.Node("A")
		b, _ := g.Node("B")
		c, _ := g.Node("C")
		assert.Equal(t, "#ce9b0d", a.Color)
		assert.Equal(t, "#cbd818", b.Color)
		assert.Equal(t, palette.Gradient(7.0/23.0), c.Color)
	})

	t.Run("stats", func(t *testing.T) {
		g, err := Build(context.Background(), scenarioDataset(), scenarioParams(1), nil)
		require.NoError(t, err)

		stats := g.Stats()
		assert.NotEmpty(t, stats.BuildID)
		assert.Equal(t, 3, stats.TotalNodes)
		assert.Equal(t, 0, stats.Outliers)
		assert.Equal(t, 20.0, stats.NodeSizeFactor)
		assert.Equal(t, map[string]int{"Chips": 1, "Fun": 1, "unknown": 1}, stats.NodesByIndustry)
	})

	t.Run("dangling duplicate and self edges are dropped", func(t *testing.T) {
		ds := scenarioDataset()
		ds.Edges = append(ds.Edges,
			models.RawEdge{Source: "A", Target: "Z", Weight: models.Float(3)},
			models.RawEdge{Source: "C", Target: "C", Weight: models.Float(3)},
			models.RawEdge{Source: "B", Target: "A", Weight: models.Float(2)},
		)

		g, err := Build(context.Background(), ds, scenarioParams(1), nil)
		require.NoError(t, err)

		assert.Equal(t, 3, g.Stats().DroppedEdges)
		assert.Len(t, g.Edges(), 2)
		for _, e := range g.Edges() {
			assert.True(t, g.Has(e.Source))
			assert.True(t, g.Has(e.Target))
		}
	})

	t.Run("duplicate node ids keep the first", func(t *testing.T) {
		ds := scenarioDataset()
		ds.Nodes = append(ds.Nodes, models.RawNode{ID: "A", Label: "Shadow"})

		g, err := Build(context.Background(), ds, scenarioParams(1), nil)
		require.NoError(t, err)

		assert.Equal(t, 3, g.Len())
		a, _ := g.Node("A")
		assert.Equal(t, "Alpha", a.Label)
	})

	t.Run("empty dataset", func(t *testing.T) {
		g, err := Build(context.Background(), &models.Dataset{}, DefaultParams(), nil)
		require.NoError(t, err)

		assert.Zero(t, g.Len())
		assert.Empty(t, g.Edges())
		assert.Equal(t, 1.0, g.Stats().MaxWeight)
	})

	t.Run("nil dataset", func(t *testing.T) {
		_, err := Build(context.Background(), nil, DefaultParams(), nil)
		assert.Error(t, err)
	})

	t.Run("invalid params", func(t *testing.T) {
		p := DefaultParams()
		p.NodeSizeFactor = -1
		_, err := Build(context.Background(), scenarioDataset(), p, nil)
		assert.Error(t, err)
	})

	t.Run("cancelled context aborts layout", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := Build(ctx, scenarioDataset(), DefaultParams(), nil)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("logs the build", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)

		g, err := Build(context.Background(), scenarioDataset(), DefaultParams(), zap.New(core))
		require.NoError(t, err)

		entries := logs.FilterMessage("graph built").All()
		require.Len(t, entries, 1)
		assert.Equal(t, g.Stats().BuildID, entries[0].ContextMap()["build_id"])
	})
}

func TestBuildProperties(t *testing.T) {
	ds := &models.Dataset{}
	for i := 0; i < 30; i++ {
		id := models.NodeID(string(rune('a'+i%26)) + string(rune('0'+i/26)))
		ds.Nodes = append(ds.Nodes, models.RawNode{
			ID:         id,
			Label:      string(id),
			Industry:   []string{"Chips", "Fun", "", "Banks"}[i%4],
			Centrality: models.Centrality{Eigenvector: models.Float(float64(i%7) / 10)},
		})
	}
	for i := 0; i < 30; i++ {
		ds.Edges = append(ds.Edges, models.RawEdge{
			Source: ds.Nodes[i].ID,
			Target: ds.Nodes[(i*7+3)%30].ID,
			Weight: models.Float(float64(i%5 + 1)),
		})
	}
	params := DefaultParams()
	params.EdgeThicknessThreshold = 6

	g, err := Build(context.Background(), ds, params, nil)
	require.NoError(t, err)

	t.Run("outlier count", func(t *testing.T) {
		assert.Equal(t, 3, g.Stats().Outliers)
	})

	t.Run("size monotonic in importance", func(t *testing.T) {
		nodes := g.Nodes()
		for _, a := range nodes {
			for _, b := range nodes {
				if a.Importance() < b.Importance() {
					assert.LessOrEqual(t, a.Size, b.Size)
				}
			}
		}
	})

	t.Run("visible edges exceed threshold", func(t *testing.T) {
		for _, e := range g.Edges() {
			assert.Greater(t, e.Size, params.EdgeThicknessThreshold)
		}
	})

	t.Run("one edge per pair", func(t *testing.T) {
		seen := map[string]bool{}
		for _, e := range g.Edges() {
			key := edges.PairKey(e.Source, e.Target)
			assert.False(t, seen[key], "pair %s repeated", key)
			seen[key] = true
		}
	})

	t.Run("separated or exhausted", func(t *testing.T) {
		if g.Stats().CollisionExhausted > 0 {
			return
		}
		nodes := g.Nodes()
		for i := range nodes {
			for j := i + 1; j < len(nodes); j++ {
				a, b := nodes[i], nodes[j]
				dist := math.Hypot(a.InitialPosition.X-b.InitialPosition.X, a.InitialPosition.Y-b.InitialPosition.Y)
				assert.GreaterOrEqual(t, dist, layout.Footprint(a.Size)+layout.Footprint(b.Size)+layout.DefaultPadding-1e-6)
			}
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		again, err := Build(context.Background(), ds, params, nil)
		require.NoError(t, err)

		diff := cmp.Diff(g.Snapshot(), again.Snapshot(), cmpopts.IgnoreFields(models.Stats{}, "BuildID"))
		assert.Empty(t, diff)
	})
}

func TestRemoveNode(t *testing.T) {
	t.Run("removes node and incident edges", func(t *testing.T) {
		g, err := Build(context.Background(), scenarioDataset(), scenarioParams(1), nil)
		require.NoError(t, err)

		assert.True(t, g.RemoveNode("B"))

		assert.False(t, g.Has("B"))
		assert.Equal(t, 2, g.Len())
		assert.Empty(t, g.Edges())
		assert.Empty(t, g.IncidentEdges("A"))

		stats := g.Stats()
		assert.Equal(t, 2, stats.TotalNodes)
		assert.Equal(t, 0, stats.TotalEdges)
		assert.Equal(t, map[string]int{"Chips": 1, "unknown": 1}, stats.NodesByIndustry)
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		g, err := Build(context.Background(), scenarioDataset(), scenarioParams(1), nil)
		require.NoError(t, err)
		before := g.Snapshot()

		assert.False(t, g.RemoveNode("nope"))

		assert.Empty(t, cmp.Diff(before, g.Snapshot()))
	})

	t.Run("keeps insertion order", func(t *testing.T) {
		g, err := Build(context.Background(), scenarioDataset(), scenarioParams(1), nil)
		require.NoError(t, err)

		g.RemoveNode("A")

		var ids []string
		for _, n := range g.Nodes() {
			ids = append(ids, n.ID)
		}
		assert.Equal(t, []string{"B", "C"}, ids)
	})
}

func TestAddNodeWithEdges(t *testing.T) {
	newcomer := models.RawNode{ID: "D", Label: "Delta", Industry: "Comps", Centrality: models.Centrality{Eigenvector: models.Float(0.3)}}
	link := []models.RawEdge{{Source: "D", Target: "A", Weight: models.Float(2)}}

	t.Run("adds node and visible edge", func(t *testing.T) {
		g, err := Build(context.Background(), scenarioDataset(), scenarioParams(5), nil)
		require.NoError(t, err)
		a, _ := g.Node("A")

		n, err := g.AddNodeWithEdges(newcomer, link)
		require.NoError(t, err)

		assert.Equal(t, 4, g.Len())
		assert.InDelta(t, 11, n.Size, 1e-9)
		assert.Equal(t, "#f2cdf9", n.Color)
		assert.Equal(t, n.InitialPosition, n.Position())

		incident := g.IncidentEdges("D")
		require.Len(t, incident, 1)
		assert.Equal(t, "e2", incident[0].ID)
		assert.InDelta(t, 5.8, incident[0].Size, 1e-9)

		aAfter, _ := g.Node("A")
		assert.Equal(t, a.InitialPosition, aAfter.InitialPosition)
	})

	t.Run("restyles against the new max weight", func(t *testing.T) {
		g, err := Build(context.Background(), scenarioDataset(), scenarioParams(5), nil)
		require.NoError(t, err)
		g.RemoveNode("B")

		_, err = g.AddNodeWithEdges(newcomer, link)
		require.NoError(t, err)

		got := g.Edges()
		require.Len(t, got, 1)
		assert.InDelta(t, 25, got[0].Size, 1e-9)
		assert.Equal(t, 2.0, g.Stats().MaxWeight)
	})

	t.Run("heavier new edge thins existing edges", func(t *testing.T) {
		g, err := Build(context.Background(), scenarioDataset(), scenarioParams(5), nil)
		require.NoError(t, err)

		_, err = g.AddNodeWithEdges(newcomer, []models.RawEdge{{Source: "D", Target: "A", Weight: models.Float(100)}})
		require.NoError(t, err)

		got := g.Edges()
		require.Len(t, got, 1, "A-B falls to 3.4, under the threshold")
		assert.Equal(t, "e2", got[0].ID)
		assert.InDelta(t, 25, got[0].Size, 1e-9)
		assert.Equal(t, 2, g.Stats().HiddenEdges)
	})

	t.Run("importance above the build maximum is capped", func(t *testing.T) {
		g, err := Build(context.Background(), scenarioDataset(), scenarioParams(1), nil)
		require.NoError(t, err)
		hub := models.RawNode{ID: "H", Label: "Hub", Centrality: models.Centrality{Eigenvector: models.Float(5)}}

		n, err := g.AddNodeWithEdges(hub, nil)
		require.NoError(t, err)

		assert.InDelta(t, 25, n.Size, 1e-9)
		assert.LessOrEqual(t, n.Size, sizing.BaseSize+20)
	})

	t.Run("placed clear of existing nodes", func(t *testing.T) {
		g, err := Build(context.Background(), scenarioDataset(), scenarioParams(1), nil)
		require.NoError(t, err)

		n, err := g.AddNodeWithEdges(newcomer, link)
		require.NoError(t, err)

		for _, other := range g.Nodes() {
			if other.ID == n.ID {
				continue
			}
			dist := math.Hypot(other.InitialPosition.X-n.InitialPosition.X, other.InitialPosition.Y-n.InitialPosition.Y)
			assert.GreaterOrEqual(t, dist, layout.Footprint(other.Size)+layout.Footprint(n.Size)+layout.DefaultPadding-1e-6)
		}
	})

	t.Run("existing pair keeps its edge", func(t *testing.T) {
		g, err := Build(context.Background(), scenarioDataset(), scenarioParams(1), nil)
		require.NoError(t, err)

		_, err = g.AddNodeWithEdges(newcomer, []models.RawEdge{
			{Source: "D", Target: "A", Weight: models.Float(2)},
			{Source: "B", Target: "A", Weight: models.Float(7)},
			{Source: "D", Target: "Q", Weight: models.Float(7)},
		})
		require.NoError(t, err)

		assert.Len(t, g.Edges(), 3)
		assert.Equal(t, 10.0, edgeByID(t, g, "e1").Weight)
		assert.Equal(t, 2, g.Stats().DroppedEdges)
	})

	t.Run("duplicate id", func(t *testing.T) {
		g, err := Build(context.Background(), scenarioDataset(), scenarioParams(1), nil)
		require.NoError(t, err)

		_, err = g.AddNodeWithEdges(models.RawNode{ID: "A", Label: "again"}, nil)
		assert.ErrorIs(t, err, ErrDuplicateNode)
		assert.Equal(t, 3, g.Len())
	})

	t.Run("missing label", func(t *testing.T) {
		g, err := Build(context.Background(), scenarioDataset(), scenarioParams(1), nil)
		require.NoError(t, err)

		_, err = g.AddNodeWithEdges(models.RawNode{ID: "E"}, nil)
		assert.ErrorIs(t, err, ErrInvalidNode)
	})
}

func TestSnapshot(t *testing.T) {
	g, err := Build(context.Background(), scenarioDataset(), scenarioParams(1), nil)
	require.NoError(t, err)
	a, _ := g.Node("A")

	snap := g.Snapshot()
	assert.Equal(t, a.InitialPosition.X, snap.Nodes[0].X)
	assert.Equal(t, a.InitialPosition.Y, snap.Nodes[0].Y)
	require.NotNil(t, snap.Stats)
	assert.Equal(t, 3, snap.Stats.TotalNodes)
}

func TestHighlight(t *testing.T) {
	g, err := Build(context.Background(), scenarioDataset(), scenarioParams(1), nil)
	require.NoError(t, err)

	assert.True(t, g.SetHighlighted("B", true))
	assert.False(t, g.SetHighlighted("Z", true))

	b, _ := g.Node("B")
	assert.True(t, b.Highlighted)
}

func TestLegend(t *testing.T) {
	g, err := Build(context.Background(), scenarioDataset(), scenarioParams(1), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Chips", "Fun"}, g.Industries())
	assert.Equal(t, []LegendEntry{
		{Industry: "Chips", Color: "#ce9b0d", Nodes: 1},
		{Industry: "Fun", Color: "#cbd818", Nodes: 1},
	}, g.Legend())
}

func TestBuilder(t *testing.T) {
	t.Run("publishes a single build", func(t *testing.T) {
		b := NewBuilder(nil)

		g, err := b.Submit(context.Background(), scenarioDataset(), scenarioParams(1))
		require.NoError(t, err)

		assert.Equal(t, 3, g.Len())
		assert.Equal(t, uint64(1), b.Generation())
	})

	t.Run("newer submission supersedes the running one", func(t *testing.T) {
		b := NewBuilder(nil)
		started := make(chan struct{})
		b.build = func(ctx context.Context, ds *models.Dataset, params Params, logger *zap.Logger) (*Graph, error) {
			if params.NodeSizeFactor == 1 {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return Build(ctx, ds, params, logger)
		}

		slow := DefaultParams()
		slow.NodeSizeFactor = 1

		var wg sync.WaitGroup
		var slowErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, slowErr = b.Submit(context.Background(), scenarioDataset(), slow)
		}()
		<-started

		g, err := b.Submit(context.Background(), scenarioDataset(), scenarioParams(1))
		wg.Wait()

		require.NoError(t, err)
		assert.NotNil(t, g)
		assert.True(t, errors.Is(slowErr, context.Canceled))
	})

	t.Run("completed but superseded build is discarded", func(t *testing.T) {
		b := NewBuilder(nil)
		release := make(chan struct{})
		b.build = func(ctx context.Context, ds *models.Dataset, params Params, logger *zap.Logger) (*Graph, error) {
			if params.NodeSizeFactor == 1 {
				<-release
				return newGraph(params, logger), nil
			}
			close(release)
			return Build(ctx, ds, params, logger)
		}

		slow := DefaultParams()
		slow.NodeSizeFactor = 1
		done := make(chan error, 1)
		go func() {
			_, err := b.Submit(context.Background(), scenarioDataset(), slow)
			done <- err
		}()

		require.Eventually(t, func() bool { return b.Generation() == 1 }, time.Second, time.Millisecond)
		_, err := b.Submit(context.Background(), scenarioDataset(), scenarioParams(1))
		require.NoError(t, err)

		assert.ErrorIs(t, <-done, context.Canceled)
	})

	t.Run("cancel aborts the running build", func(t *testing.T) {
		b := NewBuilder(nil)
		started := make(chan struct{})
		b.build = func(ctx context.Context, ds *models.Dataset, params Params, logger *zap.Logger) (*Graph, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}

		done := make(chan error, 1)
		go func() {
			_, err := b.Submit(context.Background(), scenarioDataset(), DefaultParams())
			done <- err
		}()
		<-started
		b.Cancel()

		assert.ErrorIs(t, <-done, context.Canceled)
	})
}
