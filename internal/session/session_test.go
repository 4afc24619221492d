package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/firmscope/core/internal/graph"
	"github.com/firmscope/core/internal/models"
	"github.com/firmscope/core/internal/parser"
	"github.com/firmscope/core/internal/selection"
	"github.com/firmscope/core/internal/sizing"
)

const scenarioJSON = `{
	"nodes": [
		{"id": "A", "label": "Alpha", "industry": "Chips", "eigenvector_centrality": 0.9},
		{"id": "B", "label": "Beta", "industry": "Fun", "eigenvector_centrality": 0.5},
		{"id": "C", "label": "Gamma", "eigenvector_centrality": 0.1}
	],
	"edges": [
		{"source": "A", "target": "B", "weight": 10},
		{"source": "B", "target": "C", "weight": 1}
	]
}`

func newSession(t *testing.T, logger *zap.Logger) *Session {
	t.Helper()
	params := graph.DefaultParams()
	params.NodeSizeFactor = 20
	params.MetricScale = sizing.ScaleUnit
	s := New(params, selection.Options{HighlightDuration: 10 * time.Millisecond}, logger)
	t.Cleanup(s.Close)
	return s
}

func loaded(t *testing.T) *Session {
	t.Helper()
	s := newSession(t, nil)
	require.NoError(t, s.Load(context.Background(), []byte(scenarioJSON), parser.FormatJSON))
	return s
}

func TestLoad(t *testing.T) {
	t.Run("publishes the graph", func(t *testing.T) {
		s := loaded(t)

		snap, err := s.Snapshot()
		require.NoError(t, err)
		assert.Len(t, snap.Nodes, 3)
		assert.Len(t, snap.Edges, 2)
		assert.NoError(t, s.Err())
	})

	t.Run("empty session has no graph", func(t *testing.T) {
		s := newSession(t, nil)

		_, err := s.Snapshot()
		assert.ErrorIs(t, err, ErrNoGraph)
	})

	t.Run("bad dataset clears the graph", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		s := newSession(t, zap.New(core))
		require.NoError(t, s.Load(context.Background(), []byte(scenarioJSON), parser.FormatJSON))

		err := s.Load(context.Background(), []byte(`{"nodes": []}`), parser.FormatJSON)

		assert.ErrorIs(t, err, parser.ErrMissingEdges)
		_, snapErr := s.Snapshot()
		assert.ErrorIs(t, snapErr, ErrNoGraph)
		assert.ErrorIs(t, s.Err(), parser.ErrMissingEdges)
		assert.Equal(t, 1, logs.FilterMessage("build rejected, graph cleared").Len())
	})

	t.Run("cancelled build keeps the published graph", func(t *testing.T) {
		s := loaded(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := s.LoadDataset(ctx, &models.Dataset{Nodes: []models.RawNode{{ID: "x", Label: "x"}}})

		assert.ErrorIs(t, err, context.Canceled)
		snap, snapErr := s.Snapshot()
		require.NoError(t, snapErr)
		assert.Len(t, snap.Nodes, 3)
	})
}

func TestSetTunables(t *testing.T) {
	t.Run("threshold rebuilds", func(t *testing.T) {
		s := loaded(t)
		threshold := 5.0

		require.NoError(t, s.SetTunables(context.Background(), Tunables{EdgeThicknessThreshold: &threshold}))

		snap, err := s.Snapshot()
		require.NoError(t, err)
		require.Len(t, snap.Edges, 1)
		assert.Equal(t, "e1", snap.Edges[0].ID)
		assert.Equal(t, 5.0, snap.Stats.EdgeThicknessCutoff)
		assert.Equal(t, 20.0, s.Params().NodeSizeFactor)
	})

	t.Run("without a dataset only stores", func(t *testing.T) {
		s := newSession(t, nil)
		factor := 40.0

		require.NoError(t, s.SetTunables(context.Background(), Tunables{NodeSizeFactor: &factor}))

		assert.Equal(t, 40.0, s.Params().NodeSizeFactor)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		s := loaded(t)
		factor := -3.0

		err := s.SetTunables(context.Background(), Tunables{NodeSizeFactor: &factor})

		assert.Error(t, err)
		assert.Equal(t, 20.0, s.Params().NodeSizeFactor)
	})
}

func TestPatches(t *testing.T) {
	t.Run("remove moves the selection", func(t *testing.T) {
		s := loaded(t)
		require.NotNil(t, s.SelectByID("B"))

		removed, err := s.RemoveNode("B")
		require.NoError(t, err)
		assert.True(t, removed)

		selected, ok := s.Selected()
		require.True(t, ok)
		assert.Equal(t, "A", selected.ID)

		snap, _ := s.Snapshot()
		assert.Empty(t, snap.Edges)
	})

	t.Run("remove unknown id", func(t *testing.T) {
		s := loaded(t)

		removed, err := s.RemoveNode("nope")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("add node", func(t *testing.T) {
		s := loaded(t)

		n, err := s.AddNode(
			models.RawNode{ID: "D", Label: "Delta", Centrality: models.Centrality{Eigenvector: models.Float(0.2)}},
			[]models.RawEdge{{Source: "D", Target: "A", Weight: models.Float(2)}},
		)
		require.NoError(t, err)
		assert.Equal(t, "D", n.ID)

		conns, ok := s.Connections("A")
		require.True(t, ok)
		assert.Equal(t, []string{"B", "D"}, conns)
	})

	t.Run("patches survive a rebuild", func(t *testing.T) {
		s := loaded(t)
		require.NotNil(t, s.SelectByID("A"))

		removed, err := s.RemoveNode("B")
		require.NoError(t, err)
		require.True(t, removed)
		_, err = s.AddNode(
			models.RawNode{ID: "D", Label: "Delta", Centrality: models.Centrality{Eigenvector: models.Float(0.3)}},
			[]models.RawEdge{{Source: "D", Target: "A", Weight: models.Float(2)}},
		)
		require.NoError(t, err)

		threshold := 2.0
		require.NoError(t, s.SetTunables(context.Background(), Tunables{EdgeThicknessThreshold: &threshold}))

		snap, err := s.Snapshot()
		require.NoError(t, err)
		ids := make([]string, 0, len(snap.Nodes))
		for _, n := range snap.Nodes {
			ids = append(ids, n.ID)
		}
		assert.ElementsMatch(t, []string{"A", "C", "D"}, ids)
		require.Len(t, snap.Edges, 1)
		assert.Equal(t, "D", snap.Edges[0].Source)

		selected, ok := s.Selected()
		require.True(t, ok)
		assert.Equal(t, "A", selected.ID)
	})

	t.Run("patches leave the loaded dataset untouched", func(t *testing.T) {
		s := newSession(t, nil)
		ds, err := parser.ParseDataset([]byte(scenarioJSON))
		require.NoError(t, err)
		require.NoError(t, s.LoadDataset(context.Background(), ds))

		_, err = s.RemoveNode("B")
		require.NoError(t, err)

		assert.Len(t, ds.Nodes, 3)
		assert.Len(t, ds.Edges, 2)
	})

	t.Run("patches need a graph", func(t *testing.T) {
		s := newSession(t, nil)

		_, err := s.RemoveNode("A")
		assert.ErrorIs(t, err, ErrNoGraph)
		_, err = s.AddNode(models.RawNode{ID: "A", Label: "A"}, nil)
		assert.ErrorIs(t, err, ErrNoGraph)
		_, ok := s.Connections("A")
		assert.False(t, ok)
	})
}

func TestSetColors(t *testing.T) {
	t.Run("recolors an industry", func(t *testing.T) {
		s := loaded(t)

		require.NoError(t, s.SetColors(context.Background(), map[string]string{"Fun": "#123456"}))

		legend, err := s.Legend()
		require.NoError(t, err)
		colors := map[string]string{}
		for _, entry := range legend {
			colors[entry.Industry] = entry.Color
		}
		assert.Equal(t, "#123456", colors["Fun"])
		assert.Equal(t, "#123456", s.Colors()["Fun"])
		assert.Equal(t, "#ce9b0d", s.Colors()["Chips"])
	})

	t.Run("invalid color is rejected", func(t *testing.T) {
		s := loaded(t)

		err := s.SetColors(context.Background(), map[string]string{"Fun": "blue-ish"})

		assert.ErrorIs(t, err, graph.ErrInvalidParams)
		assert.NotEqual(t, "blue-ish", s.Colors()["Fun"])
	})
}

func TestSelection(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := loaded(t)
	events := make(chan selection.Event, 8)
	s.Subscribe(events)

	got := s.SelectByID("C")
	require.NotNil(t, got)
	assert.True(t, got.Highlighted)

	require.Eventually(t, func() bool {
		snap, err := s.Snapshot()
		if err != nil {
			return false
		}
		for _, n := range snap.Nodes {
			if n.ID == "C" {
				return !n.Highlighted
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	ins, ok := s.Inspect("B")
	require.True(t, ok)
	assert.Len(t, ins.Connections, 2)

	snap, _ := s.Snapshot()
	var a models.Node
	for _, n := range snap.Nodes {
		if n.ID == "A" {
			a = n
		}
	}
	hit := s.SelectByClick(a.InitialPosition)
	require.NotNil(t, hit)
	assert.Equal(t, "A", hit.ID)

	s.Unsubscribe(events)
	for len(events) > 0 {
		<-events
	}
	s.SelectByID("B")
	assert.Empty(t, events)

	s.Close()
}
