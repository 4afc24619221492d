// Package session hosts one live graph and its selection controller, and
// serializes every mutation against them.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/firmscope/core/internal/graph"
	"github.com/firmscope/core/internal/models"
	"github.com/firmscope/core/internal/palette"
	"github.com/firmscope/core/internal/parser"
	"github.com/firmscope/core/internal/selection"
)

var (
	ErrNoGraph   = errors.New("no graph loaded")
	ErrNoDataset = errors.New("no dataset loaded")
)

// Tunables is a partial parameter update; nil fields are left unchanged.
type Tunables struct {
	NodeSizeFactor         *float64 `json:"nodeSizeFactor,omitempty"`
	EdgeThicknessThreshold *float64 `json:"edgeThicknessThreshold,omitempty"`
}

// Session owns the dataset, the parameters, the published graph and the
// selection controller. Builds run outside the lock so a newer trigger can
// supersede them; only the most recent build is published.
type Session struct {
	logger  *zap.Logger
	builder *graph.Builder

	mu         sync.Mutex
	params     graph.Params
	dataset    *models.Dataset
	graph      *graph.Graph
	controller *selection.Controller
	seq        uint64
	lastErr    error
}

// New creates an empty session.
func New(params graph.Params, opts selection.Options, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		logger:  logger.Named("session"),
		builder: graph.NewBuilder(logger),
		params:  params,
	}
	opts.Locker = &s.mu
	if opts.Logger == nil {
		opts.Logger = logger
	}
	s.controller = selection.New(nil, opts)
	return s
}

// Load parses raw dataset bytes and rebuilds. A dataset that fails to parse
// clears the current graph.
func (s *Session) Load(ctx context.Context, data []byte, format parser.Format) error {
	ds, err := parser.ParseDatasetFormat(data, format)
	if err != nil {
		s.mu.Lock()
		s.seq++
		s.clear(err)
		s.mu.Unlock()
		return err
	}
	return s.LoadDataset(ctx, ds)
}

// LoadDataset replaces the dataset and rebuilds.
func (s *Session) LoadDataset(ctx context.Context, ds *models.Dataset) error {
	s.mu.Lock()
	s.dataset = ds
	s.mu.Unlock()
	return s.rebuild(ctx)
}

// SetTunables updates the parameters and rebuilds when a dataset is loaded.
func (s *Session) SetTunables(ctx context.Context, t Tunables) error {
	s.mu.Lock()
	params := s.params
	if t.NodeSizeFactor != nil {
		params.NodeSizeFactor = *t.NodeSizeFactor
	}
	if t.EdgeThicknessThreshold != nil {
		params.EdgeThicknessThreshold = *t.EdgeThicknessThreshold
	}
	if err := params.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.params = params
	loaded := s.dataset != nil
	s.mu.Unlock()

	if !loaded {
		return nil
	}
	return s.rebuild(ctx)
}

// Params returns the current parameters.
func (s *Session) Params() graph.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// SetColors merges industry color overrides into the parameters and rebuilds
// when a dataset is loaded.
func (s *Session) SetColors(ctx context.Context, colors map[string]string) error {
	s.mu.Lock()
	params := s.params
	params.Colors = palette.Merge(s.params.Colors, colors)
	if err := params.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.params = params
	loaded := s.dataset != nil
	s.mu.Unlock()

	if !loaded {
		return nil
	}
	return s.rebuild(ctx)
}

// Colors returns a copy of the industry color overrides.
func (s *Session) Colors() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return palette.Merge(s.params.Colors)
}

func (s *Session) rebuild(ctx context.Context) error {
	for {
		s.mu.Lock()
		s.seq++
		seq := s.seq
		ds, params := s.dataset, s.params
		s.mu.Unlock()

		if ds == nil {
			return ErrNoDataset
		}

		g, err := s.builder.Submit(ctx, ds, params)

		s.mu.Lock()
		if seq != s.seq {
			s.mu.Unlock()
			return fmt.Errorf("build superseded: %w", context.Canceled)
		}
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.clear(err)
			}
			s.mu.Unlock()
			return err
		}
		if s.dataset != ds {
			// patched while building; the result is already stale
			s.mu.Unlock()
			continue
		}

		s.graph = g
		s.lastErr = nil
		s.controller.Reset(g)
		s.logger.Info("graph published",
			zap.String("build_id", g.Stats().BuildID),
			zap.Int("nodes", g.Len()))
		s.mu.Unlock()
		return nil
	}
}

// clear drops the published graph after a failed build. Callers hold mu.
func (s *Session) clear(err error) {
	s.graph = nil
	s.lastErr = err
	s.controller.Reset(nil)
	s.logger.Warn("build rejected, graph cleared", zap.Error(err))
}

// Err returns the error of the last failed build, if the graph is cleared.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Snapshot returns the wire form of the published graph.
func (s *Session) Snapshot() (*models.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph == nil {
		return nil, ErrNoGraph
	}
	return s.graph.Snapshot(), nil
}

// Legend returns the industry colors of the published graph.
func (s *Session) Legend() ([]graph.LegendEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph == nil {
		return nil, ErrNoGraph
	}
	return s.graph.Legend(), nil
}

// RemoveNode removes a node and its edges from the published graph and from
// the dataset, so later rebuilds keep the removal. Unknown ids report false.
func (s *Session) RemoveNode(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph == nil {
		return false, ErrNoGraph
	}
	if !s.controller.RemoveNode(id) {
		return false, nil
	}
	if s.dataset != nil {
		s.dataset = withoutNode(s.dataset, id)
	}
	return true, nil
}

// AddNode appends a node with its edges to the published graph and to the
// dataset.
func (s *Session) AddNode(node models.RawNode, edges []models.RawEdge) (models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph == nil {
		return models.Node{}, ErrNoGraph
	}
	n, err := s.graph.AddNodeWithEdges(node, edges)
	if err != nil {
		return models.Node{}, err
	}
	if s.dataset != nil {
		s.dataset = withNode(s.dataset, node, edges)
	}
	return n, nil
}

// withoutNode returns a copy of ds minus id and every edge touching it. ds may
// be shared with a running build and is left untouched.
func withoutNode(ds *models.Dataset, id string) *models.Dataset {
	out := &models.Dataset{
		Nodes: make([]models.RawNode, 0, len(ds.Nodes)),
		Edges: make([]models.RawEdge, 0, len(ds.Edges)),
	}
	for _, n := range ds.Nodes {
		if string(n.ID) != id {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range ds.Edges {
		if string(e.Source) != id && string(e.Target) != id {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}

// withNode returns a copy of ds with node and edges appended.
func withNode(ds *models.Dataset, node models.RawNode, edges []models.RawEdge) *models.Dataset {
	out := &models.Dataset{
		Nodes: make([]models.RawNode, 0, len(ds.Nodes)+1),
		Edges: make([]models.RawEdge, 0, len(ds.Edges)+len(edges)),
	}
	out.Nodes = append(append(out.Nodes, ds.Nodes...), node)
	out.Edges = append(append(out.Edges, ds.Edges...), edges...)
	return out
}

// SelectByClick selects the node under a point on the layout plane.
func (s *Session) SelectByClick(p models.Position) *models.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller.SelectByClick(p)
}

// SelectByID jumps to a node and highlights it.
func (s *Session) SelectByID(id string) *models.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller.SelectByID(id)
}

// Selected returns the selected node.
func (s *Session) Selected() (models.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller.Selected()
}

// Connections returns the neighbors of id, heaviest edge first.
func (s *Session) Connections(id string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph == nil || !s.graph.Has(id) {
		return nil, false
	}
	return s.controller.ConnectionsOf(id), true
}

// Inspect returns the inspection record of id.
func (s *Session) Inspect(id string) (*selection.Inspection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller.Inspect(id)
}

// Subscribe registers ch for selection events.
func (s *Session) Subscribe(ch chan<- selection.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller.Subscribe(ch)
}

// Unsubscribe removes ch from the selection event subscribers.
func (s *Session) Unsubscribe(ch chan<- selection.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller.Unsubscribe(ch)
}

// Close cancels any running build and pending highlight timers.
func (s *Session) Close() {
	s.builder.Cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller.Close()
}
