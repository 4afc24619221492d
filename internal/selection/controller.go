// Package selection implements node selection and neighborhood navigation on a
// live graph: hit testing, jump-to-node with a timed highlight, and the
// connections list used by inspection panels.
package selection

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/firmscope/core/internal/models"
)

// Default timings.
const (
	DefaultHighlightDuration = 1000 * time.Millisecond
	DefaultCameraDuration    = 600 * time.Millisecond
)

// Graph is the live structure the controller reads and mutates.
type Graph interface {
	Has(id string) bool
	Node(id string) (models.Node, bool)
	Nodes() []models.Node
	IncidentEdges(id string) []models.Edge
	SetHighlighted(id string, on bool) bool
	RemoveNode(id string) bool
}

// Camera centers the rendering surface on a point.
type Camera interface {
	Animate(target models.Position, duration time.Duration)
}

type nopCamera struct{}

func (nopCamera) Animate(models.Position, time.Duration) {}

// EventType names a selection event.
type EventType string

const (
	EventSelected         EventType = "node_selected"
	EventHighlightCleared EventType = "highlight_cleared"
)

// Event is published to subscribers. Node is nil when the selection was cleared.
type Event struct {
	Type EventType    `json:"type"`
	Node *models.Node `json:"node"`
}

// Options configure a Controller. Zero values take the defaults.
type Options struct {
	HighlightDuration time.Duration
	CameraDuration    time.Duration
	HitTester         HitTester
	Camera            Camera
	// Locker guards the graph. Timers acquire it before reverting a highlight;
	// every other method expects the caller to hold it.
	Locker sync.Locker
	Logger *zap.Logger
}

// Controller tracks the selected node. It is not self-locking: callers
// serialize access through Options.Locker, which the highlight timers share.
type Controller struct {
	graph    Graph
	opts     Options
	logger   *zap.Logger
	selected string

	subscribers []chan<- Event
	pending     map[string]*revert
	closed      bool
}

// revert is a scheduled highlight reset, cancelled when its node goes away.
type revert struct {
	timer     *time.Timer
	cancelled bool
}

// New creates a controller over g.
func New(g Graph, opts Options) *Controller {
	if opts.HighlightDuration <= 0 {
		opts.HighlightDuration = DefaultHighlightDuration
	}
	if opts.CameraDuration <= 0 {
		opts.CameraDuration = DefaultCameraDuration
	}
	if opts.HitTester == nil {
		opts.HitTester = CircleHitTester{}
	}
	if opts.Camera == nil {
		opts.Camera = nopCamera{}
	}
	if opts.Locker == nil {
		opts.Locker = &sync.Mutex{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{
		graph:   g,
		opts:    opts,
		logger:  opts.Logger.Named("selection"),
		pending: make(map[string]*revert),
	}
}

// Subscribe registers ch for selection events. Slow subscribers miss events.
func (c *Controller) Subscribe(ch chan<- Event) {
	c.subscribers = append(c.subscribers, ch)
}

// Unsubscribe removes ch. It is not closed.
func (c *Controller) Unsubscribe(ch chan<- Event) {
	for i, sub := range c.subscribers {
		if sub == ch {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			return
		}
	}
}

func (c *Controller) publish(event Event) {
	for _, ch := range c.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Selected returns the selected node, if any.
func (c *Controller) Selected() (models.Node, bool) {
	if c.selected == "" || c.graph == nil {
		return models.Node{}, false
	}
	return c.graph.Node(c.selected)
}

// SelectByClick selects the node under point, or clears the selection when the
// point hits empty canvas.
func (c *Controller) SelectByClick(point models.Position) *models.Node {
	if c.graph == nil {
		return c.setSelected("")
	}
	id, ok := c.opts.HitTester.HitTest(c.graph.Nodes(), point)
	if !ok {
		return c.setSelected("")
	}
	return c.setSelected(id)
}

// SelectByID selects a node programmatically, centers the camera on it and
// highlights it for the highlight duration. Unknown ids are a no-op.
func (c *Controller) SelectByID(id string) *models.Node {
	if c.graph == nil || c.closed {
		return nil
	}
	n, ok := c.graph.Node(id)
	if !ok {
		return nil
	}

	c.graph.SetHighlighted(id, true)
	c.schedule(id)
	c.opts.Camera.Animate(n.InitialPosition, c.opts.CameraDuration)
	return c.setSelected(id)
}

func (c *Controller) schedule(id string) {
	c.cancel(id)

	r := &revert{}
	r.timer = time.AfterFunc(c.opts.HighlightDuration, func() {
		c.opts.Locker.Lock()
		defer c.opts.Locker.Unlock()
		if r.cancelled {
			return
		}
		delete(c.pending, id)
		if c.graph == nil || !c.graph.Has(id) {
			return
		}
		c.graph.SetHighlighted(id, false)
		if n, ok := c.graph.Node(id); ok {
			c.publish(Event{Type: EventHighlightCleared, Node: &n})
		}
	})
	c.pending[id] = r
}

func (c *Controller) cancel(id string) {
	if r, ok := c.pending[id]; ok {
		r.cancelled = true
		r.timer.Stop()
		delete(c.pending, id)
	}
}

// Pending returns the number of highlight reverts still scheduled.
func (c *Controller) Pending() int {
	return len(c.pending)
}

// ConnectionsOf returns the neighbors of id ordered by edge weight, heaviest
// first, each neighbor once.
func (c *Controller) ConnectionsOf(id string) []string {
	if c.graph == nil {
		return nil
	}
	incident := c.graph.IncidentEdges(id)
	sort.SliceStable(incident, func(i, j int) bool {
		return incident[i].Weight > incident[j].Weight
	})

	seen := make(map[string]bool, len(incident))
	out := make([]string, 0, len(incident))
	for _, e := range incident {
		neighbor := e.Target
		if neighbor == id {
			neighbor = e.Source
		}
		if seen[neighbor] {
			continue
		}
		seen[neighbor] = true
		out = append(out, neighbor)
	}
	return out
}

// RemoveNode removes a node through the graph. If it was selected, the
// remaining node with the highest importance is selected instead.
func (c *Controller) RemoveNode(id string) bool {
	if c.graph == nil {
		return false
	}
	c.cancel(id)
	if !c.graph.RemoveNode(id) {
		return false
	}
	if c.selected == id {
		c.setSelected(c.mostImportant())
	}
	return true
}

func (c *Controller) mostImportant() string {
	best := ""
	bestScore := -1.0
	for _, n := range c.graph.Nodes() {
		score := n.Importance()
		if score > bestScore || (score == bestScore && n.ID < best) {
			best, bestScore = n.ID, score
		}
	}
	return best
}

// Reset points the controller at a rebuilt graph. Pending highlights are
// dropped; the selection survives when its node is still present.
func (c *Controller) Reset(g Graph) {
	c.cancelAll()
	c.graph = g
	if c.selected != "" && (g == nil || !g.Has(c.selected)) {
		c.setSelected("")
	}
}

// Close cancels every pending highlight revert. Later SelectByID calls are no-ops.
func (c *Controller) Close() {
	c.cancelAll()
	c.closed = true
}

func (c *Controller) cancelAll() {
	for id := range c.pending {
		c.cancel(id)
	}
}

func (c *Controller) setSelected(id string) *models.Node {
	c.selected = id
	if id == "" {
		c.logger.Debug("selection cleared")
		c.publish(Event{Type: EventSelected})
		return nil
	}
	n, ok := c.graph.Node(id)
	if !ok {
		c.selected = ""
		c.publish(Event{Type: EventSelected})
		return nil
	}
	c.logger.Debug("node selected", zap.String("node", id))
	c.publish(Event{Type: EventSelected, Node: &n})
	return &n
}
