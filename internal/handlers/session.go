package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/firmscope/core/internal/models"
	"github.com/firmscope/core/internal/parser"
	"github.com/firmscope/core/internal/selection"
	"github.com/firmscope/core/internal/session"
)

// eventBuffer is how many events a slow stream client may lag before it
// starts missing them.
const eventBuffer = 16

// AddNodeRequest is the body of POST /session/nodes.
type AddNodeRequest struct {
	Node  models.RawNode   `json:"node"`
	Edges []models.RawEdge `json:"edges"`
}

// SelectionResponse carries the selected node; Node is null when nothing is selected.
type SelectionResponse struct {
	Node *models.Node `json:"node"`
}

// ConnectionsResponse lists the neighbors of a node, heaviest edge first.
type ConnectionsResponse struct {
	ID          string   `json:"id"`
	Connections []string `json:"connections"`
}

// DatasetHandler replaces the session dataset and rebuilds the graph.
func (a *API) DatasetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(w, r, a.opts.MaxBodyBytes)
	if err != nil {
		a.fail(w, "Failed to read request body", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.opts.BuildTimeout)
	defer cancel()

	if err := a.session.Load(ctx, body, parser.DetectFormat(r.Header.Get("Content-Type"))); err != nil {
		a.fail(w, "Failed to load dataset", err)
		return
	}
	a.writeSnapshot(w, r)
}

// ParamsHandler reads or updates the node size factor and edge threshold.
func (a *API) ParamsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut, http.MethodPatch:
		var t session.Tunables
		r.Body = http.MaxBytesReader(w, r.Body, a.opts.MaxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			http.Error(w, "Invalid parameters: "+err.Error(), http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), a.opts.BuildTimeout)
		defer cancel()

		if err := a.session.SetTunables(ctx, t); err != nil {
			a.fail(w, "Failed to apply parameters", err)
			return
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p := a.session.Params()
	a.respond(w, r, http.StatusOK, session.Tunables{
		NodeSizeFactor:         &p.NodeSizeFactor,
		EdgeThicknessThreshold: &p.EdgeThicknessThreshold,
	})
}

// ColorsHandler reads or merges industry color overrides. A change rebuilds
// the graph.
func (a *API) ColorsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut, http.MethodPatch:
		var colors map[string]string
		r.Body = http.MaxBytesReader(w, r.Body, a.opts.MaxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&colors); err != nil {
			http.Error(w, "Invalid colors: "+err.Error(), http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), a.opts.BuildTimeout)
		defer cancel()

		if err := a.session.SetColors(ctx, colors); err != nil {
			a.fail(w, "Failed to apply colors", err)
			return
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.respond(w, r, http.StatusOK, a.session.Colors())
}

// EventsHandler streams selection events as server-sent events until the
// client goes away.
func (a *API) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rc := http.NewResponseController(w)
	// the stream outlives the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	events := make(chan selection.Event, eventBuffer)
	a.session.Subscribe(events)
	defer a.session.Unsubscribe(events)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		a.logger.Warn("Event stream cannot flush", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				a.logger.Error("Failed to encode event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// GraphHandler returns the published graph.
func (a *API) GraphHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.writeSnapshot(w, r)
}

func (a *API) writeSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := a.session.Snapshot()
	if err != nil {
		a.fail(w, "No graph", err)
		return
	}
	a.respond(w, r, http.StatusOK, snap)
}

// LegendHandler returns the industry colors of the published graph.
func (a *API) LegendHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	legend, err := a.session.Legend()
	if err != nil {
		a.fail(w, "No graph", err)
		return
	}
	a.respond(w, r, http.StatusOK, legend)
}

// NodesHandler adds a node with its edges to the published graph.
func (a *API) NodesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AddNodeRequest
	r.Body = http.MaxBytesReader(w, r.Body, a.opts.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid node: "+err.Error(), http.StatusBadRequest)
		return
	}

	n, err := a.session.AddNode(req.Node, req.Edges)
	if err != nil {
		a.fail(w, "Failed to add node", err)
		return
	}
	a.respond(w, r, http.StatusCreated, n)
}

// NodeHandler inspects (GET) or removes (DELETE) one node.
func (a *API) NodeHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		ins, ok := a.session.Inspect(id)
		if !ok {
			http.Error(w, "Node not found", http.StatusNotFound)
			return
		}
		a.respond(w, r, http.StatusOK, ins)
	case http.MethodDelete:
		removed, err := a.session.RemoveNode(id)
		if err != nil {
			a.fail(w, "Failed to remove node", err)
			return
		}
		if !removed {
			http.Error(w, "Node not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ConnectionsHandler lists the neighbors of one node.
func (a *API) ConnectionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	conns, ok := a.session.Connections(id)
	if !ok {
		http.Error(w, "Node not found", http.StatusNotFound)
		return
	}
	a.respond(w, r, http.StatusOK, ConnectionsResponse{ID: id, Connections: conns})
}

// SelectHandler selects by id when the path carries one, otherwise by the
// x and y query parameters. A click on empty canvas clears the selection.
func (a *API) SelectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if id := r.PathValue("id"); id != "" {
		n := a.session.SelectByID(id)
		if n == nil {
			http.Error(w, "Node not found", http.StatusNotFound)
			return
		}
		a.respond(w, r, http.StatusOK, SelectionResponse{Node: n})
		return
	}

	x, err := floatParam(r, "x")
	if err == nil && x == nil {
		err = errMissingPoint
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	y, err := floatParam(r, "y")
	if err == nil && y == nil {
		err = errMissingPoint
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n := a.session.SelectByClick(models.Position{X: *x, Y: *y})
	a.respond(w, r, http.StatusOK, SelectionResponse{Node: n})
}

// SelectionHandler returns the selected node.
func (a *API) SelectionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var resp SelectionResponse
	if n, ok := a.session.Selected(); ok {
		resp.Node = &n
	}
	a.respond(w, r, http.StatusOK, resp)
}

// Register mounts every endpoint on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/build", a.BuildHandler)
	mux.HandleFunc("/session/dataset", a.DatasetHandler)
	mux.HandleFunc("/session/params", a.ParamsHandler)
	mux.HandleFunc("/session/colors", a.ColorsHandler)
	mux.HandleFunc("/session/events", a.EventsHandler)
	mux.HandleFunc("/session/graph", a.GraphHandler)
	mux.HandleFunc("/session/legend", a.LegendHandler)
	mux.HandleFunc("/session/nodes", a.NodesHandler)
	mux.HandleFunc("/session/nodes/{id}", a.NodeHandler)
	mux.HandleFunc("/session/nodes/{id}/connections", a.ConnectionsHandler)
	mux.HandleFunc("/session/select", a.SelectHandler)
	mux.HandleFunc("/session/select/{id}", a.SelectHandler)
	mux.HandleFunc("/session/selection", a.SelectionHandler)
}
