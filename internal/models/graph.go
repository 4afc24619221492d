// Package models defines the core data structures shared by the layout pipeline.
// It includes the raw dataset records and the attributed graph handed to renderers.
package models

// Graph is the attributed, laid-out graph handed to a rendering surface.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	Stats *Stats `json:"stats,omitempty"`
}

// Position is a point on the layout plane.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a firm with its input attributes and the derived visual attributes.
type Node struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Industry string `json:"industry,omitempty"`
	Centrality
	Visual
}

// Visual carries the attributes computed by the pipeline. InitialPosition is the
// frozen rest layout; X and Y may be moved transiently by interactive operations.
type Visual struct {
	Size            float64  `json:"size"`
	Color           string   `json:"color"`
	X               float64  `json:"x"`
	Y               float64  `json:"y"`
	Mass            float64  `json:"mass"`
	InitialPosition Position `json:"initialPosition"`
	Highlighted     bool     `json:"highlighted,omitempty"`
}

// Position returns the live coordinates.
func (v Visual) Position() Position {
	return Position{X: v.X, Y: v.Y}
}

// Edge is a rendered relationship.
type Edge struct {
	ID        string  `json:"id"`
	Source    string  `json:"source"`
	Target    string  `json:"target"`
	Weight    float64 `json:"weight"`
	Size      float64 `json:"size"`
	Color     string  `json:"color"`
	Curvature float64 `json:"curvature"`
}

// Stats summarises one build.
type Stats struct {
	BuildID             string         `json:"build_id,omitempty"`
	TotalNodes          int            `json:"total_nodes"`
	TotalEdges          int            `json:"total_edges"`
	HiddenEdges         int            `json:"hidden_edges"`
	DroppedEdges        int            `json:"dropped_edges"`
	Outliers            int            `json:"outliers"`
	MaxWeight           float64        `json:"max_weight"`
	CollisionExhausted  int            `json:"collision_exhausted"`
	NodesByIndustry     map[string]int `json:"nodes_by_industry,omitempty"`
	NodeSizeFactor      float64        `json:"node_size_factor"`
	EdgeThicknessCutoff float64        `json:"edge_thickness_threshold"`
}
