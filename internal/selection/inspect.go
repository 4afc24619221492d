package selection

import (
	"math"
	"strconv"
)

// Inspection is the record shown for a selected node. Centrality values are
// preformatted; a missing value is the empty string.
type Inspection struct {
	ID             string       `json:"id"`
	Label          string       `json:"label"`
	Industry       string       `json:"industry"`
	Closeness      string       `json:"closeness"`
	Harmonic       string       `json:"harmonic"`
	Betweenness    string       `json:"betweenness"`
	Eigenvector    string       `json:"eigenvector"`
	Degree         string       `json:"degree"`
	WeightedDegree string       `json:"weighted_degree"`
	Eccentricity   string       `json:"eccentricity"`
	Connections    []Connection `json:"connections"`
}

// Connection is one neighbor in an inspection record.
type Connection struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Industry string `json:"industry"`
	Color    string `json:"color"`
}

// Inspect builds the inspection record for id.
func (c *Controller) Inspect(id string) (*Inspection, bool) {
	if c.graph == nil {
		return nil, false
	}
	n, ok := c.graph.Node(id)
	if !ok {
		return nil, false
	}

	ins := &Inspection{
		ID:             n.ID,
		Label:          n.Label,
		Industry:       n.Industry,
		Closeness:      FormatMetric(n.Closeness),
		Harmonic:       FormatMetric(n.Harmonic),
		Betweenness:    FormatMetric(n.Betweenness),
		Eigenvector:    FormatMetric(n.Eigenvector),
		Degree:         FormatMetric(n.Degree),
		WeightedDegree: FormatMetric(n.WeightedDegree),
		Eccentricity:   FormatMetric(n.Eccentricity),
		Connections:    []Connection{},
	}
	for _, nid := range c.ConnectionsOf(id) {
		neighbor, ok := c.graph.Node(nid)
		if !ok {
			continue
		}
		ins.Connections = append(ins.Connections, Connection{
			ID:       neighbor.ID,
			Label:    neighbor.Label,
			Industry: neighbor.Industry,
			Color:    neighbor.Color,
		})
	}
	return ins, true
}

// FormatMetric rounds to four decimals. Whole numbers keep one decimal place.
func FormatMetric(v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return ""
	}
	rounded := math.Round(*v*1e4) / 1e4
	if rounded == math.Trunc(rounded) {
		return strconv.FormatFloat(rounded, 'f', 1, 64)
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}
