// Package models defines the core data structures shared by the layout pipeline.
// It includes the raw dataset records and the attributed graph handed to renderers.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultEdgeWeight replaces absent or non-positive edge weights.
const DefaultEdgeWeight = 0.1

// Dataset is one firm network as produced by the upstream analytics job.
type Dataset struct {
	Nodes []RawNode `json:"nodes" yaml:"nodes"`
	Edges []RawEdge `json:"edges" yaml:"edges"`
}

// NodeID accepts both string and numeric identifiers and keeps their textual form.
type NodeID string

func (id *NodeID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = NodeID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("node id must be a string or number: %w", err)
	}
	*id = NodeID(n.String())
	return nil
}

func (id *NodeID) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("node id must be a scalar, line %d", value.Line)
	}
	if value.Tag == "!!null" {
		*id = ""
		return nil
	}
	*id = NodeID(value.Value)
	return nil
}

// Centrality holds the precomputed importance scores of a firm. Every field is
// optional: nil means the metric was not present in the dataset.
type Centrality struct {
	Eigenvector    *float64 `json:"eigenvector_centrality,omitempty" yaml:"eigenvector_centrality,omitempty"`
	Betweenness    *float64 `json:"betweenness_centrality,omitempty" yaml:"betweenness_centrality,omitempty"`
	Closeness      *float64 `json:"closeness_centrality,omitempty" yaml:"closeness_centrality,omitempty"`
	Harmonic       *float64 `json:"harmonic_centrality,omitempty" yaml:"harmonic_centrality,omitempty"`
	Degree         *float64 `json:"degree,omitempty" yaml:"degree,omitempty"`
	WeightedDegree *float64 `json:"weighted_degree,omitempty" yaml:"weighted_degree,omitempty"`
	Eccentricity   *float64 `json:"eccentricity,omitempty" yaml:"eccentricity,omitempty"`
}

// Importance is the metric that drives node size: eigenvector centrality, 0 when absent.
func (c Centrality) Importance() float64 {
	return ValueOrZero(c.Eigenvector)
}

// ValueOrZero dereferences an optional metric.
func ValueOrZero(v *float64) float64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

// Float returns a pointer to v, for building datasets in code.
func Float(v float64) *float64 {
	return &v
}

// RawNode is a node record as it appears in the input dataset.
type RawNode struct {
	ID         NodeID `json:"id" yaml:"id"`
	Label      string `json:"label" yaml:"label"`
	Industry   string `json:"industry,omitempty" yaml:"industry,omitempty"`
	Centrality `yaml:",inline"`
}

// RawEdge is a weighted relationship between two firms.
type RawEdge struct {
	Source NodeID   `json:"source" yaml:"source"`
	Target NodeID   `json:"target" yaml:"target"`
	Weight *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// EffectiveWeight applies the default for absent or non-positive weights.
func (e RawEdge) EffectiveWeight() float64 {
	if e.Weight == nil || *e.Weight <= 0 {
		return DefaultEdgeWeight
	}
	return *e.Weight
}
