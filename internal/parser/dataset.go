// Package parser provides utilities for parsing and validating input datasets.
// It handles format detection, decoding and structural validation.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/firmscope/core/internal/models"
)

var (
	ErrEmptyDataset     = errors.New("empty dataset")
	ErrMalformedDataset = errors.New("malformed dataset")
	ErrMissingNodes     = errors.New("dataset has no nodes array")
	ErrMissingEdges     = errors.New("dataset has no edges array")
	ErrInvalidNode      = errors.New("invalid node")
)

// Format is a dataset encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// DetectFormat picks a format from a file name or a content type, defaulting to JSON.
func DetectFormat(hint string) Format {
	hint = strings.ToLower(strings.TrimSpace(hint))
	switch {
	case strings.Contains(hint, "yaml"), strings.HasSuffix(hint, ".yml"):
		return FormatYAML
	case filepath.Ext(hint) == ".yaml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// document mirrors Dataset with pointer slices so an absent array can be told
// apart from an empty one.
type document struct {
	Nodes *[]models.RawNode `json:"nodes" yaml:"nodes"`
	Edges *[]models.RawEdge `json:"edges" yaml:"edges"`
}

// ParseDataset decodes a JSON dataset.
func ParseDataset(data []byte) (*models.Dataset, error) {
	return ParseDatasetFormat(data, FormatJSON)
}

// ReadDataset decodes a dataset from r.
func ReadDataset(r io.Reader, format Format) (*models.Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return ParseDatasetFormat(data, format)
}

// ParseDatasetFormat decodes and validates a dataset. Any structural problem
// rejects the whole dataset.
func ParseDatasetFormat(data []byte, format Format) (*models.Dataset, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDataset
	}

	var doc document
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
		}
	case FormatJSON, "":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
		}
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", format)
	}

	if doc.Nodes == nil {
		return nil, ErrMissingNodes
	}
	if doc.Edges == nil {
		return nil, ErrMissingEdges
	}

	ds := &models.Dataset{Nodes: *doc.Nodes, Edges: *doc.Edges}
	if err := Validate(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// Validate checks the fields every node must carry. Edges are not validated:
// dangling references are dropped later.
func Validate(ds *models.Dataset) error {
	for i, n := range ds.Nodes {
		if strings.TrimSpace(string(n.ID)) == "" {
			return fmt.Errorf("%w: node %d has no id", ErrInvalidNode, i)
		}
		if n.Label == "" {
			return fmt.Errorf("%w: node %q has no label", ErrInvalidNode, n.ID)
		}
	}
	return nil
}
