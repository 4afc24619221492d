package sizing

import (
	"sort"

	"github.com/firmscope/core/internal/models"
)

// outlierDivisor turns a node count into floor(0.1*n) with integer arithmetic.
const outlierDivisor = 10

// OutlierSet is the ordered set of outlier ids, smallest first.
type OutlierSet struct {
	ids   []string
	index map[string]int
}

// Outliers returns the floor(0.1*n) smallest nodes by size. The sort is stable so
// ties keep dataset order.
func Outliers(nodes []models.Node, sizes map[string]float64) *OutlierSet {
	sorted := make([]string, len(nodes))
	for i, n := range nodes {
		sorted[i] = n.ID
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sizes[sorted[i]] < sizes[sorted[j]]
	})

	count := len(nodes) / outlierDivisor
	set := &OutlierSet{
		ids:   sorted[:count],
		index: make(map[string]int, count),
	}
	for i, id := range set.ids {
		set.index[id] = i
	}
	return set
}

// Has reports whether id is an outlier.
func (s *OutlierSet) Has(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[id]
	return ok
}

// Index returns the rank of id among outliers, or -1.
func (s *OutlierSet) Index(id string) int {
	if s == nil {
		return -1
	}
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}

// Len returns the number of outliers.
func (s *OutlierSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// IDs returns the outlier ids, smallest first.
func (s *OutlierSet) IDs() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.ids...)
}
