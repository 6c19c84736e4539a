package apportion

import (
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// indexEntry carries the position of a geometry in the slice it was
// indexed from.
type indexEntry struct {
	geom.Polygonal
	pos int
}

// spatialIndex is an R-tree of polygon bounds.
type spatialIndex struct {
	tree *rtree.Rtree
	size int
}

func newSpatialIndex() *spatialIndex {
	return &spatialIndex{tree: rtree.NewTree(25, 50)}
}

func (s *spatialIndex) insert(g geom.Polygonal, pos int) {
	s.tree.Insert(&indexEntry{Polygonal: g, pos: pos})
	s.size++
}

// search returns, in ascending order, the positions of every indexed
// geometry whose bounds overlap b.
func (s *spatialIndex) search(b *geom.Bounds) []int {
	if s.size == 0 || b == nil {
		return nil
	}
	hits := s.tree.SearchIntersect(b)
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*indexEntry).pos)
	}
	sort.Ints(out)
	return out
}

// overlaps reports whether some indexed bounds overlap b.
func (s *spatialIndex) overlaps(b *geom.Bounds) bool {
	if s.size == 0 || b == nil {
		return false
	}
	return len(s.tree.SearchIntersect(b)) > 0
}
