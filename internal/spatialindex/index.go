// Package spatialindex provides bounding-box candidate retrieval over a fixed
// set of geometries using an R-tree.
package spatialindex

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/sells-group/areamatch/internal/geometry"
)

// minExtent pads zero-width boxes (axis-aligned lines) and query boxes, since
// rtreego rejects zero lengths and excludes rectangles that merely touch.
const minExtent = 1e-6

// entry is an indexed box. Implements rtreego.Spatial.
type entry struct {
	id   int
	rect rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect {
	return e.rect
}

// Index answers "which boxes may intersect this box" queries. Results may
// over-approximate but never miss an intersecting box.
type Index struct {
	tree *rtreego.Rtree
	size int
}

// Build creates an index over boxes. The id of each box is its slice position.
// Empty boxes are skipped and can never be returned.
func Build(boxes []geometry.Box) *Index {
	objs := make([]rtreego.Spatial, 0, len(boxes))
	for id, b := range boxes {
		if b.IsEmpty() {
			continue
		}
		objs = append(objs, &entry{id: id, rect: toRect(b)})
	}

	// 2D, min=25 children, max=50 children
	return &Index{
		tree: rtreego.NewTree(2, 25, 50, objs...),
		size: len(objs),
	}
}

// Len returns the number of indexed boxes.
func (idx *Index) Len() int {
	return idx.size
}

// Query returns the ids of boxes intersecting b, sorted ascending so that
// callers iterating candidates see a stable order across runs.
func (idx *Index) Query(b geometry.Box) []int {
	if idx == nil || idx.size == 0 || b.IsEmpty() {
		return nil
	}
	hits := idx.tree.SearchIntersect(toRect(b))
	ids := make([]int, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.(*entry).id)
	}
	sort.Ints(ids)
	return ids
}

func toRect(b geometry.Box) rtreego.Rect {
	point := rtreego.Point{b.MinX - minExtent, b.MinY - minExtent}
	lengths := []float64{
		math.Max(b.MaxX-b.MinX, 0) + 2*minExtent,
		math.Max(b.MaxY-b.MinY, 0) + 2*minExtent,
	}
	rect, _ := rtreego.NewRect(point, lengths)
	return rect
}
