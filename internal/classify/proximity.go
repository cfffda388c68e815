package classify

import (
	"context"

	"github.com/sells-group/areamatch/internal/geometry"
	"github.com/sells-group/areamatch/internal/piece"
)

// Proximity runs Pass 2 over in.
func (c *Classifier) Proximity(ctx context.Context, in, classified *piece.Store, stats *Stats) (*piece.Store, error) {
	results, err := c.each(ctx, in.All(), c.proximity)
	if err != nil {
		return nil, err
	}
	carried, _ := c.collect(results, classified, stats)
	return carried, nil
}

// proximity matches the whole piece to the preferred polygon that covers the
// largest part of its buffered endpoints, provided the covered part still
// touches both ends. Ties keep the lowest polygon id.
func (c *Classifier) proximity(p piece.Piece) (outcome, error) {
	carry := outcome{carried: []piece.Piece{p}}

	ends, err := p.Geom.Boundary()
	if err != nil {
		c.pieceError("proximity", p, err)
		return carry, nil
	}
	zone, err := ends.Buffer(c.opts.Tolerance, c.opts.QuadSegs)
	if err != nil {
		c.pieceError("proximity", p, err)
		return carry, nil
	}
	// Too short for separate end zones: both-ends matching means nothing.
	if geometry.Regions(zone) != 2 {
		return carry, nil
	}

	best, bestArea := piece.NoPolygon, 0.0
	for _, id := range c.index.Query(zone.Bounds()) {
		if !c.opts.Preferred.Match(c.polygons[id].Meta) {
			continue
		}
		poly, ok := c.candidate("proximity", p, id)
		if !ok {
			continue
		}
		covered, err := zone.Intersection(poly.Geom)
		if err != nil {
			c.candidateError("proximity", p, id, err)
			continue
		}
		if geometry.Regions(covered) != 2 {
			continue
		}
		area, err := covered.Area()
		if err != nil {
			c.candidateError("proximity", p, id, err)
			continue
		}
		if area > bestArea {
			best, bestArea = id, area
		}
	}

	if best == piece.NoPolygon {
		return carry, nil
	}
	cp, err := c.classified(p, p.Geom, piece.StageProximity, best)
	if err != nil {
		return outcome{}, err
	}
	return outcome{classified: []piece.Piece{cp}}, nil
}
