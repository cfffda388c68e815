package classify

import (
	"context"

	"github.com/sells-group/areamatch/internal/piece"
)

// Overlap runs Pass 3 over in. Every piece of in ends up classified.
func (c *Classifier) Overlap(ctx context.Context, in, classified *piece.Store, stats *Stats) ([]Buffer, error) {
	results, err := c.each(ctx, in.All(), c.overlap)
	if err != nil {
		return nil, err
	}
	_, buffers := c.collect(results, classified, stats)
	return buffers, nil
}

// overlap assigns the piece to the non-ignored polygon with the largest overlap
// of its buffer; any non-empty intersection qualifies, even one of zero area.
// With no such polygon the piece keeps only its own attributes.
func (c *Classifier) overlap(p piece.Piece) (outcome, error) {
	var out outcome
	// -1 so a candidate that only touches the buffer still beats no candidate.
	best, bestArea := piece.NoPolygon, -1.0

	zone, err := p.Geom.Buffer(c.opts.Tolerance, c.opts.QuadSegs)
	if err != nil {
		c.pieceError("overlap", p, err)
	} else {
		if c.opts.KeepBuffers {
			out.buffers = append(out.buffers, Buffer{RouteKey: p.RouteKey, Geom: zone})
		}
		for _, id := range c.index.Query(zone.Bounds()) {
			if c.opts.Ignored.Match(c.polygons[id].Meta) {
				continue
			}
			poly, ok := c.candidate("overlap", p, id)
			if !ok {
				continue
			}
			shared, err := zone.Intersection(poly.Geom)
			if err != nil {
				c.candidateError("overlap", p, id, err)
				continue
			}
			if shared.IsEmpty() {
				continue
			}
			area, err := shared.Area()
			if err != nil {
				c.candidateError("overlap", p, id, err)
				continue
			}
			if area > bestArea {
				best, bestArea = id, area
			}
		}
	}

	stage := piece.StageOverlap
	if best == piece.NoPolygon {
		stage = piece.StageUnmatched
	}
	cp, err := c.classified(p, p.Geom, stage, best)
	if err != nil {
		return outcome{}, err
	}
	out.classified = append(out.classified, cp)
	return out, nil
}
