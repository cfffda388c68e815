package classify

import (
	"context"

	"github.com/sells-group/areamatch/internal/piece"
)

// Exact runs Pass 1 over in. Preferred matches are inserted into classified;
// the returned store holds everything else.
func (c *Classifier) Exact(ctx context.Context, in, classified *piece.Store, stats *Stats) (*piece.Store, error) {
	results, err := c.each(ctx, in.All(), c.exact)
	if err != nil {
		return nil, err
	}
	carried, _ := c.collect(results, classified, stats)
	return carried, nil
}

// exact cuts p by each candidate polygon in turn. Each intersection is removed
// from the working geometry so later candidates only see what is left.
func (c *Classifier) exact(p piece.Piece) (outcome, error) {
	var out outcome
	working := p.Geom

	for _, id := range c.exactCandidates(p) {
		poly, ok := c.candidate("exact", p, id)
		if !ok {
			continue
		}

		inside, err := working.Intersection(poly.Geom)
		if err != nil {
			c.candidateError("exact", p, id, err)
			continue
		}
		if inside.IsEmpty() {
			continue
		}
		rest, err := working.Difference(poly.Geom)
		if err != nil {
			c.candidateError("exact", p, id, err)
			continue
		}

		if c.opts.Preferred.Match(poly.Meta) {
			cp, err := c.classified(p, inside, piece.StagePreferred, id)
			if err != nil {
				return outcome{}, err
			}
			out.classified = append(out.classified, cp)
		} else {
			// Overlapped some area, just not a preferred one.
			out.carried = append(out.carried, unclassified(p, inside))
		}

		working = rest
		if working.IsEmpty() {
			break
		}
	}

	if !working.IsEmpty() {
		out.carried = append(out.carried, unclassified(p, working))
	}
	return out, nil
}

// exactCandidates returns the candidate polygons for p, preferred polygons
// first, each group in ascending id order.
func (c *Classifier) exactCandidates(p piece.Piece) []int {
	ids := c.index.Query(p.Geom.Bounds())
	ordered := make([]int, 0, len(ids))
	for _, id := range ids {
		if c.opts.Preferred.Match(c.polygons[id].Meta) {
			ordered = append(ordered, id)
		}
	}
	for _, id := range ids {
		if !c.opts.Preferred.Match(c.polygons[id].Meta) {
			ordered = append(ordered, id)
		}
	}
	return ordered
}
