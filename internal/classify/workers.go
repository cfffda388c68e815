package classify

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/areamatch/internal/piece"
)

// outcome is what one pass produced for one input piece.
type outcome struct {
	classified []piece.Piece
	carried    []piece.Piece
	buffers    []Buffer
}

// each runs fn over pieces with bounded concurrency. Outcomes are returned in
// input order, so stores built from them do not depend on scheduling.
func (c *Classifier) each(ctx context.Context, pieces []piece.Piece, fn func(piece.Piece) (outcome, error)) ([]outcome, error) {
	results := make([]outcome, len(pieces))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for i, p := range pieces {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o, err := fn(p)
			if err != nil {
				return err
			}
			results[i] = o
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// collect inserts outcomes into the classified store and a fresh carry-over
// store, updating stats. The input store is left untouched.
func (c *Classifier) collect(results []outcome, classified *piece.Store, stats *Stats) (*piece.Store, []Buffer) {
	carried := piece.NewStore(c.opts.MinLength)
	var buffers []Buffer
	for _, o := range results {
		for _, p := range o.classified {
			stats.add(p.Stage, classified.Insert(p))
		}
		for _, p := range o.carried {
			carried.Insert(p)
		}
		buffers = append(buffers, o.buffers...)
	}
	return carried, buffers
}
