// Package stitch recombines classified pieces of the same route that ended up
// with identical metadata.
package stitch

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/areamatch/internal/geometry"
	"github.com/sells-group/areamatch/internal/model"
	"github.com/sells-group/areamatch/internal/piece"
)

// Feature is one output record: a possibly multi-part line and its metadata.
type Feature struct {
	RouteKey int
	Geom     geometry.Geometry
	Meta     model.Metadata
	Pieces   int
}

// Stitch groups the pieces of store by route and line-merges pieces whose
// metadata is equal. Features are ordered by route key, then by the first
// appearance of their metadata within the route.
func Stitch(ctx context.Context, store *piece.Store, concurrency int) ([]Feature, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	routes := store.Routes()
	results := make([][]Feature, len(routes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, key := range routes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fs, err := Route(store.ByRoute(key))
			if err != nil {
				return eris.Wrapf(err, "stitch: route %d", key)
			}
			results[i] = fs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Feature
	for _, fs := range results {
		out = append(out, fs...)
	}
	zap.L().Debug("stitched routes",
		zap.Int("routes", len(routes)),
		zap.Int("pieces", store.Len()),
		zap.Int("features", len(out)),
	)
	return out, nil
}

// Route stitches the pieces of a single route. Every piece must carry the same
// route key.
func Route(pieces []piece.Piece) ([]Feature, error) {
	prints := make([]uint64, len(pieces))
	for i, p := range pieces {
		fp, err := p.Meta.Fingerprint()
		if err != nil {
			return nil, err
		}
		prints[i] = fp
	}

	consumed := make([]bool, len(pieces))
	var out []Feature
	for i := range pieces {
		if consumed[i] {
			continue
		}
		group := []geometry.Geometry{pieces[i].Geom}
		for j := i + 1; j < len(pieces); j++ {
			if consumed[j] || prints[j] != prints[i] || !pieces[j].Meta.Equal(pieces[i].Meta) {
				continue
			}
			group = append(group, pieces[j].Geom)
			consumed[j] = true
		}
		out = append(out, merge(pieces[i], group)...)
	}
	return out, nil
}

// merge line-merges group into one feature carrying first's metadata. If the
// geometry engine fails, each part is emitted on its own.
func merge(first piece.Piece, group []geometry.Geometry) []Feature {
	if len(group) == 1 {
		return []Feature{{RouteKey: first.RouteKey, Geom: group[0], Meta: first.Meta, Pieces: 1}}
	}
	merged, err := geometry.LineMerge(group...)
	if err == nil && !merged.IsEmpty() {
		return []Feature{{RouteKey: first.RouteKey, Geom: merged, Meta: first.Meta, Pieces: len(group)}}
	}

	zap.L().Warn("line merge failed, keeping parts separate",
		zap.Int("route", first.RouteKey),
		zap.Int("parts", len(group)),
		zap.Error(err),
	)
	out := make([]Feature, len(group))
	for i, g := range group {
		out[i] = Feature{RouteKey: first.RouteKey, Geom: g, Meta: first.Meta, Pieces: 1}
	}
	return out
}
