// Package classify assigns line pieces to reference areas in three ordered
// passes:
//
//  1. Exact: cut each piece by the polygons it intersects. Pieces inside a
//     preferred polygon are classified immediately; everything else carries on.
//  2. Proximity: a piece whose two buffered endpoints both fall in the same
//     preferred polygon takes that polygon, largest overlap first.
//  3. Overlap: the buffered piece takes the non-ignored polygon it overlaps
//     most, or the empty template when only ignored areas are near.
//
// Pass 1 is greedy first-match; passes 2 and 3 pick the largest area.
package classify

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/areamatch/internal/geometry"
	"github.com/sells-group/areamatch/internal/model"
	"github.com/sells-group/areamatch/internal/piece"
	"github.com/sells-group/areamatch/internal/spatialindex"
)

// Defaults for Options.
const (
	DefaultTolerance   = 4.0
	DefaultQuadSegs    = 8
	DefaultConcurrency = 4
)

// Options configures the classifier. Filters and tolerances are fixed for the
// life of a Classifier.
type Options struct {
	Preferred   model.Filter
	Ignored     model.Filter
	Tolerance   float64
	QuadSegs    int
	MinLength   float64
	Concurrency int
	KeepBuffers bool
}

// DefaultOptions returns options with the standard tolerances and no filters.
func DefaultOptions() Options {
	return Options{
		Tolerance:   DefaultTolerance,
		QuadSegs:    DefaultQuadSegs,
		MinLength:   piece.DefaultMinLength,
		Concurrency: DefaultConcurrency,
	}
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.QuadSegs <= 0 {
		o.QuadSegs = DefaultQuadSegs
	}
	if o.MinLength <= 0 {
		o.MinLength = piece.DefaultMinLength
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	return o
}

// Merger builds output metadata. *metadata.Model implements it.
type Merger interface {
	Merge(route, polygon model.Metadata) (model.Metadata, error)
	Empty() model.Metadata
}

// Stats counts the outcome of a run.
type Stats struct {
	Seeded          int `yaml:"seeded"`
	Preferred       int `yaml:"preferred"`
	Proximity       int `yaml:"proximity"`
	Overlap         int `yaml:"overlap"`
	Unmatched       int `yaml:"unmatched"`
	CandidateErrors int `yaml:"candidate_errors"`
	Discarded       int `yaml:"discarded"`
}

func (s *Stats) add(stage piece.Stage, n int) {
	switch stage {
	case piece.StagePreferred:
		s.Preferred += n
	case piece.StageProximity:
		s.Proximity += n
	case piece.StageOverlap:
		s.Overlap += n
	case piece.StageUnmatched:
		s.Unmatched += n
	}
}

// Result holds every classified piece and, when requested, the Pass 3 buffers.
type Result struct {
	Classified *piece.Store
	Buffers    []Buffer
	Stats      Stats
}

// Buffer is a Pass 3 search zone, kept for inspection.
type Buffer struct {
	RouteKey int
	Geom     geometry.Geometry
}

// Classifier runs the passes against a fixed polygon set. Polygons, index and
// merger are read-only, so pieces are processed concurrently without locking.
type Classifier struct {
	polygons []model.Polygon
	index    *spatialindex.Index
	meta     Merger
	opts     Options
	log      *zap.Logger

	// invalid holds the validation error of each polygon, nil when valid.
	invalid []error

	candidateErrors atomic.Int64
}

// New creates a Classifier. polygons[i].ID must equal i; the index must be
// built over the polygon bounds in the same order.
//
// Topologically invalid polygons are kept but every candidate test against
// them fails as a per-candidate geometry error.
func New(polygons []model.Polygon, index *spatialindex.Index, meta Merger, opts Options) *Classifier {
	c := &Classifier{
		polygons: polygons,
		index:    index,
		meta:     meta,
		opts:     opts.withDefaults(),
		log:      zap.L().With(zap.String("component", "classify")),
		invalid:  make([]error, len(polygons)),
	}
	bad := 0
	for i, poly := range polygons {
		if err := poly.Geom.Validate(); err != nil {
			c.invalid[i] = err
			bad++
		}
	}
	if bad > 0 {
		c.log.Warn("invalid polygons will be skipped as candidates", zap.Int("count", bad))
	}
	return c
}

// candidate looks up polygon id. For an invalid polygon it records a
// candidate error and returns false.
func (c *Classifier) candidate(pass string, p piece.Piece, id int) (model.Polygon, bool) {
	if err := c.invalid[id]; err != nil {
		c.candidateError(pass, p, id, err)
		return model.Polygon{}, false
	}
	return c.polygons[id], true
}

// Seed returns a store holding one unclassified piece per route.
func (c *Classifier) Seed(routes []model.Route) *piece.Store {
	s := piece.NewStore(c.opts.MinLength)
	for _, r := range routes {
		s.Insert(piece.Piece{
			Geom:      r.Geom,
			Meta:      r.Meta,
			RouteKey:  r.Key,
			Stage:     piece.StageUnclassified,
			PolygonID: piece.NoPolygon,
		})
	}
	return s
}

// Run classifies every route. A SchemaMismatch error aborts the run.
func (c *Classifier) Run(ctx context.Context, routes []model.Route) (*Result, error) {
	seed := c.Seed(routes)
	classified := piece.NewStore(c.opts.MinLength)
	res := &Result{Classified: classified}
	res.Stats.Seeded = seed.Len()
	discarded := seed.Discarded()

	c.log.Info("seeded pieces", zap.Int("routes", len(routes)), zap.Int("pieces", seed.Len()))

	left, err := c.Exact(ctx, seed, classified, &res.Stats)
	if err != nil {
		return nil, eris.Wrap(err, "classify: exact pass")
	}
	discarded += left.Discarded()
	c.log.Info("exact pass complete",
		zap.Int("preferred", res.Stats.Preferred),
		zap.Int("carried", left.Len()),
	)

	left, err = c.Proximity(ctx, left, classified, &res.Stats)
	if err != nil {
		return nil, eris.Wrap(err, "classify: proximity pass")
	}
	discarded += left.Discarded()
	c.log.Info("proximity pass complete",
		zap.Int("proximity", res.Stats.Proximity),
		zap.Int("carried", left.Len()),
	)

	buffers, err := c.Overlap(ctx, left, classified, &res.Stats)
	if err != nil {
		return nil, eris.Wrap(err, "classify: overlap pass")
	}
	res.Buffers = buffers
	c.log.Info("overlap pass complete",
		zap.Int("overlap", res.Stats.Overlap),
		zap.Int("unmatched", res.Stats.Unmatched),
	)

	res.Stats.Discarded = discarded + classified.Discarded()
	res.Stats.CandidateErrors = int(c.candidateErrors.Load())
	return res, nil
}

// candidateError records a geometry engine failure on one candidate polygon.
// The candidate is skipped; the piece continues.
func (c *Classifier) candidateError(pass string, p piece.Piece, polygonID int, err error) {
	c.candidateErrors.Add(1)
	c.log.Warn("skipping candidate after geometry error",
		zap.String("pass", pass),
		zap.Int("route", p.RouteKey),
		zap.Int("polygon", polygonID),
		zap.Error(err),
	)
}

// pieceError records a geometry engine failure on the piece itself.
func (c *Classifier) pieceError(pass string, p piece.Piece, err error) {
	c.candidateErrors.Add(1)
	c.log.Warn("geometry error on piece",
		zap.String("pass", pass),
		zap.Int("route", p.RouteKey),
		zap.Error(err),
	)
}

// classified builds a terminal piece for p matched to polygonID (or NoPolygon).
func (c *Classifier) classified(p piece.Piece, g geometry.Geometry, stage piece.Stage, polygonID int) (piece.Piece, error) {
	polygonMeta := c.meta.Empty()
	if polygonID != piece.NoPolygon {
		polygonMeta = c.polygons[polygonID].Meta
	}
	merged, err := c.meta.Merge(p.Meta, polygonMeta)
	if err != nil {
		return piece.Piece{}, err
	}
	return piece.Piece{
		Geom:      g,
		Meta:      merged,
		RouteKey:  p.RouteKey,
		Stage:     stage,
		PolygonID: polygonID,
	}, nil
}

// unclassified derives a carried-over piece from p with a new geometry.
func unclassified(p piece.Piece, g geometry.Geometry) piece.Piece {
	return piece.Piece{
		Geom:      g,
		Meta:      p.Meta,
		RouteKey:  p.RouteKey,
		Stage:     piece.StageUnclassified,
		PolygonID: piece.NoPolygon,
	}
}
