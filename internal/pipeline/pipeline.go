// Package pipeline runs a full classification job: read the sources, reconcile
// the line sources, classify, stitch and write the results.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/areamatch/internal/classify"
	"github.com/sells-group/areamatch/internal/config"
	"github.com/sells-group/areamatch/internal/featurestore"
	"github.com/sells-group/areamatch/internal/geometry"
	"github.com/sells-group/areamatch/internal/metadata"
	"github.com/sells-group/areamatch/internal/model"
	"github.com/sells-group/areamatch/internal/reconcile"
	"github.com/sells-group/areamatch/internal/spatialindex"
	"github.com/sells-group/areamatch/internal/stitch"
)

// outputGeometry is the geometry type of the stitched output.
const outputGeometry = "MultiLineString"

var bufferSchema = model.Schema{
	Geometry: "Polygon",
	Fields:   []model.Field{{Name: "id", Type: model.FieldString}},
}

// Pipeline runs jobs described by a configuration. Filters and field tables
// are passed in explicitly; nothing is read from package state.
type Pipeline struct {
	cfg *config.Config
	log *zap.Logger
}

// New creates a Pipeline.
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{cfg: cfg, log: zap.L().With(zap.String("component", "pipeline"))}
}

// sources holds the read input collections.
type sources struct {
	routes    *featurestore.Collection
	secondary *featurestore.Collection
	areas     *featurestore.Collection
}

// Run executes the job. A SchemaMismatch aborts before anything is written.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Inputs: Inputs{
			Routes:    p.cfg.Input.Routes,
			Secondary: p.cfg.Input.Secondary,
			Areas:     p.cfg.Input.Areas,
		},
		Output: p.cfg.Output.Path,
	}
	log := p.log.With(zap.String("run_id", report.RunID))
	log.Info("pipeline: starting run", zap.String("routes", p.cfg.Input.Routes), zap.String("areas", p.cfg.Input.Areas))

	runPhase := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		phase := PhaseResult{Name: name, Duration: time.Since(start).Milliseconds()}
		if err != nil {
			phase.Error = err.Error()
			log.Error("pipeline: phase failed", zap.String("phase", name), zap.Error(err))
		} else {
			log.Info("pipeline: phase complete", zap.String("phase", name), zap.Int64("duration_ms", phase.Duration))
		}
		report.Phases = append(report.Phases, phase)
		return err
	}

	var (
		src     sources
		mm      *metadata.Model
		job     *prepared
		rec     reconcile.Result
		res     *classify.Result
		outputs []stitch.Feature
	)

	if err := runPhase("read", func() error {
		var err error
		src, err = p.read()
		return err
	}); err != nil {
		return report, err
	}

	if err := runPhase("prepare", func() error {
		var err error
		mm, err = p.model(src)
		if err != nil {
			return err
		}
		job, err = p.prepare(src, mm)
		return err
	}); err != nil {
		return report, err
	}
	report.Schema = mm.Schema()
	report.Counts.Areas = len(job.polygons)
	report.Counts.Routes = len(job.primary)
	report.Counts.Secondary = len(job.secondary)

	if err := runPhase("reconcile", func() error {
		rec = reconcile.Reconcile(job.primary, job.secondary, mm)
		return nil
	}); err != nil {
		return report, err
	}
	report.Counts.Updated = rec.Updated
	report.Counts.Appended = rec.Appended

	if err := runPhase("classify", func() error {
		c := classify.New(job.polygons, job.index, mm, p.options())
		var err error
		res, err = c.Run(ctx, rec.Routes)
		return err
	}); err != nil {
		return report, eris.Wrap(err, "pipeline: classify")
	}
	report.Stats = res.Stats

	if err := runPhase("stitch", func() error {
		var err error
		outputs, err = stitch.Stitch(ctx, res.Classified, p.cfg.Pipeline.Concurrency)
		return err
	}); err != nil {
		return report, eris.Wrap(err, "pipeline: stitch")
	}
	report.Counts.Features = len(outputs)

	if err := runPhase("write", func() error {
		return p.write(mm.Schema(), outputs, res.Buffers, rec.Routes)
	}); err != nil {
		return report, err
	}

	report.FinishedAt = time.Now().UTC()
	log.Info("pipeline: run complete",
		zap.Int("features", report.Counts.Features),
		zap.Int("preferred", report.Stats.Preferred),
		zap.Int("proximity", report.Stats.Proximity),
		zap.Int("overlap", report.Stats.Overlap),
		zap.Int("unmatched", report.Stats.Unmatched),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)

	if p.cfg.Output.Report != "" {
		if err := WriteReport(p.cfg.Output.Report, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// Schema derives the output schema for the configured sources without
// classifying anything.
func (p *Pipeline) Schema() (model.Schema, error) {
	src, err := p.read()
	if err != nil {
		return model.Schema{}, err
	}
	mm, err := p.model(src)
	if err != nil {
		return model.Schema{}, err
	}
	return mm.Schema(), nil
}

func (p *Pipeline) read() (sources, error) {
	opts := featurestore.ReadOptions{Encoding: p.cfg.Input.Encoding}
	var (
		src sources
		err error
	)
	if src.routes, err = featurestore.Read(p.cfg.Input.Routes, opts); err != nil {
		return src, eris.Wrap(err, "pipeline: read routes")
	}
	if src.areas, err = featurestore.Read(p.cfg.Input.Areas, opts); err != nil {
		return src, eris.Wrap(err, "pipeline: read areas")
	}
	if p.cfg.Input.Secondary != "" {
		if src.secondary, err = featurestore.Read(p.cfg.Input.Secondary, opts); err != nil {
			return src, eris.Wrap(err, "pipeline: read secondary routes")
		}
	}
	return src, nil
}

// model builds the metadata model over the derived output schema.
func (p *Pipeline) model(src sources) (*metadata.Model, error) {
	mapping := p.cfg.Fields.Mapping()

	reformat, err := metadata.Reformats(p.cfg.Fields.Reformat)
	if err != nil {
		return nil, err
	}
	derive, err := metadata.Derives(p.cfg.Fields.Derive, metadata.DeriveEnv{
		Preferred:     p.filter(p.cfg.Filters.Preferred),
		PolygonFields: mapping.PolygonOnly(),
	})
	if err != nil {
		return nil, err
	}

	// Polygon fields first; route fields override on collision.
	schemas := []model.Schema{src.areas.Schema, src.routes.Schema}
	if src.secondary != nil {
		schemas = append(schemas, src.secondary.Schema)
	}
	schema, err := featurestore.DeriveSchema(outputGeometry, schemas, mapping, reformat, derive)
	if err != nil {
		return nil, err
	}
	return metadata.New(mapping, schema, reformat, derive)
}

func (p *Pipeline) filter(f config.FilterConfig) model.Filter {
	return model.Filter{Field: f.Field, Values: f.Values}
}

func (p *Pipeline) options() classify.Options {
	return classify.Options{
		Preferred:   p.filter(p.cfg.Filters.Preferred),
		Ignored:     p.filter(p.cfg.Filters.Ignored),
		Tolerance:   p.cfg.Pipeline.Tolerance,
		QuadSegs:    p.cfg.Pipeline.QuadSegs,
		MinLength:   p.cfg.Pipeline.MinLength,
		Concurrency: p.cfg.Pipeline.Concurrency,
		KeepBuffers: p.cfg.Output.Buffers != "",
	}
}

// prepared holds the in-memory inputs of the classifier.
type prepared struct {
	polygons  []model.Polygon
	index     *spatialindex.Index
	primary   []model.Route
	secondary []model.Route
}

func (p *Pipeline) prepare(src sources, mm *metadata.Model) (*prepared, error) {
	job := &prepared{}
	boxes := make([]geometry.Box, 0, len(src.areas.Features))
	for _, f := range src.areas.Features {
		job.polygons = append(job.polygons, model.Polygon{
			ID:   len(job.polygons),
			Geom: f.Geom,
			Meta: mm.SourceMetadata(f.Attrs),
		})
		boxes = append(boxes, f.Geom.Bounds())
	}
	job.index = spatialindex.Build(boxes)

	job.primary = p.routes(src.routes, mm)
	if src.secondary != nil {
		job.secondary = p.routes(src.secondary, mm)
	}
	if len(job.polygons) == 0 {
		p.log.Warn("pipeline: no areas read, every route will be unmatched")
	}
	return job, nil
}

// routes converts a line collection. The original identifier is the value of
// the configured route id field, when present.
func (p *Pipeline) routes(c *featurestore.Collection, mm *metadata.Model) []model.Route {
	out := make([]model.Route, 0, len(c.Features))
	for i, f := range c.Features {
		meta := mm.SourceMetadata(f.Attrs)
		var id string
		if v, ok := meta[p.cfg.Fields.RouteID]; ok && model.Truthy(v) {
			id = fmt.Sprint(v)
		}
		out = append(out, model.Route{Key: i, OriginalID: id, Geom: f.Geom, Meta: meta})
	}
	return out
}

func (p *Pipeline) write(schema model.Schema, outputs []stitch.Feature, buffers []classify.Buffer, routes []model.Route) error {
	records := make([]featurestore.Record, len(outputs))
	for i, f := range outputs {
		records[i] = featurestore.Record{Geom: f.Geom, Attrs: f.Meta}
	}
	if err := featurestore.Write(p.cfg.Output.Path, schema, records); err != nil {
		return eris.Wrap(err, "pipeline: write output")
	}

	if p.cfg.Output.Buffers == "" {
		return nil
	}
	bufRecords := make([]featurestore.Record, len(buffers))
	for i, b := range buffers {
		id := fmt.Sprintf("route-%d", b.RouteKey)
		if b.RouteKey >= 0 && b.RouteKey < len(routes) && routes[b.RouteKey].OriginalID != "" {
			id = routes[b.RouteKey].OriginalID
		}
		bufRecords[i] = featurestore.Record{Geom: b.Geom, Attrs: map[string]any{"id": id}}
	}
	if err := featurestore.Write(p.cfg.Output.Buffers, bufferSchema, bufRecords); err != nil {
		return eris.Wrap(err, "pipeline: write buffers")
	}
	return nil
}
