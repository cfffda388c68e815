package featurestore

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/areamatch/internal/geometry"
)

// fromGeom hands a go-geom geometry to the geometry engine through WKB.
func fromGeom(g geom.T) (geometry.Geometry, error) {
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return geometry.Geometry{}, eris.Wrap(err, "featurestore: encode WKB")
	}
	return geometry.FromWKB(data)
}

// toGeom converts an engine geometry back to go-geom for encoding.
func toGeom(g geometry.Geometry) (geom.T, error) {
	data, err := g.WKB()
	if err != nil {
		return nil, err
	}
	t, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "featurestore: decode WKB")
	}
	return t, nil
}

// shapeToGeom converts a shapefile record geometry. Returns nil for null or
// unsupported shapes.
func shapeToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PolyLine:
		return partsToMultiLineString(s.Parts, s.Points)
	case *shp.PolyLineZ:
		return partsToMultiLineString(s.Parts, s.Points)
	case *shp.PolyLineM:
		return partsToMultiLineString(s.Parts, s.Points)
	case *shp.Polygon:
		return ringsToMultiPolygon(s.Parts, s.Points)
	case *shp.PolygonZ:
		return ringsToMultiPolygon(s.Parts, s.Points)
	}
	return nil
}

// partRanges yields the flat XY coordinates of each part.
func partRanges(parts []int32, points []shp.Point) [][]float64 {
	out := make([][]float64, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || end > int32(len(points)) {
			continue
		}
		flat := make([]float64, 0, (end-start)*2)
		for _, p := range points[start:end] {
			flat = append(flat, p.X, p.Y)
		}
		out = append(out, flat)
	}
	return out
}

func partsToMultiLineString(parts []int32, points []shp.Point) geom.T {
	mls := geom.NewMultiLineString(geom.XY)
	for i, flat := range partRanges(parts, points) {
		if len(flat) < 4 {
			zap.L().Debug("featurestore: skipping degenerate line part", zap.Int("part", i))
			continue
		}
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("featurestore: skipping malformed line part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// ringsToMultiPolygon groups shapefile rings into polygons: clockwise rings
// are outer shells, counter-clockwise rings are holes of the preceding shell.
func ringsToMultiPolygon(parts []int32, points []shp.Point) geom.T {
	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon
	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("featurestore: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for i, flat := range partRanges(parts, points) {
		if len(flat) < 8 {
			zap.L().Debug("featurestore: skipping degenerate ring", zap.Int("part", i))
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)
		hole := xy.IsRingCounterClockwise(geom.XY, flat)
		if !hole || current == nil {
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(ring); err != nil {
			zap.L().Debug("featurestore: skipping malformed ring", zap.Int("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// geomToShape converts a geometry for a shapefile of type st.
func geomToShape(g geom.T, st shp.ShapeType) (shp.Shape, error) {
	switch st {
	case shp.POINT:
		if p, ok := g.(*geom.Point); ok {
			return &shp.Point{X: p.X(), Y: p.Y()}, nil
		}
	case shp.POLYLINE:
		var lines [][]shp.Point
		switch t := g.(type) {
		case *geom.LineString:
			lines = append(lines, toPoints(t.FlatCoords(), t.Stride()))
		case *geom.MultiLineString:
			for i := 0; i < t.NumLineStrings(); i++ {
				ls := t.LineString(i)
				lines = append(lines, toPoints(ls.FlatCoords(), ls.Stride()))
			}
		default:
			return nil, eris.Errorf("featurestore: %T in a line shapefile", g)
		}
		return shp.NewPolyLine(lines), nil
	case shp.POLYGON:
		var polys []*geom.Polygon
		switch t := g.(type) {
		case *geom.Polygon:
			polys = append(polys, t)
		case *geom.MultiPolygon:
			for i := 0; i < t.NumPolygons(); i++ {
				polys = append(polys, t.Polygon(i))
			}
		default:
			return nil, eris.Errorf("featurestore: %T in a polygon shapefile", g)
		}
		var rings [][]shp.Point
		for _, p := range polys {
			for j := 0; j < p.NumLinearRings(); j++ {
				r := p.LinearRing(j)
				flat := r.FlatCoords()
				// Shells are written clockwise, holes counter-clockwise.
				if xy.IsRingCounterClockwise(r.Layout(), flat) == (j == 0) {
					flat = reversed(flat, r.Stride())
				}
				rings = append(rings, toPoints(flat, r.Stride()))
			}
		}
		poly := shp.Polygon(*shp.NewPolyLine(rings))
		return &poly, nil
	}
	return nil, eris.Errorf("featurestore: cannot write %T as shape type %d", g, st)
}

func toPoints(flat []float64, stride int) []shp.Point {
	out := make([]shp.Point, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, shp.Point{X: flat[i], Y: flat[i+1]})
	}
	return out
}

func reversed(flat []float64, stride int) []float64 {
	out := make([]float64, 0, len(flat))
	for i := len(flat) - stride; i >= 0; i -= stride {
		out = append(out, flat[i:i+stride]...)
	}
	return out
}
