package featurestore

import (
	"encoding/json"
	"math"
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/areamatch/internal/model"
)

const geojsonDateLayout = "2006-01-02"

// readGeoJSON reads a FeatureCollection. Field types are inferred from the
// property values; fields are ordered by name.
func readGeoJSON(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "featurestore: read %s", path)
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "featurestore: decode geojson %s", path)
	}

	values := make(map[string][]any)
	c := &Collection{Path: path}
	var skipped int
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			skipped++
			continue
		}
		g, err := fromGeom(f.Geometry)
		if err != nil {
			zap.L().Warn("featurestore: skipping unreadable geometry", zap.String("path", path), zap.Error(err))
			skipped++
			continue
		}
		if c.Schema.Geometry == "" {
			c.Schema.Geometry = geojsonTypeName(f.Geometry)
		}
		attrs := make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			attrs[k] = v
			values[k] = append(values[k], v)
		}
		c.Features = append(c.Features, model.Feature{Geom: g, Attrs: attrs})
	}

	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		t := inferType(values[name])
		c.Schema.Fields = append(c.Schema.Fields, model.Field{Name: name, Type: t})
		for _, f := range c.Features {
			f.Attrs[name] = coerce(t, f.Attrs[name])
		}
	}

	if skipped > 0 {
		zap.L().Debug("featurestore: skipped geojson features", zap.String("path", path), zap.Int("skipped", skipped))
	}
	return c, nil
}

func geojsonTypeName(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return "Point"
	case *geom.LineString:
		return "LineString"
	case *geom.MultiLineString:
		return "MultiLineString"
	case *geom.Polygon:
		return "Polygon"
	case *geom.MultiPolygon:
		return "MultiPolygon"
	}
	return "Unknown"
}

// inferType picks the narrowest field type that holds every non-nil value.
func inferType(values []any) model.FieldType {
	var t model.FieldType
	for _, v := range values {
		var vt model.FieldType
		switch x := v.(type) {
		case nil:
			continue
		case bool:
			vt = model.FieldBool
		case float64:
			vt = model.FieldFloat
			if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
				vt = model.FieldInt
			}
		case string:
			vt = model.FieldString
			if _, err := time.Parse(geojsonDateLayout, x); err == nil {
				vt = model.FieldDate
			}
		default:
			return model.FieldString
		}
		switch {
		case t == "" || t == vt:
			t = vt
		case (t == model.FieldInt && vt == model.FieldFloat) || (t == model.FieldFloat && vt == model.FieldInt):
			t = model.FieldFloat
		default:
			return model.FieldString
		}
	}
	if t == "" {
		return model.FieldString
	}
	return t
}

// coerce converts a decoded JSON value to the Go type of t.
func coerce(t model.FieldType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case model.FieldInt:
		if f, ok := v.(float64); ok {
			return int64(f)
		}
	case model.FieldDate:
		if s, ok := v.(string); ok {
			if d, err := time.Parse(geojsonDateLayout, s); err == nil {
				return d
			}
		}
	case model.FieldString:
		if _, ok := v.(string); !ok {
			b, err := json.Marshal(v)
			if err == nil {
				return string(b)
			}
		}
	}
	return v
}

// writeGeoJSON writes records as a FeatureCollection. Every schema field is
// present in the properties, null when unknown.
func writeGeoJSON(path string, schema model.Schema, records []Record) ([]string, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(records))}
	for _, rec := range records {
		g, err := toGeom(rec.Geom)
		if err != nil {
			return nil, err
		}
		props := make(map[string]any, len(schema.Fields))
		for _, f := range schema.Fields {
			v := rec.Attrs[f.Name]
			if d, ok := v.(time.Time); ok {
				v = d.Format(geojsonDateLayout)
			}
			props[f.Name] = v
		}
		fc.Features = append(fc.Features, &geojson.Feature{Geometry: g, Properties: props})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "featurestore: encode geojson")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, eris.Wrapf(err, "featurestore: write %s", path)
	}
	return []string{path}, nil
}
