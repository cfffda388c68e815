package featurestore

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/areamatch/internal/model"
)

const (
	dbfDateLayout  = "20060102"
	dbfNameLen     = 10
	dbfMaxCharSize = 254
	dbfIntSize     = 20
	dbfFloatSize   = 24
	dbfFloatPrec   = 8
)

// readShapefile reads a .shp file with its .dbf attributes.
func readShapefile(path string, opts ReadOptions) (*Collection, error) {
	dec, err := dbfDecoder(path, opts.Encoding)
	if err != nil {
		return nil, err
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "featurestore: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	schema := model.Schema{Geometry: geometryName(reader.GeometryType)}
	for _, f := range fields {
		schema.Fields = append(schema.Fields, model.Field{Name: f.String(), Type: dbfFieldType(f)})
	}

	c := &Collection{Path: path, Schema: schema}
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		g := shapeToGeom(shape)
		if g == nil {
			skipped++
			continue
		}
		eg, err := fromGeom(g)
		if err != nil {
			zap.L().Warn("featurestore: skipping unreadable geometry", zap.String("path", path), zap.Error(err))
			skipped++
			continue
		}

		attrs := make(map[string]any, len(fields))
		for i, f := range fields {
			raw := strings.TrimRight(reader.Attribute(i), "\x00")
			v, err := decodeDBFValue(f, raw, dec)
			if err != nil {
				return nil, eris.Wrapf(err, "featurestore: field %s", f.String())
			}
			attrs[f.String()] = v
		}
		c.Features = append(c.Features, model.Feature{Geom: eg, Attrs: attrs})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "featurestore: read shapefile %s", path)
	}
	widenIntFields(c)

	if skipped > 0 {
		zap.L().Debug("featurestore: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return c, nil
}

// dbfDecoder resolves the character set of the DBF: the explicit name, else
// the .cpg sidecar, else UTF-8. Returns nil for UTF-8.
func dbfDecoder(path, name string) (*encoding.Decoder, error) {
	if name == "" {
		cpg := strings.TrimSuffix(path, filepath.Ext(path)) + ".cpg"
		if b, err := os.ReadFile(cpg); err == nil {
			name = strings.TrimSpace(string(b))
		}
	}
	if name == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "featurestore: unsupported charset %q", name)
	}
	if canon, _ := htmlindex.Name(enc); canon == "utf-8" {
		return nil, nil
	}
	return enc.NewDecoder(), nil
}

// widenIntFields retypes zero-precision numeric columns that hold decimal
// values as float, converting the column's integer values to match.
func widenIntFields(c *Collection) {
	for i, f := range c.Schema.Fields {
		if f.Type != model.FieldInt {
			continue
		}
		widen := false
		for _, feat := range c.Features {
			if _, ok := feat.Attrs[f.Name].(float64); ok {
				widen = true
				break
			}
		}
		if !widen {
			continue
		}
		c.Schema.Fields[i].Type = model.FieldFloat
		for _, feat := range c.Features {
			if n, ok := feat.Attrs[f.Name].(int64); ok {
				feat.Attrs[f.Name] = float64(n)
			}
		}
		zap.L().Debug("featurestore: widened integer field to float",
			zap.String("path", c.Path),
			zap.String("field", f.Name),
		)
	}
}

func dbfFieldType(f shp.Field) model.FieldType {
	switch f.Fieldtype {
	case 'N':
		if f.Precision == 0 {
			return model.FieldInt
		}
		return model.FieldFloat
	case 'F':
		return model.FieldFloat
	case 'L':
		return model.FieldBool
	case 'D':
		return model.FieldDate
	}
	return model.FieldString
}

// decodeDBFValue converts a raw DBF cell. Blank cells are nil.
func decodeDBFValue(f shp.Field, raw string, dec *encoding.Decoder) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	switch dbfFieldType(f) {
	case model.FieldInt:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n, nil
		}
		// Some writers put decimals in zero-precision fields.
		fallthrough
	case model.FieldFloat:
		v, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
		if err != nil {
			return nil, nil
		}
		return v, nil
	case model.FieldBool:
		switch raw[0] {
		case 'T', 't', 'Y', 'y':
			return true, nil
		case 'F', 'f', 'N', 'n':
			return false, nil
		}
		return nil, nil
	case model.FieldDate:
		t, err := time.Parse(dbfDateLayout, raw)
		if err != nil {
			return nil, nil
		}
		return t, nil
	}
	if dec != nil {
		s, err := dec.String(raw)
		if err != nil {
			return nil, eris.Wrap(err, "decode text")
		}
		return s, nil
	}
	return raw, nil
}

func geometryName(t shp.ShapeType) string {
	switch t {
	case shp.POINT, shp.POINTZ, shp.POINTM:
		return "Point"
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM:
		return "MultiLineString"
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
		return "MultiPolygon"
	}
	return "Unknown"
}

func shapeType(geometryName string) (shp.ShapeType, error) {
	switch strings.ToLower(geometryName) {
	case "point":
		return shp.POINT, nil
	case "linestring", "multilinestring":
		return shp.POLYLINE, nil
	case "polygon", "multipolygon":
		return shp.POLYGON, nil
	}
	return shp.NULL, eris.Errorf("featurestore: no shapefile type for geometry %q", geometryName)
}

// writeShapefile writes records to path and returns every file produced.
func writeShapefile(path string, schema model.Schema, records []Record) ([]string, error) {
	st, err := shapeType(schema.Geometry)
	if err != nil {
		return nil, err
	}
	fields := dbfFields(schema, records)

	w, err := shp.Create(path, st)
	if err != nil {
		return nil, eris.Wrapf(err, "featurestore: create shapefile %s", path)
	}
	if err := w.SetFields(fields); err != nil {
		w.Close()
		return nil, eris.Wrap(err, "featurestore: set dbf fields")
	}

	writeErr := func() error {
		for _, rec := range records {
			g, err := toGeom(rec.Geom)
			if err != nil {
				return err
			}
			shape, err := geomToShape(g, st)
			if err != nil {
				return err
			}
			row := int(w.Write(shape))
			for i, f := range schema.Fields {
				v, ok := encodeDBFValue(f.Type, rec.Attrs[f.Name])
				if !ok {
					continue
				}
				if err := w.WriteAttribute(row, i, v); err != nil {
					return eris.Wrapf(err, "featurestore: write %s", f.Name)
				}
			}
		}
		return nil
	}()
	w.Close()
	if writeErr != nil {
		return nil, writeErr
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	cpg := base + ".cpg"
	if err := os.WriteFile(cpg, []byte("UTF-8"), 0o644); err != nil {
		return nil, eris.Wrap(err, "featurestore: write cpg")
	}
	return []string{base + ".shp", base + ".shx", base + ".dbf", cpg}, nil
}

// dbfFields lays out the DBF columns. Names are cut to the DBF limit and
// de-duplicated with a numeric suffix; text columns are sized to the longest
// value.
func dbfFields(schema model.Schema, records []Record) []shp.Field {
	names := dbfNames(schema.Names())
	out := make([]shp.Field, len(schema.Fields))
	for i, f := range schema.Fields {
		name := names[i]
		switch f.Type {
		case model.FieldInt:
			out[i] = shp.NumberField(name, dbfIntSize)
		case model.FieldFloat:
			out[i] = shp.FloatField(name, dbfFloatSize, dbfFloatPrec)
		case model.FieldBool:
			lf := shp.Field{Fieldtype: 'L', Size: 1}
			copy(lf.Name[:], name)
			out[i] = lf
		case model.FieldDate:
			out[i] = shp.DateField(name)
		default:
			size := 1
			for _, r := range records {
				if v, ok := encodeDBFValue(f.Type, r.Attrs[f.Name]); ok && len(v.(string)) > size {
					size = len(v.(string))
				}
			}
			out[i] = shp.StringField(name, uint8(min(size, dbfMaxCharSize)))
		}
	}
	return out
}

func dbfNames(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]bool, len(names))
	for i, n := range names {
		short := truncate(n, dbfNameLen)
		for k := 1; used[strings.ToLower(short)]; k++ {
			suffix := strconv.Itoa(k)
			short = truncate(n, dbfNameLen-len(suffix)) + suffix
		}
		used[strings.ToLower(short)] = true
		out[i] = short
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// encodeDBFValue converts v to a value go-shp can write. ok is false for nil
// or values of the wrong type, which are left blank.
func encodeDBFValue(t model.FieldType, v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch t {
	case model.FieldInt:
		switch n := v.(type) {
		case int:
			return n, true
		case int32:
			return int(n), true
		case int64:
			return int(n), true
		case float64:
			if !math.IsInf(n, 0) && !math.IsNaN(n) {
				return int(math.Round(n)), true
			}
		}
	case model.FieldFloat:
		switch n := v.(type) {
		case float64:
			return n, true
		case float32:
			return float64(n), true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		}
	case model.FieldBool:
		if b, ok := v.(bool); ok {
			if b {
				return "T", true
			}
			return "F", true
		}
	case model.FieldDate:
		if d, ok := v.(time.Time); ok {
			return d.Format(dbfDateLayout), true
		}
	default:
		if s, ok := v.(string); ok {
			return truncate(s, dbfMaxCharSize), true
		}
		return truncate(fmt.Sprint(v), dbfMaxCharSize), true
	}
	return nil, false
}
