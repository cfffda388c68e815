// Package featurestore reads and writes geometry + attribute collections as
// ESRI shapefiles or GeoJSON, and derives the output schema of a run.
package featurestore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/areamatch/internal/geometry"
	"github.com/sells-group/areamatch/internal/model"
)

// Format is a supported on-disk encoding.
type Format int

// Supported formats.
const (
	FormatUnknown Format = iota
	FormatShapefile
	FormatGeoJSON
)

// FormatOf picks the format from the file extension.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return FormatShapefile
	case ".geojson", ".json":
		return FormatGeoJSON
	}
	return FormatUnknown
}

// Collection is a read feature collection. Feature attributes are keyed by
// the source field names of Schema.
type Collection struct {
	Path     string
	Schema   model.Schema
	Features []model.Feature
}

// ReadOptions tunes Read.
type ReadOptions struct {
	// Encoding is the DBF character set, e.g. "utf-8" or "windows-1252".
	// Empty means the .cpg sidecar if present, else UTF-8.
	Encoding string
}

// Record is one feature to write: geometry plus attributes keyed by the
// field names of the output schema.
type Record struct {
	Geom  geometry.Geometry
	Attrs map[string]any
}

// Read loads the collection at path.
func Read(path string, opts ReadOptions) (*Collection, error) {
	var (
		c   *Collection
		err error
	)
	switch FormatOf(path) {
	case FormatShapefile:
		c, err = readShapefile(path, opts)
	case FormatGeoJSON:
		c, err = readGeoJSON(path)
	default:
		return nil, eris.Errorf("featurestore: unsupported format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	zap.L().Debug("featurestore: read collection",
		zap.String("path", path),
		zap.String("geometry", c.Schema.Geometry),
		zap.Int("fields", len(c.Schema.Fields)),
		zap.Int("features", len(c.Features)),
	)
	return c, nil
}

// Write stores records at path under schema. Output is produced in a
// temporary directory next to path and moved into place only once complete,
// so a failed write never leaves a partial destination behind.
func Write(path string, schema model.Schema, records []Record) error {
	format := FormatOf(path)
	if format == FormatUnknown {
		return eris.Errorf("featurestore: unsupported format %q", filepath.Ext(path))
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "featurestore: create output dir %s", dir)
	}
	tmp, err := os.MkdirTemp(dir, ".areamatch-*")
	if err != nil {
		return eris.Wrap(err, "featurestore: create temp dir")
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	staged := filepath.Join(tmp, filepath.Base(path))
	var files []string
	switch format {
	case FormatShapefile:
		files, err = writeShapefile(staged, schema, records)
	case FormatGeoJSON:
		files, err = writeGeoJSON(staged, schema, records)
	}
	if err != nil {
		return err
	}

	for _, f := range files {
		dst := filepath.Join(dir, filepath.Base(f))
		if err := os.Rename(f, dst); err != nil {
			return eris.Wrapf(err, "featurestore: move %s into place", filepath.Base(f))
		}
	}

	zap.L().Info("featurestore: wrote collection",
		zap.String("path", path),
		zap.Int("features", len(records)),
	)
	return nil
}
