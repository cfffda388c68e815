package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/areamatch/internal/config"
	"github.com/sells-group/areamatch/internal/model"
)

const testAreas = `{"type":"FeatureCollection","features":[
	{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,-2],[10,-2],[10,2],[0,2],[0,-2]]]},"properties":{"osan_id":1,"alatyyppi":"Pyörätie"}}
]}`

const testRoutes = `{"type":"FeatureCollection","features":[
	{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[10,0]]},"properties":{"id":7}}
]}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	areas := filepath.Join(dir, "areas.geojson")
	routes := filepath.Join(dir, "routes.geojson")
	require.NoError(t, os.WriteFile(areas, []byte(testAreas), 0o644))
	require.NoError(t, os.WriteFile(routes, []byte(testRoutes), 0o644))

	c := &config.Config{}
	c.Input.Routes = routes
	c.Input.Areas = areas
	c.Output.Path = filepath.Join(dir, "out.geojson")
	c.Fields.Route = map[string]string{"id": "original_line_id"}
	c.Fields.Polygon = map[string]string{"osan_id": "ylre_id", "alatyyppi": "subtype"}
	c.Fields.RouteID = "original_line_id"
	c.Filters.Preferred = config.FilterConfig{Field: "subtype", Values: []string{"Pyörätie"}}
	c.Pipeline.Tolerance = 4
	c.Pipeline.MinLength = 0.001
	c.Pipeline.QuadSegs = 8
	c.Pipeline.Concurrency = 1
	return c
}

func TestRunCmd_RunE_FailsOnValidation(t *testing.T) {
	cfg = &config.Config{}

	runCmd.SetContext(context.Background())
	defer runCmd.SetContext(context.TODO())

	err := runCmd.RunE(runCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input.routes is required")
}

func TestRunCmd_RunE_WritesOutput(t *testing.T) {
	cfg = testConfig(t)

	runCmd.SetContext(context.Background())
	defer runCmd.SetContext(context.TODO())

	require.NoError(t, runCmd.RunE(runCmd, nil))
	assert.FileExists(t, cfg.Output.Path)
}

func TestSchemaCmd_RunE_PrintsYAML(t *testing.T) {
	cfg = testConfig(t)

	var buf bytes.Buffer
	schemaCmd.SetOut(&buf)
	defer schemaCmd.SetOut(nil)

	require.NoError(t, schemaCmd.RunE(schemaCmd, nil))

	var got model.Schema
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "MultiLineString", got.Geometry)
	assert.Equal(t, []string{"subtype", "ylre_id", "original_line_id"}, got.Names())
}

func TestSchemaCmd_RunE_FailsOnValidation(t *testing.T) {
	cfg = &config.Config{}

	err := schemaCmd.RunE(schemaCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input.areas is required")
}
