package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	// Change to temp dir so no config.yaml or .env is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "utf-8", cfg.Input.Encoding)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.InDelta(t, 4.0, cfg.Pipeline.Tolerance, 0.001)
	assert.InDelta(t, 0.001, cfg.Pipeline.MinLength, 1e-9)
	assert.Equal(t, 8, cfg.Pipeline.QuadSegs)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Equal(t, "original_line_id", cfg.Fields.RouteID)
	assert.Equal(t, map[string]string{"id": "original_line_id"}, cfg.Fields.Route)
	assert.Equal(t, "ylre_id", cfg.Fields.Polygon["osan_id"])
	assert.Equal(t, "area_name", cfg.Fields.Polygon["alueen_nim"])
	assert.Len(t, cfg.Fields.Polygon, 15)
	assert.Equal(t, "nfc", cfg.Fields.Reformat["area_name"])
	assert.Equal(t, "subtype", cfg.Filters.Preferred.Field)
	assert.Equal(t, []string{"Pyöräkaista", "Pyörätie", "Pyöräkatu"}, cfg.Filters.Preferred.Values)
	assert.Contains(t, cfg.Filters.Ignored.Values, "Nurmikko")
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
input:
  routes: talvi.geojson
  areas: ylre.shp
  encoding: windows-1252
output:
  path: out/routes.geojson
  buffers: out/buffers.geojson
fields:
  derive:
    is_bike: preferred
filters:
  preferred:
    values: [Pyörätie]
log:
  level: debug
  format: console
pipeline:
  concurrency: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "talvi.geojson", cfg.Input.Routes)
	assert.Equal(t, "ylre.shp", cfg.Input.Areas)
	assert.Equal(t, "windows-1252", cfg.Input.Encoding)
	assert.Equal(t, "out/routes.geojson", cfg.Output.Path)
	assert.Equal(t, "out/buffers.geojson", cfg.Output.Buffers)
	assert.Equal(t, "preferred", cfg.Fields.Derive["is_bike"])
	assert.Equal(t, []string{"Pyörätie"}, cfg.Filters.Preferred.Values)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Pipeline.Concurrency)
	// Defaults still apply for unset values
	assert.Equal(t, "subtype", cfg.Filters.Preferred.Field)
	assert.InDelta(t, 4.0, cfg.Pipeline.Tolerance, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
input:
  routes: a.shp
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("AREAMATCH_INPUT_ROUTES", "b.shp")
	t.Setenv("AREAMATCH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "b.shp", cfg.Input.Routes)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, EnvFile), []byte("AREAMATCH_PIPELINE_TOLERANCE=2.5\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("AREAMATCH_PIPELINE_TOLERANCE") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 2.5, cfg.Pipeline.Tolerance, 0.001)
}

func TestLoadExplicitConfigFile(t *testing.T) {
	dir := chdirTemp(t)

	path := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte("input:\n  areas: custom.shp\n"), 0644))
	t.Setenv("AREAMATCH_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "custom.shp", cfg.Input.Areas)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Input.Routes = "routes.shp"
	cfg.Input.Areas = "areas.shp"
	cfg.Output.Path = "out.shp"
	cfg.Fields.RouteID = "original_line_id"
	cfg.Fields.Route = map[string]string{"id": "original_line_id"}
	cfg.Pipeline.Tolerance = 4
	cfg.Pipeline.MinLength = 0.001
	cfg.Pipeline.Concurrency = 4
	return cfg
}

func TestValidateRun_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("run"))
}

func TestValidateRun_MissingFields(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "input.routes is required")
	assert.Contains(t, err.Error(), "input.areas is required")
	assert.Contains(t, err.Error(), "output.path is required")
	assert.Contains(t, err.Error(), "fields.route_id is required")
	assert.Contains(t, err.Error(), "pipeline.tolerance must be > 0")
	assert.Contains(t, err.Error(), "pipeline.min_length must be > 0")
}

func TestValidateSchema_NoOutputNeeded(t *testing.T) {
	cfg := validDefaults()
	cfg.Output.Path = ""
	cfg.Pipeline.Concurrency = 0

	assert.NoError(t, cfg.Validate("schema"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateMinLength(t *testing.T) {
	cfg := validDefaults()

	cfg.Pipeline.MinLength = 0
	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.min_length must be > 0")

	cfg.Pipeline.MinLength = -1
	assert.Error(t, cfg.Validate("run"))

	cfg.Pipeline.MinLength = 0.5
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Pipeline.Concurrency = 0
	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.concurrency must be between 1 and 256")

	cfg.Pipeline.Concurrency = 257
	assert.Error(t, cfg.Validate("run"))

	cfg.Pipeline.Concurrency = 256
	assert.NoError(t, cfg.Validate("run"))
}

func TestFieldsMapping(t *testing.T) {
	f := FieldsConfig{
		Route:   map[string]string{"id": "original_line_id"},
		Polygon: map[string]string{"alatyyppi": "subtype"},
	}
	m := f.Mapping()
	assert.Equal(t, map[string]string{"id": "original_line_id", "alatyyppi": "subtype"}, m.Combined())
}
