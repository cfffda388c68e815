package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/areamatch/internal/metadata"
)

// EnvFile is loaded into the environment before the configuration is read.
// Variables already set in the environment win.
const EnvFile = ".env"

// Config holds the full application configuration.
type Config struct {
	Input    InputConfig    `yaml:"input" mapstructure:"input"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Fields   FieldsConfig   `yaml:"fields" mapstructure:"fields"`
	Filters  FiltersConfig  `yaml:"filters" mapstructure:"filters"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// InputConfig names the source collections.
type InputConfig struct {
	Routes    string `yaml:"routes" mapstructure:"routes"`
	Secondary string `yaml:"secondary" mapstructure:"secondary"`
	Areas     string `yaml:"areas" mapstructure:"areas"`
	Encoding  string `yaml:"encoding" mapstructure:"encoding"`
}

// OutputConfig names the produced collections. Buffers and Report are optional.
type OutputConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	Buffers string `yaml:"buffers" mapstructure:"buffers"`
	Report  string `yaml:"report" mapstructure:"report"`
}

// FieldsConfig maps source fields to canonical output fields and names the
// reformat/derive functions applied per canonical field.
type FieldsConfig struct {
	Route    map[string]string `yaml:"route" mapstructure:"route"`
	Polygon  map[string]string `yaml:"polygon" mapstructure:"polygon"`
	RouteID  string            `yaml:"route_id" mapstructure:"route_id"`
	Reformat map[string]string `yaml:"reformat" mapstructure:"reformat"`
	Derive   map[string]string `yaml:"derive" mapstructure:"derive"`
}

// Mapping returns the source → canonical field mapping.
func (f FieldsConfig) Mapping() metadata.Mapping {
	return metadata.Mapping{Route: f.Route, Polygon: f.Polygon}
}

// FilterConfig is an attribute membership test on a canonical field.
type FilterConfig struct {
	Field  string   `yaml:"field" mapstructure:"field"`
	Values []string `yaml:"values" mapstructure:"values"`
}

// FiltersConfig holds the preferred and ignored area filters.
type FiltersConfig struct {
	Preferred FilterConfig `yaml:"preferred" mapstructure:"preferred"`
	Ignored   FilterConfig `yaml:"ignored" mapstructure:"ignored"`
}

// PipelineConfig tunes classification.
type PipelineConfig struct {
	Tolerance   float64 `yaml:"tolerance" mapstructure:"tolerance"`
	MinLength   float64 `yaml:"min_length" mapstructure:"min_length"`
	QuadSegs    int     `yaml:"quad_segs" mapstructure:"quad_segs"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that required fields are present for the given mode.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run":
		errs = append(errs, c.validateInputs()...)
		if c.Output.Path == "" {
			errs = append(errs, "output.path is required")
		}
		if c.Pipeline.Tolerance <= 0 {
			errs = append(errs, "pipeline.tolerance must be > 0")
		}
		if c.Pipeline.MinLength <= 0 {
			errs = append(errs, "pipeline.min_length must be > 0")
		}
		if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 256 {
			errs = append(errs, "pipeline.concurrency must be between 1 and 256")
		}
	case "schema":
		errs = append(errs, c.validateInputs()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Fields.RouteID == "" {
		errs = append(errs, "fields.route_id is required")
	}
	if len(c.Fields.Route)+len(c.Fields.Polygon) == 0 {
		errs = append(errs, "fields.route or fields.polygon must map at least one field")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateInputs() []string {
	var errs []string
	if c.Input.Routes == "" {
		errs = append(errs, "input.routes is required")
	}
	if c.Input.Areas == "" {
		errs = append(errs, "input.areas is required")
	}
	return errs
}

// Load reads configuration from config.yaml, .env and the environment.
func Load() (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load(EnvFile)

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if p := os.Getenv("AREAMATCH_CONFIG"); p != "" {
		v.SetConfigFile(p)
	}

	// Environment
	v.SetEnvPrefix("AREAMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.routes", "")
	v.SetDefault("input.secondary", "")
	v.SetDefault("input.areas", "")
	v.SetDefault("input.encoding", "utf-8")
	v.SetDefault("output.path", "")
	v.SetDefault("output.buffers", "")
	v.SetDefault("output.report", "")
	v.SetDefault("fields.route", map[string]string{"id": "original_line_id"})
	v.SetDefault("fields.polygon", defaultPolygonFields)
	v.SetDefault("fields.route_id", "original_line_id")
	v.SetDefault("fields.reformat", map[string]string{"area_name": "nfc"})
	v.SetDefault("fields.derive", map[string]string{})
	v.SetDefault("filters.preferred.field", "subtype")
	v.SetDefault("filters.preferred.values", []string{"Pyöräkaista", "Pyörätie", "Pyöräkatu"})
	v.SetDefault("filters.ignored.field", "subtype")
	v.SetDefault("filters.ignored.values", []string{"Nurmikko", "Jalkakäytävä", "Pysäköintialue", "Istutusalue"})
	v.SetDefault("pipeline.tolerance", 4.0)
	v.SetDefault("pipeline.min_length", 0.001)
	v.SetDefault("pipeline.quad_segs", 8)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// defaultPolygonFields maps the Helsinki public-area register (YLRE) street
// area attributes.
var defaultPolygonFields = map[string]string{
	"osan_id":     "ylre_id",
	"paatyyppi":   "type",
	"paatyyppi_":  "type_id",
	"alatyyppi":   "subtype",
	"alatyyppi_":  "subtype_id",
	"materiaali":  "material",
	"materiaali_": "material_id",
	"rakenteell":  "maintainer",
	"talvikunno":  "winter_maintainer",
	"tkp_kiiree":  "winter_maintenance_class",
	"yllapidon_":  "maintenance_class",
	"yllapido_1":  "maintenance_reason",
	"aluetieto":   "area_type",
	"alueen_nim":  "area_name",
	"paivitetty":  "last_modified_time",
}

// InitLogger configures the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
