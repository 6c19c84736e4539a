package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Project      ProjectConfig      `yaml:"project" mapstructure:"project"`
	Redistribute RedistributeConfig `yaml:"redistribute" mapstructure:"redistribute"`
	Buffer       BufferConfig       `yaml:"buffer" mapstructure:"buffer"`
	Filter       FilterConfig       `yaml:"filter" mapstructure:"filter"`
	Report       ReportConfig       `yaml:"report" mapstructure:"report"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// ProjectConfig locates the layer registry.
type ProjectConfig struct {
	Path            string `yaml:"path" mapstructure:"path"`
	LoadConcurrency int    `yaml:"load_concurrency" mapstructure:"load_concurrency"`
}

// RedistributeConfig configures the area-weighted redistribution run.
type RedistributeConfig struct {
	PointLayer      string   `yaml:"point_layer" mapstructure:"point_layer"`
	TargetLayer     string   `yaml:"target_layer" mapstructure:"target_layer"`
	CensusGroup     string   `yaml:"census_group" mapstructure:"census_group"`
	Fields          []string `yaml:"fields" mapstructure:"fields"`
	Output          string   `yaml:"output" mapstructure:"output"`
	TargetCRS       string   `yaml:"target_crs" mapstructure:"target_crs"`
	TargetIDField   string   `yaml:"target_id_field" mapstructure:"target_id_field"`
	TargetNameField string   `yaml:"target_name_field" mapstructure:"target_name_field"`
}

// BufferConfig configures service-area circle generation.
type BufferConfig struct {
	RadiusMiles float64 `yaml:"radius_miles" mapstructure:"radius_miles"`
	Segments    int     `yaml:"segments" mapstructure:"segments"`
	Output      string  `yaml:"output" mapstructure:"output"`
	// LayerName registers the written circles in the project when set.
	LayerName string `yaml:"layer_name" mapstructure:"layer_name"`
}

// FilterConfig configures layer subset application.
type FilterConfig struct {
	Expression string   `yaml:"expression" mapstructure:"expression"`
	Layers     []string `yaml:"layers" mapstructure:"layers"`
}

// ReportConfig configures aggregate export.
type ReportConfig struct {
	// Output is an optional .json, .csv, .xlsx or .txt export path.
	Output string `yaml:"output" mapstructure:"output"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("APPORTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("project.path", "project.yaml")
	v.SetDefault("project.load_concurrency", 4)
	v.SetDefault("redistribute.point_layer", "sample-FH-locations")
	v.SetDefault("redistribute.target_layer", "10mi-cn-test")
	v.SetDefault("redistribute.census_group", "popstats-by-census-tract-2020")
	v.SetDefault("redistribute.fields", []string{
		"Population Est CrYr",
		"Gender Females CrYr",
		"Gender Males CrYr",
		"Households Est CrYr",
		"Eth Hispanic CrYr",
	})
	v.SetDefault("redistribute.output", "recalculated_census_tracts.gpkg")
	v.SetDefault("redistribute.target_crs", "EPSG:3857")
	v.SetDefault("redistribute.target_id_field", "LocationID")
	v.SetDefault("redistribute.target_name_field", "LocationNa")
	v.SetDefault("buffer.radius_miles", 10.0)
	v.SetDefault("buffer.segments", 64)
	v.SetDefault("buffer.output", "service_area_circles.gpkg")
	v.SetDefault("filter.expression", `"state" = 'IL'`)
	v.SetDefault("filter.layers", []string{"scm-10-24-geocoded-cleaned", "rep-addresses-geocoded"})
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

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Project.Path == "" {
		errs = append(errs, "project.path is required")
	}
	if c.Project.LoadConcurrency < 1 || c.Project.LoadConcurrency > 64 {
		errs = append(errs, "project.load_concurrency must be between 1 and 64")
	}

	switch mode {
	case "redistribute", "aggregate":
		r := c.Redistribute
		if r.TargetLayer == "" {
			errs = append(errs, "redistribute.target_layer is required")
		}
		if r.CensusGroup == "" && mode == "redistribute" {
			errs = append(errs, "redistribute.census_group is required")
		}
		if len(r.Fields) == 0 {
			errs = append(errs, "redistribute.fields must list at least one field")
		}
		if r.Output == "" && mode == "redistribute" {
			errs = append(errs, "redistribute.output is required")
		}
	case "buffer":
		if c.Redistribute.PointLayer == "" {
			errs = append(errs, "redistribute.point_layer is required")
		}
		if c.Buffer.RadiusMiles <= 0 {
			errs = append(errs, "buffer.radius_miles must be > 0")
		}
		if c.Buffer.Segments < 3 {
			errs = append(errs, "buffer.segments must be >= 3")
		}
		if c.Buffer.Output == "" {
			errs = append(errs, "buffer.output is required")
		}
	case "filter":
		if len(c.Filter.Layers) == 0 {
			errs = append(errs, "filter.layers must list at least one layer")
		}
	case "layers":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
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
