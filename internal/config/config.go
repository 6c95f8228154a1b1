package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrInvalid is returned by Validate for configuration that cannot produce a run.
var ErrInvalid = eris.New("config: invalid")

// Output formats understood by the sink layer.
const (
	FormatCSV     = "csv"
	FormatCSVGzip = "csv.gz"
	FormatParquet = "parquet"
)

// Config holds the full application configuration.
type Config struct {
	Input  InputConfig  `yaml:"input" mapstructure:"input"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
	Filter FilterConfig `yaml:"filter" mapstructure:"filter"`
	Clean  CleanConfig  `yaml:"clean" mapstructure:"clean"`
	Ledger LedgerConfig `yaml:"ledger" mapstructure:"ledger"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// InputConfig configures source resolution and tolerant CSV decoding.
type InputConfig struct {
	Paths      []string `yaml:"paths" mapstructure:"paths"`
	Encoding   string   `yaml:"encoding" mapstructure:"encoding"`
	Delimiter  string   `yaml:"delimiter" mapstructure:"delimiter"`
	LazyQuotes bool     `yaml:"lazy_quotes" mapstructure:"lazy_quotes"`
	BatchSize  int      `yaml:"batch_size" mapstructure:"batch_size"`
}

// OutputConfig configures the sink.
type OutputConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Basename string `yaml:"basename" mapstructure:"basename"`
	Format   string `yaml:"format" mapstructure:"format"`
}

// FilterConfig configures jurisdiction matching.
type FilterConfig struct {
	Column      string   `yaml:"column" mapstructure:"column"`
	States      []string `yaml:"states" mapstructure:"states"`
	Mode        string   `yaml:"mode" mapstructure:"mode"`
	Fallback    bool     `yaml:"fallback" mapstructure:"fallback"`
	AcceptFIPS  bool     `yaml:"accept_fips" mapstructure:"accept_fips"`
	ProxyColumn string   `yaml:"proxy_column" mapstructure:"proxy_column"`
}

// CleanConfig configures the cleaning stage.
type CleanConfig struct {
	Inputs       []string `yaml:"inputs" mapstructure:"inputs"`
	Output       string   `yaml:"output" mapstructure:"output"`
	Summary      string   `yaml:"summary" mapstructure:"summary"`
	SpecialtyMap string   `yaml:"specialty_map" mapstructure:"specialty_map"`
	State        string   `yaml:"state" mapstructure:"state"`
	YearMin      int      `yaml:"year_min" mapstructure:"year_min"`
	YearMax      int      `yaml:"year_max" mapstructure:"year_max"`
	Dedup        bool     `yaml:"dedup" mapstructure:"dedup"`
}

// LedgerConfig configures the SQLite run ledger.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
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
	v.SetEnvPrefix("WAITPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.paths", []string{})
	v.SetDefault("input.encoding", "utf-8")
	v.SetDefault("input.delimiter", ",")
	v.SetDefault("input.lazy_quotes", true)
	v.SetDefault("input.batch_size", 250000)
	v.SetDefault("output.dir", "data/processed")
	v.SetDefault("output.basename", "missouri_subset")
	v.SetDefault("output.format", FormatParquet)
	v.SetDefault("filter.column", "")
	v.SetDefault("filter.states", []string{"MO"})
	v.SetDefault("filter.mode", "normalize")
	v.SetDefault("filter.fallback", true)
	v.SetDefault("filter.accept_fips", true)
	v.SetDefault("filter.proxy_column", "zip")
	v.SetDefault("clean.inputs", []string{
		"data/processed/consult_waits_state_subset.csv.gz",
		"data/raw/consult_waits_state_subset.csv.gz",
	})
	v.SetDefault("clean.output", "data/cleaned/cleaned_mo_waits.csv.gz")
	v.SetDefault("clean.summary", "data/cleaned/cleaning_summary.csv")
	v.SetDefault("clean.specialty_map", "data/reference/stopcode_specialty_map.csv")
	v.SetDefault("clean.state", "MO")
	v.SetDefault("clean.year_min", 2014)
	v.SetDefault("clean.year_max", 2025)
	v.SetDefault("clean.dedup", true)
	v.SetDefault("ledger.enabled", true)
	v.SetDefault("ledger.path", "waitprep.db")
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

// Validate checks the settings that would otherwise fail only after streaming began.
func (c *Config) Validate() error {
	switch c.Output.Format {
	case FormatCSV, FormatCSVGzip, FormatParquet:
	default:
		return eris.Wrapf(ErrInvalid, "unknown output format %q (want csv, csv.gz or parquet)", c.Output.Format)
	}
	if c.Input.BatchSize <= 0 {
		return eris.Wrapf(ErrInvalid, "batch size must be positive, got %d", c.Input.BatchSize)
	}
	if len([]rune(c.Input.Delimiter)) > 1 && c.Input.Delimiter != `\t` {
		return eris.Wrapf(ErrInvalid, "delimiter must be a single character, got %q", c.Input.Delimiter)
	}
	switch c.Filter.Mode {
	case "normalize", "membership":
	default:
		return eris.Wrapf(ErrInvalid, "unknown filter mode %q (want normalize or membership)", c.Filter.Mode)
	}
	if len(c.Filter.States) == 0 {
		return eris.Wrap(ErrInvalid, "at least one target state is required")
	}
	if c.Clean.YearMin > c.Clean.YearMax {
		return eris.Wrapf(ErrInvalid, "year window %d-%d is inverted", c.Clean.YearMin, c.Clean.YearMax)
	}
	return nil
}

// DelimiterRune returns the configured input delimiter, defaulting to a comma.
func (c InputConfig) DelimiterRune() rune {
	if c.Delimiter == `\t` {
		return '\t'
	}
	r := []rune(c.Delimiter)
	if len(r) == 0 {
		return ','
	}
	return r[0]
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
