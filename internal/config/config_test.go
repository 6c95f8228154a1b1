package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "utf-8", cfg.Input.Encoding)
	assert.Equal(t, ",", cfg.Input.Delimiter)
	assert.True(t, cfg.Input.LazyQuotes)
	assert.Equal(t, 250000, cfg.Input.BatchSize)
	assert.Equal(t, "data/processed", cfg.Output.Dir)
	assert.Equal(t, "missouri_subset", cfg.Output.Basename)
	assert.Equal(t, FormatParquet, cfg.Output.Format)
	assert.Equal(t, []string{"MO"}, cfg.Filter.States)
	assert.Equal(t, "normalize", cfg.Filter.Mode)
	assert.True(t, cfg.Filter.Fallback)
	assert.True(t, cfg.Filter.AcceptFIPS)
	assert.Equal(t, "zip", cfg.Filter.ProxyColumn)
	assert.Equal(t, 2014, cfg.Clean.YearMin)
	assert.Equal(t, 2025, cfg.Clean.YearMax)
	assert.True(t, cfg.Clean.Dedup)
	assert.Len(t, cfg.Clean.Inputs, 2)
	assert.True(t, cfg.Ledger.Enabled)
	assert.Equal(t, "waitprep.db", cfg.Ledger.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
input:
  batch_size: 1000
  delimiter: "|"
output:
  format: csv.gz
  basename: ks_subset
filter:
  states: [KS, MO]
  mode: membership
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Input.BatchSize)
	assert.Equal(t, '|', cfg.Input.DelimiterRune())
	assert.Equal(t, FormatCSVGzip, cfg.Output.Format)
	assert.Equal(t, "ks_subset", cfg.Output.Basename)
	assert.Equal(t, []string{"KS", "MO"}, cfg.Filter.States)
	assert.Equal(t, "membership", cfg.Filter.Mode)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, "data/processed", cfg.Output.Dir)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("output:\n  format: csv\n"), 0644))
	t.Setenv("WAITPREP_OUTPUT_FORMAT", "parquet")
	t.Setenv("WAITPREP_CLEAN_YEAR_MIN", "2018")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, FormatParquet, cfg.Output.Format)
	assert.Equal(t, 2018, cfg.Clean.YearMin)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("input: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Input:  InputConfig{BatchSize: 10, Delimiter: ","},
			Output: OutputConfig{Format: FormatCSV},
			Filter: FilterConfig{Mode: "normalize", States: []string{"MO"}},
			Clean:  CleanConfig{YearMin: 2014, YearMax: 2025},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"ok", func(*Config) {}, ""},
		{"tab delimiter", func(c *Config) { c.Input.Delimiter = `\t` }, ""},
		{"unknown format", func(c *Config) { c.Output.Format = "xlsx" }, "unknown output format"},
		{"zero batch", func(c *Config) { c.Input.BatchSize = 0 }, "batch size must be positive"},
		{"long delimiter", func(c *Config) { c.Input.Delimiter = ";;" }, "single character"},
		{"bad mode", func(c *Config) { c.Filter.Mode = "fuzzy" }, "unknown filter mode"},
		{"no states", func(c *Config) { c.Filter.States = nil }, "target state"},
		{"inverted window", func(c *Config) { c.Clean.YearMin = 2030 }, "inverted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDelimiterRune(t *testing.T) {
	assert.Equal(t, ',', InputConfig{}.DelimiterRune())
	assert.Equal(t, '\t', InputConfig{Delimiter: `\t`}.DelimiterRune())
	assert.Equal(t, ';', InputConfig{Delimiter: ";"}.DelimiterRune())
}

func TestInitLogger(t *testing.T) {
	defer zap.ReplaceGlobals(zap.NewNop())

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	err := InitLogger(LogConfig{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
