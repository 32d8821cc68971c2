package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pavletto/hydroflow/hydro"
	"github.com/pavletto/hydroflow/internal/log"
	"github.com/pavletto/hydroflow/internal/mapview"
	"github.com/pavletto/hydroflow/internal/whitebox"
	"github.com/pavletto/hydroflow/internal/workspace"
)

// Config holds application configuration
type Config struct {
	Binary          string
	ScratchDir      string
	StreamThreshold float64
	ToolTimeout     time.Duration
	FixFlats        bool
	FailurePolicy   string
	MapManifest     string
	CacheSize       int
	Debug           bool
	Addr            string
}

// fileConfig is the YAML config file layout; unset keys fall through to
// defaults.
type fileConfig struct {
	Whitebox        string  `yaml:"whitebox"`
	ScratchDir      string  `yaml:"scratch_dir"`
	StreamThreshold float64 `yaml:"stream_threshold"`
	ToolTimeout     string  `yaml:"tool_timeout"`
	FixFlats        bool    `yaml:"fix_flats"`
	FailurePolicy   string  `yaml:"failure_policy"`
	MapManifest     string  `yaml:"map_manifest"`
	CacheSize       int     `yaml:"cache_size"`
	Debug           bool    `yaml:"debug"`
	Addr            string  `yaml:"addr"`
}

// LoadConfig loads configuration from flags, environment variables and the
// optional YAML file. Flags take precedence over environment variables,
// which take precedence over the file.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	var file fileConfig
	if path := getConfigString(cmd, "config", "HYDROFLOW_CONFIG", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg := Config{}
	cfg.Binary = getConfigString(cmd, "whitebox", "HYDROFLOW_WHITEBOX", or(file.Whitebox, "whitebox_tools"))
	cfg.ScratchDir = getConfigString(cmd, "scratch-dir", "HYDROFLOW_SCRATCH_DIR", or(file.ScratchDir, "./scratch"))
	cfg.StreamThreshold = getConfigFloat(cmd, "stream-threshold", "HYDROFLOW_STREAM_THRESHOLD", or(file.StreamThreshold, 1000))
	cfg.FailurePolicy = getConfigString(cmd, "failure-policy", "HYDROFLOW_FAILURE_POLICY", or(file.FailurePolicy, "keep"))
	cfg.MapManifest = getConfigString(cmd, "map-manifest", "HYDROFLOW_MAP_MANIFEST", or(file.MapManifest, "./map.yaml"))
	cfg.CacheSize = getConfigInt(cmd, "cache-size", "HYDROFLOW_CACHE_SIZE", or(file.CacheSize, 0))
	cfg.Addr = getConfigString(cmd, "addr", "HYDROFLOW_ADDR", or(file.Addr, ":8080"))
	cfg.FixFlats = getConfigBool(cmd, "fix-flats", "HYDROFLOW_FIX_FLATS", file.FixFlats)
	cfg.Debug = getConfigBool(cmd, "debug", "HYDROFLOW_DEBUG", file.Debug)

	timeout := time.Duration(0)
	if file.ToolTimeout != "" {
		d, err := time.ParseDuration(file.ToolTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse tool_timeout: %w", err)
		}
		timeout = d
	}
	cfg.ToolTimeout = getConfigDuration(cmd, "tool-timeout", "HYDROFLOW_TOOL_TIMEOUT", timeout)

	if _, err := hydro.ParseFailurePolicy(cfg.FailurePolicy); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// CreateDeps wires the engine, workspaces and map registrar from the
// configuration. The returned func releases open workspaces.
func (c *Config) CreateDeps() (hydro.Deps, func(), error) {
	eng, err := whitebox.New(whitebox.Config{
		Binary:          c.Binary,
		ScratchDir:      c.ScratchDir,
		StreamThreshold: c.StreamThreshold,
		ToolTimeout:     c.ToolTimeout,
		FixFlats:        c.FixFlats,
	})
	if err != nil {
		return hydro.Deps{}, nil, err
	}
	policy, err := hydro.ParseFailurePolicy(c.FailurePolicy)
	if err != nil {
		return hydro.Deps{}, nil, err
	}

	var engine hydro.Engine = eng
	if c.CacheSize > 0 {
		engine = hydro.NewCachedEngine(eng, c.CacheSize)
	}
	store := workspace.New()

	deps := hydro.Deps{
		Engine:     engine,
		Workspaces: store,
		Registrar:  mapview.New(c.MapManifest),
		Policy:     policy,
		Logger:     log.Named("hydro"),
	}
	return deps, func() { _ = store.Close() }, nil
}

func or[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}

// getConfigString gets a string value from flag, then env, then default
func getConfigString(cmd *cobra.Command, flagName, envName, defaultValue string) string {
	if cmd.Flags().Changed(flagName) {
		val, _ := cmd.Flags().GetString(flagName)
		return val
	}
	if v := os.Getenv(envName); v != "" {
		return v
	}
	return defaultValue
}

// getConfigInt gets an int value from flag, then env, then default
func getConfigInt(cmd *cobra.Command, flagName, envName string, defaultValue int) int {
	if cmd.Flags().Changed(flagName) {
		val, _ := cmd.Flags().GetInt(flagName)
		return val
	}
	if v := os.Getenv(envName); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// getConfigFloat gets a float64 value from flag, then env, then default
func getConfigFloat(cmd *cobra.Command, flagName, envName string, defaultValue float64) float64 {
	if cmd.Flags().Changed(flagName) {
		val, _ := cmd.Flags().GetFloat64(flagName)
		return val
	}
	if v := os.Getenv(envName); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getConfigBool(cmd *cobra.Command, flagName, envName string, defaultValue bool) bool {
	if cmd.Flags().Changed(flagName) {
		val, _ := cmd.Flags().GetBool(flagName)
		return val
	}
	if v := os.Getenv(envName); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getConfigDuration(cmd *cobra.Command, flagName, envName string, defaultValue time.Duration) time.Duration {
	if cmd.Flags().Changed(flagName) {
		val, _ := cmd.Flags().GetDuration(flagName)
		return val
	}
	if v := os.Getenv(envName); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
