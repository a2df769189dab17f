package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Trailscope TrailscopeConfig `yaml:"trailscope"`
}

// TrailscopeConfig is the project configuration.
type TrailscopeConfig struct {
	Input    InputConfig    `yaml:"input"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Spool    SpoolConfig    `yaml:"spool"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InputConfig controls record sources.
type InputConfig struct {
	Archive ArchiveConfig `yaml:"archive"`
	Redis   RedisConfig   `yaml:"redis"`
}

// ArchiveConfig lists local archive paths or globs for batch analysis.
type ArchiveConfig struct {
	Paths []string `yaml:"paths"`
}

// RedisConfig controls the ingest queue.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// PipelineConfig controls ingest pipeline behavior.
type PipelineConfig struct {
	Workers       int           `yaml:"workers"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// SpoolConfig controls where the ingest pipeline writes canonical events.
type SpoolConfig struct {
	Dir       string `yaml:"dir"`
	MaxEvents int    `yaml:"max_events"`
}

// MetricsConfig controls the ingest metrics listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// AnalysisConfig is the tuning surface of the batch analysis. Thresholds
// live here, separated from the aggregation logic, so relabeling never
// requires re-deriving counts.
type AnalysisConfig struct {
	Velocity          VelocityConfig `yaml:"velocity"`
	Anomaly           AnomalyConfig  `yaml:"anomaly"`
	Phases            PhasesConfig   `yaml:"phases"`
	Sessions          SessionsConfig `yaml:"sessions"`
	Hourly            HourlyConfig   `yaml:"hourly"`
	Categories        CategoryConfig `yaml:"categories"`
	TopActions        int            `yaml:"top_actions"`
	TopAddresses      int            `yaml:"top_addresses"`
	TopErrorCodes     int            `yaml:"top_error_codes"`
	MinSampleAdvisory int            `yaml:"min_sample_advisory"`
}

// VelocityConfig sets the gap tier thresholds.
type VelocityConfig struct {
	SubSecondMax time.Duration `yaml:"sub_second_max"`
	SecondsMax   time.Duration `yaml:"seconds_max"`
}

// AnomalyConfig sets the trailing baseline parameters.
type AnomalyConfig struct {
	BaselineDays int     `yaml:"baseline_days"`
	Multiplier   float64 `yaml:"multiplier"`
}

// PhasesConfig sets the phase label cutoffs.
type PhasesConfig struct {
	ReconMaxEvents      int     `yaml:"recon_max_events"`
	ReconMinHumanShare  float64 `yaml:"recon_min_human_share"`
	MassMinEvents       int     `yaml:"mass_min_events"`
	MassMinMachineShare float64 `yaml:"mass_min_machine_share"`
	EscalationMinShare  float64 `yaml:"escalation_min_share"`
}

// SessionsConfig controls session sequence extraction.
type SessionsConfig struct {
	Gap         time.Duration `yaml:"gap"`
	MinEvents   int           `yaml:"min_events"`
	MaxSessions int           `yaml:"max_sessions"`
	MaxActions  int           `yaml:"max_actions"`
}

// HourlyConfig gates the hour-by-hour breakdown.
type HourlyConfig struct {
	MinEvents int `yaml:"min_events"`
}

// CategoryConfig is the versioned action-to-category mapping table.
// Entries ending in '*' match action name prefixes; anything else is an
// exact match. An empty table falls back to the built-in default.
type CategoryConfig struct {
	Version string              `yaml:"version"`
	Table   map[string][]string `yaml:"table"`
}

// OutputConfig controls summary output. The file sink is always written;
// the HTTP sink is used when a URL is configured.
type OutputConfig struct {
	File FileOutputConfig `yaml:"file"`
	HTTP HTTPOutputConfig `yaml:"http"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for pushing the summary to a collector.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
