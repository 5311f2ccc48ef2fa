package config

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"tracerank/internal/model"
	"tracerank/internal/paths"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = 1

// EnvPrefix prefixes environment overrides, e.g.
// TRACERANK_PRECHECK_STEPCEILINGGLOBAL=50000.
const EnvPrefix = "TRACERANK"

// Config represents the complete tracerank configuration
type Config struct {
	Version int `json:"version" yaml:"version" mapstructure:"version"`

	Precheck PrecheckConfig `json:"precheck" yaml:"precheck" mapstructure:"precheck"`
	Ranking  RankingConfig  `json:"ranking" yaml:"ranking" mapstructure:"ranking"`
	Storage  StorageConfig  `json:"storage" yaml:"storage" mapstructure:"storage"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging" mapstructure:"logging"`
}

// PrecheckConfig contains the limits and filters of a pre-check run
type PrecheckConfig struct {
	StepCeilingPerMethod int      `json:"stepCeilingPerMethod" yaml:"stepCeilingPerMethod" mapstructure:"stepCeilingPerMethod"`
	StepCeilingGlobal    int      `json:"stepCeilingGlobal" yaml:"stepCeilingGlobal" mapstructure:"stepCeilingGlobal"`
	OutputPath           string   `json:"outputPath" yaml:"outputPath" mapstructure:"outputPath"`
	Append               bool     `json:"append" yaml:"append" mapstructure:"append"`
	InclusiveMethodIDs   []string `json:"inclusiveMethodIds" yaml:"inclusiveMethodIds" mapstructure:"inclusiveMethodIds"`
	IncludeClasses       []string `json:"includeClasses" yaml:"includeClasses" mapstructure:"includeClasses"`
	// ExcludeClasses replaces the built-in runtime exclusions when set.
	ExcludeClasses    []string `json:"excludeClasses" yaml:"excludeClasses" mapstructure:"excludeClasses"`
	MaxBoundaryErrors int      `json:"maxBoundaryErrors" yaml:"maxBoundaryErrors" mapstructure:"maxBoundaryErrors"`
	TimeoutSeconds    int      `json:"timeoutSeconds" yaml:"timeoutSeconds" mapstructure:"timeoutSeconds"`
}

// RankingConfig contains ranking pass parameters
type RankingConfig struct {
	Decay         float64 `json:"decay" yaml:"decay" mapstructure:"decay"`
	Prior         float64 `json:"prior" yaml:"prior" mapstructure:"prior"`
	MaxIterations int     `json:"maxIterations" yaml:"maxIterations" mapstructure:"maxIterations"`
	Tolerance     float64 `json:"tolerance" yaml:"tolerance" mapstructure:"tolerance"`
	MaxVisits     int     `json:"maxVisits" yaml:"maxVisits" mapstructure:"maxVisits"`
	TopK          int     `json:"topK" yaml:"topK" mapstructure:"topK"`
	Direction     string  `json:"direction" yaml:"direction" mapstructure:"direction"`
}

// StorageConfig contains run history settings
type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" yaml:"path" mapstructure:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" yaml:"format" mapstructure:"format"`
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	// File enables the log file under .tracerank in addition to stderr.
	File       bool   `json:"file" yaml:"file" mapstructure:"file"`
	MaxSize    string `json:"maxSize" yaml:"maxSize" mapstructure:"maxSize"`
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups" mapstructure:"maxBackups"`
}

// Options is the options mapping handed to a pre-check run.
type Options struct {
	StepCeilingPerMethod int                 `json:"stepCeilingPerMethod"`
	StepCeilingGlobal    int                 `json:"stepCeilingGlobal"`
	OutputPath           string              `json:"outputPath"`
	Append               bool                `json:"append"`
	InclusiveMethodIDs   map[string]struct{} `json:"inclusiveMethodIds"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Precheck: PrecheckConfig{
			StepCeilingPerMethod: 10000,
			StepCeilingGlobal:    1000000,
			OutputPath:           filepath.ToSlash(filepath.Join(paths.DirName, "precheck.bin")),
			Append:               false,
			InclusiveMethodIDs:   []string{},
			IncludeClasses:       []string{},
			MaxBoundaryErrors:    100,
			TimeoutSeconds:       0,
		},
		Ranking: RankingConfig{
			Decay:         0.9,
			Prior:         0.5,
			MaxIterations: 20,
			Tolerance:     1e-6,
			MaxVisits:     0,
			TopK:          20,
			Direction:     "parents",
		},
		Storage: StorageConfig{
			Enabled: true,
			Path:    filepath.ToSlash(filepath.Join(paths.DirName, "history.db")),
		},
		Logging: LoggingConfig{
			Format:     "human",
			Level:      "info",
			File:       true,
			MaxSize:    "10MB",
			MaxBackups: 3,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("version", d.Version)

	v.SetDefault("precheck.stepCeilingPerMethod", d.Precheck.StepCeilingPerMethod)
	v.SetDefault("precheck.stepCeilingGlobal", d.Precheck.StepCeilingGlobal)
	v.SetDefault("precheck.outputPath", d.Precheck.OutputPath)
	v.SetDefault("precheck.append", d.Precheck.Append)
	v.SetDefault("precheck.inclusiveMethodIds", d.Precheck.InclusiveMethodIDs)
	v.SetDefault("precheck.includeClasses", d.Precheck.IncludeClasses)
	v.SetDefault("precheck.maxBoundaryErrors", d.Precheck.MaxBoundaryErrors)
	v.SetDefault("precheck.timeoutSeconds", d.Precheck.TimeoutSeconds)

	v.SetDefault("ranking.decay", d.Ranking.Decay)
	v.SetDefault("ranking.prior", d.Ranking.Prior)
	v.SetDefault("ranking.maxIterations", d.Ranking.MaxIterations)
	v.SetDefault("ranking.tolerance", d.Ranking.Tolerance)
	v.SetDefault("ranking.maxVisits", d.Ranking.MaxVisits)
	v.SetDefault("ranking.topK", d.Ranking.TopK)
	v.SetDefault("ranking.direction", d.Ranking.Direction)

	v.SetDefault("storage.enabled", d.Storage.Enabled)
	v.SetDefault("storage.path", d.Storage.Path)

	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.maxSize", d.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
}

// LoadConfig loads configuration from .tracerank/config.json under workDir.
// A missing file yields the defaults. Environment variables prefixed with
// TRACERANK_ override both.
func LoadConfig(workDir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(paths.StateDir(workDir))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, &ConfigError{Field: "file", Message: err.Error()}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Field: "file", Message: err.Error()}
	}
	return &cfg, nil
}

// Save writes the configuration to .tracerank/config.json under workDir
func (c *Config) Save(workDir string) error {
	if _, err := paths.EnsureStateDir(workDir); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(paths.ConfigPath(workDir), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}

	p := c.Precheck
	if p.StepCeilingPerMethod < 0 {
		return &ConfigError{Field: "precheck.stepCeilingPerMethod", Message: "must not be negative"}
	}
	if p.StepCeilingGlobal < 0 {
		return &ConfigError{Field: "precheck.stepCeilingGlobal", Message: "must not be negative"}
	}
	if p.MaxBoundaryErrors < 0 {
		return &ConfigError{Field: "precheck.maxBoundaryErrors", Message: "must not be negative"}
	}
	if p.TimeoutSeconds < 0 {
		return &ConfigError{Field: "precheck.timeoutSeconds", Message: "must not be negative"}
	}
	for _, m := range p.InclusiveMethodIDs {
		if !validMethodEntry(m) {
			return &ConfigError{Field: "precheck.inclusiveMethodIds", Message: "invalid method id " + m}
		}
	}

	r := c.Ranking
	if r.Decay <= 0 || r.Decay > 1 {
		return &ConfigError{Field: "ranking.decay", Message: "must be in (0, 1]"}
	}
	if r.Prior < 0 || r.Prior > 1 {
		return &ConfigError{Field: "ranking.prior", Message: "must be in [0, 1]"}
	}
	if r.MaxIterations < 0 || r.MaxVisits < 0 || r.TopK < 0 {
		return &ConfigError{Field: "ranking", Message: "limits must not be negative"}
	}
	if r.Tolerance < 0 {
		return &ConfigError{Field: "ranking.tolerance", Message: "must not be negative"}
	}
	switch r.Direction {
	case "", "parents", "both":
	default:
		return &ConfigError{Field: "ranking.direction", Message: "must be parents or both"}
	}

	switch c.Logging.Format {
	case "", "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be human or json"}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return &ConfigError{Field: "logging.level", Message: "unknown level " + c.Logging.Level}
	}
	if _, err := ParseByteSize(c.Logging.MaxSize); err != nil {
		return &ConfigError{Field: "logging.maxSize", Message: err.Error()}
	}
	if c.Logging.MaxBackups < 0 {
		return &ConfigError{Field: "logging.maxBackups", Message: "must not be negative"}
	}
	return nil
}

// validMethodEntry accepts a full method id or one without its start line.
func validMethodEntry(s string) bool {
	if _, err := model.ParseMethodID(s); err == nil {
		return true
	}
	i := strings.LastIndex(s, ".")
	return i > 0 && i < len(s)-1
}

// Options returns the pre-check options mapping.
func (c *Config) Options() Options {
	ids := make(map[string]struct{}, len(c.Precheck.InclusiveMethodIDs))
	for _, m := range c.Precheck.InclusiveMethodIDs {
		ids[m] = struct{}{}
	}
	return Options{
		StepCeilingPerMethod: c.Precheck.StepCeilingPerMethod,
		StepCeilingGlobal:    c.Precheck.StepCeilingGlobal,
		OutputPath:           c.Precheck.OutputPath,
		Append:               c.Precheck.Append,
		InclusiveMethodIDs:   ids,
	}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
