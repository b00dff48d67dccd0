package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DirName is the per-repository directory holding config and cache.
	DirName = ".codetracker"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CODETRACKER"
	// EnvConfigPath names an explicit config file.
	EnvConfigPath = "CODETRACKER_CONFIG_PATH"
	// CurrentVersion is the config schema version written by Save.
	CurrentVersion = 1
)

// SupportedConfigVersions lists the schema versions Validate accepts.
var SupportedConfigVersions = []int{1}

// configNames are tried in order inside DirName.
var configNames = []string{"config.json", "config.yaml", "config.yml", "config.toml"}

// Config is the complete tracker configuration.
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	Cache   CacheConfig   `json:"cache" mapstructure:"cache"`
	Parser  ParserConfig  `json:"parser" mapstructure:"parser"`
	Backend BackendConfig `json:"backend" mapstructure:"backend"`
	Matcher MatcherConfig `json:"matcher" mapstructure:"matcher"`
	History HistoryConfig `json:"history" mapstructure:"history"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// CacheConfig selects the snapshot store.
type CacheConfig struct {
	// Backend is one of "sqlite", "file" or "none".
	Backend string `json:"backend" mapstructure:"backend"`
	// Dir is relative to the repository root unless absolute.
	Dir          string `json:"dir" mapstructure:"dir"`
	ParseWorkers int    `json:"parseWorkers" mapstructure:"parseWorkers"`
}

// ParserConfig bounds parsing and maps languages to path globs.
type ParserConfig struct {
	TimeoutMs   int                 `json:"timeoutMs" mapstructure:"timeoutMs"`
	MaxFileSize int                 `json:"maxFileSize" mapstructure:"maxFileSize"`
	Languages   map[string][]string `json:"languages" mapstructure:"languages"`
}

// BackendConfig configures version-control access.
type BackendConfig struct {
	BlobTimeoutMs     int  `json:"blobTimeoutMs" mapstructure:"blobTimeoutMs"`
	MaxMoveCandidates int  `json:"maxMoveCandidates" mapstructure:"maxMoveCandidates"`
	FollowRenames     bool `json:"followRenames" mapstructure:"followRenames"`
}

// WeightsConfig holds the matcher score weights.
type WeightsConfig struct {
	Name      float64 `json:"name" mapstructure:"name"`
	Signature float64 `json:"signature" mapstructure:"signature"`
	Body      float64 `json:"body" mapstructure:"body"`
}

// MatcherConfig tunes element matching.
type MatcherConfig struct {
	AcceptThreshold    float64       `json:"acceptThreshold" mapstructure:"acceptThreshold"`
	AmbiguityEpsilon   float64       `json:"ambiguityEpsilon" mapstructure:"ambiguityEpsilon"`
	Weights            WeightsConfig `json:"weights" mapstructure:"weights"`
	ExtractContainment float64       `json:"extractContainment" mapstructure:"extractContainment"`
	MinBodyTokens      int           `json:"minBodyTokens" mapstructure:"minBodyTokens"`
}

// HistoryConfig bounds history construction.
type HistoryConfig struct {
	MaxConsecutiveGaps int `json:"maxConsecutiveGaps" mapstructure:"maxConsecutiveGaps"`
	// MaxSteps of zero means unbounded.
	MaxSteps int `json:"maxSteps" mapstructure:"maxSteps"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Format is "human" or "json".
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
	// File additionally receives every record at Level when set.
	File       string `json:"file" mapstructure:"file"`
	MaxSize    string `json:"maxSize" mapstructure:"maxSize"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Cache: CacheConfig{
			Backend:      "sqlite",
			Dir:          filepath.Join(DirName, "cache"),
			ParseWorkers: 4,
		},
		Parser: ParserConfig{
			TimeoutMs:   10000,
			MaxFileSize: 2 << 20,
			Languages: map[string][]string{
				"java":   {"**/*.java"},
				"python": {"**/*.py"},
			},
		},
		Backend: BackendConfig{
			BlobTimeoutMs:     5000,
			MaxMoveCandidates: 20,
			FollowRenames:     true,
		},
		Matcher: MatcherConfig{
			AcceptThreshold:  0.4,
			AmbiguityEpsilon: 0.01,
			Weights: WeightsConfig{
				Name:      0.3,
				Signature: 0.2,
				Body:      0.5,
			},
			ExtractContainment: 0.8,
			MinBodyTokens:      3,
		},
		History: HistoryConfig{
			MaxConsecutiveGaps: 3,
		},
		Logging: LoggingConfig{
			Format:     "human",
			Level:      "warn",
			MaxSize:    "10MB",
			MaxBackups: 3,
		},
	}
}

// EnvOverride records one environment variable applied on load.
type EnvOverride struct {
	Var   string `json:"var"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// LoadResult is a loaded config with its provenance.
type LoadResult struct {
	Config       *Config
	ConfigPath   string
	UsedDefaults bool
	EnvOverrides []EnvOverride
}

// LoadConfig loads configuration for the repository at repoRoot.
func LoadConfig(repoRoot string) (*Config, error) {
	res, err := LoadConfigWithDetails(repoRoot)
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

// LoadConfigWithDetails loads configuration from CODETRACKER_CONFIG_PATH or
// <repoRoot>/.codetracker/config.{json,yaml,yml,toml}, layered over the
// defaults, then applies CODETRACKER_* environment overrides.
func LoadConfigWithDetails(repoRoot string) (*LoadResult, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		for _, name := range configNames {
			p := filepath.Join(repoRoot, DirName, name)
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	return load(path)
}

// LoadConfigFromPath loads the config file at path over the defaults.
func LoadConfigFromPath(path string) (*Config, error) {
	res, err := load(path)
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

func load(path string) (*LoadResult, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	res := &LoadResult{UsedDefaults: path == "", ConfigPath: path}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(strings.TrimPrefix(filepath.Ext(path), "."))
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	res.EnvOverrides = activeOverrides(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	res.Config = &cfg
	return res, nil
}

// newViper returns a viper instance seeded with the defaults and bound to
// the environment.
func newViper() (*viper.Viper, error) {
	v := viper.New()
	defaults, err := json.Marshal(DefaultConfig())
	if err != nil {
		return nil, err
	}
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("seed defaults: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

func envVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func activeOverrides(v *viper.Viper) []EnvOverride {
	var out []EnvOverride
	keys := v.AllKeys()
	sort.Strings(keys)
	for _, k := range keys {
		name := envVar(k)
		if val, ok := os.LookupEnv(name); ok {
			out = append(out, EnvOverride{Var: name, Key: k, Value: val})
		}
	}
	return out
}

// GetSupportedEnvVars lists every environment variable that overrides a
// config key.
func GetSupportedEnvVars() []string {
	v, err := newViper()
	if err != nil {
		return nil
	}
	keys := v.AllKeys()
	out := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		out = append(out, envVar(k))
	}
	out = append(out, EnvConfigPath)
	sort.Strings(out)
	return out
}

// Save writes the configuration to .codetracker/config.json
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// CacheDir returns the absolute snapshot cache directory for repoRoot.
func (c *Config) CacheDir(repoRoot string) string {
	if filepath.IsAbs(c.Cache.Dir) {
		return c.Cache.Dir
	}
	return filepath.Join(repoRoot, c.Cache.Dir)
}

// ParseTimeout returns the per-file parse timeout.
func (c *Config) ParseTimeout() time.Duration {
	return time.Duration(c.Parser.TimeoutMs) * time.Millisecond
}

// BlobTimeout returns the per-call version-control timeout.
func (c *Config) BlobTimeout() time.Duration {
	return time.Duration(c.Backend.BlobTimeoutMs) * time.Millisecond
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	supported := false
	for _, v := range SupportedConfigVersions {
		if c.Version == v {
			supported = true
			break
		}
	}
	if !supported {
		return &ConfigError{Field: "version", Message: fmt.Sprintf("unsupported config version %d", c.Version)}
	}

	switch c.Cache.Backend {
	case "sqlite", "file", "none":
	default:
		return &ConfigError{Field: "cache.backend", Message: fmt.Sprintf("unknown backend %q", c.Cache.Backend)}
	}
	if c.Cache.ParseWorkers < 1 {
		return &ConfigError{Field: "cache.parseWorkers", Message: "must be at least 1"}
	}
	if c.Parser.TimeoutMs <= 0 {
		return &ConfigError{Field: "parser.timeoutMs", Message: "must be positive"}
	}
	if c.Backend.BlobTimeoutMs <= 0 {
		return &ConfigError{Field: "backend.blobTimeoutMs", Message: "must be positive"}
	}

	m := c.Matcher
	for field, w := range map[string]float64{
		"matcher.weights.name":      m.Weights.Name,
		"matcher.weights.signature": m.Weights.Signature,
		"matcher.weights.body":      m.Weights.Body,
	} {
		if w < 0 || w > 1 {
			return &ConfigError{Field: field, Message: "must be within [0, 1]"}
		}
	}
	if m.Weights.Name+m.Weights.Signature+m.Weights.Body <= 0 {
		return &ConfigError{Field: "matcher.weights", Message: "at least one weight must be positive"}
	}
	if m.AcceptThreshold <= 0 || m.AcceptThreshold > 1 {
		return &ConfigError{Field: "matcher.acceptThreshold", Message: "must be within (0, 1]"}
	}
	if m.AmbiguityEpsilon <= 0 || m.AmbiguityEpsilon >= 1 {
		return &ConfigError{Field: "matcher.ambiguityEpsilon", Message: "must be within (0, 1)"}
	}
	if m.ExtractContainment <= 0 || m.ExtractContainment > 1 {
		return &ConfigError{Field: "matcher.extractContainment", Message: "must be within (0, 1]"}
	}
	if c.History.MaxConsecutiveGaps < 0 {
		return &ConfigError{Field: "history.maxConsecutiveGaps", Message: "must not be negative"}
	}

	switch c.Logging.Format {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
