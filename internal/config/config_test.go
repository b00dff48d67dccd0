package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, root, name, content string) string {
	t.Helper()
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", cfg.Version, CurrentVersion)
	}
	if cfg.Cache.Backend != "sqlite" {
		t.Errorf("Cache.Backend = %q, want sqlite", cfg.Cache.Backend)
	}
	if cfg.Matcher.AcceptThreshold != 0.4 {
		t.Errorf("AcceptThreshold = %v, want 0.4", cfg.Matcher.AcceptThreshold)
	}
	w := cfg.Matcher.Weights
	if sum := w.Name + w.Signature + w.Body; sum < 0.999 || sum > 1.001 {
		t.Errorf("weights sum = %v, want 1", sum)
	}
	if !cfg.Backend.FollowRenames {
		t.Error("FollowRenames should default to true")
	}
	if len(cfg.Parser.Languages["java"]) == 0 {
		t.Error("java globs missing")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	res, err := LoadConfigWithDetails(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfigWithDetails: %v", err)
	}
	if !res.UsedDefaults {
		t.Error("UsedDefaults = false without a config file")
	}
	if res.ConfigPath != "" {
		t.Errorf("ConfigPath = %q, want empty", res.ConfigPath)
	}
	if res.Config.Matcher.Weights.Body != 0.5 {
		t.Errorf("Weights.Body = %v, want 0.5", res.Config.Matcher.Weights.Body)
	}
	if res.Config.History.MaxConsecutiveGaps != 3 {
		t.Errorf("MaxConsecutiveGaps = %d, want 3", res.Config.History.MaxConsecutiveGaps)
	}
}

func TestLoadConfigJSON(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	root := t.TempDir()
	path := writeConfig(t, root, "config.json", `{
  "cache": {"backend": "file"},
  "matcher": {"acceptThreshold": 0.6, "weights": {"body": 0.7}},
  "history": {"maxSteps": 50}
}`)

	res, err := LoadConfigWithDetails(root)
	if err != nil {
		t.Fatalf("LoadConfigWithDetails: %v", err)
	}
	if res.UsedDefaults {
		t.Error("UsedDefaults = true with a config file")
	}
	if res.ConfigPath != path {
		t.Errorf("ConfigPath = %q, want %q", res.ConfigPath, path)
	}
	cfg := res.Config
	if cfg.Cache.Backend != "file" {
		t.Errorf("Cache.Backend = %q, want file", cfg.Cache.Backend)
	}
	if cfg.Matcher.AcceptThreshold != 0.6 {
		t.Errorf("AcceptThreshold = %v, want 0.6", cfg.Matcher.AcceptThreshold)
	}
	if cfg.Matcher.Weights.Body != 0.7 || cfg.Matcher.Weights.Name != 0.3 {
		t.Errorf("Weights = %+v, want body 0.7 with default name", cfg.Matcher.Weights)
	}
	if cfg.History.MaxSteps != 50 {
		t.Errorf("MaxSteps = %d, want 50", cfg.History.MaxSteps)
	}
	// Untouched sections keep their defaults.
	if cfg.Parser.TimeoutMs != 10000 {
		t.Errorf("Parser.TimeoutMs = %d, want default", cfg.Parser.TimeoutMs)
	}
}

func TestLoadConfigYAMLAndTOML(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "config.yaml", "logging:\n  level: debug\nbackend:\n  followRenames: false\n"},
		{"toml", "config.toml", "[logging]\nlevel = \"debug\"\n\n[backend]\nfollowRenames = false\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeConfig(t, root, tt.file, tt.content)

			cfg, err := LoadConfig(root)
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}
			if cfg.Logging.Level != "debug" {
				t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
			}
			if cfg.Backend.FollowRenames {
				t.Error("FollowRenames = true, want false")
			}
		})
	}
}

func TestLoadConfigPrefersJSON(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	root := t.TempDir()
	writeConfig(t, root, "config.yaml", "logging:\n  level: warn\n")
	writeConfig(t, root, "config.json", `{"logging": {"level": "error"}}`)

	cfg, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q, want error", cfg.Logging.Level)
	}
}

func TestLoadConfigExplicitPath(t *testing.T) {
	other := t.TempDir()
	path := filepath.Join(other, "tracker.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  backend: none\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, path)

	res, err := LoadConfigWithDetails(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfigWithDetails: %v", err)
	}
	if res.ConfigPath != path {
		t.Errorf("ConfigPath = %q, want %q", res.ConfigPath, path)
	}
	if res.Config.Cache.Backend != "none" {
		t.Errorf("Cache.Backend = %q, want none", res.Config.Cache.Backend)
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	root := t.TempDir()
	writeConfig(t, root, "config.json", `{"cache": `)

	if _, err := LoadConfig(root); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("CODETRACKER_MATCHER_ACCEPTTHRESHOLD", "0.55")
	t.Setenv("CODETRACKER_LOGGING_LEVEL", "debug")
	t.Setenv("CODETRACKER_CACHE_PARSEWORKERS", "8")

	res, err := LoadConfigWithDetails(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfigWithDetails: %v", err)
	}
	cfg := res.Config
	if cfg.Matcher.AcceptThreshold != 0.55 {
		t.Errorf("AcceptThreshold = %v, want 0.55", cfg.Matcher.AcceptThreshold)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Cache.ParseWorkers != 8 {
		t.Errorf("ParseWorkers = %d, want 8", cfg.Cache.ParseWorkers)
	}

	got := make(map[string]string)
	for _, o := range res.EnvOverrides {
		got[o.Var] = o.Value
	}
	if len(got) != 3 {
		t.Errorf("EnvOverrides = %+v, want 3 entries", res.EnvOverrides)
	}
	if got["CODETRACKER_LOGGING_LEVEL"] != "debug" {
		t.Errorf("missing logging override: %+v", res.EnvOverrides)
	}
}

func TestEnvOverridesBeatFile(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	root := t.TempDir()
	writeConfig(t, root, "config.json", `{"history": {"maxSteps": 10}}`)
	t.Setenv("CODETRACKER_HISTORY_MAXSTEPS", "20")

	cfg, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.History.MaxSteps != 20 {
		t.Errorf("MaxSteps = %d, want 20", cfg.History.MaxSteps)
	}
}

func TestEnvOverrideInvalidValue(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("CODETRACKER_HISTORY_MAXSTEPS", "lots")

	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Error("expected decode error for non-numeric override")
	}
}

func TestGetSupportedEnvVars(t *testing.T) {
	vars := GetSupportedEnvVars()
	want := []string{
		"CODETRACKER_CONFIG_PATH",
		"CODETRACKER_MATCHER_ACCEPTTHRESHOLD",
		"CODETRACKER_MATCHER_WEIGHTS_BODY",
		"CODETRACKER_LOGGING_LEVEL",
		"CODETRACKER_HISTORY_MAXCONSECUTIVEGAPS",
	}
	have := make(map[string]bool, len(vars))
	for _, v := range vars {
		if !strings.HasPrefix(v, "CODETRACKER_") {
			t.Errorf("unexpected variable %q", v)
		}
		have[v] = true
	}
	for _, w := range want {
		if !have[w] {
			t.Errorf("missing %s", w)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Matcher.AcceptThreshold = 0.45
	cfg.Cache.Backend = "file"

	if err := cfg.Save(root); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, DirName, "config.json")); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	loaded, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Matcher.AcceptThreshold != 0.45 || loaded.Cache.Backend != "file" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"version", func(c *Config) { c.Version = 9 }, "version"},
		{"backend", func(c *Config) { c.Cache.Backend = "redis" }, "cache.backend"},
		{"workers", func(c *Config) { c.Cache.ParseWorkers = 0 }, "cache.parseWorkers"},
		{"parse timeout", func(c *Config) { c.Parser.TimeoutMs = 0 }, "parser.timeoutMs"},
		{"blob timeout", func(c *Config) { c.Backend.BlobTimeoutMs = -1 }, "backend.blobTimeoutMs"},
		{"weight range", func(c *Config) { c.Matcher.Weights.Body = 1.5 }, "matcher.weights.body"},
		{"zero weights", func(c *Config) { c.Matcher.Weights = WeightsConfig{} }, "matcher.weights"},
		{"threshold", func(c *Config) { c.Matcher.AcceptThreshold = 0 }, "matcher.acceptThreshold"},
		{"epsilon", func(c *Config) { c.Matcher.AmbiguityEpsilon = 1 }, "matcher.ambiguityEpsilon"},
		{"zero epsilon", func(c *Config) { c.Matcher.AmbiguityEpsilon = 0 }, "matcher.ambiguityEpsilon"},
		{"containment", func(c *Config) { c.Matcher.ExtractContainment = 2 }, "matcher.extractContainment"},
		{"gaps", func(c *Config) { c.History.MaxConsecutiveGaps = -1 }, "history.maxConsecutiveGaps"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var ce *ConfigError
			if !stderrors.As(err, &ce) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestCacheDirAndTimeouts(t *testing.T) {
	cfg := DefaultConfig()
	if got, want := cfg.CacheDir("/repo"), filepath.Join("/repo", DirName, "cache"); got != want {
		t.Errorf("CacheDir = %q, want %q", got, want)
	}
	cfg.Cache.Dir = "/var/cache/ct"
	if got := cfg.CacheDir("/repo"); got != "/var/cache/ct" {
		t.Errorf("absolute CacheDir = %q", got)
	}
	if cfg.ParseTimeout().Seconds() != 10 {
		t.Errorf("ParseTimeout = %v", cfg.ParseTimeout())
	}
	if cfg.BlobTimeout().Seconds() != 5 {
		t.Errorf("BlobTimeout = %v", cfg.BlobTimeout())
	}
}
