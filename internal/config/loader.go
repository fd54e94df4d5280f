package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a refiner configuration from the given YAML file
// path. After parsing, defaults are applied to any field left unset.
func Load(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a refiner config in standard locations and loads
// the first one found, returning the path it came from. Search order:
// ./release.yaml, ~/.release/config.yaml. When no file exists the built-in
// defaults are returned with an empty path, so the tool works from flags
// alone.
func LoadDefault() (*FileConfig, string, error) {
	candidates := []string{"release.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".release", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			cfg, err := Load(path)
			return cfg, path, err
		}
	}

	cfg := &FileConfig{}
	applyDefaults(cfg)
	return cfg, "", nil
}

// applyDefaults fills built-in defaults into any field the file left unset
// and clamps out-of-range values the same way the pipeline would.
func applyDefaults(cfg *FileConfig) {
	r := &cfg.Refiner

	if r.Model == "" {
		r.Model = DefaultModel
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.Concurrency == 0 {
		r.Concurrency = DefaultConcurrency
	}
	if r.Concurrency < 1 {
		r.Concurrency = 1
	}
	if r.TruncateChars < 0 {
		r.TruncateChars = 0
	}
	if r.OutputDir == "" {
		r.OutputDir = DefaultOutputDir
	}
	if r.CacheDir == "" {
		r.CacheDir = DefaultCacheDir
	}
	if r.PromptVersion == "" {
		r.PromptVersion = DefaultPromptVersion
	}
}
