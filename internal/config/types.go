// Package config loads and validates the refiner's run configuration from
// YAML, merging file values with built-in defaults. Command-line flags are
// merged on top by the CLI layer.
package config

// Built-in defaults, applied to any field the file leaves unset.
const (
	DefaultModel         = "gpt-4o-mini"
	DefaultMaxTokens     = 1800
	DefaultConcurrency   = 3
	DefaultOutputDir     = "./out/epic_packs"
	DefaultCacheDir      = "./out/.epic_refiner_cache"
	DefaultPromptVersion = "2024-11-epic-pack-v1"
)

// FileConfig is the top-level YAML document.
type FileConfig struct {
	Refiner RefinerConfig `yaml:"refiner"`
}

// RefinerConfig holds everything one refinement run needs: model parameters,
// cache and output locations, squad profile selection and CSV column
// overrides.
type RefinerConfig struct {
	Project     string  `yaml:"project"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Concurrency int     `yaml:"concurrency"`

	// TruncateChars caps ticket descriptions before prompting; zero
	// disables truncation.
	TruncateChars int `yaml:"truncate_chars"`

	OutputDir string `yaml:"output_dir"`
	CacheDir  string `yaml:"cache_dir"`

	// RedisAddr switches the stage cache to Redis when set; the file cache
	// is used otherwise.
	RedisAddr string `yaml:"redis_addr"`

	SquadsFile string `yaml:"squads_file"`
	Squad      string `yaml:"squad"`

	// Optional style exemplar files included verbatim in prompts.
	TicketExampleFile string `yaml:"ticket_example_file"`
	EpicExampleFile   string `yaml:"epic_example_file"`

	// ColumnOverrides maps canonical column names (key, issue_type,
	// summary, ...) to the exact header used in the export.
	ColumnOverrides map[string]string `yaml:"column_overrides"`

	PromptVersion string `yaml:"prompt_version"`
}
