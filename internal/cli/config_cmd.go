package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bucktownnz/release/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the resolved refiner configuration",
}

// resolveConfigSource loads the config the same way refine does: --file if
// given, otherwise the standard search locations, otherwise built-in
// defaults.
func resolveConfigSource(cmd *cobra.Command) (*config.FileConfig, string, error) {
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}
	return config.LoadDefault()
}

func describeSource(source string) string {
	if source == "" {
		return "built-in defaults (no config file found)"
	}
	return source
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the refiner configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, source, err := resolveConfigSource(cmd)
		if err != nil {
			return err
		}

		errs := config.Validate(cfg)
		if len(errs) == 0 {
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(),
				"Configuration is valid (%s).\n", describeSource(source))
			return nil
		}

		warn := color.New(color.FgYellow)
		warn.Fprintf(cmd.ErrOrStderr(), "Validation errors in %s:\n", describeSource(source))
		for _, e := range errs {
			warn.Fprintf(cmd.ErrOrStderr(), "  - %s\n", e)
		}
		return fmt.Errorf("config has %d validation error(s)", len(errs))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration and effective paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, source, err := resolveConfigSource(cmd)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# source: %s\n", describeSource(source))

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config: %w", err)
		}
		fmt.Fprint(out, string(data))

		// The cache and output locations end up relative to the working
		// directory; show them resolved so a surprising pack location is
		// obvious before a run.
		r := cfg.Refiner
		outputDir, err := filepath.Abs(r.OutputDir)
		if err != nil {
			outputDir = r.OutputDir
		}
		fmt.Fprintf(out, "\n# effective output dir: %s\n", outputDir)
		if r.RedisAddr != "" {
			fmt.Fprintf(out, "# effective cache: redis %s\n", r.RedisAddr)
		} else {
			cacheDir, err := filepath.Abs(r.CacheDir)
			if err != nil {
				cacheDir = r.CacheDir
			}
			fmt.Fprintf(out, "# effective cache: file %s\n", cacheDir)
		}
		if len(r.ColumnOverrides) > 0 {
			fmt.Fprintf(out, "# column overrides: %d set\n", len(r.ColumnOverrides))
		}
		if strings.TrimSpace(r.Project) == "" {
			fmt.Fprintln(out, "# note: no project key configured; refine requires --project")
		}
		return nil
	},
}

func init() {
	configCmd.PersistentFlags().StringP("file", "f", "", "path to a refiner config file")
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
