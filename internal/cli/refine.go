package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bucktownnz/release/internal/cache"
	"github.com/bucktownnz/release/internal/config"
	"github.com/bucktownnz/release/internal/ingest"
	"github.com/bucktownnz/release/internal/llm"
	"github.com/bucktownnz/release/internal/profile"
	"github.com/bucktownnz/release/internal/refine"
	"github.com/bucktownnz/release/internal/report"
)

var refineCmd = &cobra.Command{
	Use:   "refine <export.csv>",
	Short: "Refine an epic CSV export into an epic pack",
	Long: `Refine parses a tracker CSV export containing exactly one epic and its
child tickets, runs every child through LLM refinement in parallel, then
synthesizes the epic narrative, suggested missing tickets and an aggregated
action list. Artefacts are written as a timestamped pack directory plus a
zip archive.`,
	Args: cobra.ExactArgs(1),
	RunE: runRefine,
}

func init() {
	addRefineFlags(refineCmd.Flags())
}

func addRefineFlags(f *pflag.FlagSet) {
	f.String("config", "", "path to a release.yaml config file")
	f.String("project", "", "project key used in prompts and cache fingerprints")
	f.String("model", "", "generation model")
	f.Float64("temperature", 0, "sampling temperature")
	f.Int("max-tokens", 0, "completion token cap")
	f.Int("concurrency", 0, "parallel ticket refinements")
	f.Int("truncate", 0, "cap ticket descriptions at this many characters (0 = no cap)")
	f.String("out-dir", "", "base directory for epic packs")
	f.String("cache-dir", "", "stage cache directory")
	f.String("redis", "", "redis address for the stage cache (overrides --cache-dir)")
	f.String("squads-file", "", "YAML file of squad profiles")
	f.String("squad", "", "squad profile to include in prompts")
	f.String("ticket-example", "", "file with an example refined ticket")
	f.String("epic-example", "", "file with an example refined epic")
	f.StringArray("column", nil, "column override as canonical=Header (repeatable)")
	f.Bool("dry-run", false, "parse and report without calling the generation service")
}

// mergeFlags overlays explicitly-set flags onto the file config.
func mergeFlags(cmd *cobra.Command, r *config.RefinerConfig) error {
	f := cmd.Flags()

	stringInto := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	intInto := func(name string, dst *int) {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}

	stringInto("project", &r.Project)
	stringInto("model", &r.Model)
	stringInto("out-dir", &r.OutputDir)
	stringInto("cache-dir", &r.CacheDir)
	stringInto("redis", &r.RedisAddr)
	stringInto("squads-file", &r.SquadsFile)
	stringInto("squad", &r.Squad)
	stringInto("ticket-example", &r.TicketExampleFile)
	stringInto("epic-example", &r.EpicExampleFile)
	intInto("max-tokens", &r.MaxTokens)
	intInto("concurrency", &r.Concurrency)
	intInto("truncate", &r.TruncateChars)
	if f.Changed("temperature") {
		r.Temperature, _ = f.GetFloat64("temperature")
	}

	columns, _ := f.GetStringArray("column")
	for _, spec := range columns {
		name, header, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("invalid --column %q, expected canonical=Header", spec)
		}
		if r.ColumnOverrides == nil {
			r.ColumnOverrides = map[string]string{}
		}
		r.ColumnOverrides[strings.TrimSpace(name)] = strings.TrimSpace(header)
	}
	return nil
}

func loadRunConfig(cmd *cobra.Command) (*config.RefinerConfig, error) {
	var (
		cfg *config.FileConfig
		err error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	if err := mergeFlags(cmd, &cfg.Refiner); err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		lines := make([]string, len(errs))
		for i, e := range errs {
			lines[i] = "  " + e.Error()
		}
		return nil, fmt.Errorf("invalid configuration:\n%s", strings.Join(lines, "\n"))
	}
	if cfg.Refiner.Project == "" {
		return nil, fmt.Errorf("a project key is required (set --project or refiner.project)")
	}
	return &cfg.Refiner, nil
}

// squadContext resolves the selected squad profile into the prompt block,
// empty when no squad is configured.
func squadContext(r *config.RefinerConfig) (string, error) {
	if r.Squad == "" {
		return "", nil
	}
	profiles, err := profile.Load(r.SquadsFile)
	if err != nil {
		return "", fmt.Errorf("load squads: %w", err)
	}
	squad, ok := profiles.Lookup(r.Squad)
	if !ok {
		return "", fmt.Errorf("unknown squad %q (known: %s)", r.Squad, strings.Join(profiles.Names(), ", "))
	}
	return squad.Format(), nil
}

func openStore(cmd *cobra.Command, r *config.RefinerConfig) (cache.Store, func(), error) {
	if r.RedisAddr != "" {
		store, err := cache.NewRedisStore(cmd.Context(), &redis.Options{Addr: r.RedisAddr})
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis cache: %w", err)
		}
		return store, func() { store.Close() }, nil
	}
	store, err := cache.NewFileStore(r.CacheDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open file cache: %w", err)
	}
	return store, func() {}, nil
}

func readOptionalFile(path, what string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", what, err)
	}
	return string(data), nil
}

func runRefine(cmd *cobra.Command, args []string) error {
	r, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	parse, err := ingest.ParseFile(args[0], r.ColumnOverrides)
	if err != nil {
		return fmt.Errorf("parse export: %w", err)
	}

	stderr := cmd.ErrOrStderr()
	heading := color.New(color.FgCyan, color.Bold)
	warn := color.New(color.FgYellow)

	heading.Fprintf(stderr, "Epic %s · %s\n", parse.Epic.Key, parse.Epic.Summary)
	fmt.Fprintf(stderr, "%d child tickets, %d rows excluded, %d warnings\n",
		len(parse.Children), len(parse.ExcludedRows), len(parse.Warnings))
	for _, name := range ingest.ColumnNames() {
		if header := parse.DetectedColumns[name]; header != "" {
			fmt.Fprintf(stderr, "  column %-13s -> %s\n", name, header)
		}
	}
	for _, w := range parse.Warnings {
		warn.Fprintf(stderr, "warning: %s\n", w)
	}

	squadBlock, err := squadContext(r)
	if err != nil {
		return err
	}

	ticketExample, err := readOptionalFile(r.TicketExampleFile, "ticket example")
	if err != nil {
		return err
	}
	epicExample, err := readOptionalFile(r.EpicExampleFile, "epic example")
	if err != nil {
		return err
	}

	var completer llm.Completer
	if !dryRun {
		client, err := llm.NewClient("", "")
		if err != nil {
			return err
		}
		completer = client
	}

	store, closeStore, err := openStore(cmd, r)
	if err != nil {
		return err
	}
	defer closeStore()

	pipe := refine.NewPipeline(store, completer, refine.Config{
		Project:       r.Project,
		Model:         r.Model,
		Temperature:   r.Temperature,
		MaxTokens:     r.MaxTokens,
		Concurrency:   r.Concurrency,
		PromptVersion: r.PromptVersion,
		TruncateChars: r.TruncateChars,
		TicketExample: ticketExample,
		EpicExample:   epicExample,
		DryRun:        dryRun,
	})
	pipe.SetProgress(stderr)

	run, err := pipe.Run(cmd.Context(), parse, squadBlock)
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Fprintln(stderr, "Dry run complete; no pack written.")
		return nil
	}

	fmt.Fprintf(stderr, "Cache hits: tickets %d, epic %d, suggestions %d, gap %d\n",
		run.CacheHits[refine.StageTickets], run.CacheHits[refine.StageEpic],
		run.CacheHits[refine.StageSuggestions], run.CacheHits[refine.StageGap])

	for _, e := range run.TicketErrors {
		warn.Fprintf(stderr, "warning: %s\n", e)
	}
	for _, e := range run.StageErrors {
		warn.Fprintf(stderr, "warning: %s\n", e)
	}

	out, err := report.WriteEpicPack(r.OutputDir, run)
	if err != nil {
		return fmt.Errorf("write epic pack: %w", err)
	}

	success := color.New(color.FgGreen, color.Bold)
	success.Fprintf(stderr, "Epic pack written to %s\n", out.Dir)
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", out.Dir)
	return nil
}
