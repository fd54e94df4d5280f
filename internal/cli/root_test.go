package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/bucktownnz/release/internal/config"
)

func executeCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// newRefineFlagsCommand builds a throwaway command carrying the refine flag
// set, so flag-merge tests don't mutate the shared refineCmd.
func newRefineFlagsCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "refine"}
	addRefineFlags(cmd.Flags())
	return cmd
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, sub := range []string{"refine", "squads", "cache", "config", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestMergeFlags(t *testing.T) {
	r := config.RefinerConfig{
		Project:     "FILE",
		Model:       "gpt-4o-mini",
		Concurrency: 3,
	}

	cmd := newRefineFlagsCommand()
	for name, value := range map[string]string{
		"project":     "FLAG",
		"concurrency": "7",
		"column":      "issue_key=Issue id",
	} {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatal(err)
		}
	}

	if err := mergeFlags(cmd, &r); err != nil {
		t.Fatalf("mergeFlags: %v", err)
	}

	if r.Project != "FLAG" {
		t.Errorf("Project = %q, flag should win over file", r.Project)
	}
	if r.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, unset flag must not clobber file value", r.Model)
	}
	if r.Concurrency != 7 {
		t.Errorf("Concurrency = %d, want 7", r.Concurrency)
	}
	if r.ColumnOverrides["issue_key"] != "Issue id" {
		t.Errorf("ColumnOverrides = %v", r.ColumnOverrides)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "release.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigValidateCommand(t *testing.T) {
	path := writeConfigFile(t, "refiner:\n  project: CAT\n  output_dir: ./packs\n")
	out, err := executeCommand("config", "validate", "--file", path)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration is valid") || !strings.Contains(out, path) {
		t.Errorf("output should confirm validity and name the source file:\n%s", out)
	}
}

func TestConfigValidateCommandReportsErrors(t *testing.T) {
	path := writeConfigFile(t, "refiner:\n  temperature: 9\n")
	out, err := executeCommand("config", "validate", "--file", path)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(out, "refiner.temperature") {
		t.Errorf("output should list the failing field:\n%s", out)
	}
}

func TestConfigShowCommand(t *testing.T) {
	path := writeConfigFile(t, "refiner:\n  project: CAT\n  redis_addr: localhost:6379\n")
	out, err := executeCommand("config", "show", "--file", path)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{
		"# source: " + path,
		"project: CAT",
		"model: " + config.DefaultModel,
		"# effective output dir:",
		"# effective cache: redis localhost:6379",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("config show output missing %q:\n%s", want, out)
		}
	}
}

func TestMergeFlagsRejectsBadColumn(t *testing.T) {
	cmd := newRefineFlagsCommand()
	if err := cmd.Flags().Set("column", "no-equals-sign"); err != nil {
		t.Fatal(err)
	}

	var r config.RefinerConfig
	if err := mergeFlags(cmd, &r); err == nil {
		t.Error("expected error for malformed --column value")
	}
}
