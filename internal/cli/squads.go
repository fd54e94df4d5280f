package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bucktownnz/release/internal/profile"
)

var squadsCmd = &cobra.Command{
	Use:   "squads",
	Short: "Inspect squad profiles",
}

var squadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List squads defined in the profiles file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := squadsPath(cmd)
		if err != nil {
			return err
		}
		profiles, err := profile.Load(path)
		if err != nil {
			return fmt.Errorf("load squads: %w", err)
		}
		if len(profiles) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No squads defined.")
			return nil
		}
		for _, name := range profiles.Names() {
			squad, _ := profiles.Lookup(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", name, squad.DisplayName)
		}
		return nil
	},
}

var squadsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show the prompt context block for one squad",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := squadsPath(cmd)
		if err != nil {
			return err
		}
		profiles, err := profile.Load(path)
		if err != nil {
			return fmt.Errorf("load squads: %w", err)
		}
		squad, ok := profiles.Lookup(args[0])
		if !ok {
			return fmt.Errorf("unknown squad %q", args[0])
		}
		color.New(color.FgCyan, color.Bold).Fprintln(cmd.ErrOrStderr(), squad.DisplayName)
		fmt.Fprintln(cmd.OutOrStdout(), squad.Format())
		return nil
	},
}

func squadsPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		return path, nil
	}
	return profile.DefaultPath()
}

func init() {
	squadsCmd.PersistentFlags().String("file", "", "squad profiles YAML file")
	squadsCmd.AddCommand(squadsListCmd)
	squadsCmd.AddCommand(squadsShowCmd)
}
