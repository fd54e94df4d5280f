package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "release",
	Short: "release — epic pack refiner",
	Long: `release turns a raw issue-tracker CSV export of an epic and its children
into a polished epic pack: refined tickets, an epic narrative, suggested
missing tickets and an aggregated action list.

Every generation stage is cached by content fingerprint, so re-running on an
unchanged export costs nothing.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(refineCmd)
	rootCmd.AddCommand(squadsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(configCmd)
}
