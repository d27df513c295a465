package main

import (
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply <pattern>...",
	Short: "Build the documents matching the patterns",
	Long: `Apply builds every document matching the given doublestar patterns,
in lexical order, each as its own build. It stops at the first failure.`,
	Example: `  strata apply documents/landing.yaml
  strata apply 'documents/**/*.yaml' -l eng-GB,ger-DE --var env=staging`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		out := cmd.OutOrStdout()
		for _, pattern := range args {
			reports, err := eng.ApplyFiles(cmd.Context(), pattern)
			for _, r := range reports {
				printReport(out, r)
			}
			if err != nil {
				return exitWith(exitFailure, err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
}
