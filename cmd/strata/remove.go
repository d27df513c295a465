package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:     "remove <ref>[,<ref>...]...",
	Aliases: []string{"rm"},
	Short:   "Remove locations and their subtrees",
	Long: `Remove deletes the referenced locations in the given order. References
are location ids, remote ids or paths; the undo line of a build can be
passed as is.`,
	Example: `  strata remove 102,101,100
  strata remove /site/news landing:4f6c`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		res, err := eng.Remove(cmd.Context(), args...)
		out := cmd.OutOrStdout()
		if res != nil {
			for _, id := range res.Removed {
				fmt.Fprintf(out, "%s %d\n", success.Sprint("removed"), id)
			}
			for _, ref := range res.Missing {
				fmt.Fprintf(out, "%s %s\n", notice.Sprint("missing"), ref)
			}
		}
		if err != nil {
			return exitWith(exitFailure, err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
}
