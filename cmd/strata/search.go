package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var searchLanguage string

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search the content indexed by previous builds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if indexPath == "" {
			indexPath = "search.db"
		}
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		docs, err := eng.Search(cmd.Context(), args[0], searchLanguage)
		if err != nil {
			return exitWith(exitFailure, err)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "LOCATION\tLANGUAGE\tPATH\tNAME")
		for _, d := range docs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.LocationID, d.Language, d.Path, d.Name)
		}
		return w.Flush()
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchLanguage, "language", "", "Only match this language")
	rootCmd.AddCommand(searchCmd)
}
