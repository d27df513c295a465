package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/strata"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a repository",
	Long: `Init creates a file repository in dir (default: the current directory)
with the folder content type and an empty tree.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := repoPath
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			dir = cwd
		}

		opts := []strata.Option{strata.WithLogger(slog.Default())}
		if format != "" {
			opts = append(opts, strata.WithFormat(format))
		}
		repo, err := strata.Scaffold(cmd.Context(), dir, opts...)
		if err != nil {
			return exitWith(exitFailure, fmt.Errorf("initializing repository: %w", err))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Initialized empty strata repository in", repo.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
